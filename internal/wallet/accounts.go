package wallet

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/storage"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/pkg/models"
)

// persistedAccounts is the layout of the accounts record: one list of
// account sets per network, indexed by address index.
type persistedAccounts map[models.Network][]models.AccountSet

// AccountManager creates and looks up wallet accounts. Records are persisted
// through a Store; private keys never are.
type AccountManager struct {
	deriver *Deriver
	store   storage.Store
}

// NewAccountManager returns an AccountManager persisting to store.
func NewAccountManager(deriver *Deriver, store storage.Store) *AccountManager {
	return &AccountManager{deriver: deriver, store: store}
}

// Accounts returns all account sets of network, creating the first one if
// none exists yet.
func (m *AccountManager) Accounts(ctx context.Context,
	network models.Network) ([]models.AccountSet, error) {

	all, err := m.load()
	if err != nil {
		return nil, err
	}

	if len(all[network]) == 0 {
		if _, err := m.createAccountSet(ctx, all, network); err != nil {
			return nil, err
		}
	}

	return all[network], nil
}

// Persisted returns the stored account sets of network without creating any.
func (m *AccountManager) Persisted(network models.Network) ([]models.AccountSet, error) {
	all, err := m.load()
	if err != nil {
		return nil, err
	}
	return all[network], nil
}

// NextIndex returns the index the next AddAccount call will use.
func (m *AccountManager) NextIndex(network models.Network) (uint32, error) {
	all, err := m.load()
	if err != nil {
		return 0, err
	}
	return uint32(len(all[network])), nil
}

// AddAccount derives and persists the next account set of network.
func (m *AccountManager) AddAccount(ctx context.Context,
	network models.Network) (models.AccountSet, error) {

	all, err := m.load()
	if err != nil {
		return nil, err
	}
	return m.createAccountSet(ctx, all, network)
}

// DeriveAccount derives the account of one script type at index.
func (m *AccountManager) DeriveAccount(ctx context.Context, network models.Network,
	scriptType models.ScriptType, index uint32) (models.Account, error) {

	key, err := m.deriver.DeriveAccountKey(ctx, network, scriptType, index)
	if err != nil {
		return models.Account{}, err
	}

	_, pubKey := key.Node.ECKeys()
	compressed := pubKey.SerializeCompressed()

	address, err := DeriveAddress(compressed, scriptType, network)
	if err != nil {
		return models.Account{}, err
	}

	return models.Account{
		DerivationPath: key.Path,
		PubKey:         hex.EncodeToString(compressed),
		Address:        address,
		ScriptType:     scriptType,
		MFP:            key.MasterFingerprint,
	}, nil
}

// Flatten lists every account of the given sets.
func Flatten(sets []models.AccountSet) []models.Account {
	var accounts []models.Account
	for _, set := range sets {
		for _, scriptType := range models.ScriptTypes {
			if account, ok := set[scriptType]; ok {
				accounts = append(accounts, account)
			}
		}
	}
	return accounts
}

// FindAccount returns the account whose address is address.
func FindAccount(accounts []models.Account, address string) (models.Account, error) {
	for _, account := range accounts {
		if account.Address == address {
			return account, nil
		}
	}
	return models.Account{}, fmt.Errorf("%w: %s", ErrAccountNotExisted, address)
}

func (m *AccountManager) createAccountSet(ctx context.Context,
	all persistedAccounts, network models.Network) (models.AccountSet, error) {

	index := uint32(len(all[network]))

	set := make(models.AccountSet, len(models.ScriptTypes))
	for _, scriptType := range models.ScriptTypes {
		account, err := m.DeriveAccount(ctx, network, scriptType, index)
		if err != nil {
			return nil, fmt.Errorf("derive %s account %d: %w",
				scriptType, index, err)
		}
		set[scriptType] = account
	}

	all[network] = append(all[network], set)
	if err := storage.PutJSON(m.store, storage.KeyAccounts, all); err != nil {
		return nil, err
	}

	log.Infof("Created account set #%d on %s", index, network)

	return set, nil
}

func (m *AccountManager) load() (persistedAccounts, error) {
	all := make(persistedAccounts)
	if _, err := storage.GetJSON(m.store, storage.KeyAccounts, &all); err != nil {
		return nil, err
	}

	// A stored null decodes into a nil map.
	if all == nil {
		all = make(persistedAccounts)
	}
	return all, nil
}
