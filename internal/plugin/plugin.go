package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/storage"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/tx"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/wallet"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/pkg/models"
)

// DefaultNetwork is used until a network is persisted unless overridden with
// WithDefaultNetwork.
const DefaultNetwork = models.NetworkMain

var (
	// ErrSigningRejectedByUser is returned when the user declines a
	// signing request.
	ErrSigningRejectedByUser = errors.New("signing rejected by user")

	// ErrActionNotSupported is returned for unknown request actions.
	ErrActionNotSupported = errors.New("action not supported")
)

// Action selects what a network request does.
type Action string

const (
	ActionGet Action = "get"
	ActionSet Action = "set"
)

// Prompt is a confirmation dialog shown to the user.
type Prompt struct {
	Heading string
	Lines   []string
}

// Confirmer asks the user to approve a prompt.
type Confirmer interface {
	Confirm(ctx context.Context, prompt Prompt) (bool, error)
}

// Session carries the per-request context threaded through every call.
type Session struct {
	RequestID string
	Origin    string
	Network   models.Network
}

// Plugin serves host requests. Requests are processed one at a time.
type Plugin struct {
	mu sync.Mutex

	store     storage.Store
	deriver   *wallet.Deriver
	accounts  *wallet.AccountManager
	signer    *tx.Signer
	confirmer Confirmer

	defaultNetwork models.Network
}

// Option configures a Plugin.
type Option func(*Plugin)

// WithDefaultNetwork sets the network used until one is persisted.
func WithDefaultNetwork(network models.Network) Option {
	return func(p *Plugin) {
		p.defaultNetwork = network
	}
}

// New returns a Plugin persisting to store, deriving keys through authority
// and asking confirmer before any state changing action.
func New(store storage.Store, authority wallet.SeedAuthority,
	confirmer Confirmer, opts ...Option) *Plugin {

	deriver := wallet.NewDeriver(authority)
	p := &Plugin{
		store:          store,
		deriver:        deriver,
		accounts:       wallet.NewAccountManager(deriver, store),
		signer:         tx.NewSigner(deriver),
		confirmer:      confirmer,
		defaultNetwork: DefaultNetwork,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SignPsbt validates the base64 PSBT, asks the user to approve its summary
// and signs it. signerAddresses names the owner of every input in input
// order. No key material is requested before the user approves.
func (p *Plugin) SignPsbt(ctx context.Context, origin, psbtBase64 string,
	signerAddresses []string) (*models.SignedTx, error) {

	p.mu.Lock()
	defer p.mu.Unlock()

	session, err := p.newSession(origin)
	if err != nil {
		return nil, err
	}
	log.Infof("[%s] signPsbt from %s on %s", session.RequestID, origin,
		session.Network)

	transaction, err := tx.Parse(psbtBase64, session.Network)
	if err != nil {
		return nil, err
	}
	log.Tracef("[%s] packet: %v", session.RequestID, newLogClosure(
		func() string {
			return spew.Sdump(transaction.Packet())
		},
	))

	if err := tx.NewValidator(transaction, signerAddresses).Validate(); err != nil {
		log.Warnf("[%s] rejected psbt: %v", session.RequestID, err)
		return nil, err
	}

	// Only already persisted accounts can sign; nothing is derived before
	// the user approves.
	sets, err := p.accounts.Persisted(session.Network)
	if err != nil {
		return nil, err
	}
	accounts := wallet.Flatten(sets)
	for _, address := range signerAddresses {
		if _, err := wallet.FindAccount(accounts, address); err != nil {
			return nil, err
		}
	}

	summary := tx.NewInspector(transaction, signerAddresses).Summary()
	approved, err := p.confirm(ctx, Prompt{
		Heading: "Sign Bitcoin Transaction",
		Lines: append([]string{
			fmt.Sprintf("Please verify this ongoing transaction from %s",
				origin),
		}, summary.Lines()...),
	})
	if err != nil {
		return nil, err
	}
	if !approved {
		log.Infof("[%s] user rejected signing", session.RequestID)
		return nil, ErrSigningRejectedByUser
	}

	signed, err := p.signer.Sign(ctx, transaction, signerAddresses, accounts)
	if err != nil {
		log.Errorf("[%s] signing failed in state %v: %v",
			session.RequestID, transaction.State(), err)
		return nil, err
	}

	log.Infof("[%s] signed %s", session.RequestID, signed.TxID)
	return signed, nil
}

// Network gets or sets the active network. A declined switch returns an
// empty network and no error.
func (p *Plugin) Network(ctx context.Context, origin string, action Action,
	target models.Network) (models.Network, error) {

	p.mu.Lock()
	defer p.mu.Unlock()

	switch action {
	case ActionGet:
		return p.currentNetwork()

	case ActionSet:
		if _, err := models.ParseNetwork(string(target)); err != nil {
			return "", err
		}

		approved, err := p.confirm(ctx, Prompt{
			Heading: "Switch your network",
			Lines: []string{fmt.Sprintf("Do you want to allow %s to "+
				"switch Bitcoin network to %s?", origin, target)},
		})
		if err != nil {
			return "", err
		}
		if !approved {
			return "", nil
		}

		if err := storage.PutJSON(p.store, storage.KeyNetwork, target); err != nil {
			return "", err
		}
		log.Infof("Network switched to %s by %s", target, origin)
		return target, nil

	default:
		return "", fmt.Errorf("%w: %q", ErrActionNotSupported, action)
	}
}

// Accounts returns the account sets of the active network, creating the
// first one on demand.
func (p *Plugin) Accounts(ctx context.Context,
	origin string) ([]models.AccountSet, error) {

	p.mu.Lock()
	defer p.mu.Unlock()

	session, err := p.newSession(origin)
	if err != nil {
		return nil, err
	}
	return p.accounts.Accounts(ctx, session.Network)
}

// AddAccount creates the next account set of the active network once the
// user approves. A declined request returns nil and no error.
func (p *Plugin) AddAccount(ctx context.Context,
	origin string) (models.AccountSet, error) {

	p.mu.Lock()
	defer p.mu.Unlock()

	session, err := p.newSession(origin)
	if err != nil {
		return nil, err
	}

	index, err := p.accounts.NextIndex(session.Network)
	if err != nil {
		return nil, err
	}

	approved, err := p.confirm(ctx, Prompt{
		Heading: "Add new account",
		Lines: []string{
			fmt.Sprintf("Do you want to add new account #%d?", index),
		},
	})
	if err != nil || !approved {
		return nil, err
	}

	return p.accounts.AddAccount(ctx, session.Network)
}

// AccountXpub exports the account level extended public key of scriptType
// on the active network.
func (p *Plugin) AccountXpub(ctx context.Context, origin string,
	scriptType models.ScriptType) (string, error) {

	p.mu.Lock()
	defer p.mu.Unlock()

	session, err := p.newSession(origin)
	if err != nil {
		return "", err
	}
	return p.deriver.AccountExtendedKey(ctx, session.Network, scriptType)
}

func (p *Plugin) newSession(origin string) (*Session, error) {
	network, err := p.currentNetwork()
	if err != nil {
		return nil, err
	}
	return &Session{
		RequestID: uuid.NewString(),
		Origin:    origin,
		Network:   network,
	}, nil
}

// currentNetwork reads the persisted network, storing the default on first
// use.
func (p *Plugin) currentNetwork() (models.Network, error) {
	var network models.Network
	found, err := storage.GetJSON(p.store, storage.KeyNetwork, &network)
	if err != nil {
		return "", err
	}
	if found {
		return models.ParseNetwork(string(network))
	}

	if err := storage.PutJSON(p.store, storage.KeyNetwork, p.defaultNetwork); err != nil {
		return "", err
	}
	return p.defaultNetwork, nil
}

func (p *Plugin) confirm(ctx context.Context, prompt Prompt) (bool, error) {
	approved, err := p.confirmer.Confirm(ctx, prompt)
	if err != nil {
		return false, fmt.Errorf("confirmation: %w", err)
	}
	return approved, nil
}
