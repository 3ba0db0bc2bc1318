package tx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/davecgh/go-spew/spew"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/wallet"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/pkg/models"
)

// KeyDeriver re-derives the signing key of a recorded account path.
type KeyDeriver interface {
	DeriveKeyByPath(ctx context.Context, path []string) (wallet.KeyNode, error)
}

// Signer validates, signs, verifies and finalizes transactions. It keeps no
// state between requests.
type Signer struct {
	keys KeyDeriver

	// verify is swapped in tests to exercise verification failures.
	verify func(scheme SigningScheme, sig, digest, pubKey []byte) error
}

// NewSigner returns a Signer deriving keys through keys.
func NewSigner(keys KeyDeriver) *Signer {
	return &Signer{
		keys:   keys,
		verify: verifySignature,
	}
}

// Sign runs validate, sign, verify and finalize over t. signerAddresses
// names the owner of each input in input order and accounts holds the known
// derivation records. Nothing but an error is returned if any step fails.
func (s *Signer) Sign(ctx context.Context, t *Transaction,
	signerAddresses []string, accounts []models.Account) (*models.SignedTx, error) {

	if t.state != StateParsed {
		return nil, fmt.Errorf("transaction already in state %v", t.state)
	}

	if err := NewValidator(t, signerAddresses).Validate(); err != nil {
		t.state = StateValidationFailed
		log.Warnf("Rejected transaction: %v", err)
		return nil, err
	}
	t.state = StateValidated

	sigs, err := s.signInputs(ctx, t, signerAddresses, accounts)
	if err != nil {
		if errors.Is(err, wallet.ErrKeyDerivationDenied) {
			t.state = StateKeyDerivationDenied
		} else {
			t.state = StateFailed
		}
		return nil, err
	}
	t.state = StateSigned

	for i, sig := range sigs {
		err := s.verify(sig.scheme, sig.sig, sig.sigHash, sig.pubKey)
		if err != nil {
			t.state = StateSignatureVerificationFailed
			log.Errorf("Input %d %v signature did not verify: %v", i,
				sig.scheme, err)
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}
	t.state = StateVerified

	t.recordSignatures(sigs)
	if err := t.finalize(); err != nil {
		t.state = StateFailed
		return nil, err
	}

	signed, err := t.extract()
	if err != nil {
		t.state = StateFailed
		return nil, err
	}
	t.state = StateFinalized

	log.Infof("Signed transaction %s with %d inputs", signed.TxID,
		len(sigs))

	return signed, nil
}

// signInputs signs every input. Keys are derived once per account path.
func (s *Signer) signInputs(ctx context.Context, t *Transaction,
	signerAddresses []string, accounts []models.Account) ([]*inputSignature, error) {

	signCtx := newSigningContext(t)
	keys := make(map[string]*btcec.PrivateKey)

	sigs := make([]*inputSignature, len(t.inputs))
	for i := range t.inputs {
		account, err := wallet.FindAccount(accounts, signerAddresses[i])
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}

		pathKey := strings.Join(account.DerivationPath, "/")
		privKey, ok := keys[pathKey]
		if !ok {
			node, err := s.keys.DeriveKeyByPath(ctx, account.DerivationPath)
			if err != nil {
				return nil, fmt.Errorf("input %d: %w", i, err)
			}
			privKey, _ = node.ECKeys()
			keys[pathKey] = privKey
		}

		sig, err := signCtx.signInput(i, account, privKey)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}

		log.Debugf("Signed input %d (%v) with %v: %v", i,
			t.inputs[i].kind, sig.scheme, newLogClosure(func() string {
				return spew.Sdump(sig.sig)
			}))

		sigs[i] = sig
	}

	return sigs, nil
}
