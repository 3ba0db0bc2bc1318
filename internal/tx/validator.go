package tx

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/wallet"
)

// FeeThreshold is a fixed sanity ceiling on the absolute fee. It guards
// against fee-griefing bugs and is not a fee-rate policy.
const FeeThreshold btcutil.Amount = 10_000_000

// Validator runs the pre-signing safety checks over a transaction.
type Validator struct {
	tx        *Transaction
	signers   []string
	inspector *Inspector
}

// NewValidator returns a Validator for tx signed by signerAddresses.
func NewValidator(tx *Transaction, signerAddresses []string) *Validator {
	return &Validator{
		tx:        tx,
		signers:   signerAddresses,
		inspector: NewInspector(tx, signerAddresses),
	}
}

// Validate runs every check in order and returns the first failure. Later
// checks are not evaluated once one fails.
func (v *Validator) Validate() error {
	checks := []func() error{
		v.checkSignerCount,
		v.checkOutputsNetwork,
		v.checkFee,
		v.checkWitnessAmount,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) checkSignerCount() error {
	if len(v.signers) != len(v.tx.inputs) {
		return fmt.Errorf("%w: %d signers for %d inputs",
			ErrSignerCountMismatch, len(v.signers), len(v.tx.inputs))
	}
	return nil
}

// checkOutputsNetwork requires change outputs to be derived for the active
// network's coin type and every other output to carry an address of the
// active network.
func (v *Validator) checkOutputsNetwork() error {
	want := v.tx.network.CoinType()

	for i, out := range v.tx.outputs {
		if out.hasDerivation {
			for _, ct := range out.coinTypes {
				if ct != want {
					return fmt.Errorf("%w: output %d derived for "+
						"coin type %d, want %d",
						ErrOutputsNetworkNotMatch, i, ct, want)
				}
			}
			continue
		}

		if !wallet.AddressMatchesNetwork(out.address, v.tx.network) {
			return fmt.Errorf("%w: output %d address %q",
				ErrOutputsNetworkNotMatch, i, out.address)
		}
	}
	return nil
}

func (v *Validator) checkFee() error {
	fee := v.inspector.Fee()
	if fee < 0 {
		return fmt.Errorf("%w: fee %d", ErrNegativeFee, int64(fee))
	}
	if fee >= FeeThreshold {
		return fmt.Errorf("%w: fee %d, ceiling %d", ErrFeeTooHigh,
			int64(fee), int64(FeeThreshold))
	}
	return nil
}

// checkWitnessAmount cross-checks the amount read from witness UTXO records
// against the one computed from full previous transactions. It only applies
// when a plain P2WPKH input is present.
func (v *Validator) checkWitnessAmount() error {
	hasWitnessPubKeyHash := false
	for _, in := range v.tx.inputs {
		if in.kind == InputP2WPKH {
			hasWitnessPubKeyHash = true
			break
		}
	}
	if !hasWitnessPubKeyHash {
		return nil
	}

	var witnessAmount btcutil.Amount
	for _, pIn := range v.tx.packet.Inputs {
		if pIn.WitnessUtxo != nil {
			witnessAmount += btcutil.Amount(pIn.WitnessUtxo.Value)
		}
	}

	inputAmount := v.inspector.InputAmount()
	if witnessAmount != inputAmount {
		return fmt.Errorf("%w: witness utxos sum to %d, inputs to %d",
			ErrAmountNotMatch, int64(witnessAmount), int64(inputAmount))
	}
	return nil
}
