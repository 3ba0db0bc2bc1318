package tx

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/pkg/models"
	"github.com/samber/lo"
)

// Inspector computes the economic facts of a transaction: who pays whom,
// how much, and at what fee.
type Inspector struct {
	tx      *Transaction
	signers []string
}

// NewInspector returns an Inspector for tx signed by signerAddresses, one
// per input in input order.
func NewInspector(tx *Transaction, signerAddresses []string) *Inspector {
	return &Inspector{tx: tx, signers: signerAddresses}
}

// InputAmount is the total value of the outputs spent by the inputs.
func (i *Inspector) InputAmount() btcutil.Amount {
	return lo.SumBy(i.tx.inputs, func(in input) btcutil.Amount {
		return btcutil.Amount(in.prevOut.Value)
	})
}

// OutputAmount is the total value of all outputs, change included.
func (i *Inspector) OutputAmount() btcutil.Amount {
	return lo.SumBy(i.tx.outputs, func(out output) btcutil.Amount {
		return out.value
	})
}

// SendAmount is the total value of all outputs not paying to a change
// address.
func (i *Inspector) SendAmount() btcutil.Amount {
	change := i.ChangeAddresses()
	return lo.SumBy(i.tx.outputs, func(out output) btcutil.Amount {
		if lo.Contains(change, out.address) {
			return 0
		}
		return out.value
	})
}

// Fee is InputAmount minus OutputAmount. It is negative for malformed
// transactions.
func (i *Inspector) Fee() btcutil.Amount {
	return i.InputAmount() - i.OutputAmount()
}

// FromAddresses returns the signer addresses as supplied by the caller.
func (i *Inspector) FromAddresses() []string {
	return i.signers
}

// ToAddresses returns the output addresses, change addresses excluded.
// Outputs without an address, such as OP_RETURN, are not listed.
func (i *Inspector) ToAddresses() []string {
	change := i.ChangeAddresses()
	return lo.FilterMap(i.tx.outputs, func(out output, _ int) (string, bool) {
		return out.address, out.address != "" &&
			!lo.Contains(change, out.address)
	})
}

// ChangeAddresses returns the addresses of outputs carrying a BIP32
// derivation hint.
func (i *Inspector) ChangeAddresses() []string {
	return lo.FilterMap(i.tx.outputs, func(out output, _ int) (string, bool) {
		return out.address, out.hasDerivation && out.address != ""
	})
}

// Summary renders the facts shown to the user before signing.
func (i *Inspector) Summary() models.TxSummary {
	unit := "sats"
	if i.tx.network != models.NetworkMain {
		unit = "tsats"
	}

	return models.TxSummary{
		From:          strings.Join(i.FromAddresses(), ","),
		To:            strings.Join(i.ToAddresses(), ","),
		Value:         fmt.Sprintf("%d %s", int64(i.SendAmount()), unit),
		Fee:           fmt.Sprintf("%d %s", int64(i.Fee()), unit),
		Network:       i.tx.network,
		ChangeAddress: strings.Join(i.ChangeAddresses(), ","),
	}
}
