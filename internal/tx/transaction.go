package tx

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/wallet"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/pkg/models"
)

// InputKind is the script template of the output an input spends.
type InputKind uint8

const (
	InputP2PKH InputKind = iota
	InputP2SHP2WPKH
	InputP2WPKH
	InputP2TR
)

func (k InputKind) String() string {
	switch k {
	case InputP2PKH:
		return "p2pkh"
	case InputP2SHP2WPKH:
		return "p2sh-p2wpkh"
	case InputP2WPKH:
		return "p2wpkh"
	case InputP2TR:
		return "p2tr"
	default:
		return fmt.Sprintf("InputKind(%d)", uint8(k))
	}
}

// SigningScheme is the signature algorithm an input is signed and verified
// with.
type SigningScheme uint8

const (
	SchemeECDSA SigningScheme = iota
	SchemeSchnorr
)

func (s SigningScheme) String() string {
	if s == SchemeSchnorr {
		return "schnorr"
	}
	return "ecdsa"
}

// Scheme returns the signing scheme of the input kind. Only taproot key path
// spends use Schnorr.
func (k InputKind) Scheme() SigningScheme {
	if k == InputP2TR {
		return SchemeSchnorr
	}
	return SchemeECDSA
}

// State is the position of a Transaction in the signing flow.
type State uint8

const (
	StateParsed State = iota
	StateValidated
	StateSigned
	StateVerified
	StateFinalized
	StateValidationFailed
	StateSignatureVerificationFailed
	StateKeyDerivationDenied
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateValidated:
		return "validated"
	case StateSigned:
		return "signed"
	case StateVerified:
		return "verified"
	case StateFinalized:
		return "finalized"
	case StateValidationFailed:
		return "validation failed"
	case StateSignatureVerificationFailed:
		return "signature verification failed"
	case StateKeyDerivationDenied:
		return "key derivation denied"
	default:
		return "failed"
	}
}

// input is the resolved view of one PSBT input.
type input struct {
	prevOut *wire.TxOut
	kind    InputKind
}

// output is the resolved view of one PSBT output.
type output struct {
	address string
	value   btcutil.Amount

	// hasDerivation marks an output paying back to a wallet key.
	hasDerivation bool

	// coinTypes holds the coin type component of every derivation hint.
	coinTypes []uint32
}

// Transaction is a parsed PSBT bound to the network it is signed for. It is
// owned by a single signing request.
type Transaction struct {
	packet  *psbt.Packet
	network models.Network
	params  *chaincfg.Params
	inputs  []input
	outputs []output
	state   State
}

// Parse decodes a base64 PSBT and resolves the spent output of every input.
func Parse(base64Psbt string, network models.Network) (*Transaction, error) {
	packet, err := psbt.NewFromRawBytes(strings.NewReader(base64Psbt), true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPsbt, err)
	}
	return FromPacket(packet, network)
}

// FromPacket wraps an already decoded packet.
func FromPacket(packet *psbt.Packet, network models.Network) (*Transaction, error) {
	if err := psbt.InputsReadyToSign(packet); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPsbt, err)
	}

	t := &Transaction{
		packet:  packet,
		network: network,
		params:  wallet.NetParams(network),
		inputs:  make([]input, len(packet.Inputs)),
		outputs: make([]output, len(packet.Outputs)),
	}

	var totalIn btcutil.Amount
	for i := range packet.Inputs {
		in, err := t.resolveInput(i)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		totalIn, err = addAmount(totalIn, in.prevOut.Value)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		t.inputs[i] = in
	}

	var totalOut btcutil.Amount
	for i := range packet.Outputs {
		out := t.resolveOutput(i)

		var err error
		totalOut, err = addAmount(totalOut, int64(out.value))
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		t.outputs[i] = out
	}

	return t, nil
}

// addAmount adds value to total, keeping both within the satoshi supply so
// that fee arithmetic cannot overflow.
func addAmount(total btcutil.Amount, value int64) (btcutil.Amount, error) {
	if value < 0 || value > btcutil.MaxSatoshi {
		return 0, fmt.Errorf("%w: value %d out of range", ErrInvalidPsbt,
			value)
	}
	total += btcutil.Amount(value)
	if total > btcutil.MaxSatoshi {
		return 0, fmt.Errorf("%w: total value %d exceeds %d",
			ErrInvalidPsbt, int64(total), int64(btcutil.MaxSatoshi))
	}
	return total, nil
}

// Packet returns the underlying PSBT.
func (t *Transaction) Packet() *psbt.Packet {
	return t.packet
}

// Network returns the network the transaction is validated against.
func (t *Transaction) Network() models.Network {
	return t.network
}

// State returns the current position in the signing flow.
func (t *Transaction) State() State {
	return t.state
}

// InputKind returns the resolved script kind of input idx.
func (t *Transaction) InputKind(idx int) InputKind {
	return t.inputs[idx].kind
}

// resolveInput looks up the spent output, preferring the full previous
// transaction over the witness UTXO record.
func (t *Transaction) resolveInput(idx int) (input, error) {
	pIn := t.packet.Inputs[idx]
	outPoint := t.packet.UnsignedTx.TxIn[idx].PreviousOutPoint

	var prevOut *wire.TxOut
	switch {
	case pIn.NonWitnessUtxo != nil:
		if pIn.NonWitnessUtxo.TxHash() != outPoint.Hash {
			return input{}, fmt.Errorf("%w: non-witness utxo %v does "+
				"not match outpoint %v", ErrInvalidPsbt,
				pIn.NonWitnessUtxo.TxHash(), outPoint)
		}
		if int(outPoint.Index) >= len(pIn.NonWitnessUtxo.TxOut) {
			return input{}, fmt.Errorf("%w: outpoint %v out of range",
				ErrInvalidPsbt, outPoint)
		}
		prevOut = pIn.NonWitnessUtxo.TxOut[outPoint.Index]

	case pIn.WitnessUtxo != nil:
		prevOut = pIn.WitnessUtxo

	default:
		return input{}, fmt.Errorf("%w: missing utxo", ErrInvalidPsbt)
	}

	kind, err := classifyScript(prevOut.PkScript)
	if err != nil {
		return input{}, err
	}

	return input{prevOut: prevOut, kind: kind}, nil
}

func (t *Transaction) resolveOutput(idx int) output {
	txOut := t.packet.UnsignedTx.TxOut[idx]
	pOut := t.packet.Outputs[idx]

	out := output{
		address: scriptAddress(txOut.PkScript, t.params),
		value:   btcutil.Amount(txOut.Value),
	}

	for _, d := range pOut.Bip32Derivation {
		out.hasDerivation = true
		out.coinTypes = append(out.coinTypes, coinType(d.Bip32Path))
	}
	for _, d := range pOut.TaprootBip32Derivation {
		out.hasDerivation = true
		out.coinTypes = append(out.coinTypes, coinType(d.Bip32Path))
	}

	return out
}

func classifyScript(pkScript []byte) (InputKind, error) {
	switch {
	case txscript.IsPayToTaproot(pkScript):
		return InputP2TR, nil
	case txscript.IsPayToWitnessPubKeyHash(pkScript):
		return InputP2WPKH, nil
	case txscript.IsPayToScriptHash(pkScript):
		return InputP2SHP2WPKH, nil
	case txscript.IsPayToPubKeyHash(pkScript):
		return InputP2PKH, nil
	default:
		return 0, fmt.Errorf("%w: %x", ErrUnsupportedScript, pkScript)
	}
}

// scriptAddress renders pkScript as an address of params, or "" if it has no
// single address form (e.g. OP_RETURN).
func scriptAddress(pkScript []byte, params *chaincfg.Params) string {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, params)
	if err != nil || len(addrs) != 1 {
		return ""
	}
	return addrs[0].EncodeAddress()
}

// coinType returns the unhardened second component of a BIP32 path, or
// an impossible coin type when the path is too short to carry one.
func coinType(path []uint32) uint32 {
	if len(path) < 2 {
		return ^uint32(0)
	}
	return path[1] &^ hdkeychain.HardenedKeyStart
}
