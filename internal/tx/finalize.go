package tx

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/pkg/models"
)

// recordSignatures stores verified signatures in the packet's partial
// signature fields.
func (t *Transaction) recordSignatures(sigs []*inputSignature) {
	for i, sig := range sigs {
		pIn := &t.packet.Inputs[i]
		pIn.SighashType = sig.hashType

		if sig.scheme == SchemeSchnorr {
			pIn.TaprootKeySpendSig = sig.sig
			continue
		}

		pIn.PartialSigs = []*psbt.PartialSig{{
			PubKey:    sig.pubKey,
			Signature: sig.sig,
		}}
		if sig.redeemScript != nil {
			pIn.RedeemScript = sig.redeemScript
		}
	}
}

// finalize turns the recorded signatures of every input into a final
// scriptSig and/or witness and strips the partial fields.
func (t *Transaction) finalize() error {
	for i := range t.packet.Inputs {
		if err := t.finalizeInput(i); err != nil {
			return fmt.Errorf("finalize input %d: %w", i, err)
		}
	}
	return nil
}

func (t *Transaction) finalizeInput(idx int) error {
	pIn := &t.packet.Inputs[idx]

	switch t.inputs[idx].kind {
	case InputP2PKH:
		sig, err := singlePartialSig(pIn)
		if err != nil {
			return err
		}
		pIn.FinalScriptSig, err = txscript.NewScriptBuilder().
			AddData(sig.Signature).
			AddData(sig.PubKey).
			Script()
		if err != nil {
			return err
		}

	case InputP2WPKH:
		sig, err := singlePartialSig(pIn)
		if err != nil {
			return err
		}
		pIn.FinalScriptWitness, err = serializeWitness(wire.TxWitness{
			sig.Signature, sig.PubKey,
		})
		if err != nil {
			return err
		}

	case InputP2SHP2WPKH:
		sig, err := singlePartialSig(pIn)
		if err != nil {
			return err
		}
		if len(pIn.RedeemScript) == 0 {
			return fmt.Errorf("%w: missing redeem script", ErrInvalidPsbt)
		}
		pIn.FinalScriptSig, err = txscript.NewScriptBuilder().
			AddData(pIn.RedeemScript).
			Script()
		if err != nil {
			return err
		}
		pIn.FinalScriptWitness, err = serializeWitness(wire.TxWitness{
			sig.Signature, sig.PubKey,
		})
		if err != nil {
			return err
		}

	case InputP2TR:
		if len(pIn.TaprootKeySpendSig) == 0 {
			return fmt.Errorf("%w: missing key spend signature",
				ErrInvalidPsbt)
		}
		var err error
		pIn.FinalScriptWitness, err = serializeWitness(wire.TxWitness{
			pIn.TaprootKeySpendSig,
		})
		if err != nil {
			return err
		}

	default:
		return ErrUnsupportedScript
	}

	clearPartialFields(pIn)
	return nil
}

// extract serializes the finalized packet into a broadcast ready result.
func (t *Transaction) extract() (*models.SignedTx, error) {
	finalTx, err := psbt.Extract(t.packet)
	if err != nil {
		return nil, fmt.Errorf("extract transaction: %w", err)
	}

	var buf bytes.Buffer
	if err := finalTx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}

	return &models.SignedTx{
		TxID:  finalTx.TxHash().String(),
		TxHex: hex.EncodeToString(buf.Bytes()),
	}, nil
}

func singlePartialSig(pIn *psbt.PInput) (*psbt.PartialSig, error) {
	if len(pIn.PartialSigs) != 1 {
		return nil, fmt.Errorf("%w: expected one partial signature, "+
			"got %d", ErrInvalidPsbt, len(pIn.PartialSigs))
	}
	return pIn.PartialSigs[0], nil
}

// clearPartialFields drops everything a finalized input must no longer
// carry, keeping only the UTXO and final script fields.
func clearPartialFields(pIn *psbt.PInput) {
	pIn.PartialSigs = nil
	pIn.SighashType = 0
	pIn.RedeemScript = nil
	pIn.WitnessScript = nil
	pIn.Bip32Derivation = nil
	pIn.TaprootKeySpendSig = nil
	pIn.TaprootScriptSpendSig = nil
	pIn.TaprootLeafScript = nil
	pIn.TaprootBip32Derivation = nil
	pIn.TaprootInternalKey = nil
	pIn.TaprootMerkleRoot = nil
}

// serializeWitness encodes a witness stack the way PSBT final witness fields
// store it.
func serializeWitness(witness wire.TxWitness) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, 0, uint64(len(witness))); err != nil {
		return nil, err
	}
	for _, item := range witness {
		if err := wire.WriteVarBytes(&buf, 0, item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
