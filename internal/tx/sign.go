package tx

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/wallet"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/pkg/models"
)

// inputSignature is the signature produced for one input together with
// everything needed to verify and finalize it.
type inputSignature struct {
	scheme   SigningScheme
	hashType txscript.SigHashType
	sigHash  []byte
	sig      []byte

	// pubKey is the key the signature verifies against: the recorded
	// compressed account key for ECDSA, the x-only output key for
	// Schnorr.
	pubKey []byte

	// redeemScript is set for P2SH-P2WPKH inputs only.
	redeemScript []byte
}

// signingContext carries the per-transaction sighash midstate.
type signingContext struct {
	tx        *Transaction
	fetcher   *txscript.MultiPrevOutFetcher
	sigHashes *txscript.TxSigHashes
}

func newSigningContext(t *Transaction) *signingContext {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, txIn := range t.packet.UnsignedTx.TxIn {
		fetcher.AddPrevOut(txIn.PreviousOutPoint, t.inputs[i].prevOut)
	}

	return &signingContext{
		tx:        t,
		fetcher:   fetcher,
		sigHashes: txscript.NewTxSigHashes(t.packet.UnsignedTx, fetcher),
	}
}

// hashType returns the sighash type input idx is signed with. Only ALL, and
// DEFAULT for taproot, are accepted.
func (c *signingContext) hashType(idx int) (txscript.SigHashType, error) {
	requested := c.tx.packet.Inputs[idx].SighashType
	kind := c.tx.inputs[idx].kind

	switch {
	case kind == InputP2TR && requested == txscript.SigHashDefault:
		return txscript.SigHashDefault, nil
	case requested == txscript.SigHashAll:
		return txscript.SigHashAll, nil
	case requested == 0:
		return txscript.SigHashAll, nil
	default:
		return 0, fmt.Errorf("%w: sighash type %v not allowed for %v",
			ErrInvalidPsbt, requested, kind)
	}
}

// checkOwner makes sure account controls the output spent by input idx and
// returns the P2SH redeem script for nested inputs.
func (c *signingContext) checkOwner(idx int, account models.Account,
	pubKey []byte) ([]byte, error) {

	in := c.tx.inputs[idx]

	addr, err := btcutil.DecodeAddress(account.Address, c.tx.params)
	if err != nil {
		return nil, fmt.Errorf("%w: account address %s: %w",
			ErrInputNotOwned, account.Address, err)
	}
	accountScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(accountScript, in.prevOut.PkScript) {
		return nil, fmt.Errorf("%w: input %d spends %x, account %s "+
			"pays to %x", ErrInputNotOwned, idx, in.prevOut.PkScript,
			account.Address, accountScript)
	}

	if in.kind != InputP2SHP2WPKH {
		return nil, nil
	}

	redeemScript, err := wallet.WitnessProgram(pubKey, c.tx.network)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInputNotOwned, err)
	}
	recorded := c.tx.packet.Inputs[idx].RedeemScript
	if recorded != nil && !bytes.Equal(recorded, redeemScript) {
		return nil, fmt.Errorf("%w: input %d redeem script %x is not "+
			"a witness program of the account key", ErrInputNotOwned,
			idx, recorded)
	}
	return redeemScript, nil
}

// sigHash computes the digest input idx commits to.
func (c *signingContext) sigHash(idx int, hashType txscript.SigHashType,
	redeemScript []byte) ([]byte, error) {

	unsignedTx := c.tx.packet.UnsignedTx
	prevOut := c.tx.inputs[idx].prevOut

	switch c.tx.inputs[idx].kind {
	case InputP2PKH:
		return txscript.CalcSignatureHash(
			prevOut.PkScript, hashType, unsignedTx, idx,
		)

	case InputP2WPKH:
		// The p2wkh witness program is expanded into the p2pkh template
		// by the BIP143 digest algorithm.
		return txscript.CalcWitnessSigHash(
			prevOut.PkScript, c.sigHashes, hashType, unsignedTx, idx,
			prevOut.Value,
		)

	case InputP2SHP2WPKH:
		return txscript.CalcWitnessSigHash(
			redeemScript, c.sigHashes, hashType, unsignedTx, idx,
			prevOut.Value,
		)

	case InputP2TR:
		return txscript.CalcTaprootSignatureHash(
			c.sigHashes, hashType, unsignedTx, idx, c.fetcher,
		)

	default:
		return nil, ErrUnsupportedScript
	}
}

// signInput signs input idx with privKey on behalf of account.
func (c *signingContext) signInput(idx int, account models.Account,
	privKey *btcec.PrivateKey) (*inputSignature, error) {

	recordedKey, err := hex.DecodeString(account.PubKey)
	if err != nil {
		return nil, fmt.Errorf("account %s public key: %w",
			account.Address, err)
	}

	redeemScript, err := c.checkOwner(idx, account, recordedKey)
	if err != nil {
		return nil, err
	}

	hashType, err := c.hashType(idx)
	if err != nil {
		return nil, err
	}

	digest, err := c.sigHash(idx, hashType, redeemScript)
	if err != nil {
		return nil, fmt.Errorf("sighash of input %d: %w", idx, err)
	}

	sig := &inputSignature{
		scheme:       c.tx.inputs[idx].kind.Scheme(),
		hashType:     hashType,
		sigHash:      digest,
		pubKey:       recordedKey,
		redeemScript: redeemScript,
	}

	switch sig.scheme {
	case SchemeSchnorr:
		// Key path spends sign with privKey + TapTweak(xOnlyPubKey),
		// without a script root.
		tweaked := txscript.TweakTaprootPrivKey(*privKey, nil)
		s, err := schnorr.Sign(tweaked, digest)
		if err != nil {
			return nil, fmt.Errorf("schnorr sign input %d: %w", idx, err)
		}
		sig.sig = s.Serialize()
		if hashType != txscript.SigHashDefault {
			sig.sig = append(sig.sig, byte(hashType))
		}

		// The output key is the witness program of the spent script.
		sig.pubKey = c.tx.inputs[idx].prevOut.PkScript[2:]

	default:
		s := ecdsa.Sign(privKey, digest)
		sig.sig = append(s.Serialize(), byte(hashType))
	}

	return sig, nil
}

// verifySignature checks sig over digest against pubKey with the given
// scheme. A signature produced with the other scheme never verifies.
func verifySignature(scheme SigningScheme, sig, digest, pubKey []byte) error {
	switch scheme {
	case SchemeSchnorr:
		if len(sig) != schnorr.SignatureSize &&
			len(sig) != schnorr.SignatureSize+1 {

			return fmt.Errorf("%w: schnorr signature is %d bytes",
				ErrSignatureVerificationFailed, len(sig))
		}
		parsed, err := schnorr.ParseSignature(sig[:schnorr.SignatureSize])
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSignatureVerificationFailed, err)
		}
		key, err := schnorr.ParsePubKey(pubKey)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSignatureVerificationFailed, err)
		}
		if !parsed.Verify(digest, key) {
			return ErrSignatureVerificationFailed
		}
		return nil

	case SchemeECDSA:
		if len(sig) < 2 {
			return fmt.Errorf("%w: empty ecdsa signature",
				ErrSignatureVerificationFailed)
		}
		parsed, err := ecdsa.ParseDERSignature(sig[:len(sig)-1])
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSignatureVerificationFailed, err)
		}
		key, err := btcec.ParsePubKey(pubKey)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSignatureVerificationFailed, err)
		}
		if !parsed.Verify(digest, key) {
			return ErrSignatureVerificationFailed
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown scheme %v",
			ErrSignatureVerificationFailed, scheme)
	}
}
