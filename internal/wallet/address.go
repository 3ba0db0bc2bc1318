package wallet

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/pkg/models"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // RIPEMD-160 is required by the Bitcoin protocol (Hash160)
)

// NetParams returns the base chain parameters of a network.
func NetParams(network models.Network) *chaincfg.Params {
	if network == models.NetworkMain {
		return &chaincfg.MainNetParams
	}
	return &chaincfg.TestNet3Params
}

// DeriveAddress encodes pubKey as an address of scriptType on network.
// P2TR accepts both the 33-byte compressed and the 32-byte x-only form; the
// other script types need the compressed key.
func DeriveAddress(pubKey []byte, scriptType models.ScriptType,
	network models.Network) (string, error) {

	addr, err := scriptAddress(pubKey, scriptType, NetParams(network))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrAddressDerivationFailed,
			scriptType, err)
	}
	return addr.EncodeAddress(), nil
}

// WitnessProgram returns the P2WPKH script committing to pubKey. It is the
// redeem script of a P2SH-P2WPKH output.
func WitnessProgram(pubKey []byte, network models.Network) ([]byte, error) {
	if len(pubKey) != 33 {
		return nil, fmt.Errorf("expected compressed public key, got %d bytes",
			len(pubKey))
	}
	wpkh, err := btcutil.NewAddressWitnessPubKeyHash(
		hash160(pubKey), NetParams(network),
	)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(wpkh)
}

// ToXOnly drops the parity byte of a compressed key. 32-byte keys are
// returned unchanged.
func ToXOnly(pubKey []byte) []byte {
	if len(pubKey) == 32 {
		return pubKey
	}
	return pubKey[1:33]
}

func scriptAddress(pubKey []byte, scriptType models.ScriptType,
	params *chaincfg.Params) (btcutil.Address, error) {

	switch scriptType {
	case models.ScriptP2PKH:
		if len(pubKey) != 33 {
			return nil, fmt.Errorf("bad key length %d", len(pubKey))
		}
		return btcutil.NewAddressPubKeyHash(hash160(pubKey), params)

	case models.ScriptP2SHP2WPKH:
		if len(pubKey) != 33 {
			return nil, fmt.Errorf("bad key length %d", len(pubKey))
		}
		wpkh, err := btcutil.NewAddressWitnessPubKeyHash(
			hash160(pubKey), params,
		)
		if err != nil {
			return nil, err
		}
		redeemScript, err := txscript.PayToAddrScript(wpkh)
		if err != nil {
			return nil, err
		}
		return btcutil.NewAddressScriptHash(redeemScript, params)

	case models.ScriptP2WPKH:
		if len(pubKey) != 33 {
			return nil, fmt.Errorf("bad key length %d", len(pubKey))
		}
		return btcutil.NewAddressWitnessPubKeyHash(hash160(pubKey), params)

	case models.ScriptP2TR:
		if len(pubKey) != 32 && len(pubKey) != 33 {
			return nil, fmt.Errorf("bad key length %d", len(pubKey))
		}
		internalKey, err := schnorr.ParsePubKey(ToXOnly(pubKey))
		if err != nil {
			return nil, err
		}
		outputKey := txscript.ComputeTaprootKeyNoScript(internalKey)
		return btcutil.NewAddressTaproot(
			schnorr.SerializePubKey(outputKey), params,
		)

	default:
		return nil, fmt.Errorf("unknown script type %q", scriptType)
	}
}

// AddressMatchesNetwork reports whether address carries one of the plain
// address prefixes of network: 1, 3 or bc1 on main; m, n, 2 or tb1 on test.
func AddressMatchesNetwork(address string, network models.Network) bool {
	prefixes := []string{"m", "n", "2", "tb1"}
	if network == models.NetworkMain {
		prefixes = []string{"1", "3", "bc1"}
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(address, prefix) {
			return true
		}
	}
	return false
}

// --- helpers ---

func hash160(data []byte) []byte {
	sha := sha256.Sum256(data)
	ripe := ripemd160.New()
	ripe.Write(sha[:])
	return ripe.Sum(nil)
}
