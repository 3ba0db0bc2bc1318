package wallet

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/pkg/models"
)

// Serialized BIP32 extended keys are 78 bytes before the checksum.
const extendedKeyLen = 78

// extendedKeyVersions are the SLIP-132 registered version bytes.
// https://github.com/satoshilabs/slips/blob/master/slip-0132.md
var extendedKeyVersions = map[string]string{
	"xpub": "0488b21e",
	"tpub": "043587cf",
	"ypub": "049d7cb2",
	"upub": "044a5262",
	"zpub": "04b24746",
	"vpub": "045f1cf6",
}

// Taproot has no SLIP-132 prefix of its own and reuses zpub/vpub.
var scriptTypePrefixes = map[models.ScriptType]map[models.Network]string{
	models.ScriptP2PKH: {
		models.NetworkMain: "xpub",
		models.NetworkTest: "tpub",
	},
	models.ScriptP2SHP2WPKH: {
		models.NetworkMain: "ypub",
		models.NetworkTest: "upub",
	},
	models.ScriptP2WPKH: {
		models.NetworkMain: "zpub",
		models.NetworkTest: "vpub",
	},
	models.ScriptP2TR: {
		models.NetworkMain: "zpub",
		models.NetworkTest: "vpub",
	},
}

// ConvertExtendedKey re-encodes an extended public key with the version
// bytes of scriptType on network.
func ConvertExtendedKey(xpub string, to models.ScriptType,
	network models.Network) (string, error) {

	prefix, ok := scriptTypePrefixes[to][network]
	if !ok {
		return "", fmt.Errorf("%w: no prefix for %s on %s",
			ErrInvalidExtendedKey, to, network)
	}

	payload, err := base58CheckDecode(xpub)
	if err != nil {
		return "", err
	}
	if len(payload) != extendedKeyLen {
		return "", fmt.Errorf("%w: payload is %d bytes",
			ErrInvalidExtendedKey, len(payload))
	}

	version, _ := hex.DecodeString(extendedKeyVersions[prefix])
	converted := make([]byte, 0, extendedKeyLen)
	converted = append(converted, version...)
	converted = append(converted, payload[4:]...)

	return base58CheckEncode(converted), nil
}

// ExtendedKeyPrefix names the SLIP-132 version of an encoded extended key,
// e.g. "zpub".
func ExtendedKeyPrefix(xpub string) (string, error) {
	payload, err := base58CheckDecode(xpub)
	if err != nil {
		return "", err
	}
	if len(payload) != extendedKeyLen {
		return "", fmt.Errorf("%w: payload is %d bytes",
			ErrInvalidExtendedKey, len(payload))
	}

	version := hex.EncodeToString(payload[:4])
	for name, v := range extendedKeyVersions {
		if v == version {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: unknown version %s", ErrInvalidExtendedKey,
		version)
}

// --- helpers ---

func base58CheckEncode(payload []byte) string {
	// Checksum = first 4 bytes of double SHA256
	checksum := chainhash.DoubleHashB(payload)

	data := make([]byte, 0, len(payload)+4)
	data = append(data, payload...)
	data = append(data, checksum[:4]...)

	return base58.Encode(data)
}

func base58CheckDecode(s string) ([]byte, error) {
	data := base58.Decode(s)
	if len(data) < 5 {
		return nil, fmt.Errorf("%w: too short", ErrInvalidExtendedKey)
	}

	payload, checksum := data[:len(data)-4], data[len(data)-4:]
	if !bytes.Equal(chainhash.DoubleHashB(payload)[:4], checksum) {
		return nil, fmt.Errorf("%w: bad checksum", ErrInvalidExtendedKey)
	}
	return payload, nil
}
