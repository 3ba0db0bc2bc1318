package wallet

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
)

// CurveSecp256k1 is the only curve the seed authority is asked for.
const CurveSecp256k1 = "secp256k1"

var (
	// ErrKeyDerivationDenied is returned when the seed authority refuses to
	// hand out key material, either because the user declined or because
	// the requested path is malformed.
	ErrKeyDerivationDenied = errors.New("key derivation denied")

	// ErrAccountNotExisted is returned when a signer address has no known
	// derivation record.
	ErrAccountNotExisted = errors.New("account not existed")

	// ErrAddressDerivationFailed is returned when no address can be built
	// for a public key and script type.
	ErrAddressDerivationFailed = errors.New("address derivation failed")

	// ErrInvalidPath is returned for malformed derivation paths.
	ErrInvalidPath = errors.New("invalid derivation path")

	// ErrInvalidExtendedKey is returned when an extended key cannot be
	// decoded.
	ErrInvalidExtendedKey = errors.New("invalid extended key")
)

// SeedAuthority is the boundary to the seed holder. The seed never enters
// this process; only the key material of the requested node is returned, and
// only for the lifetime of a single request.
type SeedAuthority interface {
	// DeriveNode returns the node at path, e.g. ["m", "84'", "0'"].
	DeriveNode(ctx context.Context, path []string, curve string) (KeyNode, error)
}

// KeyNode is the key material of a single BIP32 node as returned by a
// SeedAuthority. It is built once and never modified afterwards.
type KeyNode struct {
	PrivateKey        []byte
	PublicKey         []byte
	ChainCode         []byte
	Depth             uint8
	Index             uint32
	ParentFingerprint uint32
	MasterFingerprint uint32
}

// ECKeys parses the node's private key into its secp256k1 key pair.
func (n KeyNode) ECKeys() (*btcec.PrivateKey, *btcec.PublicKey) {
	return btcec.PrivKeyFromBytes(n.PrivateKey)
}
