package wallet

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/pkg/models"
)

// DerivedKey is the result of an account key derivation.
type DerivedKey struct {
	Node KeyNode

	// MasterFingerprint is the 4-byte root fingerprint as 8 hex digits.
	MasterFingerprint string

	// Path is the full derivation path of Node.
	Path []string
}

// Deriver derives script type aware account keys through a SeedAuthority.
type Deriver struct {
	authority SeedAuthority
}

// NewDeriver returns a Deriver backed by the given seed authority.
func NewDeriver(authority SeedAuthority) *Deriver {
	return &Deriver{authority: authority}
}

// DeriveAccountKey derives the key at m/purpose'/coinType'/0'/0/index, where
// purpose is fixed by scriptType and coinType by network.
func (d *Deriver) DeriveAccountKey(ctx context.Context, network models.Network,
	scriptType models.ScriptType, index uint32) (*DerivedKey, error) {

	path, err := AccountPath(network, scriptType, index)
	if err != nil {
		return nil, err
	}

	node, err := d.DeriveKeyByPath(ctx, path)
	if err != nil {
		return nil, err
	}

	return &DerivedKey{
		Node:              node,
		MasterFingerprint: fmt.Sprintf("%08x", node.MasterFingerprint),
		Path:              path,
	}, nil
}

// DeriveKeyByPath re-derives the key of an already recorded path.
func (d *Deriver) DeriveKeyByPath(ctx context.Context, path []string) (KeyNode, error) {
	indices, err := ParsePath(path)
	if err != nil {
		return KeyNode{}, err
	}

	log.Debugf("Requesting key node for path %v", path)

	node, err := d.authority.DeriveNode(ctx, path, CurveSecp256k1)
	if err != nil {
		return KeyNode{}, fmt.Errorf("%w: %w", ErrKeyDerivationDenied, err)
	}

	if int(node.Depth) != len(indices) {
		return KeyNode{}, fmt.Errorf("%w: authority returned depth %d "+
			"for path of depth %d", ErrKeyDerivationDenied, node.Depth,
			len(indices))
	}
	if len(node.PrivateKey) != 32 {
		return KeyNode{}, fmt.Errorf("%w: authority returned %d byte "+
			"private key", ErrKeyDerivationDenied, len(node.PrivateKey))
	}

	return node, nil
}

// AccountExtendedKey returns the account level extended public key of the
// script type, encoded with the SLIP-132 prefix matching scriptType.
func (d *Deriver) AccountExtendedKey(ctx context.Context, network models.Network,
	scriptType models.ScriptType) (string, error) {

	path, err := AccountRootPath(network, scriptType)
	if err != nil {
		return "", err
	}

	node, err := d.DeriveKeyByPath(ctx, path)
	if err != nil {
		return "", err
	}

	var parentFP [4]byte
	binary.BigEndian.PutUint32(parentFP[:], node.ParentFingerprint)

	params := NetParams(network)
	extended := hdkeychain.NewExtendedKey(
		params.HDPrivateKeyID[:], node.PrivateKey, node.ChainCode,
		parentFP[:], node.Depth, node.Index, true,
	)
	neutered, err := extended.Neuter()
	if err != nil {
		return "", fmt.Errorf("neuter account key: %w", err)
	}

	return ConvertExtendedKey(neutered.String(), scriptType, network)
}
