package wallet

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// MnemonicAuthority is a SeedAuthority backed by a BIP-39 mnemonic. It stands
// in for a hardware or host key store when running the signer standalone.
type MnemonicAuthority struct {
	master *bip32.Key
	mfp    uint32
}

// NewMnemonicAuthority builds the BIP-32 master key of mnemonic and
// passphrase.
func NewMnemonicAuthority(mnemonic, passphrase string) (*MnemonicAuthority, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic")
	}

	master, err := bip32.NewMasterKey(bip39.NewSeed(mnemonic, passphrase))
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}

	// Master fingerprint: first 4 bytes of Hash160(master pubkey)
	fp := hash160(master.PublicKey().Key)

	return &MnemonicAuthority{
		master: master,
		mfp:    binary.BigEndian.Uint32(fp[:4]),
	}, nil
}

// MasterFingerprint returns the fingerprint of the root key.
func (a *MnemonicAuthority) MasterFingerprint() uint32 {
	return a.mfp
}

// DeriveNode walks path from the master key.
func (a *MnemonicAuthority) DeriveNode(ctx context.Context, path []string,
	curve string) (KeyNode, error) {

	if curve != CurveSecp256k1 {
		return KeyNode{}, fmt.Errorf("%w: unsupported curve %q",
			ErrKeyDerivationDenied, curve)
	}

	indices, err := ParsePath(path)
	if err != nil {
		return KeyNode{}, fmt.Errorf("%w: %w", ErrKeyDerivationDenied, err)
	}

	key := a.master
	for depth, idx := range indices {
		if err := ctx.Err(); err != nil {
			return KeyNode{}, err
		}

		key, err = key.NewChildKey(idx)
		if err != nil {
			return KeyNode{}, fmt.Errorf("derive %v at depth %d: %w",
				path, depth+1, err)
		}
	}

	var index uint32
	if len(key.ChildNumber) == 4 {
		index = binary.BigEndian.Uint32(key.ChildNumber)
	}
	var parentFP uint32
	if len(key.FingerPrint) == 4 {
		parentFP = binary.BigEndian.Uint32(key.FingerPrint)
	}

	return KeyNode{
		PrivateKey:        padKey(key.Key),
		PublicKey:         key.PublicKey().Key,
		ChainCode:         append([]byte(nil), key.ChainCode...),
		Depth:             key.Depth,
		Index:             index,
		ParentFingerprint: parentFP,
		MasterFingerprint: a.mfp,
	}, nil
}

// padKey left pads a private scalar to 32 bytes.
func padKey(key []byte) []byte {
	if len(key) >= 32 {
		return append([]byte(nil), key...)
	}
	out := make([]byte, 32)
	copy(out[32-len(key):], key)
	return out
}
