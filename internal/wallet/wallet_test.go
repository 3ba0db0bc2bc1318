package wallet

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/pkg/models"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip39"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon " +
		"abandon abandon abandon abandon abandon about"
	testMnemonic2 = "zoo zoo zoo zoo zoo zoo zoo zoo zoo zoo zoo wrong"
)

func testAuthority(t *testing.T, mnemonic string) *MnemonicAuthority {
	t.Helper()
	authority, err := NewMnemonicAuthority(mnemonic, "")
	require.NoError(t, err)
	return authority
}

func testDeriver(t *testing.T) *Deriver {
	t.Helper()
	return NewDeriver(testAuthority(t, testMnemonic))
}

// staticAuthority returns a fixed node for every request.
type staticAuthority struct {
	node KeyNode
	err  error
}

func (a *staticAuthority) DeriveNode(context.Context, []string,
	string) (KeyNode, error) {

	return a.node, a.err
}

func TestMnemonicAuthority_MasterFingerprint(t *testing.T) {
	authority := testAuthority(t, testMnemonic)
	require.Equal(t, uint32(0x73c5da0a), authority.MasterFingerprint())

	other := testAuthority(t, testMnemonic2)
	require.NotEqual(t, authority.MasterFingerprint(),
		other.MasterFingerprint())

	_, err := NewMnemonicAuthority("abandon abandon abandon", "")
	require.Error(t, err)
}

// TestMnemonicAuthority_MatchesHDKeychain cross-checks the node metadata
// against an independent BIP32 implementation.
func TestMnemonicAuthority_MatchesHDKeychain(t *testing.T) {
	authority := testAuthority(t, testMnemonic)
	params := NetParams(models.NetworkMain)

	master, err := hdkeychain.NewMaster(bip39.NewSeed(testMnemonic, ""), params)
	require.NoError(t, err)

	for _, path := range [][]string{
		{"m", "84'"},
		{"m", "44'", "0'", "0'"},
		{"m", "86'", "0'", "0'", "0", "7"},
		{"m", "49h", "1h", "0h", "1", "0"},
	} {
		indices, err := ParsePath(path)
		require.NoError(t, err)

		want := master
		for _, idx := range indices {
			want, err = want.Derive(idx)
			require.NoError(t, err)
		}
		wantPriv, err := want.ECPrivKey()
		require.NoError(t, err)

		node, err := authority.DeriveNode(
			context.Background(), path, CurveSecp256k1,
		)
		require.NoError(t, err)

		require.Equal(t, wantPriv.Serialize(), node.PrivateKey)
		require.Equal(t, want.Depth(), node.Depth)
		require.Equal(t, want.ChildIndex(), node.Index)
		require.Equal(t, want.ParentFingerprint(), node.ParentFingerprint)
		require.Equal(t, uint32(0x73c5da0a), node.MasterFingerprint)
		require.Len(t, node.ChainCode, 32)

		_, pubKey := node.ECKeys()
		require.Equal(t, pubKey.SerializeCompressed(), node.PublicKey)
	}
}

func TestMnemonicAuthority_Refusals(t *testing.T) {
	authority := testAuthority(t, testMnemonic)
	ctx := context.Background()

	_, err := authority.DeriveNode(ctx, []string{"m", "84'"}, "ed25519")
	require.ErrorIs(t, err, ErrKeyDerivationDenied)

	_, err = authority.DeriveNode(ctx, []string{"84'", "0'"}, CurveSecp256k1)
	require.ErrorIs(t, err, ErrKeyDerivationDenied)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = authority.DeriveNode(cancelled, []string{"m", "84'"},
		CurveSecp256k1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDeriver_KnownAddresses(t *testing.T) {
	tests := []struct {
		network    models.Network
		scriptType models.ScriptType
		address    string
	}{
		{models.NetworkMain, models.ScriptP2PKH,
			"1LqBGSKuX5yYUonjxT5qGfpUsXKYYWeabA"},
		{models.NetworkMain, models.ScriptP2SHP2WPKH,
			"37VucYSaXLCAsxYyAPfbSi9eh4iEcbShgf"},
		{models.NetworkMain, models.ScriptP2WPKH,
			"bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu"},
		{models.NetworkMain, models.ScriptP2TR,
			"bc1p5cyxnuxmeuwuvkwfem96lqzszd02n6xdcjrs20cac6yqjjwudpxqkedrcr"},
		{models.NetworkTest, models.ScriptP2SHP2WPKH,
			"2Mww8dCYPUpKHofjgcXcBCEGmniw9CoaiD2"},
	}

	deriver := testDeriver(t)
	for _, tt := range tests {
		t.Run(string(tt.network)+"/"+string(tt.scriptType), func(t *testing.T) {
			key, err := deriver.DeriveAccountKey(
				context.Background(), tt.network, tt.scriptType, 0,
			)
			require.NoError(t, err)
			require.Equal(t, "73c5da0a", key.MasterFingerprint)

			_, pubKey := key.Node.ECKeys()
			address, err := DeriveAddress(
				pubKey.SerializeCompressed(), tt.scriptType, tt.network,
			)
			require.NoError(t, err)
			require.Equal(t, tt.address, address)
		})
	}
}

func TestDeriver_Deterministic(t *testing.T) {
	ctx := context.Background()
	d1 := testDeriver(t)
	d2 := testDeriver(t)
	other := NewDeriver(testAuthority(t, testMnemonic2))

	for _, network := range []models.Network{models.NetworkMain, models.NetworkTest} {
		for _, scriptType := range models.ScriptTypes {
			for _, index := range []uint32{0, 1, 42} {
				k1, err := d1.DeriveAccountKey(ctx, network, scriptType, index)
				require.NoError(t, err)
				k2, err := d2.DeriveAccountKey(ctx, network, scriptType, index)
				require.NoError(t, err)
				k3, err := other.DeriveAccountKey(ctx, network, scriptType, index)
				require.NoError(t, err)

				require.Equal(t, k1, k2)
				require.Equal(t, k1.Path, k3.Path)
				require.NotEqual(t, k1.Node.PrivateKey, k3.Node.PrivateKey)
			}
		}
	}
}

func TestDeriver_ChecksAuthorityResult(t *testing.T) {
	ctx := context.Background()
	path := []string{"m", "84'", "0'", "0'", "0", "0"}

	good, err := testAuthority(t, testMnemonic).DeriveNode(
		ctx, path, CurveSecp256k1,
	)
	require.NoError(t, err)

	shallow := good
	shallow.Depth = 3

	short := good
	short.PrivateKey = good.PrivateKey[:31]

	tests := []struct {
		name      string
		authority *staticAuthority
		wantErr   error
	}{
		{"ok", &staticAuthority{node: good}, nil},
		{"wrong depth", &staticAuthority{node: shallow}, ErrKeyDerivationDenied},
		{"short key", &staticAuthority{node: short}, ErrKeyDerivationDenied},
		{"refused", &staticAuthority{err: context.DeadlineExceeded}, ErrKeyDerivationDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := NewDeriver(tt.authority).DeriveKeyByPath(ctx, path)
			if tt.wantErr == nil {
				require.NoError(t, err)
				require.Equal(t, hex.EncodeToString(good.PrivateKey),
					hex.EncodeToString(node.PrivateKey))
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err = testDeriver(t).DeriveKeyByPath(ctx, []string{"84'"})
	require.ErrorIs(t, err, ErrInvalidPath)
}
