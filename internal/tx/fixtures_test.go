package tx

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/storage"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/wallet"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/pkg/models"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon " +
	"abandon abandon abandon abandon abandon about"

// testWallet bundles a deterministic deriver with the accounts derived from
// it.
type testWallet struct {
	deriver *wallet.Deriver
	manager *wallet.AccountManager
	network models.Network
}

func newTestWallet(t *testing.T, network models.Network) *testWallet {
	t.Helper()

	authority, err := wallet.NewMnemonicAuthority(testMnemonic, "")
	require.NoError(t, err)

	deriver := wallet.NewDeriver(authority)
	return &testWallet{
		deriver: deriver,
		manager: wallet.NewAccountManager(deriver, storage.NewMemoryStore()),
		network: network,
	}
}

func (w *testWallet) account(t *testing.T, scriptType models.ScriptType,
	index uint32) models.Account {

	t.Helper()

	account, err := w.manager.DeriveAccount(
		context.Background(), w.network, scriptType, index,
	)
	require.NoError(t, err)
	return account
}

func (w *testWallet) script(t *testing.T, address string) []byte {
	t.Helper()

	addr, err := btcutil.DecodeAddress(address, wallet.NetParams(w.network))
	require.NoError(t, err)
	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return pkScript
}

// spend describes one input of a fixture packet.
type spend struct {
	account models.Account
	value   int64

	// nonWitness attaches the full previous transaction instead of the
	// witness utxo record.
	nonWitness bool

	// witnessValue, when set, also attaches a witness utxo record carrying
	// this value next to the full previous transaction.
	witnessValue int64
}

// pay describes one output of a fixture packet.
type pay struct {
	address string
	value   int64

	// derivation marks the output as change derived under this path.
	derivation []uint32

	// pkScript overrides the script built from address.
	pkScript []byte
}

// buildPacket assembles an unsigned packet spending spends into pays. It
// returns the spent outputs in input order.
func (w *testWallet) buildPacket(t *testing.T, spends []spend,
	pays []pay) (*psbt.Packet, []*wire.TxOut) {

	t.Helper()

	var (
		outPoints = make([]*wire.OutPoint, len(spends))
		sequences = make([]uint32, len(spends))
		prevOuts  = make([]*wire.TxOut, len(spends))
		prevTxs   = make([]*wire.MsgTx, len(spends))
	)
	for i, s := range spends {
		prevOut := wire.NewTxOut(s.value, w.script(t, s.account.Address))
		prevOuts[i] = prevOut
		sequences[i] = wire.MaxTxInSequenceNum

		if s.nonWitness {
			prevTx := wire.NewMsgTx(2)
			prevTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{
				Hash:  chainhash.HashH([]byte{byte(i), 0xfe}),
				Index: uint32(i),
			}, nil, nil))
			prevTx.AddTxOut(prevOut)
			prevTxs[i] = prevTx

			hash := prevTx.TxHash()
			outPoints[i] = wire.NewOutPoint(&hash, 0)
			continue
		}

		hash := chainhash.HashH([]byte{byte(i), 0xaa})
		outPoints[i] = wire.NewOutPoint(&hash, uint32(i))
	}

	txOuts := make([]*wire.TxOut, len(pays))
	for i, p := range pays {
		pkScript := p.pkScript
		if pkScript == nil {
			pkScript = w.script(t, p.address)
		}
		txOuts[i] = wire.NewTxOut(p.value, pkScript)
	}

	packet, err := psbt.New(outPoints, txOuts, 2, 0, sequences)
	require.NoError(t, err)

	for i, s := range spends {
		if s.nonWitness {
			packet.Inputs[i].NonWitnessUtxo = prevTxs[i]
			if s.witnessValue != 0 {
				packet.Inputs[i].WitnessUtxo = wire.NewTxOut(
					s.witnessValue, prevOuts[i].PkScript,
				)
			}
			continue
		}
		packet.Inputs[i].WitnessUtxo = prevOuts[i]
	}

	for i, p := range pays {
		if p.derivation == nil {
			continue
		}
		packet.Outputs[i].Bip32Derivation = []*psbt.Bip32Derivation{{
			PubKey:               make([]byte, 33),
			MasterKeyFingerprint: 0x0ada5c73,
			Bip32Path:            p.derivation,
		}}
	}

	return packet, prevOuts
}

func (w *testWallet) transaction(t *testing.T, spends []spend,
	pays []pay) (*Transaction, []*wire.TxOut) {

	t.Helper()

	packet, prevOuts := w.buildPacket(t, spends, pays)
	transaction, err := FromPacket(packet, w.network)
	require.NoError(t, err)
	return transaction, prevOuts
}

// changePath is the BIP32 path of a change output of coinType.
func changePath(purpose, coinType uint32) []uint32 {
	h := uint32(0x80000000)
	return []uint32{purpose + h, coinType + h, h, 1, 0}
}

func signers(accounts ...models.Account) []string {
	addresses := make([]string, len(accounts))
	for i, account := range accounts {
		addresses[i] = account.Address
	}
	return addresses
}

// requireValidSpend decodes signed and runs every input through the script
// engine.
func requireValidSpend(t *testing.T, signed *models.SignedTx,
	prevOuts []*wire.TxOut) *wire.MsgTx {

	t.Helper()

	raw, err := hex.DecodeString(signed.TxHex)
	require.NoError(t, err)

	finalTx := wire.NewMsgTx(2)
	require.NoError(t, finalTx.Deserialize(bytes.NewReader(raw)))
	require.Equal(t, signed.TxID, finalTx.TxHash().String())

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, txIn := range finalTx.TxIn {
		fetcher.AddPrevOut(txIn.PreviousOutPoint, prevOuts[i])
	}
	sigHashes := txscript.NewTxSigHashes(finalTx, fetcher)

	for i, prevOut := range prevOuts {
		vm, err := txscript.NewEngine(
			prevOut.PkScript, finalTx, i, txscript.StandardVerifyFlags,
			nil, sigHashes, prevOut.Value, fetcher,
		)
		require.NoError(t, err)
		require.NoError(t, vm.Execute(), "input %d", i)
	}

	return finalTx
}
