package tx

import (
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestValidator_FeeCeiling(t *testing.T) {
	w := newTestWallet(t, models.NetworkMain)
	src := w.account(t, models.ScriptP2TR, 0)
	to := w.account(t, models.ScriptP2WPKH, 1)

	tests := []struct {
		name    string
		output  int64
		wantErr error
	}{
		{"below ceiling", 10_000_001, nil},
		{"at ceiling", 10_000_000, ErrFeeTooHigh},
		{"above ceiling", 1_000, ErrFeeTooHigh},
		{"negative", 20_000_001, ErrNegativeFee},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transaction, _ := w.transaction(t,
				[]spend{{account: src, value: 20_000_000}},
				[]pay{{address: to.Address, value: tt.output}},
			)

			err := NewValidator(transaction, signers(src)).Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestValidator_SignerCountCheckedFirst(t *testing.T) {
	w := newTestWallet(t, models.NetworkMain)
	a := w.account(t, models.ScriptP2WPKH, 0)
	b := w.account(t, models.ScriptP2TR, 0)
	to := w.account(t, models.ScriptP2WPKH, 1)

	// The fee is far above the ceiling as well; only the first failing
	// check is reported.
	transaction, _ := w.transaction(t,
		[]spend{
			{account: a, value: 30_000_000},
			{account: b, value: 30_000_000},
		},
		[]pay{{address: to.Address, value: 1_000}},
	)

	for _, signerAddresses := range [][]string{
		nil,
		signers(a),
		signers(a, b, a),
	} {
		err := NewValidator(transaction, signerAddresses).Validate()
		require.ErrorIs(t, err, ErrSignerCountMismatch)
		require.NotErrorIs(t, err, ErrFeeTooHigh)
	}

	err := NewValidator(transaction, signers(a, b)).Validate()
	require.ErrorIs(t, err, ErrFeeTooHigh)
}

func TestValidator_OutputsNetwork(t *testing.T) {
	w := newTestWallet(t, models.NetworkMain)
	src := w.account(t, models.ScriptP2WPKH, 0)
	to := w.account(t, models.ScriptP2TR, 1)
	change := w.account(t, models.ScriptP2WPKH, 1)

	opReturn, err := txscript.NullDataScript([]byte("memo"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		pays    []pay
		wantErr error
	}{
		{
			name: "plain outputs",
			pays: []pay{{address: to.Address, value: 50_000}},
		},
		{
			name: "change for active coin type",
			pays: []pay{
				{address: to.Address, value: 50_000},
				{
					address:    change.Address,
					value:      40_000,
					derivation: changePath(84, 0),
				},
			},
		},
		{
			name: "change for test coin type",
			pays: []pay{
				{address: to.Address, value: 50_000},
				{
					address:    change.Address,
					value:      40_000,
					derivation: changePath(84, 1),
				},
			},
			wantErr: ErrOutputsNetworkNotMatch,
		},
		{
			name: "truncated derivation path",
			pays: []pay{{
				address:    change.Address,
				value:      40_000,
				derivation: []uint32{84 + 0x80000000},
			}},
			wantErr: ErrOutputsNetworkNotMatch,
		},
		{
			name: "output without address",
			pays: []pay{
				{address: to.Address, value: 50_000},
				{pkScript: opReturn},
			},
			wantErr: ErrOutputsNetworkNotMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transaction, _ := w.transaction(t,
				[]spend{{account: src, value: 100_000}}, tt.pays,
			)

			err := NewValidator(transaction, signers(src)).Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidator_WitnessAmount(t *testing.T) {
	w := newTestWallet(t, models.NetworkTest)
	wpkh := w.account(t, models.ScriptP2WPKH, 0)
	pkh := w.account(t, models.ScriptP2PKH, 0)
	tr := w.account(t, models.ScriptP2TR, 0)
	to := w.account(t, models.ScriptP2WPKH, 1)

	tests := []struct {
		name    string
		spends  []spend
		wantErr error
	}{
		{
			name:   "witness records only",
			spends: []spend{{account: wpkh, value: 100_000}},
		},
		{
			name: "matching records",
			spends: []spend{{
				account:      wpkh,
				value:        100_000,
				nonWitness:   true,
				witnessValue: 100_000,
			}},
		},
		{
			name: "witness record understates",
			spends: []spend{{
				account:      wpkh,
				value:        100_000,
				nonWitness:   true,
				witnessValue: 90_000,
			}},
			wantErr: ErrAmountNotMatch,
		},
		{
			name: "legacy input without witness record",
			spends: []spend{
				{account: wpkh, value: 50_000},
				{account: pkh, value: 50_000, nonWitness: true},
			},
			wantErr: ErrAmountNotMatch,
		},
		{
			name: "no p2wpkh input",
			spends: []spend{
				{account: tr, value: 50_000},
				{account: pkh, value: 50_000, nonWitness: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transaction, _ := w.transaction(t, tt.spends,
				[]pay{{address: to.Address, value: 40_000}},
			)

			owners := make([]string, len(tt.spends))
			for i, s := range tt.spends {
				owners[i] = s.account.Address
			}

			err := NewValidator(transaction, owners).Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
