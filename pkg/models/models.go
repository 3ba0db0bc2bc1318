package models

import (
	"fmt"
	"strings"
)

// Network represents the Bitcoin network a request operates on.
type Network string

// Supported Bitcoin networks.
const (
	NetworkMain Network = "mainnet"
	NetworkTest Network = "testnet"
)

// ParseNetwork maps a user supplied network name to a Network.
func ParseNetwork(s string) (Network, error) {
	switch Network(strings.ToLower(s)) {
	case NetworkMain:
		return NetworkMain, nil
	case NetworkTest:
		return NetworkTest, nil
	default:
		return "", fmt.Errorf("unknown network %q", s)
	}
}

// CoinType returns the BIP44 coin type component for the network.
func (n Network) CoinType() uint32 {
	if n == NetworkMain {
		return 0
	}
	return 1
}

// ScriptType is the spending template of an account's addresses.
type ScriptType string

// Supported script types.
const (
	ScriptP2PKH      ScriptType = "P2PKH"
	ScriptP2SHP2WPKH ScriptType = "P2SH-P2WPKH"
	ScriptP2WPKH     ScriptType = "P2WPKH"
	ScriptP2TR       ScriptType = "P2TR"
)

// ScriptTypes lists every script type in account creation order.
var ScriptTypes = []ScriptType{
	ScriptP2PKH,
	ScriptP2SHP2WPKH,
	ScriptP2WPKH,
	ScriptP2TR,
}

// ParseScriptType maps a user supplied name to a ScriptType.
func ParseScriptType(s string) (ScriptType, error) {
	for _, st := range ScriptTypes {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown script type %q", s)
}

// Purpose returns the BIP43 purpose fixed by the script type.
func (s ScriptType) Purpose() (uint32, error) {
	switch s {
	case ScriptP2PKH:
		return 44, nil
	case ScriptP2SHP2WPKH:
		return 49, nil
	case ScriptP2WPKH:
		return 84, nil
	case ScriptP2TR:
		return 86, nil
	default:
		return 0, fmt.Errorf("unknown script type %q", s)
	}
}

// Account is a derived, wallet owned key together with its address.
// Accounts are immutable once created and can be re-derived at any time
// from DerivationPath.
type Account struct {
	DerivationPath []string   `json:"derivationPath"`
	PubKey         string     `json:"pubKey"`
	Address        string     `json:"address"`
	ScriptType     ScriptType `json:"scriptType"`
	MFP            string     `json:"mfp"`
}

// AccountSet holds one Account per script type, all created for the same
// address index.
type AccountSet map[ScriptType]Account

// SignedTx is the broadcast ready result of a signing request.
type SignedTx struct {
	TxID  string `json:"txId"`
	TxHex string `json:"txHex"`
}

// TxSummary is the human readable view of a transaction shown before
// signing.
type TxSummary struct {
	From          string  `json:"from"`
	To            string  `json:"to"`
	Value         string  `json:"value"`
	Fee           string  `json:"fee"`
	Network       Network `json:"network"`
	ChangeAddress string  `json:"changeAddress,omitempty"`
}

// Lines renders the summary as "key: value" lines in display order.
func (s TxSummary) Lines() []string {
	lines := []string{
		"from: " + s.From,
		"to: " + s.To,
		"value: " + s.Value,
		"fee: " + s.Fee,
		"network: " + string(s.Network),
	}
	if s.ChangeAddress != "" {
		lines = append(lines, "changeAddress: "+s.ChangeAddress)
	}
	return lines
}
