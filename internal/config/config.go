package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btclog"
	"github.com/jessevdk/go-flags"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/pkg/models"
)

const (
	defaultDBName     = "state.db"
	defaultDBTimeout  = 10 * time.Second
	defaultDebugLevel = "info"
	defaultOrigin     = "psbtsigner-cli"
)

// DefaultDataDir is where the state database lives unless overridden.
var DefaultDataDir = btcutil.AppDataDir("psbtsigner", false)

// Config holds all configurable parameters of the signer.
//
//nolint:lll
type Config struct {
	// Network is the active network used until one is persisted.
	Network string `long:"network" env:"PSBTSIGNER_NETWORK" description:"Network used until one is persisted (mainnet or testnet)"`

	// DBPath is the state database file. Empty keeps state in memory.
	DBPath    string        `long:"dbpath" env:"PSBTSIGNER_DBPATH" description:"Path of the state database; empty keeps state in memory"`
	DBTimeout time.Duration `long:"dbtimeout" description:"How long to wait for the state database lock"`

	// Seed source
	Mnemonic   string `long:"mnemonic" env:"PSBTSIGNER_MNEMONIC" description:"BIP-39 mnemonic of the wallet seed"`
	Passphrase string `long:"passphrase" env:"PSBTSIGNER_PASSPHRASE" description:"Optional BIP-39 passphrase"`

	// Confirmation
	AutoApprove bool   `long:"autoapprove" description:"Approve every confirmation prompt without asking"`
	Origin      string `long:"origin" description:"Origin shown in confirmation prompts"`

	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical, off}"`
}

// Default returns a Config populated with default values.
func Default() Config {
	return Config{
		Network:    string(models.NetworkMain),
		DBPath:     filepath.Join(DefaultDataDir, defaultDBName),
		DBTimeout:  defaultDBTimeout,
		DebugLevel: defaultDebugLevel,
		Origin:     defaultOrigin,
	}
}

// Load parses the global options in args over the defaults and the
// environment. Arguments it does not recognize, such as a command and its
// options, are returned for the caller to parse.
func Load(args []string) (*Config, []string, error) {
	cfg := Default()

	parser := flags.NewParser(&cfg, flags.IgnoreUnknown|flags.PassDoubleDash)
	rest, err := parser.ParseArgs(args)
	if err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return &cfg, rest, nil
}

// Validate checks the option values. The mnemonic is checked by the seed
// authority itself.
func (c *Config) Validate() error {
	if _, err := models.ParseNetwork(c.Network); err != nil {
		return err
	}
	if c.DBTimeout <= 0 {
		return fmt.Errorf("dbtimeout must be positive, got %v", c.DBTimeout)
	}
	if _, ok := btclog.LevelFromString(c.DebugLevel); !ok {
		return fmt.Errorf("unknown debug level %q", c.DebugLevel)
	}
	if c.Mnemonic == "" {
		return errors.New("no mnemonic configured, set --mnemonic " +
			"or PSBTSIGNER_MNEMONIC")
	}
	return nil
}

// ActiveNetwork returns the configured network.
func (c *Config) ActiveNetwork() models.Network {
	network, err := models.ParseNetwork(c.Network)
	if err != nil {
		return models.NetworkMain
	}
	return network
}

// LogLevel returns the configured logging level.
func (c *Config) LogLevel() btclog.Level {
	level, _ := btclog.LevelFromString(c.DebugLevel)
	return level
}
