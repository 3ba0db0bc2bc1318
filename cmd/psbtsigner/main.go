package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/jessevdk/go-flags"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/config"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/plugin"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/storage"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/wallet"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			// Help was requested, exit normally.
			return
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}

// app holds what every command needs. The plugin is only built once a
// command has been selected.
type app struct {
	cfg    *config.Config
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	plugin *plugin.Plugin
	close  func() error
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout,
	stderr io.Writer) error {

	cfg, rest, err := config.Load(args)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	setupLoggers(stderr, cfg.LogLevel())

	a := &app{
		cfg:    cfg,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	parser := flags.NewNamedParser("psbtsigner", flags.Default)
	if err := a.registerCommands(ctx, parser); err != nil {
		return err
	}

	parser.CommandHandler = func(command flags.Commander, args []string) error {
		if command == nil {
			return nil
		}
		if err := a.start(); err != nil {
			return err
		}
		defer a.stop()

		return command.Execute(args)
	}

	_, err = parser.ParseArgs(rest)
	return err
}

func (a *app) start() error {
	authority, err := wallet.NewMnemonicAuthority(
		a.cfg.Mnemonic, a.cfg.Passphrase,
	)
	if err != nil {
		return fmt.Errorf("unable to load seed: %w", err)
	}

	var store storage.Store
	if a.cfg.DBPath == "" {
		mainLog.Warnf("No database path configured, state is kept in " +
			"memory only")
		store = storage.NewMemoryStore()
		a.close = func() error { return nil }
	} else {
		db, err := storage.OpenDBStore(a.cfg.DBPath, a.cfg.DBTimeout)
		if err != nil {
			return err
		}
		store = db
		a.close = db.Close
	}

	var confirmer plugin.Confirmer = newTerminalConfirmer(a.stdin, a.stderr)
	if a.cfg.AutoApprove {
		confirmer = autoConfirmer{}
	}

	a.plugin = plugin.New(
		store, authority, confirmer,
		plugin.WithDefaultNetwork(a.cfg.ActiveNetwork()),
	)
	return nil
}

func (a *app) stop() {
	if a.close == nil {
		return
	}
	if err := a.close(); err != nil {
		mainLog.Errorf("Unable to close state database: %v", err)
	}
}
