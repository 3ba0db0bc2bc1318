package main

import (
	"io"

	"github.com/btcsuite/btclog"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/plugin"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/storage"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/tx"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/wallet"
)

// mainLog is the logger of the command itself.
var mainLog = btclog.Disabled

// subsystemLoggers maps each subsystem to the function installing its
// logger.
var subsystemLoggers = map[string]func(btclog.Logger){
	wallet.Subsystem:  wallet.UseLogger,
	tx.Subsystem:      tx.UseLogger,
	storage.Subsystem: storage.UseLogger,
	plugin.Subsystem:  plugin.UseLogger,
}

// setupLoggers points every subsystem at one backend writing to w.
func setupLoggers(w io.Writer, level btclog.Level) {
	backend := btclog.NewBackend(w)

	mainLog = backend.Logger("MAIN")
	mainLog.SetLevel(level)

	for subsystem, useLogger := range subsystemLoggers {
		logger := backend.Logger(subsystem)
		logger.SetLevel(level)
		useLogger(logger)
	}
}
