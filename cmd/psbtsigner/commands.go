package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jessevdk/go-flags"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/plugin"
	"github.com/olehkaliuzhnyi/btc-psbt-signer/pkg/models"
)

// registerCommands adds every command to parser. Commands run against the
// plugin built by the command handler.
func (a *app) registerCommands(ctx context.Context, parser *flags.Parser) error {
	commands := []struct {
		name  string
		short string
		long  string
		data  interface{}
	}{
		{
			name:  "accounts",
			short: "List the account sets of the active network",
			long: "List the account sets of the active network, creating " +
				"the first one if none exists yet.",
			data: &accountsCommand{app: a, ctx: ctx},
		},
		{
			name:  "add-account",
			short: "Create the next account set after confirmation",
			data:  &addAccountCommand{app: a, ctx: ctx},
		},
		{
			name:  "xpub",
			short: "Export an account extended public key",
			long: "Export the account level extended public key of the " +
				"first account for one script type, using the SLIP-132 " +
				"prefix of that type.",
			data: &xpubCommand{app: a, ctx: ctx},
		},
		{
			name:  "network",
			short: "Get or switch the active network",
			data:  &networkCommand{app: a, ctx: ctx},
		},
		{
			name:  "sign",
			short: "Validate, confirm and sign a PSBT",
			long: "Validate a base64 PSBT, show its summary for " +
				"confirmation and print the signed raw transaction. " +
				"One --signer is given per input, in input order.",
			data: &signCommand{app: a, ctx: ctx},
		},
	}

	for _, c := range commands {
		long := c.long
		if long == "" {
			long = c.short
		}
		if _, err := parser.AddCommand(c.name, c.short, long, c.data); err != nil {
			return fmt.Errorf("unable to add command %s: %w", c.name, err)
		}
	}
	return nil
}

type accountsCommand struct {
	app *app
	ctx context.Context
}

func (c *accountsCommand) Execute(_ []string) error {
	sets, err := c.app.plugin.Accounts(c.ctx, c.app.cfg.Origin)
	if err != nil {
		return err
	}
	return c.app.printJSON(sets)
}

type addAccountCommand struct {
	app *app
	ctx context.Context
}

func (c *addAccountCommand) Execute(_ []string) error {
	// Make sure account set 0 exists so the new set is not the first one.
	if _, err := c.app.plugin.Accounts(c.ctx, c.app.cfg.Origin); err != nil {
		return err
	}

	set, err := c.app.plugin.AddAccount(c.ctx, c.app.cfg.Origin)
	if err != nil {
		return err
	}
	if set == nil {
		return errors.New("account creation declined")
	}
	return c.app.printJSON(set)
}

type xpubCommand struct {
	ScriptType string `long:"type" description:"Script type {P2PKH, P2SH-P2WPKH, P2WPKH, P2TR}" default:"P2WPKH"`

	app *app
	ctx context.Context
}

func (c *xpubCommand) Execute(_ []string) error {
	scriptType, err := models.ParseScriptType(c.ScriptType)
	if err != nil {
		return err
	}

	xpub, err := c.app.plugin.AccountXpub(c.ctx, c.app.cfg.Origin, scriptType)
	if err != nil {
		return err
	}
	return c.app.printJSON(map[string]string{
		"script_type": string(scriptType),
		"xpub":        xpub,
	})
}

type networkCommand struct {
	Args struct {
		Action string `positional-arg-name:"action" description:"get or set"`
		Target string `positional-arg-name:"network" description:"mainnet or testnet, for set"`
	} `positional-args:"yes"`

	app *app
	ctx context.Context
}

func (c *networkCommand) Execute(_ []string) error {
	action := plugin.Action(c.Args.Action)
	if action == "" {
		action = plugin.ActionGet
	}

	network, err := c.app.plugin.Network(
		c.ctx, c.app.cfg.Origin, action, models.Network(c.Args.Target),
	)
	if err != nil {
		return err
	}
	if network == "" {
		return errors.New("network switch declined")
	}
	return c.app.printJSON(map[string]string{"network": string(network)})
}

type signCommand struct {
	Psbt    string   `long:"psbt" description:"Base64 encoded PSBT" required:"true"`
	Signers []string `long:"signer" description:"Address owning the input at the same position; repeat once per input"`

	app *app
	ctx context.Context
}

func (c *signCommand) Execute(_ []string) error {
	// Signing only uses persisted accounts. Create the first set when the
	// state is fresh, which is always the case for an in-memory store.
	if _, err := c.app.plugin.Accounts(c.ctx, c.app.cfg.Origin); err != nil {
		return err
	}

	signed, err := c.app.plugin.SignPsbt(
		c.ctx, c.app.cfg.Origin, c.Psbt, c.Signers,
	)
	if err != nil {
		return err
	}
	return c.app.printJSON(signed)
}

func (a *app) printJSON(resp interface{}) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("unable to encode response: %w", err)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "\t"); err != nil {
		return err
	}
	out.WriteString("\n")

	_, err = out.WriteTo(a.stdout)
	return err
}
