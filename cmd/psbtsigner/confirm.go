package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/olehkaliuzhnyi/btc-psbt-signer/internal/plugin"
)

// terminalConfirmer asks on the terminal and approves only on "y" or "yes".
type terminalConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminalConfirmer(in io.Reader, out io.Writer) *terminalConfirmer {
	return &terminalConfirmer{in: bufio.NewReader(in), out: out}
}

func (c *terminalConfirmer) Confirm(ctx context.Context,
	prompt plugin.Prompt) (bool, error) {

	fmt.Fprintf(c.out, "\n%s\n", prompt.Heading)
	fmt.Fprintln(c.out, strings.Repeat("-", len(prompt.Heading)))
	for _, line := range prompt.Lines {
		fmt.Fprintf(c.out, "  %s\n", line)
	}
	fmt.Fprint(c.out, "Approve? [y/N]: ")

	type answer struct {
		line string
		err  error
	}
	answers := make(chan answer, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		answers <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()

	case a := <-answers:
		if a.err != nil && a.err != io.EOF {
			return false, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

// autoConfirmer approves every prompt.
type autoConfirmer struct{}

func (autoConfirmer) Confirm(_ context.Context, prompt plugin.Prompt) (bool, error) {
	mainLog.Infof("Auto-approving %q", prompt.Heading)
	return true, nil
}
