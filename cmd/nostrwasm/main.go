// Command nostrwasm generates keys, signs and verifies BIP-340 signatures and
// Nostr events with the compiled secp256k1 module or the reference core.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/alexflint/go-arg"
	"go.uber.org/zap"

	nostrwasm "github.com/wippyai/nostr-wasm"
	"github.com/wippyai/nostr-wasm/config"
	"github.com/wippyai/nostr-wasm/loader"
)

type cli struct {
	Config   string `arg:"--config,env:NOSTRWASM_CONFIG" help:"YAML config file"`
	Wasm     string `arg:"--wasm" help:"module path or URL, overrides wasm_path"`
	Backend  string `arg:"--backend" help:"wasm or reference, overrides backend"`
	LogLevel string `arg:"--log-level" help:"debug, info, warn or error"`

	Keygen *keygenCmd `arg:"subcommand:keygen" help:"generate a secret key and print it with its public key"`
	Pubkey *pubkeyCmd `arg:"subcommand:pubkey" help:"print the public key of a secret key"`
	Sign   *signCmd   `arg:"subcommand:sign" help:"sign a 32-byte hash"`
	Verify *verifyCmd `arg:"subcommand:verify" help:"verify a signature"`
	Hash   *hashCmd   `arg:"subcommand:sha256" help:"hash text with the module's SHA-256"`
	Event  *eventCmd  `arg:"subcommand:event" help:"sign or verify Nostr events"`
}

func (cli) Description() string {
	return "BIP-340 Schnorr signatures and Nostr events over a secp256k1 WebAssembly module.\n" +
		"Secret keys are read from --sk, or from stdin (without echo on a terminal)."
}

// streams are the process streams, replaced in tests.
type streams struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// errInvalid reports a failed verification after its result was printed.
var errInvalid = stderrors.New("invalid")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], streams{os.Stdin, os.Stdout, os.Stderr})
	stop()
	os.Exit(code)
}

func run(ctx context.Context, argv []string, s streams) int {
	var args cli
	p, err := arg.NewParser(arg.Config{Program: "nostrwasm", Out: s.stderr, Exit: func(int) {}}, &args)
	if err != nil {
		fmt.Fprintf(s.stderr, "nostrwasm: %v\n", err)
		return 2
	}

	switch err := p.Parse(argv); {
	case err == arg.ErrHelp:
		p.WriteHelpForSubcommand(s.stdout, p.SubcommandNames()...)
		return 0
	case err != nil:
		p.WriteUsageForSubcommand(s.stderr, p.SubcommandNames()...)
		fmt.Fprintf(s.stderr, "error: %v\n", err)
		return 2
	}

	cmd := p.Subcommand()
	if cmd == nil || cmd == args.Event {
		p.WriteHelpForSubcommand(s.stderr, p.SubcommandNames()...)
		return 2
	}

	if err := execute(ctx, &args, cmd, s); err != nil {
		if err != errInvalid {
			fmt.Fprintf(s.stderr, "nostrwasm: %v\n", err)
		}
		return 1
	}
	return 0
}

func execute(ctx context.Context, args *cli, cmd any, s streams) error {
	c, err := config.Read(args.Config, nil)
	if err != nil {
		return err
	}
	if args.Wasm != "" {
		c.WasmPath = args.Wasm
	}
	if args.Backend != "" {
		c.Backend = args.Backend
	}
	if args.LogLevel != "" {
		c.LogLevel = args.LogLevel
	}
	if err := c.Validate(); err != nil {
		return err
	}

	logger, err := c.Logger()
	if err != nil {
		return err
	}
	defer logger.Sync()
	loader.SetLogger(logger)

	m, err := nostrwasm.Open(ctx, c, logger)
	if err != nil {
		return err
	}
	defer m.Close(ctx)

	logger.Debug("module ready", zap.String("backend", c.Backend), zap.String("wasm", c.WasmPath))

	switch cmd := cmd.(type) {
	case *keygenCmd:
		return cmd.run(ctx, m, s)
	case *pubkeyCmd:
		return cmd.run(ctx, m, s)
	case *signCmd:
		return cmd.run(ctx, m, s)
	case *verifyCmd:
		return cmd.run(ctx, m, s)
	case *hashCmd:
		return cmd.run(ctx, m, s)
	case *eventSignCmd:
		return cmd.run(ctx, m, s)
	case *eventVerifyCmd:
		return cmd.run(ctx, m, s)
	}
	return fmt.Errorf("unhandled command %T", cmd)
}
