// Command bindgen regenerates the bindings tables from the JS glue emscripten
// writes next to secp256k1.wasm.
package main

import (
	"fmt"
	"os"

	"github.com/alexflint/go-arg"

	"github.com/wippyai/nostr-wasm/bindgen"
)

var args struct {
	Glue    string `arg:"--glue,required" help:"path to the emscripten JS glue"`
	Out     string `arg:"--out" default:"wasm_gen.go" help:"output file, - for stdout"`
	Package string `arg:"--package" default:"bindings" help:"package name of the generated file"`
}

func main() {
	arg.MustParse(&args)

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bindgen: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	src, err := os.ReadFile(args.Glue)
	if err != nil {
		return fmt.Errorf("read glue: %w", err)
	}

	glue, err := bindgen.Parse(args.Glue, src)
	if err != nil {
		return err
	}

	out, err := glue.Generate(args.Package)
	if err != nil {
		return err
	}

	for _, name := range glue.Unused() {
		fmt.Fprintf(os.Stderr, "bindgen: export %s (%s) is not bound\n", name, glue.Exports[name])
	}

	if args.Out == "-" {
		_, err = os.Stdout.Write(out)
		return err
	}
	if err := os.WriteFile(args.Out, out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", args.Out, err)
	}
	return nil
}
