package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-stack/stack"
	"github.com/urfave/cli/v2"

	"wasmvm/interp"
	"wasmvm/jit"
	"wasmvm/wasm"
)

// main wires the CLI surface of §6: "prog [--jit] [-a arg1 arg2 ...]
// <file.wasm>". The interpreter runs by default; --jit attempts the
// native-code emitter first and silently falls back to the interpreter
// for any module it cannot fully lower (jit.Run wrapping
// jit.ErrUnsupported), since that boundary is a capability gap in this
// engine, not a reason to refuse a well-formed module.
func main() {
	app := &cli.App{
		Name:  "wasmvm",
		Usage: "run a WebAssembly 1.0 core module's exported main",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "jit", Usage: "compile main with the native-code emitter before falling back to the interpreter"},
			&cli.StringSliceFlag{Name: "a", Usage: "arguments to main; a trailing 'd' parses as f64, otherwise i32"},
			&cli.BoolFlag{Name: "debug", Usage: "log module structure and the chosen execution path"},
		},
		ArgsUsage: "<file.wasm>",
		Action:    run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	log := newLogger(ctx.Bool("debug"))

	// The file is the last positional argument; positionals before it are
	// further -a values, so `-a 1 2 file.wasm` binds both 1 and 2.
	rest := ctx.Args().Slice()
	if len(rest) == 0 || rest[len(rest)-1] == "" {
		return errors.New("missing <file.wasm> argument")
	}
	path := rest[len(rest)-1]
	rawArgs := append(ctx.StringSlice("a"), rest[:len(rest)-1]...)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	module, err := wasm.Decode(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	log.Debug("decoded module", "path", path, "funcs", len(module.Funcs), "caller", fmt.Sprintf("%+v", stack.Caller(0)))
	if ctx.Bool("debug") {
		spew.Fdump(os.Stderr, module)
	}

	args, err := parseArgs(rawArgs)
	if err != nil {
		return fmt.Errorf("parsing arguments: %w", err)
	}

	result, err := execute(module, args, ctx.Bool("jit"), log)
	if err != nil {
		if errors.Is(err, interp.ErrTrap) {
			fmt.Print("!trap")
			return nil
		}
		return err
	}

	fmt.Print(formatResult(result))
	return nil
}

// execute runs main via the JIT when requested, falling back to the
// interpreter whenever Compile declines the module (jit.ErrUnsupported),
// matching C9's "picks interpreter vs JIT" contract.
func execute(module *wasm.Module, args []wasm.Value, useJIT bool, log *slog.Logger) (*wasm.Value, error) {
	if useJIT {
		log.Debug("attempting JIT compilation")
		result, err := jit.Run(module, args)
		if err == nil {
			log.Debug("ran under the JIT")
			return result, nil
		}
		if !errors.Is(err, jit.ErrUnsupported) {
			return nil, err
		}
		log.Debug("JIT declined module, falling back to the interpreter", "reason", err)
	}
	return interp.Run(module, args, os.Stdout)
}

// parseArgs implements §6's "ending in the suffix d" rule.
func parseArgs(raw []string) ([]wasm.Value, error) {
	vals := make([]wasm.Value, 0, len(raw))
	for _, s := range raw {
		if strings.HasSuffix(s, "d") {
			f, err := strconv.ParseFloat(strings.TrimSuffix(s, "d"), 64)
			if err != nil {
				return nil, fmt.Errorf("argument %q: %w", s, err)
			}
			vals = append(vals, wasm.F64Val(f))
			continue
		}
		i, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", s, err)
		}
		vals = append(vals, wasm.I32Val(int32(i)))
	}
	return vals, nil
}

// formatResult implements §6's "Standard output" rule: integers in
// decimal, f64s with six fractional digits, nothing if main has no result.
func formatResult(v *wasm.Value) string {
	if v == nil {
		return ""
	}
	if v.Type == wasm.F64 {
		return fmt.Sprintf("%.6f", v.F64)
	}
	return strconv.FormatInt(int64(v.I32), 10)
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
