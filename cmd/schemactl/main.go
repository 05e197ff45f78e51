package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/danmuck/schemawire/internal/observability"
	"github.com/spf13/pflag"
)

type command struct {
	summary string
	run     func(env *env, args []string) error
}

var commands = map[string]command{
	"validate": {"compile a schema document and report validation errors", runValidate},
	"tree":     {"print the compiled tree of one or every schema", runTree},
	"header":   {"render the header bytes of a view schema", runHeader},
	"decode":   {"decode a packed payload, change stream or frame", runDecode},
	"frame":    {"wrap a payload in a frame envelope", runFrame},
	"snapshot": {"write a deterministic CBOR copy of a schema document", runSnapshot},
	"serve":    {"run the inspection HTTP service", runServe},
}

type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

var errUsage = errors.New("usage")

func main() {
	observability.InitLogger("schemactl")
	e := &env{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	if err := run(e, os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(e *env, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(e.stderr)
		if len(args) == 0 {
			return errUsage
		}
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		printUsage(e.stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
	err := cmd.run(e, args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	return err
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("usage: schemactl <command> [flags] [document]\n\ncommands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %-9s %s\n", name, commands[name].summary)
	}
	b.WriteString("\nThe document defaults to `schemas` from --config.\n")
	fmt.Fprint(w, b.String())
}
