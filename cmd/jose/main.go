// Command jose signs, verifies, encrypts, decrypts and inspects JOSE
// compact tokens using keys from a YAML configuration file.
//
//	jose sign    --config jose.yaml --alg HS256 [--key ID] [--in FILE]
//	jose verify  --config jose.yaml [--in FILE]
//	jose encrypt --config jose.yaml --alg dir --enc A256GCM [--key ID] [--in FILE]
//	jose decrypt --config jose.yaml [--in FILE]
//	jose inspect [--in FILE]
//
// Input is read from stdin unless --in is given.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// command is a single subcommand.
type command struct {
	usage string
	run   func(ctx context.Context, env *environment, args []string) error
}

var commands = map[string]command{
	"sign":    {usage: "sign a payload as a JWS", run: runSign},
	"verify":  {usage: "verify and validate a signed or encrypted token", run: runVerify},
	"encrypt": {usage: "encrypt a payload as a JWE", run: runEncrypt},
	"decrypt": {usage: "decrypt an encrypted token", run: runDecrypt},
	"inspect": {usage: "print the header and payload of a token without verifying it", run: runInspect},
}

// environment holds the process streams, so commands can be tested.
type environment struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger *zap.Logger
}

// errUsage is returned for invalid invocations.
var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return errUsage
	}

	cmd, ok := commands[args[0]]
	if !ok {
		printUsage(stderr)
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	env := &environment{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		logger: zap.NewNop(),
	}

	return cmd.run(ctx, env, args[1:])
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "usage: jose <command> [flags]")
	fmt.Fprintln(w)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].usage)
	}
}
