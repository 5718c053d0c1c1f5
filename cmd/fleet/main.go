package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/example/fleet-tracker/internal/authctx"
	"github.com/example/fleet-tracker/internal/config"
	"github.com/example/fleet-tracker/internal/gateway"
	"github.com/example/fleet-tracker/internal/logging"
	"github.com/example/fleet-tracker/internal/session"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errUsage = errors.New("usage")

// command is one fleet subcommand. run receives the flag set already parsed.
type command struct {
	summary string
	flags   func(fs *pflag.FlagSet)
	run     func(ctx context.Context, a *app, fs *pflag.FlagSet) error
}

var commands = map[string]command{
	"login":    loginCommand,
	"register": registerCommand,
	"logout":   logoutCommand,
	"whoami":   whoamiCommand,
	"status":   statusCommand,
	"track":    trackCommand,
	"drivers":  driversCommand,
	"counts":   countsCommand,
	"watch":    watchCommand,
	"nearby":   nearbyCommand,
	"quote":    quoteCommand,
}

// app is what every subcommand shares.
type app struct {
	cfg     *config.AppConfig
	log     zerolog.Logger
	gw      *gateway.Client
	session *authctx.Session
	out     io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(stderr)
		if len(args) == 0 {
			return exitUsage
		}
		return exitOK
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "fleet: unknown command %q\n", args[0])
		usage(stderr)
		return exitUsage
	}

	fs := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	fs.SetOutput(stderr)
	if cmd.flags != nil {
		cmd.flags(fs)
	}
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	a, err := newApp(stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "fleet: %v\n", err)
		return exitError
	}

	err = cmd.run(ctx, a, fs)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "fleet %s: %v\n", args[0], err)
		fs.PrintDefaults()
		return exitUsage
	default:
		fmt.Fprintf(stderr, "fleet %s: %v\n", args[0], err)
		return exitError
	}
}

func newApp(stdout, stderr io.Writer) (*app, error) {
	config.LoadDotEnvUp(6)
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log := logging.NewWithWriter(stderr, cfg.LogLevel, cfg.Environment)

	vault, err := session.NewFileVault(cfg.Session.Dir, cfg.Session.Secret)
	if err != nil {
		return nil, fmt.Errorf("open session vault: %w", err)
	}
	gw := gateway.New(cfg.Backend.BaseURL, session.NewStore(vault),
		gateway.WithTimeout(cfg.Backend.Timeout),
		gateway.WithLogger(log),
	)
	return &app{
		cfg:     cfg,
		log:     log,
		gw:      gw,
		session: authctx.New(gw, log),
		out:     stdout,
	}, nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: fleet <command> [flags]")
	fmt.Fprintln(w)
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "  %-9s %s\n", n, commands[n].summary)
	}
}
