package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"mediaconv/config"
	"mediaconv/failures"
	"mediaconv/logger"
)

// version is injected at build time with -ldflags "-X main.version=..."
var version = "dev"

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error
}

var commands = []command{
	{"convert", "convert [-from f] -to f [-quality q] [-speed s] [-o dest] [-metrics-file p] input", runConvert},
	{"formats", "formats [-from f]", runFormats},
	{"doctor", "doctor", runDoctor},
	{"version", "version", runVersion},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := flag.NewFlagSet("mediaconv", flag.ContinueOnError)
	root.SetOutput(stderr)
	configPath := root.String("config", os.Getenv("MEDIACONV_CONFIG"), "path to a YAML config file")
	root.Usage = func() { printUsage(stderr) }
	if err := root.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if root.NArg() == 0 {
		printUsage(stderr)
		return 2
	}

	name := root.Arg(0)
	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "mediaconv: unknown command %q\n", name)
		printUsage(stderr)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "mediaconv: %v\n", err)
		return 1
	}
	if err := initLogging(cfg, stderr); err != nil {
		fmt.Fprintf(stderr, "mediaconv: %v\n", err)
		return 1
	}
	defer logger.Close()

	if err := cmd.run(ctx, cfg, root.Args()[1:], stdout, stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		var usage usageError
		if errors.As(err, &usage) {
			fmt.Fprintf(stderr, "mediaconv: %v\nusage: mediaconv %s\n", err, cmd.usage)
			return 2
		}
		fmt.Fprintf(stderr, "mediaconv: %v\n", err)
		if failures.Retryable(failures.KindOf(err)) {
			fmt.Fprintln(stderr, "mediaconv: the engine may load on a later attempt; run `mediaconv doctor` for details")
		}
		return 1
	}
	return 0
}

func initLogging(cfg *config.Config, console io.Writer) error {
	if err := logger.InitWriter(cfg.Log.File, console); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if cfg.Log.Level != "" {
		level, err := logger.ParseLevel(cfg.Log.Level)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: mediaconv [-config path] <command> [flags]")
	fmt.Fprintln(w, "\ncommands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %s\n", c.usage)
	}
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }
