package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
)

type command struct {
	name  string
	short string
	run   func(ctx context.Context, args []string) error
}

var commands = []command{
	{"fetch", "download NetCDF files from the Earth Data Hub", runFetch},
	{"list", "list the NetCDF files of a hub directory", runList},
	{"plot", "render the wind field of one timestep as an image", runPlot},
	{"animate", "render the wind field as an animated GIF", runAnimate},
	{"export", "write wind records as CSV or InfluxDB line protocol, or push them to Victoria Metrics", runExport},
	{"subset", "write a processed subset of a file as NetCDF", runSubset},
	{"renders", "list recorded renders", runRenders},
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: era5wind <command> [flags]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	short := make(map[string]string)
	for _, c := range commands {
		names = append(names, c.name)
		short[c.name] = c.short
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "  %-8s %s\n", n, short[n])
	}
	fmt.Fprintf(w, "\nRun 'era5wind <command> -h' for the flags of a command.\n")
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd, ok := lookup(os.Args[1])
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := cmd.run(ctx, os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		stop()
		logger.Error("Command failed", "cmd", cmd.name, "err", err)
		os.Exit(1)
	}
}

// common are the flags every command accepts.
type common struct {
	verbose bool
	// stdoutData is set by commands that write their results to stdout, their
	// logs then go to stderr.
	stdoutData bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.BoolVar(&c.verbose, "v", false, "log debug messages")
}

func (c *common) logger() *slog.Logger {
	opts := &slog.HandlerOptions{}
	if c.verbose {
		opts.Level = slog.LevelDebug
	}
	var w io.Writer = os.Stdout
	if c.stdoutData {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet("era5wind "+name, flag.ContinueOnError)
}
