// Package main provides the coverfit command-line converter. It writes one
// cover per selected preset for every input image into an output directory.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/maauso/coverfit/internal/config"
	"github.com/maauso/coverfit/internal/media"
	"github.com/maauso/coverfit/internal/preset"
	"github.com/maauso/coverfit/internal/storage"
)

// errUsage reports bad invocation; flag has already printed the details.
var errUsage = errors.New("usage error")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

type options struct {
	outDir      string
	presetsFile string
	presetIDs   string
	size        string
	blur        int
	list        bool
	logLevel    string
	inputs      []string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("coverfit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: coverfit [flags] <image>...")
		fs.PrintDefaults()
	}
	fs.StringVar(&opts.outDir, "out", ".", "output directory")
	fs.StringVar(&opts.presetsFile, "presets", "", "YAML preset table (default: built-in platforms)")
	fs.StringVar(&opts.presetIDs, "preset", "", "comma-separated preset IDs (default: all)")
	fs.StringVar(&opts.size, "size", "", "custom size WIDTHxHEIGHT instead of presets")
	fs.IntVar(&opts.blur, "blur", 30, "background blur intensity (10-100)")
	fs.BoolVar(&opts.list, "list", false, "print the preset table and exit")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return opts, errUsage
	}
	opts.inputs = fs.Args()

	if opts.blur < config.MinBlurIntensity || opts.blur > config.MaxBlurIntensity {
		return opts, fmt.Errorf("blur must be between %d and %d, got %d",
			config.MinBlurIntensity, config.MaxBlurIntensity, opts.blur)
	}
	if !opts.list && len(opts.inputs) == 0 {
		fs.Usage()
		return opts, errUsage
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	logger := (&config.Config{LogLevel: opts.logLevel}).NewLoggerTo(stderr)

	table, err := preset.LoadFile(opts.presetsFile)
	if err != nil {
		return fmt.Errorf("load presets: %w", err)
	}

	if opts.list {
		return printTable(stdout, table)
	}

	targets, err := selectTargets(table, opts)
	if err != nil {
		return err
	}

	out, err := storage.NewLocalStorage(opts.outDir)
	if err != nil {
		return err
	}

	compositor := media.NewCompositor(logger)
	var failed int
	for _, input := range opts.inputs {
		if err := convertFile(ctx, compositor, out, input, targets, opts.blur, stdout); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			logger.Error("conversion failed",
				slog.String("file", input),
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(stderr, "%s: %v\n", input, err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d inputs failed", failed, len(opts.inputs))
	}
	return nil
}

func selectTargets(table *preset.Table, opts options) ([]preset.Preset, error) {
	if opts.size != "" {
		w, h, err := parseSize(opts.size)
		if err != nil {
			return nil, err
		}
		p, err := preset.Custom(w, h)
		if err != nil {
			return nil, err
		}
		return []preset.Preset{p}, nil
	}
	if opts.presetIDs == "" {
		return table.All(), nil
	}
	return table.Subset(strings.Split(opts.presetIDs, ","))
}

// parseSize parses "WIDTHxHEIGHT".
func parseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q: want WIDTHxHEIGHT", s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(ws))
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: width: %w", s, err)
	}
	h, err := strconv.Atoi(strings.TrimSpace(hs))
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: height: %w", s, err)
	}
	return w, h, nil
}

func convertFile(ctx context.Context, conv media.Converter, out *storage.LocalStorage, input string, targets []preset.Preset, blur int, stdout io.Writer) error {
	f, err := os.Open(input)
	if err != nil {
		return err
	}
	src, err := media.Decode(ctx, f, input)
	_ = f.Close()
	if err != nil {
		return err
	}

	for _, p := range targets {
		data, err := conv.Convert(ctx, src.Image, p.Target(blur))
		if err != nil {
			return fmt.Errorf("%s: %w", p.ID, err)
		}
		location, err := out.Put(ctx, media.OutputName(input, p.Name), bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%s: %w", p.ID, err)
		}
		fmt.Fprintf(stdout, "%s\t%dx%d\t%s\n", p.ID, p.Width, p.Height, location)
	}
	return nil
}

func printTable(w io.Writer, table *preset.Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tRATIO")
	for _, p := range table.All() {
		fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%.3f\n", p.ID, p.Name, p.Width, p.Height, p.Ratio())
	}
	return tw.Flush()
}
