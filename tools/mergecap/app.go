// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package mergecap defines the logic for the "gosift-mergecap" tool.
//
// The tool merges any number of packet capture files, each ordered by time,
// into a single time-ordered capture. Unlike a naive merge, it keeps only a
// few inputs open at once and splits its output into size-bounded files.
package mergecap

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danjacques/gosift/pcapmerge"
	"github.com/danjacques/gosift/support/logging"
	"github.com/danjacques/gosift/support/metrics"

	"github.com/spf13/pflag"
)

const usage = `Usage: %s -w OUTPUT [options] FILE...

Merges every input capture into OUTPUT, ordered by packet timestamp. Each
input must already be ordered by time. Output that would grow past the split
size continues in OUTPUT1, OUTPUT2, and so on.

`

type options struct {
	output    string
	glob      string
	split     int64
	verbosity int
	maxOpen   int
	logFile   string

	metricsAddr string
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.output, "write", "w", "merged.pcap", "The output file to write.")
	fs.StringVarP(&o.glob, "glob", "g", "",
		"Also merge every file matching this glob. Quote it to keep the shell from expanding it.")
	fs.Int64VarP(&o.split, "split", "s", pcapmerge.DefaultSplitSize, "The maximum size of an output file.")
	fs.IntVarP(&o.verbosity, "verbose", "v", 5, "Level of verbosity.")
	fs.IntVar(&o.maxOpen, "max-open", pcapmerge.DefaultMaxOpen, "The maximum number of inputs to hold open at once.")
	fs.StringVar(&o.logFile, "log-file", "", "If set, also write logs to this file.")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "If set, serve Prometheus metrics on this address while merging.")
}

// inputs returns the positional inputs followed by the sorted glob matches.
func (o *options) inputs(args []string) ([]string, error) {
	inputs := append([]string(nil), args...)
	if o.glob == "" {
		return inputs, nil
	}

	matches, err := filepath.Glob(strings.Replace(o.glob, `\*`, "*", -1))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return append(inputs, matches...), nil
}

// Run runs the tool with the supplied command-line arguments, and returns its
// exit code.
func Run(ctx context.Context, args []string, stderr io.Writer) int {
	var opts options
	fs := pflag.NewFlagSet("gosift-mergecap", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, usage, fs.Name())
		fs.PrintDefaults()
	}
	opts.addFlags(fs)
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 1
	}

	inputs, err := opts.inputs(fs.Args())
	if err != nil {
		fmt.Fprintf(stderr, "Invalid glob %q: %s\n", opts.glob, err)
		return 1
	}
	if len(inputs) == 0 {
		fmt.Fprintln(stderr, "Must specify some files to merge.")
		fs.Usage()
		return 1
	}

	logger := logging.New(logging.Options{
		Verbosity: opts.verbosity,
		File:      opts.logFile,
		Output:    stderr,
	})
	defer func() { _ = logger.Sync() }()

	if opts.metricsAddr != "" {
		ms, err := metrics.Serve(opts.metricsAddr, logger, pcapmerge.RegisterMonitoring)
		if err != nil {
			logger.Errorf("Could not serve metrics: %s", err)
			return 1
		}
		defer func() { _ = ms.Close() }()
	}

	m := pcapmerge.Merger{
		Logger:    logger,
		MaxOpen:   opts.maxOpen,
		SplitSize: opts.split,
	}
	logger.Infof("Merging %d file(s) into %q.", len(inputs), opts.output)
	res, err := m.Merge(ctx, opts.output, inputs)
	if err != nil {
		logger.Errorf("Merge failed: %s", err)
		return 1
	}
	for _, path := range res.Skipped {
		logger.Warnf("Skipped %q.", path)
	}
	return 0
}

// Main is the main entry point.
func Main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	code := Run(ctx, os.Args[1:], os.Stderr)
	cancel()
	os.Exit(code)
}
