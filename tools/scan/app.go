// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package scan defines the logic for the "gosift-scan" tool.
//
// The tool mounts host files into a virtual file system, runs the configured
// scanners over them and everything derived from them, and writes the
// extracted rows to a SQLite database and/or a CBOR log.
package scan

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/danjacques/gosift/config"
	"github.com/danjacques/gosift/protocol/dns"
	"github.com/danjacques/gosift/scanner"
	"github.com/danjacques/gosift/scanner/dnsscan"
	"github.com/danjacques/gosift/scanner/hashscan"
	"github.com/danjacques/gosift/scanner/typescan"
	"github.com/danjacques/gosift/sink"
	"github.com/danjacques/gosift/support/logging"
	"github.com/danjacques/gosift/support/metrics"
	"github.com/danjacques/gosift/vfs"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
)

const usage = `Usage: %s [options] FILE|GLOB...

Scans every file named on the command line, and every file derived from
them, with the enabled scanners.

`

type options struct {
	configPath  string
	db          string
	cbor        string
	verbosity   int
	logFile     string
	workers     int
	scanners    []string
	metricsAddr string
	pointerMode dns.PointerModeFlag
	list        bool
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "", "Path to a YAML configuration file.")
	fs.StringVar(&o.db, "db", "", "Write extracted rows to this SQLite database.")
	fs.StringVar(&o.cbor, "cbor", "", "Write extracted rows to this CBOR log.")
	fs.IntVarP(&o.verbosity, "verbose", "v", 5, "Level of verbosity.")
	fs.StringVar(&o.logFile, "log-file", "", "If set, also write logs to this file.")
	fs.IntVar(&o.workers, "workers", 1, "Number of files to scan concurrently.")
	fs.StringSliceVar(&o.scanners, "scanners", nil,
		"Run exactly these scanners, and their dependencies. By default, every default scanner runs.")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "If set, serve Prometheus metrics on this address.")
	fs.Var(&o.pointerMode, "dns-pointer-mode",
		"How DNS name compression pointers are read. Options are: "+dns.PointerModeFlagValues())
	fs.BoolVar(&o.list, "list", false, "List the available scanners and exit.")
}

// loadConfig loads the configuration and applies explicitly-set flags on top
// of it.
func (o *options) loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}

	if fs.Changed("db") {
		cfg.Sink.SQLite = o.db
	}
	if fs.Changed("cbor") {
		cfg.Sink.CBOR = o.cbor
	}
	if fs.Changed("verbose") {
		cfg.Log.Verbosity = o.verbosity
	}
	if fs.Changed("log-file") {
		cfg.Log.File = o.logFile
	}
	if fs.Changed("workers") {
		cfg.Pipeline.Workers = o.workers
	}
	if fs.Changed("scanners") {
		cfg.Pipeline.Scanners = o.scanners
	}
	if fs.Changed("dns-pointer-mode") {
		cfg.DNS.PointerMode = o.pointerMode.Value().String()
	}
	return cfg, cfg.Validate()
}

// NewRegistry returns a Registry holding every scanner, configured by cfg.
func NewRegistry(cfg *config.Config) (*scanner.Registry, error) {
	return scanner.NewRegistry(
		typescan.Factory{},
		hashscan.Factory{},
		cfg.EmailFactory(),
		cfg.ContainerFactory(),
		cfg.DNSFactory(),
	)
}

func openSink(cfg *config.Config) (sink.Sink, error) {
	var sinks sink.Multi
	if cfg.Sink.SQLite != "" {
		s, err := sink.OpenSQLite(cfg.Sink.SQLite)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Sink.CBOR != "" {
		s, err := sink.CreateCBORLog(cfg.Sink.CBOR)
		if err != nil {
			return nil, multierr.Append(err, sinks.Close())
		}
		sinks = append(sinks, s)
	}

	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}

// expandPaths expands every argument that is a glob. Arguments that match
// nothing are kept as they are, so that mounting them reports the error.
func expandPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid glob %q", arg)
		}
		if len(matches) == 0 {
			paths = append(paths, arg)
			continue
		}
		sort.Strings(matches)
		paths = append(paths, matches...)
	}
	return paths, nil
}

func listScanners(w io.Writer, reg *scanner.Registry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tGROUP\tDEFAULT\tTYPES")
	for _, e := range reg.Entries() {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", e.Name, e.Group, e.Default, strings.Join(e.Types, " "))
	}
	_ = tw.Flush()
}

// Run runs the tool with the supplied command-line arguments, and returns its
// exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := pflag.NewFlagSet("gosift-scan", pflag.ContinueOnError)
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

	cfg, err := opts.loadConfig(fs)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %s\n", err)
		return 1
	}

	reg, err := NewRegistry(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Could not register scanners: %s\n", err)
		return 1
	}
	if opts.list {
		listScanners(stdout, reg)
		return 0
	}

	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "Must specify some files to scan.")
		fs.Usage()
		return 1
	}
	paths, err := expandPaths(fs.Args())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	logger := logging.New(logging.Options{
		Verbosity: cfg.Log.Verbosity,
		File:      cfg.Log.File,
		Output:    stderr,
	})
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, reg, paths, opts.metricsAddr, logger); err != nil {
		logger.Errorf("Scan failed: %s", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg *config.Config, reg *scanner.Registry, paths []string, metricsAddr string,
	l logging.L) (err error) {

	runID := uuid.New()
	started := time.Now()
	l.Infof("Starting scan run %s.", runID)

	if metricsAddr != "" {
		ms, err := metrics.Serve(metricsAddr, l, scanner.RegisterMonitoring, dnsscan.RegisterMonitoring)
		if err != nil {
			return err
		}
		defer func() { _ = ms.Close() }()
	}

	out, err := openSink(cfg)
	if err != nil {
		return err
	}
	if out != nil {
		defer func() {
			err = multierr.Append(err, errors.Wrap(out.Close(), "closing sink"))
		}()
	}

	st := vfs.NewStore()
	st.Logger = l
	st.Sink = out
	if err := reg.RegisterReaders(st); err != nil {
		return err
	}

	p, err := scanner.NewPipeline(reg, cfg.Pipeline.Scanners)
	if err != nil {
		return err
	}
	cfg.Apply(p)
	p.Store = st
	p.Sink = out
	p.Logger = l
	l.Infof("Running scanners: %s", strings.Join(p.Scanners(), ", "))

	nodes := make([]*vfs.Node, 0, len(paths))
	for _, path := range paths {
		n, err := st.Mount(path)
		if err != nil {
			l.Warnf("Could not mount %q: %s", path, err)
			continue
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 0 {
		return errors.New("no files could be mounted")
	}

	if err := p.ScanAll(ctx, nodes); err != nil {
		return err
	}

	sink.Record(l, out, sink.TableRun, sink.Row{
		"run_id":   runID.String(),
		"started":  started,
		"finished": time.Now(),
		"mounted":  int64(len(nodes)),
		"nodes":    int64(st.Len()),
		"derived":  p.Derived(),
	})
	l.Infof("Scan run %s scanned %d node(s) in %s.", runID, st.Len(), time.Since(started))
	return nil
}

// Main is the main entry point.
func Main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	code := Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
