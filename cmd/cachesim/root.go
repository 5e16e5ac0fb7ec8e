package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sarchlab/cachesim/cache"
	"github.com/sarchlab/cachesim/config"
	"github.com/sarchlab/cachesim/crosscheck"
	"github.com/sarchlab/cachesim/record"
	"github.com/sarchlab/cachesim/runner"
	"github.com/sarchlab/cachesim/trace"
)

// ErrInvalidArguments is returned when the trace argument is missing or
// repeated.
var ErrInvalidArguments = errors.New("usage: cachesim <path-to-trace>")

type options struct {
	configPath     string
	logLevel       string
	format         string
	record         string
	recordAccesses bool
	verify         bool
	cpuProfile     string
	memProfile     string
	port           int
	open           bool
}

func exactlyOneTrace(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return ErrInvalidArguments
	}

	return nil
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "cachesim [flags] <trace>",
		Short: "Replay a memory trace against a set-associative cache.",
		Long: "cachesim replays the addresses of a trace file against the " +
			"cache described in its header and prints, for every physical " +
			"line, the tags it held, followed by hit, miss and eviction " +
			"counts.",
		Args:          exactlyOneTrace,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return simulate(cmd, opts, args[0])
		},
	}

	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "",
		"Path to a JSON or YAML configuration file")
	pf.StringVar(&opts.logLevel, "log-level", "",
		"Log level: debug, info, warn or error")
	pf.StringVar(&opts.record, "record", "",
		"Record results to this SQLite database")
	pf.BoolVar(&opts.recordAccesses, "record-accesses", false,
		"Also record every access (requires --record)")

	f := rootCmd.Flags()
	f.StringVar(&opts.format, "format", "",
		"Output format: text or json")
	f.BoolVar(&opts.verify, "verify", false,
		"Cross-check the counts against the Akita cache directory")
	f.StringVar(&opts.cpuProfile, "cpuprofile", "",
		"Write a CPU profile to this file")
	f.StringVar(&opts.memProfile, "memprofile", "",
		"Write a heap profile to this file")

	rootCmd.AddCommand(newServeCmd(opts))

	return rootCmd
}

// Execute runs the command line and returns the exit status.
func Execute(args []string, stdout, stderr io.Writer) int {
	if args == nil {
		args = []string{}
	}

	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)

	cmd, err := rootCmd.ExecuteC()
	if err == nil {
		return 0
	}

	_, _ = fmt.Fprintln(stderr, "Error:", err)
	if errors.Is(err, ErrInvalidArguments) {
		_, _ = fmt.Fprintln(stderr, "")
		_, _ = fmt.Fprint(stderr, cmd.UsageString())
	}

	return 1
}

// loadConfig layers defaults, the config file, the environment and the
// flags, in that order.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		var err error
		cfg, err = config.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("format") {
		cfg.Output = opts.format
	}
	if flags.Changed("record") {
		cfg.Record.Path = opts.record
	}
	if flags.Changed("record-accesses") {
		cfg.Record.Accesses = opts.recordAccesses
	}
	if flags.Changed("verify") {
		cfg.Verify = opts.verify
	}
	if flags.Changed("port") {
		cfg.Monitor.Port = opts.port
	}
	if flags.Changed("open") {
		cfg.Monitor.OpenBrowser = opts.open
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func sourceOptions(cfg *config.Config) trace.SourceOptions {
	return trace.SourceOptions{
		S3: trace.S3Options{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		},
	}
}

// runnerOptions builds the options shared by the one-shot and the serve
// commands. The returned recorder is nil unless recording is enabled.
func runnerOptions(
	cfg *config.Config,
	logger *slog.Logger,
) ([]runner.Option, *record.SQLiteRecorder, error) {
	src := sourceOptions(cfg)
	opts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithLoader(func(ctx context.Context, location string) (*trace.Trace, error) {
			return trace.LoadFrom(ctx, location, src)
		}),
	}

	if cfg.Record.Path == "" {
		return opts, nil, nil
	}

	recorder, err := record.NewSQLiteRecorder(cfg.Record.Path,
		record.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	logger.Info("recording results", "path", recorder.Path())

	opts = append(opts, runner.WithListener(recorder))
	if cfg.Record.Accesses {
		opts = append(opts, runner.WithAccessObserver(recorder.RecordAccess))
	}

	return opts, recorder, nil
}

func simulate(cmd *cobra.Command, opts *options, location string) (err error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger := cfg.Logger(cmd.ErrOrStderr())

	stopProfiling, err := startProfiling(opts.cpuProfile, opts.memProfile)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, stopProfiling())
	}()

	runnerOpts, recorder, err := runnerOptions(cfg, logger)
	if err != nil {
		return err
	}
	if recorder != nil {
		defer func() {
			err = errors.Join(err, recorder.Close())
		}()
	}

	result, err := runner.New(runnerOpts...).Run(cmd.Context(), location)
	if err != nil {
		return err
	}

	if cfg.Verify {
		if err := verify(result, logger); err != nil {
			return err
		}
	}

	if cfg.Output == config.OutputJSON {
		return printJSON(cmd.OutOrStdout(), result)
	}

	printText(cmd.OutOrStdout(), result)

	return nil
}

func verify(result *runner.Result, logger *slog.Logger) error {
	t := result.Trace

	err := crosscheck.Verify(t.Descriptor, t.Addresses, result.Stats)
	if errors.Is(err, crosscheck.ErrUnsupported) {
		logger.Warn("skipping verification", "err", err)
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("verified against the Akita directory")

	return nil
}

func printText(w io.Writer, result *runner.Result) {
	for _, line := range cache.FormatTable(result.Trace.Descriptor, result.Lines) {
		_, _ = fmt.Fprintln(w, line)
	}

	_, _ = fmt.Fprintln(w, cache.Summary(result.Stats, len(result.Trace.Addresses)))
}

type lineReport struct {
	Line     int           `json:"line"`
	Set      uint64        `json:"set"`
	Rendered string        `json:"rendered"`
	Entries  []cache.Entry `json:"entries"`
}

type report struct {
	RunID      string           `json:"run_id"`
	Descriptor cache.Descriptor `json:"descriptor"`
	Addresses  int              `json:"addresses"`
	Lines      []lineReport     `json:"lines"`
	Stats      cache.Statistics `json:"stats"`
	Summary    string           `json:"summary"`
}

func printJSON(w io.Writer, result *runner.Result) error {
	d := result.Trace.Descriptor
	n := len(result.Trace.Addresses)

	rep := report{
		RunID:      result.RunID,
		Descriptor: d,
		Addresses:  n,
		Lines:      make([]lineReport, len(result.Lines)),
		Stats:      result.Stats,
		Summary:    cache.Summary(result.Stats, n),
	}

	for i, line := range result.Lines {
		set := d.SetOf(i)
		entries := []cache.Entry(line)
		if entries == nil {
			entries = []cache.Entry{}
		}

		rep.Lines[i] = lineReport{
			Line:     i,
			Set:      set,
			Rendered: cache.FormatLine(line, set),
			Entries:  entries,
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(rep)
}
