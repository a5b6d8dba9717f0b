package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dotminer/internal/config"
	"dotminer/internal/pipeline"
	"dotminer/internal/store"
	"dotminer/internal/validate"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	// extract flags
	flagSink       string
	flagSourceRepo string
	flagSourceURL  string
	flagLicense    string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dotminer",
	Short: "dotminer - extract (code, DOT) training pairs from Python FSM libraries",
	Long: `dotminer scans Python source trees for state machine definitions written
against known FSM libraries (python-statemachine, transitions, automata-lib),
executes each definition in an isolated subprocess to export its Graphviz DOT
representation, validates the DOT with the Graphviz compiler, and appends
deduplicated (code, DOT) pairs to an append-only JSONL sink.

Runs are resumable: existing sink content primes the deduplication registry,
so re-running over the same inputs writes nothing new.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// extractCmd runs the full extraction pipeline.
var extractCmd = &cobra.Command{
	Use:   "extract [path...]",
	Short: "Extract DOT training pairs from Python files or directories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExtract,
}

// validateCmd validates a standalone DOT file or stdin.
var validateCmd = &cobra.Command{
	Use:   "validate [file.dot]",
	Short: "Validate DOT syntax with the Graphviz compiler",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runValidate,
}

// statsCmd prints prior run summaries from the run log.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics of previous extraction runs",
	RunE:  runStats,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "dotminer.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	extractCmd.Flags().StringVar(&flagSink, "sink", "", "JSONL sink path (overrides config)")
	extractCmd.Flags().StringVar(&flagSourceRepo, "source-repo", "", "source repository name for attribution")
	extractCmd.Flags().StringVar(&flagSourceURL, "source-url", "", "source URL for attribution")
	extractCmd.Flags().StringVar(&flagLicense, "license", "", "license tag of the source repository")

	rootCmd.AddCommand(extractCmd, validateCmd, statsCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if flagSink != "" {
		cfg.Output.SinkPath = flagSink
	}
	if flagSourceRepo != "" {
		cfg.Output.SourceRepo = flagSourceRepo
	}
	if flagSourceURL != "" {
		cfg.Output.SourceURL = flagSourceURL
	}
	if flagLicense != "" {
		cfg.Output.License = flagLicense
	}

	files, err := collectPythonFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no Python files found under %s", strings.Join(args, ", "))
	}

	runlog, err := openRunLog(cmd, cfg)
	if err != nil {
		return err
	}
	if runlog != nil {
		defer runlog.Close()
	}

	p, err := pipeline.New(cfg, runlog, logger)
	if err != nil {
		return err
	}

	report, err := p.Run(cmd.Context(), files)
	if err != nil {
		return err
	}

	fmt.Printf("run %s: %d files, %d candidates, %d records written (%d duplicates, %d failed)\n",
		report.RunID, report.FilesScanned, report.Candidates, report.RecordsWritten,
		report.Duplicates,
		report.Timeouts+report.RuntimeFails+report.MalformedOut+report.InvalidDOT)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	checkerTimeout, err := cfg.CheckerTimeout()
	if err != nil {
		return err
	}

	var data []byte
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("failed to read DOT input: %w", err)
	}

	v, err := validate.New(validate.Options{
		Checker:   cfg.Validate.Checker,
		Format:    cfg.Validate.Format,
		Timeout:   checkerTimeout,
		Strict:    cfg.Validate.Strict,
		CacheSize: cfg.Validate.CacheSize,
	}, logger)
	if err != nil {
		return err
	}
	if err := v.Preflight(cmd.Context()); err != nil {
		return err
	}

	result := v.Validate(cmd.Context(), string(data))
	if result.Valid {
		fmt.Printf("valid (%s, %s)\n", result.CheckerVersion, result.Duration.Round(time.Millisecond))
		return nil
	}
	// Returned, not os.Exit: Execute must still run PersistentPostRun
	// (logger sync) and any defers before the process exits non-zero.
	return fmt.Errorf("invalid DOT: %s", result.Diagnostic)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	runlog, err := openRunLog(cmd, cfg)
	if err != nil {
		return err
	}
	if runlog == nil {
		return fmt.Errorf("no run log database configured")
	}
	defer runlog.Close()

	runs, err := runlog.ListRuns(cmd.Context(), 20)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	for _, r := range runs {
		fmt.Printf("%s  %s  files=%d candidates=%d written=%d dupes=%d failed=%d\n",
			r.StartedAt.Format(time.RFC3339), r.RunID,
			r.FilesScanned, r.Candidates, r.RecordsWritten, r.Duplicates,
			r.Timeouts+r.RuntimeFails+r.MalformedOut+r.InvalidDOT)
	}
	return nil
}

// openRunLog opens the configured run-statistics database, or returns
// nil when none is configured.
func openRunLog(cmd *cobra.Command, cfg *config.Config) (*store.RunLog, error) {
	if cfg.Output.DatabasePath == "" {
		return nil, nil
	}
	if dir := filepath.Dir(cfg.Output.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	runlog, err := store.Open(cfg.Output.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := runlog.Init(cmd.Context()); err != nil {
		runlog.Close()
		return nil, err
	}
	return runlog, nil
}

// collectPythonFiles expands files and directories into the list of
// Python sources to scan, skipping hidden directories.
func collectPythonFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("cannot stat %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
					return filepath.SkipDir
				}
				return nil
			}
			switch filepath.Ext(p) {
			case ".py", ".pyw":
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", path, err)
		}
	}
	return files, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
