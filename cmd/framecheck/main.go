// framecheck lints Python dataframe code for unsafe pandas patterns.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"framecheck/internal/config"
	"framecheck/internal/logging"
	"framecheck/internal/pipeline"
	"framecheck/internal/report"
	"framecheck/internal/store"
)

var (
	// Global flags
	verbose   bool
	debugMode bool
	workspace string

	logger *zap.Logger

	// errFindings signals a successful run that found problems; the
	// process exits 1 instead of 2.
	errFindings = errors.New("findings above threshold")
)

var rootCmd = &cobra.Command{
	Use:   "framecheck",
	Short: "framecheck - dataframe lint for Python",
	Long: `framecheck statically checks Python code that uses pandas for
patterns that corrupt data silently: attribute column access, chained
assignment, inplace mutation, undeclared schemas, unvalidated merges,
zero-filled columns, string queries, and mutate-and-return functions.

Facts are extracted from the syntax tree and evaluated against a
Datalog policy, so every finding is a derivation, not a regex match.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// resolveWorkspace returns the absolute workspace root.
func resolveWorkspace() (string, error) {
	ws := workspace
	if ws == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("cannot determine working directory: %w", err)
		}
		ws = cwd
	}
	abs, err := filepath.Abs(ws)
	if err != nil {
		return "", fmt.Errorf("invalid workspace %q: %w", ws, err)
	}
	return abs, nil
}

// setup loads config and initializes category logging for a workspace.
func setup() (string, *config.Config, error) {
	ws, err := resolveWorkspace()
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.LoadWorkspace(ws)
	if err != nil {
		return "", nil, err
	}
	settings := logging.Settings{
		DebugMode:  cfg.Logging.DebugMode || debugMode,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}
	if err := logging.Initialize(ws, settings); err != nil {
		return "", nil, err
	}
	return ws, cfg, nil
}

// openStore opens the fact cache unless caching is disabled.
func openStore(cfg *config.Config, ws string, noCache bool) (*store.Store, error) {
	if noCache || !cfg.Store.Cache {
		return nil, nil
	}
	return store.NewStore(cfg.StorePath(ws))
}

// buildPipeline is the shared bootstrap for check, watch, facts, and query.
func buildPipeline(noCache bool) (*pipeline.Pipeline, *store.Store, *config.Config, string, error) {
	ws, cfg, err := setup()
	if err != nil {
		return nil, nil, nil, "", err
	}
	st, err := openStore(cfg, ws, noCache)
	if err != nil {
		return nil, nil, nil, "", err
	}
	p, err := pipeline.New(cfg, ws, st)
	if err != nil {
		if st != nil {
			st.Close()
		}
		return nil, nil, nil, "", err
	}
	return p, st, cfg, ws, nil
}

// colorEnabled resolves the color mode against the terminal.
func colorEnabled(cfg *config.Config) bool {
	switch cfg.Output.Color {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func renderResult(cfg *config.Config, format string, result *pipeline.Result) error {
	if format == "" {
		format = cfg.Output.Format
	}
	renderer, err := report.NewRenderer(format, colorEnabled(cfg))
	if err != nil {
		return err
	}
	if err := renderer.Render(os.Stdout, result.Findings, result.Summary); err != nil {
		return err
	}
	for _, d := range result.Diagnostics {
		fmt.Fprintf(os.Stderr, "framecheck: %s: %s\n", d.File, d.Message)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Write category debug logs under .framecheck/logs")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(factsCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(baselineCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errFindings) {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "framecheck: %v\n", err)
		os.Exit(2)
	}
}
