package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	checkFormat     string
	checkFailOnWarn bool
	checkNoCache    bool
	checkNoBaseline bool
)

var checkCmd = &cobra.Command{
	Use:   "check [targets...]",
	Short: "Check Python files for dataframe anti-patterns",
	Long: `Checks the workspace (or the given files and directories) and
prints findings. Unchanged files are served from the fact cache.

Exit codes: 0 clean, 1 findings at or above the failure threshold,
2 operational error.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "", "Output format: text or json (default from config)")
	checkCmd.Flags().BoolVar(&checkFailOnWarn, "fail-on-warn", false, "Exit 1 on warnings, not just errors")
	checkCmd.Flags().BoolVar(&checkNoCache, "no-cache", false, "Re-analyze every file, ignoring the fact cache")
	checkCmd.Flags().BoolVar(&checkNoBaseline, "no-baseline", false, "Report findings even when they are in the baseline")
}

func runCheck(cmd *cobra.Command, args []string) error {
	p, st, cfg, _, err := buildPipeline(checkNoCache)
	if err != nil {
		return err
	}
	defer p.Close()
	if st != nil {
		defer st.Close()
	}
	p.SetNoBaseline(checkNoBaseline)

	result, err := p.Run(cmd.Context(), args)
	if err != nil {
		return err
	}
	logger.Debug("check complete",
		zap.Int("files", result.Summary.Files),
		zap.Int("reanalyzed", result.Reanalyzed),
		zap.Int("cached", result.Cached),
		zap.Int("suppressed", result.Suppressed),
		zap.Duration("duration", result.Duration))

	if err := renderResult(cfg, checkFormat, result); err != nil {
		return err
	}

	failOnWarn := checkFailOnWarn || cfg.Output.FailOnWarn
	if result.Summary.ExitCode(failOnWarn) != 0 {
		return errFindings
	}
	return nil
}
