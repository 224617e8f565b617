package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"framecheck/internal/config"
	"framecheck/internal/pipeline"
	"framecheck/internal/report"
	"framecheck/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-check files as they change",
	Long: `Runs an initial check, then watches the workspace and re-renders
findings whenever Python files change. Stop with Ctrl-C.`,
	RunE: runWatch,
}

// watchReporter re-renders findings after each settled batch of changes.
type watchReporter struct {
	pipeline *pipeline.Pipeline
	cfg      *config.Config
}

func (r *watchReporter) FilesChanged(ctx context.Context, changed []string) {
	r.pipeline.FilesChanged(ctx, changed)
	r.render(ctx)
}

func (r *watchReporter) FilesRemoved(ctx context.Context, removed []string) {
	r.pipeline.FilesRemoved(ctx, removed)
	r.render(ctx)
}

func (r *watchReporter) render(ctx context.Context) {
	findings, _, err := r.pipeline.CurrentFindings(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "framecheck: %v\n", err)
		return
	}
	renderer, err := report.NewRenderer(r.cfg.Output.Format, colorEnabled(r.cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "framecheck: %v\n", err)
		return
	}
	fmt.Printf("\n--- %s ---\n", time.Now().Format("15:04:05"))
	_ = renderer.Render(os.Stdout, findings, report.Summarize(findings, 0))
}

func runWatch(cmd *cobra.Command, args []string) error {
	p, st, cfg, ws, err := buildPipeline(false)
	if err != nil {
		return err
	}
	defer p.Close()
	if st != nil {
		defer st.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := p.Run(ctx, nil)
	if err != nil {
		return err
	}
	if err := renderResult(cfg, "", result); err != nil {
		return err
	}

	debounce := time.Duration(cfg.Watch.DebounceMS) * time.Millisecond
	watcher, err := watch.New(ws, &watchReporter{pipeline: p, cfg: cfg}, debounce)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Fprintf(os.Stderr, "watching %s for changes (Ctrl-C to stop)\n", ws)
	<-ctx.Done()

	stats := watcher.Stats()
	logger.Debug("watch session ended",
		zap.Int("batches", stats.BatchesFired),
		zap.Int("modified", stats.FilesModified),
		zap.Int("deleted", stats.FilesDeleted))
	return nil
}
