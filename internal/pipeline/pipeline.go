// Package pipeline runs the full check flow: discover files, extract
// facts, evaluate the policy, and filter against the baseline.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"framecheck/internal/config"
	"framecheck/internal/logging"
	"framecheck/internal/mangle"
	"framecheck/internal/report"
	"framecheck/internal/rules"
	"framecheck/internal/source"
	"framecheck/internal/store"
)

// Diagnostic reports an operational problem with one file (unreadable,
// unparseable). Diagnostics never fail the run by themselves.
type Diagnostic struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// Result is the outcome of one check run.
type Result struct {
	Findings    []report.Finding `json:"findings"`
	Summary     report.Summary   `json:"summary"`
	Diagnostics []Diagnostic     `json:"diagnostics,omitempty"`
	Suppressed  int              `json:"suppressed"`
	Reanalyzed  int              `json:"reanalyzed"`
	Cached      int              `json:"cached"`
	Duration    time.Duration    `json:"-"`
}

// Pipeline wires the scanner, analyzer, checker and fact cache together.
type Pipeline struct {
	cfg        *config.Config
	root       string
	scanner    *source.Scanner
	checker    *rules.Checker
	store      *store.Store // nil when caching is off
	warmed     bool
	noBaseline bool
}

// New builds a pipeline for the workspace at root. st may be nil to run
// without the fact cache.
func New(cfg *config.Config, root string, st *store.Store) (*Pipeline, error) {
	opts := rules.Options{
		Disabled:          make(map[string]bool),
		SeverityOverrides: make(map[string]report.Severity),
		ExtraFrameAPI:     cfg.Rules.ExtraFrameAPI,
	}
	for _, id := range cfg.Rules.Disabled {
		opts.Disabled[id] = true
	}
	for key, value := range cfg.Rules.Severity {
		sev, err := report.ParseSeverity(value)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", key, err)
		}
		opts.SeverityOverrides[key] = sev
	}

	var persistence mangle.Persistence
	if st != nil {
		persistence = st
	}
	checker, err := rules.NewChecker(mangle.DefaultConfig(), persistence, opts)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:     cfg,
		root:    root,
		scanner: source.NewScanner(root, cfg.Source.Exclude),
		checker: checker,
		store:   st,
	}, nil
}

// Checker exposes the checker for the facts/query/stats commands.
func (p *Pipeline) Checker() *rules.Checker {
	return p.checker
}

// SetNoBaseline disables baseline filtering, so accepted findings are
// reported again.
func (p *Pipeline) SetNoBaseline(skip bool) {
	p.noBaseline = skip
}

type analyzed struct {
	file  string
	facts []mangle.Fact
	hash  string
}

// Run checks the given targets (or the whole workspace when empty).
func (p *Pipeline) Run(ctx context.Context, targets []string) (*Result, error) {
	start := time.Now()
	timer := logging.StartTimer(logging.CategoryRules, "pipeline.Run")
	defer timer.Stop()

	files, err := p.scanner.Scan(targets)
	if err != nil {
		return nil, err
	}

	cached, err := p.warmCache(ctx, files)
	if err != nil {
		return nil, err
	}

	result := &Result{Cached: len(cached)}

	// Parse in parallel; tree-sitter parsers are not safe to share, so
	// each worker gets its own analyzer.
	var (
		mu      sync.Mutex
		results []analyzed
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.NumCPU())

	for _, file := range files {
		rel := p.scanner.Rel(file)
		if cached[rel] {
			continue
		}
		file := file
		group.Go(func() error {
			content, err := os.ReadFile(file)
			if err != nil {
				mu.Lock()
				result.Diagnostics = append(result.Diagnostics, Diagnostic{File: rel, Message: err.Error()})
				mu.Unlock()
				return nil
			}
			sum := sha256.Sum256(content)

			analyzer := source.NewAnalyzer(p.cfg.Rules.FrameNameHints, p.cfg.Rules.SchemaFunctions)
			facts, err := analyzer.Analyze(groupCtx, rel, content)
			if err != nil {
				mu.Lock()
				result.Diagnostics = append(result.Diagnostics, Diagnostic{File: rel, Message: err.Error()})
				mu.Unlock()
				return nil
			}

			mu.Lock()
			results = append(results, analyzed{file: rel, facts: facts, hash: hex.EncodeToString(sum[:])})
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	// Deterministic insertion order keeps debug logs comparable.
	sort.Slice(results, func(i, j int) bool { return results[i].file < results[j].file })

	engine := p.checker.Engine()
	engine.ToggleAutoEval(false)
	for _, r := range results {
		if err := p.checker.AddFileFacts(r.file, r.facts, r.hash); err != nil {
			return nil, fmt.Errorf("add facts for %s: %w", r.file, err)
		}
	}
	engine.ToggleAutoEval(true)
	if err := engine.RecomputeRules(); err != nil {
		return nil, fmt.Errorf("evaluate rules: %w", err)
	}
	result.Reanalyzed = len(results)

	findings, err := p.checker.Findings()
	if err != nil {
		return nil, err
	}
	findings, suppressed, err := p.applyBaseline(ctx, findings)
	if err != nil {
		return nil, err
	}

	result.Findings = findings
	result.Suppressed = suppressed
	result.Summary = report.Summarize(findings, len(files))
	result.Duration = time.Since(start)

	if p.store != nil {
		if _, err := p.store.RecordRun(ctx, result.Summary, start, result.Duration, rules.PolicyHash()); err != nil {
			logging.Rules("failed to record run: %v", err)
		}
	}
	return result, nil
}

// warmCache hydrates cached facts and returns the set of files whose
// content hash still matches. Stale cache entries are dropped.
func (p *Pipeline) warmCache(ctx context.Context, files []string) (map[string]bool, error) {
	unchanged := make(map[string]bool)
	if p.store == nil {
		return unchanged, nil
	}

	// Facts cached under an older policy or fact schema are unusable.
	current := rules.PolicyHash()
	cachedHash, err := p.store.CachedPolicyHash(ctx)
	if err != nil {
		return nil, err
	}
	if cachedHash != current {
		if cachedHash != "" {
			logging.Store("policy changed, dropping fact cache")
		}
		if err := p.store.ResetCache(ctx); err != nil {
			return nil, err
		}
		if err := p.store.SetCachedPolicyHash(ctx, current); err != nil {
			return nil, err
		}
	}

	states, err := p.store.GetFileStates(ctx)
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(files))
	for _, file := range files {
		present[p.scanner.Rel(file)] = true
	}

	for cachedFile := range states {
		if !present[cachedFile] {
			logging.StoreDebug("dropping cache for removed file %s", cachedFile)
			if err := p.store.DropFile(ctx, cachedFile); err != nil {
				return nil, err
			}
			delete(states, cachedFile)
		}
	}

	for _, file := range files {
		rel := p.scanner.Rel(file)
		hash, ok := states[rel]
		if !ok {
			continue
		}
		content, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		sum := sha256.Sum256(content)
		if hex.EncodeToString(sum[:]) == hash {
			unchanged[rel] = true
		}
	}

	if !p.warmed {
		if err := p.checker.Warm(ctx); err != nil {
			return nil, err
		}
		p.warmed = true
	}

	// Facts for changed files were hydrated too; they are replaced when
	// the new analysis lands, so nothing else to do here.
	return unchanged, nil
}

func (p *Pipeline) applyBaseline(ctx context.Context, findings []report.Finding) ([]report.Finding, int, error) {
	if p.store == nil || p.noBaseline {
		return findings, 0, nil
	}
	accepted, err := p.store.BaselineFingerprints(ctx)
	if err != nil {
		return nil, 0, err
	}
	if len(accepted) == 0 {
		return findings, 0, nil
	}

	kept := findings[:0]
	suppressed := 0
	for _, f := range findings {
		if accepted[f.Fingerprint()] {
			suppressed++
			continue
		}
		kept = append(kept, f)
	}
	return kept, suppressed, nil
}

// FilesChanged implements watch.Handler: re-analyze the changed files.
func (p *Pipeline) FilesChanged(ctx context.Context, changed []string) {
	for _, file := range changed {
		rel := p.scanner.Rel(file)
		content, err := os.ReadFile(file)
		if err != nil {
			logging.Watch("cannot read %s: %v", rel, err)
			continue
		}
		sum := sha256.Sum256(content)

		analyzer := source.NewAnalyzer(p.cfg.Rules.FrameNameHints, p.cfg.Rules.SchemaFunctions)
		facts, err := analyzer.Analyze(ctx, rel, content)
		if err != nil {
			logging.Watch("cannot analyze %s: %v", rel, err)
			continue
		}
		if err := p.checker.AddFileFacts(rel, facts, hex.EncodeToString(sum[:])); err != nil {
			logging.Watch("cannot update facts for %s: %v", rel, err)
		}
	}
}

// FilesRemoved implements watch.Handler: drop facts for deleted files.
func (p *Pipeline) FilesRemoved(ctx context.Context, removed []string) {
	for _, file := range removed {
		rel := p.scanner.Rel(file)
		if err := p.checker.AddFileFacts(rel, nil, ""); err != nil {
			logging.Watch("cannot clear facts for %s: %v", rel, err)
		}
		if p.store != nil {
			if err := p.store.DropFile(ctx, rel); err != nil {
				logging.Watch("cannot drop cache for %s: %v", rel, err)
			}
		}
	}
}

// CurrentFindings re-reads findings after incremental updates (watch mode).
func (p *Pipeline) CurrentFindings(ctx context.Context) ([]report.Finding, int, error) {
	findings, err := p.checker.Findings()
	if err != nil {
		return nil, 0, err
	}
	return p.applyBaseline(ctx, findings)
}

// Close releases the checker and engine.
func (p *Pipeline) Close() error {
	return p.checker.Close()
}
