package rules

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"time"

	"framecheck/internal/logging"
	"framecheck/internal/mangle"
	"framecheck/internal/report"
	"framecheck/internal/source"
)

//go:embed frame_policy.mg
var framePolicy string

// PolicyHash identifies the embedded policy and the fact schema feeding
// it. Cached facts recorded under a different hash must be dropped.
func PolicyHash() string {
	sum := sha256.Sum256([]byte(framePolicy + "\x00" + source.FactSchemaVersion))
	return hex.EncodeToString(sum[:16])
}

// Options tunes rule evaluation.
type Options struct {
	// Disabled suppresses rules by ID or slug.
	Disabled map[string]bool
	// SeverityOverrides remaps rule severity by ID or slug.
	SeverityOverrides map[string]report.Severity
	// ExtraFrameAPI extends the attribute allowlist for the
	// attr-column-access rule, e.g. for custom DataFrame subclasses.
	ExtraFrameAPI []string
}

// Checker evaluates the lint policy over analyzer facts.
type Checker struct {
	engine *mangle.Engine
	opts   Options
}

// NewChecker builds a checker with the embedded policy loaded and the
// dataframe API allowlist seeded. persistence may be nil.
func NewChecker(cfg mangle.Config, persistence mangle.Persistence, opts Options) (*Checker, error) {
	engine, err := mangle.NewEngine(cfg, persistence)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	if err := engine.LoadSchemaString(framePolicy); err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	engine.ToggleAutoEval(false)
	seed := make([]mangle.Fact, 0, len(frameAPINames)+len(opts.ExtraFrameAPI))
	for _, name := range frameAPINames {
		seed = append(seed, mangle.Fact{Predicate: "frame_api_name", Args: []interface{}{name}})
	}
	for _, name := range opts.ExtraFrameAPI {
		seed = append(seed, mangle.Fact{Predicate: "frame_api_name", Args: []interface{}{name}})
	}
	if err := engine.AddFacts(seed); err != nil {
		return nil, fmt.Errorf("seed api names: %w", err)
	}
	engine.ToggleAutoEval(true)

	return &Checker{engine: engine, opts: opts}, nil
}

// Engine exposes the underlying engine for the facts/query/stats commands.
func (c *Checker) Engine() *mangle.Engine {
	return c.engine
}

// Warm hydrates facts for unchanged files from the persistence layer.
func (c *Checker) Warm(ctx context.Context) error {
	return c.engine.WarmFromPersistence(ctx)
}

// AddFileFacts replaces all facts for one file, re-deriving violations.
func (c *Checker) AddFileFacts(file string, facts []mangle.Fact, contentHash string) error {
	start := time.Now()
	if err := c.engine.ReplaceFactsForFile(file, facts, contentHash); err != nil {
		return err
	}
	logging.RulesDebug("facts for %s replaced in %v", file, time.Since(start))
	return nil
}

// Findings reads derived violations from the engine and maps them onto
// the rule registry, honoring disabled rules and severity overrides.
func (c *Checker) Findings() ([]report.Finding, error) {
	derived, err := c.engine.GetFacts("violation")
	if err != nil {
		return nil, fmt.Errorf("read violations: %w", err)
	}

	findings := make([]report.Finding, 0, len(derived))
	for _, fact := range derived {
		if len(fact.Args) != 4 {
			logging.Rules("skipping malformed violation fact: %v", fact)
			continue
		}

		atom, _ := fact.Args[0].(string)
		rule, ok := ByAtom[atom]
		if !ok {
			logging.Rules("violation for unknown rule %q", atom)
			continue
		}
		if c.opts.Disabled[rule.ID] || c.opts.Disabled[rule.Slug] {
			continue
		}

		file, _ := fact.Args[1].(string)
		line := asInt(fact.Args[2])
		detail, _ := fact.Args[3].(string)

		severity := rule.Severity
		if override, ok := c.opts.SeverityOverrides[rule.ID]; ok {
			severity = override
		} else if override, ok := c.opts.SeverityOverrides[rule.Slug]; ok {
			severity = override
		}

		findings = append(findings, report.Finding{
			RuleID:   rule.ID,
			Slug:     rule.Slug,
			Severity: severity,
			File:     file,
			Line:     line,
			Detail:   detail,
			Message:  rule.Message(detail),
		})
	}

	report.Sort(findings)
	return findings, nil
}

// Close releases engine resources.
func (c *Checker) Close() error {
	return c.engine.Close()
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
