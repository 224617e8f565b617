package rules

import (
	"context"
	"testing"

	"framecheck/internal/mangle"
	"framecheck/internal/report"
	"framecheck/internal/source"
)

func newTestChecker(t *testing.T, opts Options) *Checker {
	t.Helper()
	checker, err := NewChecker(mangle.DefaultConfig(), nil, opts)
	if err != nil {
		t.Fatalf("NewChecker failed: %v", err)
	}
	t.Cleanup(func() { checker.Close() })
	return checker
}

func checkSnippet(t *testing.T, checker *Checker, code string) []report.Finding {
	t.Helper()
	analyzer := source.NewAnalyzer([]string{"df", "df_*", "*_df", "frame"}, []string{"validate_schema"})
	facts, err := analyzer.Analyze(context.Background(), "snippet.py", []byte(code))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if err := checker.AddFileFacts("snippet.py", facts, "hash"); err != nil {
		t.Fatalf("AddFileFacts failed: %v", err)
	}
	findings, err := checker.Findings()
	if err != nil {
		t.Fatalf("Findings failed: %v", err)
	}
	return findings
}

func ruleIDs(findings []report.Finding) map[string]int {
	counts := make(map[string]int)
	for _, f := range findings {
		counts[f.RuleID]++
	}
	return counts
}

func TestRuleDetection(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		wantRule string
		want     int
	}{
		{
			name: "attr column access flagged",
			code: `
import pandas as pd
df = pd.read_csv("a.csv")
df = df.astype({"price": "float64"})
total = df.price.sum()
`,
			wantRule: "FC001",
			want:     1,
		},
		{
			name: "api attribute not flagged",
			code: `
import pandas as pd
df = pd.read_csv("a.csv")
df = df.astype({"price": "float64"})
cols = df.columns
n = df.shape
`,
			wantRule: "FC001",
			want:     0,
		},
		{
			name: "chained assignment flagged",
			code: `
import pandas as pd
df = pd.read_csv("a.csv")
df = df.astype({"y": "int64"})
df[df["x"] > 0]["y"] = 1
`,
			wantRule: "FC002",
			want:     1,
		},
		{
			name: "loc assignment not flagged",
			code: `
import pandas as pd
df = pd.read_csv("a.csv")
df = df.astype({"y": "int64"})
df.loc[df["x"] > 0, "y"] = 1
`,
			wantRule: "FC002",
			want:     0,
		},
		{
			name: "inplace mutation flagged",
			code: `
import pandas as pd
df = pd.read_csv("a.csv")
df = df.astype({"x": "int64"})
df.dropna(inplace=True)
`,
			wantRule: "FC003",
			want:     1,
		},
		{
			name: "undeclared schema flagged",
			code: `
import pandas as pd
df = pd.read_csv("a.csv")
`,
			wantRule: "FC004",
			want:     1,
		},
		{
			name: "astype clears undeclared schema",
			code: `
import pandas as pd
df = pd.read_csv("a.csv")
df = df.astype({"price": "float64"})
`,
			wantRule: "FC004",
			want:     0,
		},
		{
			name: "schema function clears undeclared schema",
			code: `
import pandas as pd
df = pd.read_csv("a.csv")
validate_schema(df)
`,
			wantRule: "FC004",
			want:     0,
		},
		{
			name: "bare merge flags how key and validate",
			code: `
import pandas as pd
a_df = pd.read_csv("a.csv")
b_df = pd.read_csv("b.csv")
validate_schema(a_df)
validate_schema(b_df)
out = a_df.merge(b_df)
`,
			wantRule: "FC005",
			want:     3,
		},
		{
			name: "fully specified merge not flagged",
			code: `
import pandas as pd
a_df = pd.read_csv("a.csv")
b_df = pd.read_csv("b.csv")
validate_schema(a_df)
validate_schema(b_df)
out = a_df.merge(b_df, how="left", on="id", validate="one_to_many")
`,
			wantRule: "FC005",
			want:     0,
		},
		{
			name: "index join satisfies key requirement",
			code: `
import pandas as pd
a_df = pd.read_csv("a.csv")
b_df = pd.read_csv("b.csv")
validate_schema(a_df)
validate_schema(b_df)
out = a_df.merge(b_df, how="inner", left_index=True, right_index=True, validate="one_to_one")
`,
			wantRule: "FC005",
			want:     0,
		},
		{
			name: "zero filled column flagged",
			code: `
import pandas as pd
df = pd.read_csv("a.csv")
df = df.astype({"x": "int64"})
df["discount"] = 0
`,
			wantRule: "FC006",
			want:     1,
		},
		{
			name: "real default not flagged",
			code: `
import pandas as pd
df = pd.read_csv("a.csv")
df = df.astype({"x": "int64"})
df["region"] = "unknown"
`,
			wantRule: "FC006",
			want:     0,
		},
		{
			name: "none missing marker not flagged",
			code: `
import pandas as pd
df = pd.read_csv("a.csv")
df = df.astype({"x": "int64"})
df["discount"] = None
`,
			wantRule: "FC006",
			want:     0,
		},
		{
			name: "nan missing marker not flagged",
			code: `
import pandas as pd
import numpy as np
df = pd.read_csv("a.csv")
df = df.astype({"x": "int64"})
df["discount"] = np.nan
df["status"] = pd.NA
`,
			wantRule: "FC006",
			want:     0,
		},
		{
			name: "string query flagged",
			code: `
import pandas as pd
df = pd.read_csv("a.csv")
df = df.astype({"price": "float64"})
big = df.query("price > 100")
`,
			wantRule: "FC007",
			want:     1,
		},
		{
			name: "mutate and return flagged",
			code: `
import pandas as pd

def enrich(df: pd.DataFrame):
    df["total"] = df["price"] * df["qty"]
    return df
`,
			wantRule: "FC008",
			want:     1,
		},
		{
			name: "copy before mutate not flagged",
			code: `
import pandas as pd

def enrich(df: pd.DataFrame):
    out = df.copy()
    out["total"] = out["price"] * out["qty"]
    return out
`,
			wantRule: "FC008",
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := newTestChecker(t, Options{})
			findings := checkSnippet(t, checker, tt.code)
			if got := ruleIDs(findings)[tt.wantRule]; got != tt.want {
				t.Errorf("expected %d findings for %s, got %d\nall findings: %v",
					tt.want, tt.wantRule, got, findings)
			}
		})
	}
}

func TestMergesOnOneLineKeptSeparate(t *testing.T) {
	checker := newTestChecker(t, Options{})
	// The validated merge must not lend its kwargs to the bare one.
	findings := checkSnippet(t, checker, `
import pandas as pd
a_df = pd.read_csv("a.csv")
b_df = pd.read_csv("b.csv")
validate_schema(a_df)
validate_schema(b_df)
good = a_df.merge(b_df, how="left", on="id", validate="one_to_one"); bad = a_df.merge(b_df)
`)
	if got := ruleIDs(findings)["FC005"]; got != 3 {
		t.Errorf("expected 3 FC005 findings for the bare merge, got %d: %v", got, findings)
	}
}

func TestDisabledRule(t *testing.T) {
	checker := newTestChecker(t, Options{Disabled: map[string]bool{"FC004": true}})
	findings := checkSnippet(t, checker, `
import pandas as pd
df = pd.read_csv("a.csv")
`)
	if ruleIDs(findings)["FC004"] != 0 {
		t.Errorf("disabled rule still reported: %v", findings)
	}
}

func TestDisabledBySlug(t *testing.T) {
	checker := newTestChecker(t, Options{Disabled: map[string]bool{"undeclared-schema": true}})
	findings := checkSnippet(t, checker, `
import pandas as pd
df = pd.read_csv("a.csv")
`)
	if ruleIDs(findings)["FC004"] != 0 {
		t.Errorf("slug-disabled rule still reported: %v", findings)
	}
}

func TestSeverityOverride(t *testing.T) {
	checker := newTestChecker(t, Options{
		SeverityOverrides: map[string]report.Severity{"FC004": report.SeverityError},
	})
	findings := checkSnippet(t, checker, `
import pandas as pd
df = pd.read_csv("a.csv")
`)
	for _, f := range findings {
		if f.RuleID == "FC004" && f.Severity != report.SeverityError {
			t.Errorf("severity override not applied: %+v", f)
		}
	}
}

func TestExtraFrameAPI(t *testing.T) {
	checker := newTestChecker(t, Options{ExtraFrameAPI: []string{"custom_accessor"}})
	findings := checkSnippet(t, checker, `
import pandas as pd
df = pd.read_csv("a.csv")
validate_schema(df)
x = df.custom_accessor
`)
	if ruleIDs(findings)["FC001"] != 0 {
		t.Errorf("extended api name still flagged: %v", findings)
	}
}

func TestFindingsAreSorted(t *testing.T) {
	checker := newTestChecker(t, Options{})
	findings := checkSnippet(t, checker, `
import pandas as pd
df = pd.read_csv("a.csv")
df["a"] = 0
df["b"] = 0
x = df.total
`)
	for i := 1; i < len(findings); i++ {
		prev, cur := findings[i-1], findings[i]
		if prev.File == cur.File && prev.Line > cur.Line {
			t.Errorf("findings out of order: %v before %v", prev, cur)
		}
	}
}

func TestFileFactReplacementClearsOldViolations(t *testing.T) {
	checker := newTestChecker(t, Options{})

	findings := checkSnippet(t, checker, `
import pandas as pd
df = pd.read_csv("a.csv")
`)
	if ruleIDs(findings)["FC004"] != 1 {
		t.Fatalf("expected initial FC004 finding: %v", findings)
	}

	// Fixed version of the same file replaces the facts.
	findings = checkSnippet(t, checker, `
import pandas as pd
df = pd.read_csv("a.csv")
df = df.astype({"x": "int64"})
`)
	if ruleIDs(findings)["FC004"] != 0 {
		t.Errorf("stale violation survived fact replacement: %v", findings)
	}
}
