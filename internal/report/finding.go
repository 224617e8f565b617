// Package report holds lint findings and renders them for humans and tools.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Severity classifies how serious a finding is.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	default:
		return "warning"
	}
}

// ParseSeverity converts a config string to a Severity.
func ParseSeverity(value string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "warning", "warn":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	default:
		return SeverityWarning, fmt.Errorf("unknown severity %q (want warning or error)", value)
	}
}

// Finding is one rule violation at a source location.
type Finding struct {
	RuleID   string   `json:"rule_id"`
	Slug     string   `json:"slug"`
	Severity Severity `json:"-"`
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Detail   string   `json:"detail,omitempty"`
	Message  string   `json:"message"`
}

// Fingerprint identifies a finding stably across runs for baseline matching.
// Line is included so a second occurrence of the same problem still surfaces.
func (f Finding) Fingerprint() string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%s\x00%d", f.File, f.RuleID, f.Detail, f.Line)))
	return hex.EncodeToString(h[:16])
}

// Sort orders findings by file, line, rule and detail so output is
// deterministic regardless of evaluation order.
func Sort(findings []Finding) {
	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.Detail < b.Detail
	})
}

// Summary aggregates finding counts for the report footer and exit code.
type Summary struct {
	Files    int `json:"files"`
	Warnings int `json:"warnings"`
	Errors   int `json:"errors"`
}

// Summarize counts findings by severity.
func Summarize(findings []Finding, files int) Summary {
	s := Summary{Files: files}
	for _, f := range findings {
		if f.Severity == SeverityError {
			s.Errors++
		} else {
			s.Warnings++
		}
	}
	return s
}

// ExitCode maps a summary to the process exit code: 0 clean, 1 findings
// at or above the failure threshold, callers use 2 for operational errors.
func (s Summary) ExitCode(failOnWarn bool) int {
	if s.Errors > 0 {
		return 1
	}
	if failOnWarn && s.Warnings > 0 {
		return 1
	}
	return 0
}
