// Package rules defines the dataframe lint rules and evaluates them with
// the Mangle policy engine.
package rules

import (
	"fmt"

	"framecheck/internal/report"
)

// Rule describes one lint rule.
type Rule struct {
	ID       string // stable identifier, e.g. FC001
	Slug     string // human-friendly name used in config and output
	Atom     string // Mangle name constant the policy derives
	Severity report.Severity
	Summary  string
	message  func(detail string) string
}

// Message renders the user-facing message for a finding's detail token.
func (r Rule) Message(detail string) string {
	if r.message == nil {
		return r.Summary
	}
	return r.message(detail)
}

// All lint rules, ordered by ID.
var All = []Rule{
	{
		ID:       "FC001",
		Slug:     "attr-column-access",
		Atom:     "/attr_column_access",
		Severity: report.SeverityWarning,
		Summary:  "column accessed as attribute instead of bracket indexing",
		message: func(d string) string {
			return fmt.Sprintf("column %q accessed as attribute; use bracket indexing", d)
		},
	},
	{
		ID:       "FC002",
		Slug:     "chained-assignment",
		Atom:     "/chained_assignment",
		Severity: report.SeverityError,
		Summary:  "assignment through chained indexing",
		message: func(d string) string {
			return "chained indexing assignment may write to a copy; use a single .loc call"
		},
	},
	{
		ID:       "FC003",
		Slug:     "inplace-mutation",
		Atom:     "/inplace_mutation",
		Severity: report.SeverityWarning,
		Summary:  "inplace=True mutation",
		message: func(d string) string {
			return fmt.Sprintf("%s(inplace=True) mutates the frame; assign the result instead", d)
		},
	},
	{
		ID:       "FC004",
		Slug:     "undeclared-schema",
		Atom:     "/undeclared_schema",
		Severity: report.SeverityWarning,
		Summary:  "frame loaded without a declared schema",
		message: func(d string) string {
			return fmt.Sprintf("%q is loaded without a declared schema; call astype or a schema validator", d)
		},
	},
	{
		ID:       "FC005",
		Slug:     "unvalidated-merge",
		Atom:     "/unvalidated_merge",
		Severity: report.SeverityError,
		Summary:  "merge without explicit how/keys/validate",
		message: func(d string) string {
			switch d {
			case "how":
				return "merge without an explicit how= argument"
			case "key":
				return "merge without explicit join keys (on=, left_on=/right_on=, or index flags)"
			case "validate":
				return "merge without a validate= argument"
			}
			return "merge without explicit how/keys/validate"
		},
	},
	{
		ID:       "FC006",
		Slug:     "zero-filled-column",
		Atom:     "/zero_filled_column",
		Severity: report.SeverityWarning,
		Summary:  "column initialized with a zero placeholder",
		message: func(d string) string {
			return fmt.Sprintf("column %q initialized with a zero placeholder; prefer NaN or an explicit default", d)
		},
	},
	{
		ID:       "FC007",
		Slug:     "string-query",
		Atom:     "/string_query",
		Severity: report.SeverityWarning,
		Summary:  "string expression passed to query/eval",
		message: func(d string) string {
			return fmt.Sprintf("%s with a string expression hides column references; use boolean masks", d)
		},
	},
	{
		ID:       "FC008",
		Slug:     "mutate-and-return",
		Atom:     "/mutate_and_return",
		Severity: report.SeverityError,
		Summary:  "function mutates its frame parameter and returns it",
		message: func(d string) string {
			return fmt.Sprintf("parameter %q is mutated and returned; operate on a copy or return None", d)
		},
	},
}

// ByAtom indexes rules by their Mangle name constant.
var ByAtom = func() map[string]Rule {
	index := make(map[string]Rule, len(All))
	for _, r := range All {
		index[r.Atom] = r
	}
	return index
}()

// ByID indexes rules by their stable identifier.
var ByID = func() map[string]Rule {
	index := make(map[string]Rule, len(All))
	for _, r := range All {
		index[r.ID] = r
	}
	return index
}()
