package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true)
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107")).Bold(true)
	locationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3"))
	ruleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
	mutedStyle    = lipgloss.NewStyle().Faint(true)
)

// Renderer writes findings to an output stream.
type Renderer interface {
	Render(w io.Writer, findings []Finding, summary Summary) error
}

// NewRenderer returns the renderer for a format string ("text" or "json").
func NewRenderer(format string, color bool) (Renderer, error) {
	switch format {
	case "", "text":
		return &TextRenderer{Color: color}, nil
	case "json":
		return &JSONRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// TextRenderer produces the human-readable report.
type TextRenderer struct {
	Color bool
}

func (r *TextRenderer) Render(w io.Writer, findings []Finding, summary Summary) error {
	for _, f := range findings {
		location := fmt.Sprintf("%s:%d", f.File, f.Line)
		sev := f.Severity.String()
		rule := fmt.Sprintf("%s (%s)", f.RuleID, f.Slug)

		if r.Color {
			location = locationStyle.Render(location)
			rule = ruleStyle.Render(rule)
			if f.Severity == SeverityError {
				sev = errorStyle.Render(sev)
			} else {
				sev = warningStyle.Render(sev)
			}
		}

		if _, err := fmt.Fprintf(w, "%s: %s: %s %s\n", location, sev, f.Message, rule); err != nil {
			return err
		}
	}

	footer := summaryLine(summary)
	if r.Color {
		footer = mutedStyle.Render(footer)
	}
	_, err := fmt.Fprintln(w, footer)
	return err
}

func summaryLine(s Summary) string {
	if s.Errors == 0 && s.Warnings == 0 {
		return fmt.Sprintf("checked %d files, no problems found", s.Files)
	}
	parts := []string{}
	if s.Errors > 0 {
		parts = append(parts, fmt.Sprintf("%d errors", s.Errors))
	}
	if s.Warnings > 0 {
		parts = append(parts, fmt.Sprintf("%d warnings", s.Warnings))
	}
	return fmt.Sprintf("checked %d files, found %s", s.Files, strings.Join(parts, ", "))
}

// JSONRenderer produces machine-readable output for CI integration.
type JSONRenderer struct{}

type jsonFinding struct {
	Finding
	Severity    string `json:"severity"`
	Fingerprint string `json:"fingerprint"`
}

type jsonReport struct {
	Findings []jsonFinding `json:"findings"`
	Summary  Summary       `json:"summary"`
}

func (r *JSONRenderer) Render(w io.Writer, findings []Finding, summary Summary) error {
	out := jsonReport{
		Findings: make([]jsonFinding, 0, len(findings)),
		Summary:  summary,
	}
	for _, f := range findings {
		out.Findings = append(out.Findings, jsonFinding{
			Finding:     f,
			Severity:    f.Severity.String(),
			Fingerprint: f.Fingerprint(),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
