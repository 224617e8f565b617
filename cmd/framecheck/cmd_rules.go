package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"framecheck/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the lint rules and their effective severity",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := setup()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSEVERITY\tSUMMARY")
		for _, r := range rules.All {
			severity := r.Severity.String()
			if override, ok := cfg.SeverityOverride(r.ID, r.Slug); ok {
				severity = override
			}
			if cfg.IsRuleDisabled(r.ID, r.Slug) {
				severity = "disabled"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Slug, severity, r.Summary)
		}
		return w.Flush()
	},
}
