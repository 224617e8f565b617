package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Manage the accepted-findings baseline",
	Long: `The baseline records current findings so existing problems stop
failing the build while new ones still do. Requires the fact cache.`,
}

var baselineSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Accept all current findings into the baseline",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, st, _, _, err := buildPipeline(false)
		if err != nil {
			return err
		}
		defer p.Close()
		if st == nil {
			return fmt.Errorf("baseline requires the fact cache; enable store.cache in framecheck.yaml")
		}
		defer st.Close()

		if _, err := p.Run(cmd.Context(), nil); err != nil {
			return err
		}

		// Use unfiltered findings so entries already in the baseline stay there.
		findings, err := p.Checker().Findings()
		if err != nil {
			return err
		}
		if err := st.SaveBaseline(cmd.Context(), findings); err != nil {
			return err
		}
		fmt.Printf("baseline saved with %d findings\n", len(findings))
		return nil
	},
}

var baselineShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List the findings currently accepted in the baseline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, cfg, err := setup()
		if err != nil {
			return err
		}
		st, err := openStore(cfg, ws, false)
		if err != nil {
			return err
		}
		if st == nil {
			return fmt.Errorf("baseline requires the fact cache; enable store.cache in framecheck.yaml")
		}
		defer st.Close()

		entries, err := st.BaselineEntries(cmd.Context())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("baseline is empty")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RULE\tLOCATION\tDETAIL\tACCEPTED")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s:%d\t%s\t%s\n",
				e.RuleID, e.File, e.Line, e.Detail, e.SavedAt.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

var baselineClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every accepted finding from the baseline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, cfg, err := setup()
		if err != nil {
			return err
		}
		st, err := openStore(cfg, ws, false)
		if err != nil {
			return err
		}
		if st == nil {
			return fmt.Errorf("baseline requires the fact cache; enable store.cache in framecheck.yaml")
		}
		defer st.Close()

		if err := st.ClearBaseline(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("baseline cleared")
		return nil
	},
}

func init() {
	baselineCmd.AddCommand(baselineSaveCmd)
	baselineCmd.AddCommand(baselineShowCmd)
	baselineCmd.AddCommand(baselineClearCmd)
}
