package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show fact cache statistics and recent run history",
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
			return fmt.Errorf("stats requires the fact cache; enable store.cache in framecheck.yaml")
		}
		defer st.Close()

		ctx := cmd.Context()
		factCount, err := st.FactCount(ctx)
		if err != nil {
			return err
		}
		states, err := st.GetFileStates(ctx)
		if err != nil {
			return err
		}
		fingerprints, err := st.BaselineFingerprints(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("cached files:      %d\n", len(states))
		fmt.Printf("cached facts:      %d\n", factCount)
		fmt.Printf("baseline findings: %d\n", len(fingerprints))

		runs, err := st.RecentRuns(ctx, 10)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return nil
		}

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tDURATION\tFILES\tWARNINGS\tERRORS\tPOLICY")
		for _, r := range runs {
			hash := r.PolicyHash
			if len(hash) > 8 {
				hash = hash[:8]
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
				r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Duration, r.Files, r.Warnings, r.Errors, hash)
		}
		return w.Flush()
	},
}
