package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var factsNoCache bool

var factsCmd = &cobra.Command{
	Use:   "facts [predicate]",
	Short: "Dump the extracted facts, optionally for one predicate",
	Long: `Runs the analysis and prints the resulting fact base in Datalog
notation. Useful for debugging why a rule did or did not fire.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, st, _, _, err := buildPipeline(factsNoCache)
		if err != nil {
			return err
		}
		defer p.Close()
		if st != nil {
			defer st.Close()
		}

		if _, err := p.Run(cmd.Context(), nil); err != nil {
			return err
		}

		engine := p.Checker().Engine()
		stats := engine.GetStats()

		predicates := make([]string, 0, len(stats.PredicateCounts))
		if len(args) == 1 {
			predicates = append(predicates, args[0])
		} else {
			for pred := range stats.PredicateCounts {
				predicates = append(predicates, pred)
			}
			sort.Strings(predicates)
		}

		for _, pred := range predicates {
			facts, err := engine.GetFacts(pred)
			if err != nil {
				return err
			}
			for _, fact := range facts {
				fmt.Fprintln(os.Stdout, fact.String())
			}
		}
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query [goal]",
	Short: "Run a Datalog query against the fact base",
	Long: `Runs the analysis, then evaluates a Mangle goal and prints each
binding, e.g.:

  framecheck query 'violation(Rule, File, Line, Detail)'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, st, _, _, err := buildPipeline(false)
		if err != nil {
			return err
		}
		defer p.Close()
		if st != nil {
			defer st.Close()
		}

		if _, err := p.Run(cmd.Context(), nil); err != nil {
			return err
		}

		result, err := p.Checker().Engine().Query(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		for _, binding := range result.Bindings {
			keys := make([]string, 0, len(binding))
			for k := range binding {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for i, k := range keys {
				if i > 0 {
					fmt.Print("  ")
				}
				fmt.Printf("%s=%v", k, binding[k])
			}
			fmt.Println()
		}
		fmt.Fprintf(os.Stderr, "%d results in %v\n", len(result.Bindings), result.Duration)
		return nil
	},
}

func init() {
	factsCmd.Flags().BoolVar(&factsNoCache, "no-cache", false, "Re-analyze every file, ignoring the fact cache")
}
