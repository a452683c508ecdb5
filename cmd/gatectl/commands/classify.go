package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xela07ax/spaceai-taskgate/internal/risk"
)

func newClassifyCmd() *cobra.Command {
	var (
		rulesFile string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "classify <task description>",
		Short: "Classify a task description locally without submitting it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			classifier := risk.Default()
			if rulesFile != "" {
				rules, err := risk.LoadRulesFile(rulesFile)
				if err != nil {
					return err
				}
				if classifier, err = risk.NewClassifier(rules); err != nil {
					return err
				}
			}

			a := classifier.Classify(strings.Join(args, " "))
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(a)
			}
			fmt.Fprintf(out, "level:          %s\n", a.Level)
			fmt.Fprintf(out, "indicators:     %s\n", strings.Join(a.Indicators, ", "))
			fmt.Fprintf(out, "confidence:     %.0f\n", a.Confidence)
			fmt.Fprintf(out, "recommendation: %s\n", a.Recommendation)
			return nil
		},
	}
	cmd.Flags().StringVar(&rulesFile, "rules", "", "YAML rule table (defaults to the built-in table)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the assessment as JSON")
	return cmd
}
