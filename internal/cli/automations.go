package cli

import (
	"time"

	"github.com/spf13/cobra"
)

var automationsCmd = &cobra.Command{
	Use:   "automations",
	Short: "Automation runner operations",
}

var automationsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every automation pass once and print the summary",
	Long: `Runs follow-up tasks, drip and breakup sequences and the withering sweep
once, exactly as the scheduled trigger would. Safe to run alongside the
scheduler: every item is claimed before it is processed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		summary := s.eng.Runner.Run(cmd.Context(), time.Now().UTC())
		return writeJSON(cmd.OutOrStdout(), summary)
	},
}

func init() {
	rootCmd.AddCommand(automationsCmd)
	automationsCmd.AddCommand(automationsRunCmd)
}
