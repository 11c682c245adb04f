package cli

import (
	"fmt"
	"os"
	"time"

	"crm_engine_backend/internal/sequences"

	"github.com/spf13/cobra"
)

var (
	seqTenant   string
	seqContact  string
	seqSequence string
	seqFile     string
)

var sequencesCmd = &cobra.Command{
	Use:   "sequences",
	Short: "Sequence definitions and enrollments",
}

var sequencesEnrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll a contact in a sequence",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := parseID("tenant", seqTenant)
		if err != nil {
			return err
		}
		contactID, err := parseID("contact", seqContact)
		if err != nil {
			return err
		}
		sequenceID, err := parseID("sequence", seqSequence)
		if err != nil {
			return err
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		enrollment, err := s.eng.Sequences.Enroll(cmd.Context(), tenantID, contactID, sequenceID, time.Now().UTC())
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), enrollment)
	},
}

var sequencesSeedBreakupCmd = &cobra.Command{
	Use:   "seed-breakup",
	Short: "Create the built-in breakup sequence for a tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := parseID("tenant", seqTenant)
		if err != nil {
			return err
		}
		seq, err := sequences.DefaultBreakup(tenantID)
		if err != nil {
			return err
		}
		return createSequence(cmd, seq)
	},
}

var sequencesLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Create a sequence from a YAML definition",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := parseID("tenant", seqTenant)
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(seqFile)
		if err != nil {
			return fmt.Errorf("read definition: %w", err)
		}
		seq, err := sequences.ParseDefinition(raw)
		if err != nil {
			return err
		}
		seq.TenantID = tenantID
		return createSequence(cmd, seq)
	},
}

func createSequence(cmd *cobra.Command, seq sequences.Sequence) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	created, err := s.eng.Sequences.CreateSequence(cmd.Context(), seq)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), created)
}

func init() {
	rootCmd.AddCommand(sequencesCmd)
	sequencesCmd.PersistentFlags().StringVar(&seqTenant, "tenant", "", "Tenant id (required)")
	_ = sequencesCmd.MarkPersistentFlagRequired("tenant")

	sequencesCmd.AddCommand(sequencesEnrollCmd)
	sequencesEnrollCmd.Flags().StringVar(&seqContact, "contact", "", "Contact id (required)")
	sequencesEnrollCmd.Flags().StringVar(&seqSequence, "sequence", "", "Sequence id (required)")
	_ = sequencesEnrollCmd.MarkFlagRequired("contact")
	_ = sequencesEnrollCmd.MarkFlagRequired("sequence")

	sequencesCmd.AddCommand(sequencesSeedBreakupCmd)

	sequencesCmd.AddCommand(sequencesLoadCmd)
	sequencesLoadCmd.Flags().StringVar(&seqFile, "file", "", "Path to a YAML sequence definition (required)")
	_ = sequencesLoadCmd.MarkFlagRequired("file")
}
