package cli

import (
	"github.com/spf13/cobra"
)

var (
	duplicatesTenant string

	cleanupTenant  string
	cleanupTarget  string
	cleanupSources []string
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "List contacts sharing an email address",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := parseID("tenant", duplicatesTenant)
		if err != nil {
			return err
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		groups, err := s.eng.Merge.FindDuplicateGroups(cmd.Context(), tenantID)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), groups)
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge maintenance",
}

var mergeCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete merge sources left behind by a partial merge",
	Long: `Deletes source contacts that a merge already folded into the target but
failed to remove. Sources that still own interactions are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := parseID("tenant", cleanupTenant)
		if err != nil {
			return err
		}
		targetID, err := parseID("target", cleanupTarget)
		if err != nil {
			return err
		}
		sourceIDs, err := parseIDs("source", cleanupSources)
		if err != nil {
			return err
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		result, err := s.eng.Merge.CleanupSources(cmd.Context(), tenantID, targetID, sourceIDs)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), result)
	},
}

func init() {
	rootCmd.AddCommand(duplicatesCmd)
	duplicatesCmd.Flags().StringVar(&duplicatesTenant, "tenant", "", "Tenant id (required)")
	_ = duplicatesCmd.MarkFlagRequired("tenant")

	rootCmd.AddCommand(mergeCmd)
	mergeCmd.AddCommand(mergeCleanupCmd)
	mergeCleanupCmd.Flags().StringVar(&cleanupTenant, "tenant", "", "Tenant id (required)")
	mergeCleanupCmd.Flags().StringVar(&cleanupTarget, "target", "", "Target contact id (required)")
	mergeCleanupCmd.Flags().StringSliceVar(&cleanupSources, "source", nil, "Source contact id, repeatable (required)")
	_ = mergeCleanupCmd.MarkFlagRequired("tenant")
	_ = mergeCleanupCmd.MarkFlagRequired("target")
	_ = mergeCleanupCmd.MarkFlagRequired("source")
}
