package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driving"
)

const maxListedIDs = 20

var (
	publishMode  string
	publishNodes []string
)

var publishCmd = &cobra.Command{
	Use:   "publish [city]",
	Short: "Publish a city's nodes to the vector index",
	Long: `Writes activity nodes to the vector index outside a seeding run.

Modes:
  incremental - nodes whose embedding fields changed since their last publish
  full        - every node of the city
  targeted    - the nodes named with --node`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

var parityCmd = &cobra.Command{
	Use:   "parity [city]",
	Short: "Compare the vector index with the canonical store",
	Long: `Reports node ids missing from the index and index entries with no node.
Drift is reported, never repaired; the command exits non-zero on drift.`,
	Args: cobra.ExactArgs(1),
	RunE: runParity,
}

func init() {
	publishCmd.Flags().StringVar(&publishMode, "mode", string(driving.PublishIncremental),
		"publish mode: incremental, full or targeted")
	publishCmd.Flags().StringSliceVar(&publishNodes, "node", nil, "node id to publish (targeted mode, repeatable)")

	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(parityCmd)
}

func parsePublishMode(s string) (driving.PublishMode, error) {
	switch mode := driving.PublishMode(s); mode {
	case driving.PublishFull, driving.PublishIncremental, driving.PublishTargeted:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: publish mode %q", domain.ErrInvalidInput, s)
	}
}

func runPublish(cmd *cobra.Command, args []string) error {
	if publisher == nil {
		return errors.New("publish service not configured")
	}
	mode, err := parsePublishMode(publishMode)
	if err != nil {
		return err
	}
	if mode == driving.PublishTargeted && len(publishNodes) == 0 {
		return errors.New("targeted mode needs at least one --node")
	}

	result, err := publisher.Publish(cmd.Context(), driving.PublishRequest{
		CityID:  args[0],
		Mode:    mode,
		NodeIDs: publishNodes,
	})
	if result != nil {
		cmd.Printf("Considered %d nodes: %d upserted, %d unchanged.\n",
			result.Considered, result.Upserted, result.Unchanged)
	}
	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

func runParity(cmd *cobra.Command, args []string) error {
	if publisher == nil {
		return errors.New("publish service not configured")
	}
	report, err := publisher.CheckParity(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("parity check failed: %w", err)
	}

	st := newStyles(cmd.OutOrStdout())
	cmd.Printf("%s: %d nodes in store, %d in index\n", report.CityID, report.StoreCount, report.IndexCount)
	if report.InParity() {
		cmd.Println(st.Success.Render("Index is in parity."))
		return nil
	}

	printIDs(cmd, st.Warning.Render("Missing from index:"), report.MissingFromIndex)
	printIDs(cmd, st.Warning.Render("Orphaned in index:"), report.OrphanedInIndex)
	return &domain.ParityDriftError{
		CityID:           report.CityID,
		MissingFromIndex: report.MissingFromIndex,
		OrphanedInIndex:  report.OrphanedInIndex,
	}
}

func printIDs(cmd *cobra.Command, label string, ids []string) {
	if len(ids) == 0 {
		return
	}
	cmd.Printf("%s %d\n", label, len(ids))
	for i, id := range ids {
		if i == maxListedIDs {
			cmd.Printf("  ... and %d more\n", len(ids)-maxListedIDs)
			return
		}
		cmd.Printf("  %s\n", id)
	}
}
