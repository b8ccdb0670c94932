package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

var seedMode string

var seedCmd = &cobra.Command{
	Use:   "seed [city]",
	Short: "Run the seeding pipeline for a city",
	Long: `Runs ingest, resolve, tag, score, publish and verify for a city.

With --mode resume (the default) the latest unfinished run of the city
continues from its first incomplete step; if there is none a new run starts.
With --mode full a new run always starts.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

var abortCmd = &cobra.Command{
	Use:   "abort [run-id]",
	Short: "Abort a run before its next step",
	Args:  cobra.ExactArgs(1),
	RunE:  runAbort,
}

var (
	statusCity  string
	statusLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show a run's checkpoint or a city's recent runs",
	Long: `Shows the persisted checkpoint of a run. With --city instead of a run id,
lists the city's most recent runs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	seedCmd.Flags().StringVar(&seedMode, "mode", string(domain.SeedResume), "run mode: full or resume")
	statusCmd.Flags().StringVar(&statusCity, "city", "", "list recent runs of this city")
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "maximum number of runs to list")

	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(abortCmd)
	rootCmd.AddCommand(statusCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	if seeder == nil {
		return errors.New("seeding service not configured")
	}
	mode, err := domain.ParseSeedMode(seedMode)
	if err != nil {
		return err
	}

	city := args[0]
	cmd.Printf("Seeding %s (%s)...\n", city, mode)

	summary, err := seeder.SeedCity(cmd.Context(), city, mode)
	if summary != nil {
		renderSummary(cmd.OutOrStdout(), summary)
	}
	if err != nil {
		return fmt.Errorf("seed %s: %w", city, err)
	}
	return nil
}

func runAbort(cmd *cobra.Command, args []string) error {
	if seeder == nil {
		return errors.New("seeding service not configured")
	}
	if err := seeder.Abort(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("abort failed: %w", err)
	}
	cmd.Printf("Run %s marked aborted.\n", args[0])
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	if seeder == nil {
		return errors.New("seeding service not configured")
	}

	if len(args) == 1 {
		cp, err := seeder.Status(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get run: %w", err)
		}
		renderCheckpoint(cmd.OutOrStdout(), cp)
		return nil
	}

	if statusCity == "" {
		return errors.New("give a run id or --city")
	}
	runs, err := seeder.History(cmd.Context(), statusCity, statusLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		cmd.Printf("No runs for %s.\n", statusCity)
		return nil
	}

	st := newStyles(cmd.OutOrStdout())
	rows := make([][]string, 0, len(runs))
	for _, cp := range runs {
		next := "-"
		if i := cp.NextStep(); i >= 0 {
			next = string(cp.Steps[i].Name)
		}
		rows = append(rows, []string{
			cp.RunID, string(cp.Mode), st.status(string(cp.Status)), next, formatTime(cp.UpdatedAt),
		})
	}
	cmd.Println(st.table([]string{"RUN", "MODE", "STATUS", "NEXT STEP", "UPDATED"}, rows))
	return nil
}
