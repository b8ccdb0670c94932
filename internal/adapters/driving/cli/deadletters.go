package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

var (
	deadLetterRun    string
	deadLetterCity   string
	deadLetterSource string
	deadLetterLimit  int
	deadLetterJSON   bool
)

var deadLettersCmd = &cobra.Command{
	Use:   "deadletters",
	Short: "List requests routed to the dead-letter store",
	Long: `Lists failed connector requests with their failure reason, attempt count
and last error. Filter by run, city or source type.`,
	Args: cobra.NoArgs,
	RunE: runDeadLetters,
}

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Purge community excerpts past the retention window",
	Long: `Clears excerpt text of forum and directory signals older than the
configured retention window. Node scores and tags are not touched.`,
	Args: cobra.NoArgs,
	RunE: runRetention,
}

func init() {
	deadLettersCmd.Flags().StringVar(&deadLetterRun, "run", "", "only entries of this run")
	deadLettersCmd.Flags().StringVar(&deadLetterCity, "city", "", "only entries of this city")
	deadLettersCmd.Flags().StringVar(&deadLetterSource, "source-type", "", "only entries of this source type")
	deadLettersCmd.Flags().IntVarP(&deadLetterLimit, "limit", "n", 50, "maximum number of entries")
	deadLettersCmd.Flags().BoolVar(&deadLetterJSON, "json", false, "output entries as JSON")

	rootCmd.AddCommand(deadLettersCmd)
	rootCmd.AddCommand(retentionCmd)
}

// deadLetterView is the JSON form of a dead-letter entry.
type deadLetterView struct {
	ID         string            `json:"id"`
	RunID      string            `json:"run_id"`
	CityID     string            `json:"city_id"`
	SourceID   string            `json:"source_id"`
	SourceType string            `json:"source_type"`
	Params     map[string]string `json:"params"`
	Reason     string            `json:"reason"`
	Attempts   int               `json:"attempts"`
	LastError  string            `json:"last_error"`
	FirstSeen  string            `json:"first_seen"`
	LastSeen   string            `json:"last_seen"`
}

func runDeadLetters(cmd *cobra.Command, _ []string) error {
	if deadLetterService == nil {
		return errors.New("dead-letter service not configured")
	}

	filter := domain.DeadLetterFilter{
		RunID:  deadLetterRun,
		CityID: deadLetterCity,
		Limit:  deadLetterLimit,
	}
	if deadLetterSource != "" {
		st, err := domain.ParseSourceType(deadLetterSource)
		if err != nil {
			return err
		}
		filter.SourceType = st
	}

	entries, err := deadLetterService.List(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list dead letters: %w", err)
	}

	if deadLetterJSON {
		return outputDeadLettersJSON(cmd, entries)
	}
	if len(entries) == 0 {
		cmd.Println("No dead letters.")
		return nil
	}

	st := newStyles(cmd.OutOrStdout())
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			string(e.SourceType),
			e.SourceID,
			formatParams(e.Params),
			string(e.Reason),
			fmt.Sprint(e.Attempts),
			truncate(e.LastError, 60),
		})
	}
	cmd.Println(st.table([]string{"TYPE", "SOURCE", "PARAMS", "REASON", "ATTEMPTS", "LAST ERROR"}, rows))
	return nil
}

func outputDeadLettersJSON(cmd *cobra.Command, entries []domain.DeadLetterEntry) error {
	views := make([]deadLetterView, len(entries))
	for i, e := range entries {
		views[i] = deadLetterView{
			ID:         e.ID,
			RunID:      e.RunID,
			CityID:     e.CityID,
			SourceID:   e.SourceID,
			SourceType: string(e.SourceType),
			Params:     e.Params,
			Reason:     string(e.Reason),
			Attempts:   e.Attempts,
			LastError:  e.LastError,
			FirstSeen:  e.FirstSeen.UTC().Format("2006-01-02T15:04:05Z"),
			LastSeen:   e.LastSeen.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}
	data, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode dead letters: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func formatParams(params map[string]string) string {
	if len(params) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + params[k]
	}
	return strings.Join(parts, ",")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func runRetention(cmd *cobra.Command, _ []string) error {
	if retentionService == nil {
		return errors.New("retention service not configured")
	}
	purged, err := retentionService.Purge(cmd.Context())
	if err != nil {
		return fmt.Errorf("retention failed: %w", err)
	}
	cmd.Printf("Purged %d excerpts.\n", purged)
	return nil
}
