package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage city sources",
	Long:  `Add, list and remove the sources a city is seeded from.`,
}

var sourceAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a source",
	Long: `Adds a source for a city. Connector configuration is given as repeated
--config key=value flags; each --query adds one request, written as
comma-separated key=value parameters.

Example:
  cityseed source add --type forum --city lisbon --name "Lisbon forum" \
    --config base_url=https://forum.example/api --query thread=42 --query thread=43`,
	Args: cobra.NoArgs,
	RunE: runSourceAdd,
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources",
	Args:  cobra.NoArgs,
	RunE:  runSourceList,
}

var sourceRemoveCmd = &cobra.Command{
	Use:   "remove [source-id]",
	Short: "Remove a source",
	Long:  `Removes a source. Nodes and signals it produced are kept.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceRemove,
}

var sourceTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List available source types and their configuration",
	Args:  cobra.NoArgs,
	RunE:  runSourceTypes,
}

// Flags for source add and list.
var (
	sourceAddID      string
	sourceAddType    string
	sourceAddCity    string
	sourceAddName    string
	sourceAddConfig  map[string]string
	sourceAddQueries []string
	sourceListCity   string
)

func init() {
	sourceAddCmd.Flags().StringVar(&sourceAddID, "id", "", "source id (generated when empty)")
	sourceAddCmd.Flags().StringVar(&sourceAddType, "type", "", "source type (forum, blog, archive, directory)")
	sourceAddCmd.Flags().StringVar(&sourceAddCity, "city", "", "city the source seeds")
	sourceAddCmd.Flags().StringVar(&sourceAddName, "name", "", "display name")
	sourceAddCmd.Flags().StringToStringVar(&sourceAddConfig, "config", nil, "connector setting as key=value (repeatable)")
	sourceAddCmd.Flags().StringArrayVar(&sourceAddQueries, "query", nil, "request parameters as k=v,k=v (repeatable)")
	_ = sourceAddCmd.MarkFlagRequired("type")
	_ = sourceAddCmd.MarkFlagRequired("city")

	sourceListCmd.Flags().StringVar(&sourceListCity, "city", "", "only sources of this city")

	sourceCmd.AddCommand(sourceAddCmd)
	sourceCmd.AddCommand(sourceListCmd)
	sourceCmd.AddCommand(sourceRemoveCmd)
	sourceCmd.AddCommand(sourceTypesCmd)
	rootCmd.AddCommand(sourceCmd)
}

// parseQuery turns "k=v,k=v" into request parameters.
func parseQuery(raw string) (map[string]string, error) {
	params := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("%w: query parameter %q is not key=value", domain.ErrInvalidInput, pair)
		}
		params[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return params, nil
}

func runSourceAdd(cmd *cobra.Command, _ []string) error {
	if sourceService == nil {
		return errors.New("source service not configured")
	}
	sourceType, err := domain.ParseSourceType(sourceAddType)
	if err != nil {
		return err
	}

	spec := domain.SourceSpec{
		ID:     sourceAddID,
		Type:   sourceType,
		CityID: sourceAddCity,
		Name:   sourceAddName,
		Config: sourceAddConfig,
	}
	if spec.Config == nil {
		spec.Config = map[string]string{}
	}
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("%s %s", sourceAddCity, sourceType)
	}
	for _, raw := range sourceAddQueries {
		params, err := parseQuery(raw)
		if err != nil {
			return err
		}
		spec.Queries = append(spec.Queries, domain.Query{CityID: sourceAddCity, Params: params})
	}

	if err := sourceService.Add(cmd.Context(), spec); err != nil {
		return fmt.Errorf("failed to add source: %w", err)
	}
	cmd.Printf("Added %s source %q for %s.\n", sourceType, spec.Name, sourceAddCity)
	return nil
}

func runSourceList(cmd *cobra.Command, _ []string) error {
	if sourceService == nil {
		return errors.New("source service not configured")
	}
	sources, err := sourceService.List(cmd.Context(), sourceListCity)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}
	if len(sources) == 0 {
		cmd.Println("No sources configured.")
		return nil
	}

	st := newStyles(cmd.OutOrStdout())
	rows := make([][]string, 0, len(sources))
	for _, src := range sources {
		rows = append(rows, []string{
			src.ID,
			string(src.Type),
			src.CityID,
			src.Name,
			formatParams(maskSecrets(src.Type, src.Config)),
			fmt.Sprint(len(src.EffectiveQueries())),
		})
	}
	cmd.Println(st.table([]string{"ID", "TYPE", "CITY", "NAME", "CONFIG", "QUERIES"}, rows))
	return nil
}

// maskSecrets hides config values the connector marks secret.
func maskSecrets(sourceType domain.SourceType, config map[string]string) map[string]string {
	if connectorRegistry == nil {
		return config
	}
	ct, err := connectorRegistry.Get(sourceType)
	if err != nil {
		return config
	}
	out := make(map[string]string, len(config))
	for k, v := range config {
		out[k] = v
	}
	for _, key := range ct.ConfigKeys {
		if v, ok := out[key.Key]; ok && key.Secret {
			out[key.Key] = maskAPIKey(v)
		}
	}
	return out
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func runSourceRemove(cmd *cobra.Command, args []string) error {
	if sourceService == nil {
		return errors.New("source service not configured")
	}
	if err := sourceService.Remove(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to remove source: %w", err)
	}
	cmd.Printf("Removed source %s.\n", args[0])
	return nil
}

func runSourceTypes(cmd *cobra.Command, _ []string) error {
	if connectorRegistry == nil {
		return errors.New("connector registry not configured")
	}
	types := connectorRegistry.List()
	sort.Slice(types, func(i, j int) bool { return types[i].ID < types[j].ID })

	st := newStyles(cmd.OutOrStdout())
	for _, ct := range types {
		cmd.Printf("%s  %s\n", st.Title.Render(string(ct.ID)), ct.Description)
		for _, key := range ct.ConfigKeys {
			cmd.Printf("  --config %s%s\n", key.Key, keyNotes(key))
		}
		for _, key := range ct.QueryKeys {
			cmd.Printf("  --query  %s%s\n", key.Key, keyNotes(key))
		}
	}
	return nil
}

func keyNotes(key domain.ConfigKey) string {
	var notes []string
	if key.Required {
		notes = append(notes, "required")
	}
	if key.Default != "" {
		notes = append(notes, "default "+key.Default)
	}
	if key.Secret {
		notes = append(notes, "secret")
	}
	if len(notes) == 0 {
		return ""
	}
	return " (" + strings.Join(notes, ", ") + ")"
}
