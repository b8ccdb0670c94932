package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var mcpHTTPAddr string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve cityseed tools over the Model Context Protocol",
	Long: `Starts an MCP server exposing seed_city, run_status, check_parity and
list_dead_letters tools plus per-city run and source resources.
Uses stdio unless --http is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if mcpServer == nil {
			return errors.New("mcp server not configured")
		}
		if mcpHTTPAddr != "" {
			cmd.PrintErrf("Serving MCP on %s\n", mcpHTTPAddr)
			return mcpServer.RunHTTP(cmd.Context(), mcpHTTPAddr)
		}
		return mcpServer.Run(cmd.Context())
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpHTTPAddr, "http", "", "serve streamable HTTP on this address instead of stdio")
	rootCmd.AddCommand(mcpCmd)
}
