// Package cli provides the cityseed command tree.
//
// Commands reach the core through driving ports set with Configure; a
// command whose service was not configured fails with a clear error.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/cityseed/internal/core/ports/driving"
	"github.com/custodia-labs/cityseed/internal/logger"
)

// version is set at build time via ldflags or SetVersion.
var version = "dev"

// OpsServer serves the operational HTTP surface until ctx is cancelled.
type OpsServer interface {
	ListenAndServe(ctx context.Context, addr string) error
}

// MCPServer serves MCP tools over stdio or HTTP until ctx is cancelled.
type MCPServer interface {
	Run(ctx context.Context) error
	RunHTTP(ctx context.Context, addr string) error
}

// ArchiveWatcher re-seeds cities whose local archive dumps change until ctx
// is cancelled.
type ArchiveWatcher interface {
	Run(ctx context.Context) error
}

// Services are the core ports the commands drive.
type Services struct {
	Seeder            driving.Seeder
	Publisher         driving.Publisher
	Retention         driving.RetentionService
	DeadLetters       driving.DeadLetterService
	Sources           driving.SourceService
	ConnectorRegistry driving.ConnectorRegistry
	Settings          driving.SettingsService
	Scheduler         driving.Scheduler
	OpsServer         OpsServer
	Watcher           ArchiveWatcher
	MCP               MCPServer
}

var (
	seeder            driving.Seeder
	publisher         driving.Publisher
	retentionService  driving.RetentionService
	deadLetterService driving.DeadLetterService
	sourceService     driving.SourceService
	connectorRegistry driving.ConnectorRegistry
	settingsService   driving.SettingsService
	scheduler         driving.Scheduler
	opsServer         OpsServer
	archiveWatcher    ArchiveWatcher
	mcpServer         MCPServer
)

var (
	verbose   bool
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "cityseed",
	Short: "Seed city activity graphs from community sources",
	Long: `cityseed ingests venue mentions from forums, blogs, archives and place
directories, resolves them into activity nodes, tags and scores them, and
publishes the result to a vector index.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		format, err := logger.ParseFormat(logFormat)
		if err != nil {
			return err
		}
		logger.Configure(logger.Options{Verbose: verbose, Format: format})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", string(logger.FormatAuto), "log format: auto, json or console")
}

// Configure sets the services used by the commands.
func Configure(s Services) {
	seeder = s.Seeder
	publisher = s.Publisher
	retentionService = s.Retention
	deadLetterService = s.DeadLetters
	sourceService = s.Sources
	connectorRegistry = s.ConnectorRegistry
	settingsService = s.Settings
	scheduler = s.Scheduler
	opsServer = s.OpsServer
	archiveWatcher = s.Watcher
	mcpServer = s.MCP
}

// SetVersion sets the version printed by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command with ctx, writing command output to stdout.
func Execute(ctx context.Context) error {
	rootCmd.SetOut(os.Stdout)
	return rootCmd.ExecuteContext(ctx)
}
