package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/cityseed/internal/logger"
)

const defaultServeAddr = "127.0.0.1:8088"

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ops HTTP API and run scheduled tasks",
	Long: `Serves /healthz, /metrics, parity, run status and seed triggers over HTTP.
When the scheduler is enabled in the config file, scheduled city seeding and
excerpt retention run in the same process. Cities with archive sources read
from local dumps are re-seeded when a dump changes. Stops on interrupt.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", defaultServeAddr, "listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if opsServer == nil {
		return errors.New("ops server not configured")
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return opsServer.ListenAndServe(ctx, serveAddr)
	})

	if scheduler != nil {
		g.Go(func() error {
			err := scheduler.Start(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			return scheduler.Stop()
		})
		logger.Info("scheduler started")
	}

	if archiveWatcher != nil {
		g.Go(func() error {
			return archiveWatcher.Run(ctx)
		})
	}

	cmd.Printf("Serving on %s\n", serveAddr)
	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
