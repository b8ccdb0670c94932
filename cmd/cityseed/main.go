// Command cityseed seeds city activity graphs from community sources.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/cityseed/internal/adapters/driving/cli"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// envHome overrides the ~/.cityseed base directory.
const envHome = "CITYSEED_HOME"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	home, err := baseDir()
	if err != nil {
		return err
	}
	if err := loadEnv(home); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(home)
	if err != nil {
		return err
	}
	defer app.Close()

	cli.SetVersion(version)
	cli.Configure(app.Services())
	return cli.Execute(ctx)
}

func baseDir() (string, error) {
	if dir := os.Getenv(envHome); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".cityseed"), nil
}

// loadEnv reads .env from the working directory and then from the base
// directory. Variables already set in the environment win.
func loadEnv(home string) error {
	for _, path := range []string{".env", filepath.Join(home, ".env")} {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}
