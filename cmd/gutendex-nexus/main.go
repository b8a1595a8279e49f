// Command gutendex-nexus searches the Project Gutenberg catalog through
// Gutendex and keeps favorites, search history and settings locally.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/drallgood/gutendex-nexus/internal/config"
	"github.com/drallgood/gutendex-nexus/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const configKey = "config"

func main() {
	if err := newCLI(os.Stdout).Run(os.Args); err != nil {
		logger.Get().Error("Error running application", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}

func newCLI(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "gutendex-nexus",
		Usage:     "Search Project Gutenberg books and keep a local list of favorites",
		Version:   fmt.Sprintf("%s (%s) %s", version, commit, date),
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "config.yaml",
				EnvVars: []string{"CONFIG_PATH"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the log level (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "ephemeral",
				Usage: "Keep favorites, history and settings in memory only",
			},
		},
		Before: loadConfig,
		Commands: []*cli.Command{
			searchCommand(),
			bookCommand(),
			favoritesCommand(),
			historyCommand(),
			apiKeyCommand(),
			{
				Name:  "collections",
				Usage: "List the predefined collections",
				Action: func(c *cli.Context) error {
					printCollections(c.App.Writer)
					return nil
				},
			},
			portalCommand(),
			shellCommand(),
		},
	}
}

// loadConfig reads the configuration, applies global flags and sets up logging
func loadConfig(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if c.Bool("ephemeral") {
		cfg.Storage.Type = config.StorageMemory
	}

	logger.ForceSetup(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     logger.ParseLogFormat(cfg.Logging.Format),
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	})

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]interface{})
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

// withApp wires the components for a command and tears them down afterwards
func withApp(fn func(ctx context.Context, a *app, c *cli.Context) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, ok := c.App.Metadata[configKey].(*config.Config)
		if !ok {
			return fmt.Errorf("configuration not loaded")
		}
		ctx := c.Context
		if ctx == nil {
			ctx = context.Background()
		}

		a, err := newApp(ctx, cfg, c.App.Writer, logger.Get())
		if err != nil {
			return err
		}
		defer a.close()
		return fn(ctx, a, c)
	}
}
