// Command insights-server runs the listening-insights ingestion service.
package main

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/mkarlin/listening-insights/internal/config"
	"github.com/mkarlin/listening-insights/internal/enrich"
	"github.com/mkarlin/listening-insights/internal/pipeline"
	"github.com/mkarlin/listening-insights/internal/warehouse"
	"github.com/mkarlin/listening-insights/internal/web"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	app := &cli.Command{
		Name:  "insights-server",
		Usage: "Ingest listening-history exports and serve aggregated insights",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return serve(ctx, cmd.String("config"), logger)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}

func serve(ctx context.Context, configPath string, logger *log.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := warehouse.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	var enricher pipeline.Enricher
	if cfg.EnrichmentEnabled() {
		enricher = enrich.NewFetcher(
			cfg.Credentials.Spotify.ClientID,
			cfg.Credentials.Spotify.ClientSecret,
			logger,
		)
	} else {
		logger.Warn("no Spotify credentials configured, catalog enrichment disabled")
	}

	svc := pipeline.New(pipeline.Config{
		Workspaces: db.Workspaces(),
		Loader:     warehouse.NewLoader(db, logger),
		Aggregator: db.Aggregator(),
		Cache:      db.Insights(),
		Enricher:   enricher,
		Logger:     logger,
	})

	server, err := web.NewServer(web.ServerConfig{
		Addr:         cfg.Server.Addr,
		ClientOrigin: cfg.Server.ClientOrigin,
		Pipeline:     svc,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	return server.Run()
}
