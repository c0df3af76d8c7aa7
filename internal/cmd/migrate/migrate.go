package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/config"
	registrymigrate "github.com/chirino/chat-service/internal/registry/migrate"
	"github.com/urfave/cli/v3"

	// Plugins register their migrators from init().
	_ "github.com/chirino/chat-service/internal/plugin/image/pgstore"
	_ "github.com/chirino/chat-service/internal/plugin/profile/sql"
	_ "github.com/chirino/chat-service/internal/plugin/store/mongo"
	_ "github.com/chirino/chat-service/internal/plugin/store/postgres"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the collections, tables and indexes the configured stores need",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "db-kind",
				Sources:     cli.EnvVars("CHAT_SERVICE_DB_KIND"),
				Destination: &cfg.DatastoreType,
				Value:       cfg.DatastoreType,
				Usage:       "Document store backend (mongo|postgres)",
			},
			&cli.StringFlag{
				Name:        "db-url",
				Sources:     cli.EnvVars("CHAT_SERVICE_DB_URL"),
				Destination: &cfg.DBURL,
				Usage:       "Document store connection URL",
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "db-name",
				Sources:     cli.EnvVars("CHAT_SERVICE_DB_NAME"),
				Destination: &cfg.DatabaseName,
				Value:       cfg.DatabaseName,
				Usage:       "Mongo database name",
			},
			&cli.StringFlag{
				Name:        "profiles-kind",
				Sources:     cli.EnvVars("CHAT_SERVICE_PROFILES_KIND"),
				Destination: &cfg.ProfileStoreType,
				Value:       cfg.ProfileStoreType,
				Usage:       "Profile directory backend (postgres|sqlite)",
			},
			&cli.StringFlag{
				Name:        "profiles-db-url",
				Sources:     cli.EnvVars("CHAT_SERVICE_PROFILES_DB_URL"),
				Destination: &cfg.ProfileDBURL,
				Usage:       "Profile directory connection URL (defaults to --db-url when both are postgres)",
			},
			&cli.StringFlag{
				Name:        "images-kind",
				Sources:     cli.EnvVars("CHAT_SERVICE_IMAGES_KIND"),
				Destination: &cfg.ImageStoreType,
				Value:       cfg.ImageStoreType,
				Usage:       "Image store backend (s3|mongo|postgres|db)",
			},
			&cli.StringFlag{
				Name:        "images-db-url",
				Sources:     cli.EnvVars("CHAT_SERVICE_IMAGES_DB_URL"),
				Destination: &cfg.ImageDBURL,
				Usage:       "Image store connection URL for database backed image stores",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.DatastoreMigrateAtStart = true
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...",
				"db", cfg.DatastoreType,
				"profiles", cfg.ProfileStoreType,
				"images", cfg.ResolvedImageStoreType(),
			)
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
