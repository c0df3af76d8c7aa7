package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/cmd/migrate"
	"github.com/chirino/chat-service/internal/cmd/serve"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "chat-service",
		Usage: "Two-party chat backend: profiles, images, conversations and messages",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Sources: cli.EnvVars("CHAT_SERVICE_ENV_FILE"),
				Value:   ".env",
				Usage:   "Dotenv file loaded into the environment before flags are read",
			},
		},
		Before: loadEnvFile,
		Commands: []*cli.Command{
			serve.Command(),
			migrate.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadEnvFile loads the dotenv file. A missing default file is ignored; a
// missing file named explicitly is an error. Variables already set win.
func loadEnvFile(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("env-file")
	if path == "" {
		return ctx, nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !cmd.IsSet("env-file") {
			return ctx, nil
		}
		return ctx, fmt.Errorf("load env file %s: %w", path, err)
	}
	log.Debug("Loaded env file", "path", path)
	return ctx, nil
}
