// Package main provides the entry point for the application with CLI commands.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/auditpipe/cmd/app/commands"
)

const version = "1.0.0"

func main() {
	cmd := &cli.Command{
		Name:    "app",
		Usage:   "Resilient audit event pipeline",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "Start the HTTP server",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunServer(ctx, version)
				},
			},
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunMigrations()
				},
			},
			{
				Name:  "drain",
				Usage: "Drain pending outbox items into the audit log",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "loop",
						Aliases: []string{"l"},
						Value:   false,
						Usage:   "Keep draining on the configured interval until interrupted",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunDrain(ctx, cmd.Bool("loop"))
				},
			},
			{
				Name:  "cleanup-outbox",
				Usage: "Purge terminal outbox items older than the retention window",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "days",
						Aliases: []string{"d"},
						Value:   0,
						Usage:   "Retention in days (0 uses the configured default)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunCleanupOutbox(ctx, cmd.Int("days"))
				},
			},
			{
				Name:  "list-dlq",
				Usage: "List dead letter queue entries",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "tenant-id",
						Aliases: []string{"t"},
						Value:   "",
						Usage:   "Filter entries by tenant",
					},
					&cli.BoolFlag{
						Name:    "unreplayed-only",
						Aliases: []string{"u"},
						Value:   false,
						Usage:   "Show only entries that were never replayed",
					},
					&cli.IntFlag{
						Name:  "offset",
						Value: 0,
						Usage: "Pagination offset",
					},
					&cli.IntFlag{
						Name:  "limit",
						Value: 50,
						Usage: "Pagination limit (max 100)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunListDlq(
						ctx,
						commands.DefaultIO(),
						cmd.String("tenant-id"),
						cmd.Bool("unreplayed-only"),
						cmd.Int("offset"),
						cmd.Int("limit"),
					)
				},
			},
			{
				Name:  "replay-dlq",
				Usage: "Replay a dead letter entry back into the outbox",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "tenant-id",
						Aliases:  []string{"t"},
						Required: true,
						Usage:    "Tenant that owns the DLQ entry",
					},
					&cli.StringFlag{
						Name:     "id",
						Aliases:  []string{"i"},
						Required: true,
						Usage:    "DLQ entry ID (UUID)",
					},
					&cli.StringFlag{
						Name:     "operator",
						Aliases:  []string{"o"},
						Required: true,
						Usage:    "Operator identifier recorded on the replay",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunReplayDlq(
						ctx,
						commands.DefaultIO(),
						cmd.String("tenant-id"),
						cmd.String("id"),
						cmd.String("operator"),
					)
				},
			},
			{
				Name:  "emergency-mode",
				Usage: "Turn global emergency shedding on or off",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "mode",
						Aliases:  []string{"m"},
						Required: true,
						Usage:    "Desired mode: 'on' or 'off'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunEmergencyMode(ctx, commands.DefaultIO(), cmd.String("mode"))
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}
