package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/BrandonDHaskell/llllogs/internal/config"
)

func main() {
	a := &app{cfg: config.FromEnv(), logger: logrus.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := a.cli().RunContext(ctx, os.Args)
	stop()

	if err != nil {
		a.handleError(err)
		a.flushErrors()
		os.Exit(1)
	}
	a.flushErrors()
}

// app carries what every command needs. Flags start from the environment
// and override it.
type app struct {
	cfg    config.Config
	logger *logrus.Logger
	sentry bool
}

func (a *app) cli() *cli.App {
	return &cli.App{
		Name:  "llllogs",
		Usage: "store web server logs so identifying fields can later be pseudonymized or anonymized",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "db",
				Usage:       "SQLite database file",
				Value:       a.cfg.DBPath,
				Destination: &a.cfg.DBPath,
			},
			&cli.StringFlag{
				Name:        "layout",
				Usage:       "YAML layout file (default: Apache access log layout)",
				Value:       a.cfg.LayoutPath,
				Destination: &a.cfg.LayoutPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Aliases:     []string{"l"},
				Value:       a.cfg.LogLevel,
				Destination: &a.cfg.LogLevel,
			},
		},
		Before: a.before,
		Commands: []*cli.Command{
			a.ingestCommand(),
			a.statusCommand(),
			a.pseudonymizeCommand(),
			a.anonymizeCommand(),
			a.serveCommand(),
		},
	}
}

func (a *app) before(c *cli.Context) error {
	logger, err := config.NewLogger(a.cfg.LogLevel, a.cfg.Env)
	if err != nil {
		return err
	}
	a.logger = logger
	return a.initErrorHandler()
}
