package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/BrandonDHaskell/llllogs/internal/httpapi"
)

func (a *app) serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the local admin API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Value:       a.cfg.HTTPAddr,
				Destination: &a.cfg.HTTPAddr,
			},
		},
		Action: a.serve,
	}
}

func (a *app) serve(c *cli.Context) error {
	ds, err := a.openDataset(c.Context)
	if err != nil {
		return err
	}
	defer ds.Close()

	if _, err := ds.schema.Ensure(c.Context); err != nil {
		return err
	}

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger: a.logger,
		Addr:   a.cfg.HTTPAddr,
		Schema: ds.schema,
	})

	errc := make(chan error, 1)
	go func() {
		a.logger.WithField("addr", a.cfg.HTTPAddr).Info("listening")
		errc <- srv.Start()
	}()

	select {
	case err := <-errc:
		return err
	case <-c.Context.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}
