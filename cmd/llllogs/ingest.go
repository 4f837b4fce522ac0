package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/BrandonDHaskell/llllogs/internal/llllogs/parser"
	"github.com/BrandonDHaskell/llllogs/internal/llllogs/service"
)

func (a *app) ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "parse log files and append them to the dataset",
		ArgsUsage: "FILE... (- for stdin; .gz and .zst are decompressed)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Aliases:     []string{"f"},
				Usage:       "combined, vhost_combined or jsonl",
				Value:       a.cfg.Format,
				Destination: &a.cfg.Format,
			},
			&cli.IntFlag{
				Name:        "batch-size",
				Usage:       "records per transaction",
				Value:       a.cfg.BatchSize,
				Destination: &a.cfg.BatchSize,
			},
		},
		Action: a.ingest,
	}
}

func (a *app) ingest(c *cli.Context) error {
	paths := c.Args().Slice()
	if len(paths) == 0 {
		return errors.New("ingest: no input files")
	}

	ds, err := a.openDataset(c.Context)
	if err != nil {
		return err
	}
	defer ds.Close()

	p, err := parser.New(a.cfg.Format, ds.schema.Layout(), a.logger)
	if err != nil {
		return err
	}

	w := service.NewWriter(ds.store, ds.schema, service.WriterConfig{BatchSize: a.cfg.BatchSize}, a.logger)
	sum, err := w.Ingest(c.Context, parser.Files(paths, p, a.logger))

	fmt.Fprintf(c.App.Writer, "run %s %s: read %s, stored %s, duplicates %s, rejected %s, malformed lines %s\n",
		sum.RunID, sum.State,
		humanize.Comma(sum.Read), humanize.Comma(sum.Accepted), humanize.Comma(sum.Duplicates),
		humanize.Comma(sum.Rejected), humanize.Comma(p.Skipped()))
	return err
}
