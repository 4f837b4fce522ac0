package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
)

func (a *app) statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show the privacy state of every kind and recent ingest runs",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "runs", Value: 5, Usage: "recent runs to list"},
		},
		Action: a.status,
	}
}

func (a *app) status(c *cli.Context) error {
	ds, err := a.openDataset(c.Context)
	if err != nil {
		return err
	}
	defer ds.Close()

	st, err := ds.schema.Status(c.Context, c.Int("runs"))
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "table %s: %s facts\n\n", st.Table, humanize.Comma(st.Facts))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tSTATE\tIDENTITIES\tSURROGATES\tCHANGED")
	for _, k := range st.Kinds {
		changed := "-"
		if !k.UpdatedAt.IsZero() {
			changed = humanize.Time(k.UpdatedAt)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", k.Kind, k.State,
			humanize.Comma(k.Identities), humanize.Comma(k.Surrogates), changed)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(st.Runs) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTATE\tREAD\tSTORED\tDUPLICATES\tREJECTED")
	for _, r := range st.Runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", r.RunID, humanize.Time(r.StartedAt), r.State,
			humanize.Comma(r.Read), humanize.Comma(r.Accepted), humanize.Comma(r.Duplicates), humanize.Comma(r.Rejected))
	}
	return tw.Flush()
}

func yesFlag() cli.Flag {
	return &cli.BoolFlag{Name: "yes", Usage: "confirm the irreversible operation"}
}

// kindArg returns the single KIND argument once --yes has been given.
func kindArg(c *cli.Context, op string) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("%s: want exactly one KIND argument", op)
	}
	kind := c.Args().First()
	if !c.Bool("yes") {
		return "", fmt.Errorf("%s %s cannot be undone; rerun with --yes", op, kind)
	}
	return kind, nil
}

func (a *app) pseudonymizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "pseudonymize",
		Usage:     "drop the raw values of KIND; fact rows keep their tokens",
		ArgsUsage: "KIND",
		Flags:     []cli.Flag{yesFlag()},
		Action: func(c *cli.Context) error {
			kind, err := kindArg(c, "pseudonymize")
			if err != nil {
				return err
			}
			ds, err := a.openDataset(c.Context)
			if err != nil {
				return err
			}
			defer ds.Close()

			state, err := ds.schema.Pseudonymize(c.Context, kind)
			fmt.Fprintf(c.App.Writer, "%s: %s\n", kind, state)
			return err
		},
	}
}

func (a *app) anonymizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "anonymize",
		Usage:     "replace the tokens of KIND with sequential numbers and drop its raw values",
		ArgsUsage: "KIND",
		Flags:     []cli.Flag{yesFlag()},
		Action: func(c *cli.Context) error {
			kind, err := kindArg(c, "anonymize")
			if err != nil {
				return err
			}
			ds, err := a.openDataset(c.Context)
			if err != nil {
				return err
			}
			defer ds.Close()

			ks, err := ds.schema.Anonymize(c.Context, kind)
			fmt.Fprintf(c.App.Writer, "%s: %s (%s surrogates)\n", kind, ks.State, humanize.Comma(ks.Surrogates))
			return err
		},
	}
}
