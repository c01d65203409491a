package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recently recorded price samples.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if a.Config.Database.DSN == "" {
		return errors.New("database not configured; cannot show samples")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	samples, err := store.ListRecentSamples(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no price samples found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPrice (USD)\tSource")

	for _, sample := range samples {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\n",
			sample.SampledAt.UTC().Format(time.RFC3339),
			sample.Price.StringFixed(2),
			sample.Source,
		)
	}

	writer.Flush()
	return nil
}
