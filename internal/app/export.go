package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/sam-keen/bitcoin-price-guesser/internal/storage"
)

const defaultExportWindow = 24 * time.Hour

// Export renders recorded price samples as CSV and/or a PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	if a.Config.Database.DSN == "" {
		return errors.New("database not configured; cannot export")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-defaultExportWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	samples, err := store.ListSamplesBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.Logger.Info().Msg("no price samples found for export window")
		return nil
	}

	downsampled := downsample(samples, opts.MaxPoints)
	a.Logger.Info().Int("total", len(samples)).Int("exported", len(downsampled)).Msg("exporting price samples")

	if opts.CSVPath != "" {
		if err := writeSamplesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSamplesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsample(samples []storage.PriceSample, max int) []storage.PriceSample {
	if max <= 0 || len(samples) <= max {
		return samples
	}

	result := make([]storage.PriceSample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		result = append(result, samples[idx])
	}
	return result
}

func writeSamplesCSV(path string, samples []storage.PriceSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"sampled_at", "price_usd", "source"}); err != nil {
		return err
	}

	for _, sample := range samples {
		record := []string{
			sample.SampledAt.UTC().Format(time.RFC3339),
			sample.Price.String(),
			sample.Source,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSamplesPNG(path string, samples []storage.PriceSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(samples))
	prices := make([]float64, len(samples))
	for i, sample := range samples {
		x[i] = sample.SampledAt
		prices[i] = sample.Price.InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "BTC/USD",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Spot price",
				XValues: x,
				YValues: prices,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
