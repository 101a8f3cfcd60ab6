// Command gendata writes a deterministic synthetic year of hourly
// household records in the CSV shape batterysim reads. It models a
// Swedish home: morning and evening consumption peaks, seasonal
// heating load, day-ahead-style price swings and a summer-heavy solar
// curve, with occasional sharp consumption spikes.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/MendeTr/BatterySim/pkg/log"
)

func main() {
	out := lflag.String("out", "records.csv", "Output CSV path")
	seedStr := lflag.String("seed", "42", "Random seed (same seed, same file)")
	yearStr := lflag.String("year", "2024", "Year to generate")
	solarPeakStr := lflag.String("solar-peak-kw", "6.0", "Peak solar production in kW (0 disables solar)")
	lflag.Configure()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	ctx := context.Background()

	seed, err := strconv.ParseInt(*seedStr, 10, 64)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid --seed", "error", err)
		os.Exit(1)
	}
	year, err := strconv.Atoi(*yearStr)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid --year", "error", err)
		os.Exit(1)
	}
	solarPeak, err := strconv.ParseFloat(*solarPeakStr, 64)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid --solar-peak-kw", "error", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(seed))
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	f, err := os.Create(*out)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to create output", "error", err)
		os.Exit(1)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"timestamp", "consumption_kw", "spot_price_sek_kwh", "solar_kw"}); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to write header", "error", err)
		os.Exit(1)
	}

	var rows int
	for t := start; t.Before(end); t = t.Add(time.Hour) {
		consumption := consumptionKW(t, rng)
		price := priceSEK(t, rng)
		solar := solarKW(t, solarPeak)

		err := w.Write([]string{
			t.Format(time.RFC3339),
			strconv.FormatFloat(consumption, 'f', 3, 64),
			strconv.FormatFloat(price, 'f', 4, 64),
			strconv.FormatFloat(solar, 'f', 3, 64),
		})
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to write row", "error", err)
			os.Exit(1)
		}
		rows++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to flush output", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "records written",
		slog.String("path", *out),
		slog.Int("rows", rows),
	)
	fmt.Printf("wrote %d hourly records to %s\n", rows, *out)
}

// consumptionKW models a household with morning and evening peaks, a
// winter heating load, and a roughly weekly chance of a sharp spike
// (sauna, EV charging, laundry day stacking up).
func consumptionKW(t time.Time, rng *rand.Rand) float64 {
	base := 0.8
	switch hour := t.Hour(); {
	case hour >= 6 && hour < 9:
		base = 2.8
	case hour >= 9 && hour < 16:
		base = 1.4
	case hour >= 16 && hour < 21:
		base = 3.5
	case hour >= 21:
		base = 1.2
	}

	// Winter heating roughly doubles the load, summer trims it.
	season := 1 + 0.6*math.Cos(2*math.Pi*float64(t.YearDay())/365)
	kw := base * season * (0.85 + rng.Float64()*0.3)

	if rng.Float64() < 1.0/168 {
		kw += 4 + rng.Float64()*6
	}
	return kw
}

// priceSEK models day-ahead spot prices: cheap nights, expensive
// mornings and evenings, higher in winter, with rare extreme hours.
func priceSEK(t time.Time, rng *rand.Rand) float64 {
	base := 0.45
	switch hour := t.Hour(); {
	case hour >= 6 && hour < 9:
		base = 1.10
	case hour >= 9 && hour < 17:
		base = 0.75
	case hour >= 17 && hour < 21:
		base = 1.40
	case hour >= 21:
		base = 0.60
	}

	season := 1 + 0.5*math.Cos(2*math.Pi*float64(t.YearDay())/365)
	price := base * season * (0.8 + rng.Float64()*0.4)

	if rng.Float64() < 1.0/400 {
		price += 3 + rng.Float64()*4
	}
	return price
}

// solarKW is a simple clear-sky curve: zero at night, peaking at noon,
// scaled by season.
func solarKW(t time.Time, peakKW float64) float64 {
	if peakKW <= 0 {
		return 0
	}
	hour := float64(t.Hour())
	if hour < 6 || hour > 20 {
		return 0
	}
	daylight := math.Sin(math.Pi * (hour - 6) / 14)
	season := 0.5 - 0.5*math.Cos(2*math.Pi*(float64(t.YearDay())-10)/365)
	return peakKW * daylight * daylight * season
}
