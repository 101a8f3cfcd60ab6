// Package tibber reads hourly consumption exports in the Tibber CSV
// shape: timestamp, consumption and spot price columns, with solar
// production optional. Rows that cannot be parsed are reported and
// skipped rather than failing the whole file.
package tibber

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MendeTr/BatterySim/pkg/log"
	"github.com/MendeTr/BatterySim/pkg/types"
)

// Column names accepted in the header, case-insensitive.
var (
	timestampColumns   = []string{"timestamp", "time", "from", "hour"}
	consumptionColumns = []string{"consumption_kw", "consumption", "consumption_kwh", "usage"}
	priceColumns       = []string{"spot_price_sek_kwh", "spot_price", "price", "unit_price"}
	solarColumns       = []string{"solar_kw", "solar", "production", "production_kwh"}
)

// Timestamp layouts tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// LoadFile reads an hourly record file from disk.
func LoadFile(ctx context.Context, path string) ([]types.EnergyRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open records: %w", err)
	}
	defer f.Close()
	recs, err := Load(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// Load parses hourly records from CSV. The header row is required and
// must name timestamp, consumption and price columns; solar is
// optional and defaults to zero.
func Load(ctx context.Context, r io.Reader) ([]types.EnergyRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var recs []types.EnergyRecord
	var skipped int
	line := 1
	for {
		line++
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping malformed row",
				slog.Int("line", line),
				slog.String("error", err.Error()),
			)
			skipped++
			continue
		}
		rec, err := parseRow(row, cols)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping bad row",
				slog.Int("line", line),
				slog.String("error", err.Error()),
			)
			skipped++
			continue
		}
		recs = append(recs, rec)
	}

	if len(recs) == 0 {
		return nil, fmt.Errorf("no usable records (skipped %d rows)", skipped)
	}
	if skipped > 0 {
		log.Ctx(ctx).InfoContext(ctx, "records loaded with skips",
			slog.Int("records", len(recs)),
			slog.Int("skipped", skipped),
		)
	}
	return recs, nil
}

// columns holds the resolved header indexes. solar is -1 when absent.
type columns struct {
	timestamp   int
	consumption int
	price       int
	solar       int
}

func mapColumns(header []string) (columns, error) {
	cols := columns{timestamp: -1, consumption: -1, price: -1, solar: -1}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		switch {
		case cols.timestamp < 0 && contains(timestampColumns, name):
			cols.timestamp = i
		case cols.consumption < 0 && contains(consumptionColumns, name):
			cols.consumption = i
		case cols.price < 0 && contains(priceColumns, name):
			cols.price = i
		case cols.solar < 0 && contains(solarColumns, name):
			cols.solar = i
		}
	}
	if cols.timestamp < 0 {
		return cols, fmt.Errorf("header missing timestamp column")
	}
	if cols.consumption < 0 {
		return cols, fmt.Errorf("header missing consumption column")
	}
	if cols.price < 0 {
		return cols, fmt.Errorf("header missing price column")
	}
	return cols, nil
}

func parseRow(row []string, cols columns) (types.EnergyRecord, error) {
	var rec types.EnergyRecord
	max := cols.timestamp
	if cols.consumption > max {
		max = cols.consumption
	}
	if cols.price > max {
		max = cols.price
	}
	if len(row) <= max {
		return rec, fmt.Errorf("row has %d fields, need %d", len(row), max+1)
	}

	ts, err := parseTime(row[cols.timestamp])
	if err != nil {
		return rec, err
	}
	rec.Timestamp = ts

	rec.ConsumptionKW, err = strconv.ParseFloat(strings.TrimSpace(row[cols.consumption]), 64)
	if err != nil {
		return rec, fmt.Errorf("consumption: %w", err)
	}
	rec.SpotPriceSEKKWH, err = strconv.ParseFloat(strings.TrimSpace(row[cols.price]), 64)
	if err != nil {
		return rec, fmt.Errorf("price: %w", err)
	}
	if cols.solar >= 0 && cols.solar < len(row) && strings.TrimSpace(row[cols.solar]) != "" {
		rec.SolarKW, err = strconv.ParseFloat(strings.TrimSpace(row[cols.solar]), 64)
		if err != nil {
			return rec, fmt.Errorf("solar: %w", err)
		}
	}
	if rec.ConsumptionKW < 0 {
		return rec, fmt.Errorf("negative consumption %f", rec.ConsumptionKW)
	}
	return rec, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
