// Package engine runs the hour-by-hour dispatch simulation: it builds
// the context for each record, asks the coordinator for a decision,
// applies it to the battery and accounts the results into a ledger and
// a run summary.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/MendeTr/BatterySim/pkg/config"
	"github.com/MendeTr/BatterySim/pkg/coordinator"
	"github.com/MendeTr/BatterySim/pkg/log"
	"github.com/MendeTr/BatterySim/pkg/peaks"
	"github.com/MendeTr/BatterySim/pkg/planner"
	"github.com/MendeTr/BatterySim/pkg/specialist"
	"github.com/MendeTr/BatterySim/pkg/tariff"
	"github.com/MendeTr/BatterySim/pkg/types"
)

// Engine wires the battery, peak tracker, specialists and coordinator
// together and drives them over a record stream.
type Engine struct {
	cfg   config.Config
	calc  *tariff.Calculator
	coord *coordinator.Coordinator
	batt  *Battery
	peaks *peaks.Tracker
	fc    Forecaster

	planner  *planner.Planner
	schedule *specialist.Schedule
}

// New builds an engine from configuration. The standard specialist set
// is override, peak shaving and arbitrage, plus the schedule
// specialist when the planner is enabled.
func New(cfg config.Config) *Engine {
	calc := tariff.NewCalculator(cfg.Tariff)
	e := &Engine{
		cfg:   cfg,
		calc:  calc,
		batt:  NewBattery(cfg.Battery),
		peaks: peaks.New(cfg.Engine.MeasurementStartHour, cfg.Engine.MeasurementEndHour, cfg.Engine.TopN),
		fc:    NewForecaster(cfg.Engine.ForecastMode),
	}

	specialists := []specialist.Specialist{
		specialist.NewOverride(calc, cfg.Engine),
		specialist.NewPeakShaving(calc, cfg.Engine),
		specialist.NewArbitrage(calc, cfg.Engine),
	}
	if cfg.Engine.PlannerEnabled {
		e.planner = planner.New(calc, cfg.Engine, cfg.Battery)
		e.schedule = specialist.NewSchedule()
		specialists = append(specialists, e.schedule)
	}
	e.coord = coordinator.New(specialists...)
	return e
}

// Run simulates the full record stream in timestamp order and returns
// the per-hour ledger and the run summary. Records are sorted first;
// a malformed record yields a skipped hold row instead of aborting.
func (e *Engine) Run(ctx context.Context, records []types.EnergyRecord) ([]types.HourResult, types.RunSummary, error) {
	if len(records) == 0 {
		return nil, types.RunSummary{}, fmt.Errorf("no records to simulate")
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	summary := types.RunSummary{Started: time.Now().UTC()}
	ledger := make([]types.HourResult, 0, len(records))

	var consumptionSum, consumptionPeak float64
	var consumptionCount int

	for i, rec := range records {
		select {
		case <-ctx.Done():
			return ledger, summary, ctx.Err()
		default:
		}

		if err := validRecord(rec); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping invalid record",
				slog.Time("timestamp", rec.Timestamp),
				slog.String("error", err.Error()),
			)
			summary.Skipped++
			ledger = append(ledger, types.HourResult{
				Timestamp: rec.Timestamp,
				Decision:  types.Decision{Timestamp: rec.Timestamp, Action: types.ActionHold, Rationale: "invalid record"},
				SOCKWH:    e.batt.SOC(),
				Skipped:   true,
			})
			continue
		}

		consumptionSum += rec.ConsumptionKW
		consumptionCount++
		if rec.ConsumptionKW > consumptionPeak {
			consumptionPeak = rec.ConsumptionKW
		}

		hc := e.buildContext(rec, records, i, consumptionSum/float64(consumptionCount), consumptionPeak)
		e.maybeReplan(ctx, hc)

		decision := e.coord.Decide(ctx, hc)
		result := e.apply(decision, hc)
		e.account(&summary, hc, result)
		ledger = append(ledger, result)
		summary.Hours++
	}

	summary.Decisions = e.coord.Decisions()
	summary.Vetoes = e.coord.Vetoes()
	summary.ConflictsResolved = e.coord.ConflictsResolved()
	summary.Specialists = e.coord.Metrics()
	summary.MonthlyPeaks = e.peaks.Summary()
	summary.FinalSOCKWH = e.batt.SOC()

	log.Ctx(ctx).InfoContext(ctx, "simulation complete",
		slog.Int("hours", summary.Hours),
		slog.Int("skipped", summary.Skipped),
		slog.Int("vetoes", summary.Vetoes),
		slog.Float64("peakShavingSEK", summary.PeakShavingSEK),
		slog.Float64("selfConsumptionSEK", summary.SelfConsumptionSEK),
		slog.Float64("exportRevenueSEK", summary.ExportRevenueSEK),
	)
	return ledger, summary, nil
}

// buildContext assembles the immutable hour snapshot the specialists
// evaluate against.
func (e *Engine) buildContext(rec types.EnergyRecord, records []types.EnergyRecord, i int, avgKW, peakKW float64) types.HourlyContext {
	hour := rec.Timestamp.Hour()
	month := types.MonthKey(rec.Timestamp)
	prices, consumption, solar := e.fc.Forecast(records, i)

	return types.HourlyContext{
		Timestamp: rec.Timestamp,
		Hour:      hour,

		SOCKWH:         e.batt.SOC(),
		CapacityKWH:    e.cfg.Battery.CapacityKWH,
		MaxChargeKW:    e.cfg.Battery.MaxPowerKW,
		MaxDischargeKW: e.cfg.Battery.MaxPowerKW,
		Efficiency:     e.cfg.Battery.Efficiency,

		ConsumptionKW: rec.ConsumptionKW,
		SolarKW:       rec.SolarKW,
		GridImportKW:  math.Max(0, rec.ConsumptionKW-rec.SolarKW),

		SpotPriceSEKKWH:  rec.SpotPriceSEKKWH,
		ChargeCostSEKKWH: e.batt.CostBasis(),

		PriceForecast:       prices,
		ConsumptionForecast: consumption,
		SolarForecast:       solar,

		Month:             month,
		TopPeaksKW:        e.peaks.Peaks(month),
		PeakThresholdKW:   e.peaks.Threshold(month),
		IsMeasurementHour: e.peaks.IsMeasurementHour(rec.Timestamp),

		AvgConsumptionKW:  avgKW,
		PeakConsumptionKW: peakKW,

		MinSOCKWH:    e.cfg.Battery.MinSOCKWH,
		TargetSOCKWH: e.cfg.Battery.TargetSOCKWH,
	}
}

// maybeReplan rebuilds the day-ahead plan at the configured planning
// hour when the planner is enabled and a forecast is available.
func (e *Engine) maybeReplan(ctx context.Context, hc types.HourlyContext) {
	if e.planner == nil || hc.Hour != e.cfg.Engine.PlannerHour {
		return
	}
	if len(hc.PriceForecast) < 24 || len(hc.ConsumptionForecast) < 24 {
		return
	}

	// Index the forecast slices (which start at the next hour) into
	// hour-of-day order for tomorrow.
	fc := planner.DayForecast{
		Day:         hc.Timestamp.AddDate(0, 0, 1).Truncate(24 * time.Hour),
		PricesSEK:   make([]float64, 24),
		Consumption: make([]float64, 24),
		Solar:       make([]float64, 24),
	}
	for j := 0; j < 24; j++ {
		h := (hc.Hour + 1 + j) % 24
		fc.PricesSEK[h] = hc.PriceForecast[j]
		fc.Consumption[h] = hc.ConsumptionForecast[j]
		if j < len(hc.SolarForecast) {
			fc.Solar[h] = hc.SolarForecast[j]
		}
	}
	e.schedule.SetPlan(e.planner.Plan(ctx, fc, hc.SOCKWH))
}

// apply executes the decision against the battery and records the
// realized flows. Peak tracking sees the realized import, not the
// pre-battery projection.
func (e *Engine) apply(d types.Decision, hc types.HourlyContext) types.HourResult {
	netLoadKW := hc.ConsumptionKW - hc.SolarKW
	f := e.batt.Apply(d, netLoadKW, hc.SpotPriceSEKKWH)
	e.peaks.Update(hc.Timestamp, f.gridImportKW)

	return types.HourResult{
		Timestamp:    hc.Timestamp,
		Decision:     d,
		ChargeKWH:    f.chargeKWH,
		DischargeKWH: f.dischargeKWH,
		ExportKWH:    f.exportKWH,
		GridImportKW: f.gridImportKW,
		GridExportKW: f.gridExportKW,
		SOCKWH:       e.batt.SOC(),
	}
}

// account folds one hour's realized flows into the running summary.
func (e *Engine) account(s *types.RunSummary, hc types.HourlyContext, r types.HourResult) {
	s.ConsumptionKWH += hc.ConsumptionKW
	s.GridImportKWH += r.GridImportKW
	s.GridExportKWH += r.GridExportKW

	if r.DischargeKWH > 0 {
		avoided := hc.GridImportKW - r.GridImportKW
		inTopN := hc.PeakThresholdKW == 0 || hc.GridImportKW > hc.PeakThresholdKW
		if hc.IsMeasurementHour {
			s.PeakShavingSEK += e.calc.PeakShavingValue(avoided, inTopN)
		}
		s.SelfConsumptionSEK += e.calc.SelfConsumptionValue(
			r.DischargeKWH, hc.SpotPriceSEKKWH, hc.ChargeCostSEKKWH)
	}
	if r.ExportKWH > 0 {
		s.ExportRevenueSEK += e.calc.ExportRevenue(hc.SpotPriceSEKKWH) * r.ExportKWH
	}
}

// validRecord rejects records the simulation cannot place or price.
func validRecord(rec types.EnergyRecord) error {
	if rec.Timestamp.IsZero() {
		return fmt.Errorf("zero timestamp")
	}
	if rec.ConsumptionKW < 0 {
		return fmt.Errorf("negative consumption %f", rec.ConsumptionKW)
	}
	if rec.SolarKW < 0 {
		return fmt.Errorf("negative solar %f", rec.SolarKW)
	}
	if math.IsNaN(rec.ConsumptionKW) || math.IsNaN(rec.SpotPriceSEKKWH) || math.IsNaN(rec.SolarKW) {
		return fmt.Errorf("NaN field")
	}
	return nil
}
