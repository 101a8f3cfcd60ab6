// Package planner builds a heuristic 24-hour dispatch schedule from
// day-ahead forecasts. The schedule is advisory: it runs through the
// coordinator at the lowest priority so any reactive specialist can
// overrule it when reality diverges from the forecast.
package planner

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/MendeTr/BatterySim/pkg/config"
	"github.com/MendeTr/BatterySim/pkg/log"
	"github.com/MendeTr/BatterySim/pkg/tariff"
	"github.com/MendeTr/BatterySim/pkg/types"
)

// Slot is one hour of a plan.
type Slot struct {
	Hour     int
	Action   types.Action
	KWH      float64
	ValueSEK float64
	Reason   string
}

// Plan is a full day of hourly dispatch intents, indexed by hour.
type Plan struct {
	Day   time.Time
	Slots [24]Slot
}

// Empty reports whether the plan contains no charge or discharge slots.
func (p *Plan) Empty() bool {
	if p == nil {
		return true
	}
	for _, s := range p.Slots {
		if s.Action == types.ActionCharge || s.Action == types.ActionDischarge {
			return false
		}
	}
	return true
}

// Planner builds day-ahead plans with a two-phase heuristic: fill the
// battery on the cheapest off-window hours, then spend it on the hours
// where forecast import would otherwise exceed the peak ceiling.
type Planner struct {
	calc *tariff.Calculator
	cfg  config.EngineConfig
	batt config.BatteryConfig
}

// New returns a planner.
func New(calc *tariff.Calculator, engineCfg config.EngineConfig, battCfg config.BatteryConfig) *Planner {
	return &Planner{calc: calc, cfg: engineCfg, batt: battCfg}
}

// DayForecast carries the forecasts the planner needs for one day.
// All slices are indexed by hour of day and must have 24 entries.
type DayForecast struct {
	Day         time.Time
	PricesSEK   []float64
	Consumption []float64
	Solar       []float64
}

// Plan builds the schedule for the forecast day starting from the
// given state of charge.
func (p *Planner) Plan(ctx context.Context, fc DayForecast, socKWH float64) *Plan {
	plan := &Plan{Day: fc.Day}
	for h := range plan.Slots {
		plan.Slots[h] = Slot{Hour: h, Action: types.ActionHold}
	}
	if len(fc.PricesSEK) < 24 || len(fc.Consumption) < 24 {
		log.Ctx(ctx).WarnContext(ctx, "planner forecast incomplete, returning hold plan",
			slog.Int("prices", len(fc.PricesSEK)),
			slog.Int("consumption", len(fc.Consumption)),
		)
		return plan
	}

	soc := socKWH
	soc = p.planCharging(ctx, fc, plan, soc)
	p.planShaving(ctx, fc, plan, soc)
	return plan
}

// planCharging fills the battery toward the target during the cheapest
// off-window hours, leaving the peak reserve untouched. Returns the
// projected state of charge after the charging phase.
func (p *Planner) planCharging(ctx context.Context, fc DayForecast, plan *Plan, soc float64) float64 {
	target := p.batt.TargetSOCKWH - p.cfg.PeakReserveKWH
	if target <= soc {
		return soc
	}

	type pricedHour struct {
		hour  int
		price float64
	}
	var candidates []pricedHour
	for h := 0; h < 24; h++ {
		if h >= p.cfg.MeasurementStartHour && h <= p.cfg.MeasurementEndHour {
			continue
		}
		candidates = append(candidates, pricedHour{hour: h, price: fc.PricesSEK[h]})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].price != candidates[j].price {
			return candidates[i].price < candidates[j].price
		}
		return candidates[i].hour < candidates[j].hour
	})

	maxHourly := p.batt.MaxPowerKW / p.batt.Efficiency
	for _, c := range candidates {
		if soc >= target {
			break
		}
		chargeKWH := math.Min(target-soc, math.Min(maxHourly, (p.batt.CapacityKWH-soc)/p.batt.Efficiency))
		if chargeKWH <= 0 {
			continue
		}
		plan.Slots[c.hour] = Slot{
			Hour:   c.hour,
			Action: types.ActionCharge,
			KWH:    chargeKWH,
			Reason: "cheap-hour charge",
		}
		soc += chargeKWH * p.batt.Efficiency
	}

	log.Ctx(ctx).DebugContext(ctx, "planner charging phase done",
		slog.Float64("projectedSOCKWH", soc),
		slog.Float64("targetKWH", target),
	)
	return soc
}

// planShaving walks the measurement window in forecast-peak order and
// assigns discharge to pull each hour's import down to the ceiling.
func (p *Planner) planShaving(ctx context.Context, fc DayForecast, plan *Plan, soc float64) {
	type loadedHour struct {
		hour   int
		netKW  float64
		excess float64
	}
	var peaks []loadedHour
	for h := p.cfg.MeasurementStartHour; h <= p.cfg.MeasurementEndHour && h < 24; h++ {
		net := fc.Consumption[h]
		if len(fc.Solar) >= 24 {
			net -= fc.Solar[h]
		}
		if net > p.cfg.TargetPeakCeilingKW {
			peaks = append(peaks, loadedHour{hour: h, netKW: net, excess: net - p.cfg.TargetPeakCeilingKW})
		}
	}
	sort.Slice(peaks, func(i, j int) bool {
		if peaks[i].excess != peaks[j].excess {
			return peaks[i].excess > peaks[j].excess
		}
		return peaks[i].hour < peaks[j].hour
	})

	available := math.Max(0, soc-p.batt.MinSOCKWH)
	for _, pk := range peaks {
		if available <= 0 {
			break
		}
		dischargeKWH := math.Min(pk.excess, math.Min(p.batt.MaxPowerKW, available))
		if dischargeKWH <= 0 {
			continue
		}
		plan.Slots[pk.hour] = Slot{
			Hour:     pk.hour,
			Action:   types.ActionDischarge,
			KWH:      dischargeKWH,
			ValueSEK: p.calc.PeakShavingValue(dischargeKWH, true),
			Reason:   "forecast peak shave",
		}
		available -= dischargeKWH
	}

	log.Ctx(ctx).DebugContext(ctx, "planner shaving phase done",
		slog.Int("peakHours", len(peaks)),
		slog.Float64("remainingKWH", available),
	)
}
