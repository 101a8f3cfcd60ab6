package specialist

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/MendeTr/BatterySim/pkg/config"
	"github.com/MendeTr/BatterySim/pkg/log"
	"github.com/MendeTr/BatterySim/pkg/tariff"
	"github.com/MendeTr/BatterySim/pkg/types"
)

// ArbitrageName identifies the arbitrage specialist in decisions.
const ArbitrageName = "arbitrage"

// Arbitrage buys cheap hours and spends the energy where it is worth
// most: avoided imports first, grid export only at extreme prices.
// Every proposal is valued with the full tariff stack and anything
// that does not pay for its own round-trip losses is rejected outright.
type Arbitrage struct {
	calc *tariff.Calculator
	cfg  config.EngineConfig
}

// NewArbitrage returns the arbitrage specialist.
func NewArbitrage(calc *tariff.Calculator, cfg config.EngineConfig) *Arbitrage {
	return &Arbitrage{calc: calc, cfg: cfg}
}

func (a *Arbitrage) Name() string { return ArbitrageName }

func (a *Arbitrage) Evaluate(ctx context.Context, hc types.HourlyContext) *types.Recommendation {
	// Opportunities are mutually exclusive by price regime: a cheap
	// hour cannot simultaneously be a high or extreme one.
	if rec := a.chargeCheap(ctx, hc); rec != nil {
		return rec
	}
	if rec := a.exportExtreme(ctx, hc); rec != nil {
		return rec
	}
	return a.selfConsume(ctx, hc)
}

// chargeCheap fills the battery on cheap hours outside the measurement
// window. Charging inside the window would itself raise grid import
// and risk setting a new billing peak, so it never does.
func (a *Arbitrage) chargeCheap(ctx context.Context, hc types.HourlyContext) *types.Recommendation {
	if hc.IsMeasurementHour || hc.SpotPriceSEKKWH >= a.cfg.CheapPriceSEKKWH {
		return nil
	}

	// Leave room under the target for the peak reserve so the
	// shaving specialists always have headroom to work with.
	limit := hc.TargetSOCKWH - a.cfg.PeakReserveKWH
	if limit <= 0 {
		limit = hc.TargetSOCKWH
	}
	room := limit - hc.SOCKWH
	chargeKWH := math.Min(room, hc.MaxChargeKWH())
	if chargeKWH < minActionKWH {
		return nil
	}

	// Value the stored energy against what upcoming measurement hours
	// would cost to import instead: import cost later minus import
	// cost now, degraded by round-trip efficiency.
	future := a.futureMeasurementPrice(hc)
	value := (a.calc.ImportCost(future)*hc.Efficiency - a.calc.ImportCost(hc.SpotPriceSEKKWH)) * chargeKWH
	if value <= 0 {
		return nil
	}

	log.Ctx(ctx).DebugContext(ctx, "arbitrage charge recommendation",
		slog.Float64("spotPrice", hc.SpotPriceSEKKWH),
		slog.Float64("futurePrice", future),
		slog.Float64("chargeKWH", chargeKWH),
		slog.Float64("valueSEK", value),
	)

	return &types.Recommendation{
		Specialist: a.Name(),
		Action:     types.ActionCharge,
		KWH:        chargeKWH,
		ValueSEK:   value,
		Priority:   types.PriorityMedium,
		Confidence: 0.85,
		Timestamp:  hc.Timestamp,
		Rationale: fmt.Sprintf(
			"spot %.2f SEK/kWh under cheap threshold %.2f, charging %.1f kWh for later use",
			hc.SpotPriceSEKKWH, a.cfg.CheapPriceSEKKWH, chargeKWH),
	}
}

// selfConsume covers household load from the battery when importing
// would be expensive. This is where almost all of the arbitrage value
// lives: avoided import cost includes grid fee, tax and VAT, while
// export revenue is the bare spot price.
func (a *Arbitrage) selfConsume(ctx context.Context, hc types.HourlyContext) *types.Recommendation {
	if hc.SpotPriceSEKKWH <= a.cfg.HighPriceSEKKWH {
		return nil
	}
	if a.cfg.ReserveSelfConsumption && hc.IsMeasurementHour {
		// Policy flag: leave measurement-hour energy to the peak
		// shaving specialist instead of competing with it.
		return nil
	}
	netLoadKW := hc.ConsumptionKW - hc.SolarKW
	if netLoadKW <= 0 {
		return nil
	}

	dischargeKWH := math.Min(netLoadKW, math.Min(hc.MaxDischargeKWH(), hc.AvailableKWH()))
	if dischargeKWH < minActionKWH {
		return nil
	}

	value := a.calc.SelfConsumptionValue(dischargeKWH, hc.SpotPriceSEKKWH, hc.ChargeCostSEKKWH)
	if value <= 0 {
		// The energy cost more to store than it saves now.
		return nil
	}

	log.Ctx(ctx).DebugContext(ctx, "arbitrage self-consumption recommendation",
		slog.Float64("spotPrice", hc.SpotPriceSEKKWH),
		slog.Float64("netLoadKW", netLoadKW),
		slog.Float64("dischargeKWH", dischargeKWH),
		slog.Float64("valueSEK", value),
	)

	return &types.Recommendation{
		Specialist: a.Name(),
		Action:     types.ActionDischarge,
		KWH:        dischargeKWH,
		ValueSEK:   value,
		Priority:   types.PriorityHigh,
		Confidence: 0.9,
		Timestamp:  hc.Timestamp,
		Rationale: fmt.Sprintf(
			"spot %.2f SEK/kWh over high threshold %.2f, covering %.1f kWh of load from battery",
			hc.SpotPriceSEKKWH, a.cfg.HighPriceSEKKWH, dischargeKWH),
	}
}

// exportExtreme sells to the grid, but only at extreme prices and only
// energy the household itself does not need this hour. Export pays
// bare spot minus the transfer fee, so the bar is high and negative
// round trips are rejected no matter what the price signal says.
func (a *Arbitrage) exportExtreme(ctx context.Context, hc types.HourlyContext) *types.Recommendation {
	if hc.SpotPriceSEKKWH <= a.cfg.ExtremePriceSEKKWH {
		return nil
	}
	if hc.ConsumptionKW-hc.SolarKW > minActionKWH {
		// Household load comes first; self-consumption handles it.
		return nil
	}

	reserve := a.cfg.PeakReserveKWH
	if !hc.IsMeasurementHour {
		reserve = reserve / 2
	}
	exportKWH := math.Min(hc.AvailableKWH()-reserve, hc.MaxDischargeKWH())
	if exportKWH < minActionKWH {
		return nil
	}

	value := a.calc.ArbitrageValue(exportKWH, hc.SpotPriceSEKKWH, hc.ChargeCostSEKKWH)
	if value <= 0 {
		// Transfer fees or the stored-energy cost eat the spread.
		log.Ctx(ctx).DebugContext(ctx, "arbitrage export rejected",
			slog.Float64("spotPrice", hc.SpotPriceSEKKWH),
			slog.Float64("chargeCost", hc.ChargeCostSEKKWH),
			slog.Float64("valueSEK", value),
		)
		return nil
	}

	return &types.Recommendation{
		Specialist: a.Name(),
		Action:     types.ActionExport,
		KWH:        exportKWH,
		ValueSEK:   value,
		Priority:   types.PriorityMedium,
		Confidence: 0.7,
		Timestamp:  hc.Timestamp,
		Rationale: fmt.Sprintf(
			"spot %.2f SEK/kWh over extreme threshold %.2f, exporting %.1f kWh",
			hc.SpotPriceSEKKWH, a.cfg.ExtremePriceSEKKWH, exportKWH),
	}
}

// futureMeasurementPrice averages the forecast prices for upcoming
// measurement hours, falling back to the high-price threshold when the
// forecast is empty.
func (a *Arbitrage) futureMeasurementPrice(hc types.HourlyContext) float64 {
	var sum float64
	var n int
	for i, p := range hc.PriceForecast {
		h := (hc.Hour + i + 1) % 24
		if h >= a.cfg.MeasurementStartHour && h <= a.cfg.MeasurementEndHour {
			sum += p
			n++
		}
	}
	if n == 0 {
		return a.cfg.HighPriceSEKKWH
	}
	return sum / float64(n)
}
