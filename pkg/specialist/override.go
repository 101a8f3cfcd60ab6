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

// OverrideName identifies the override specialist in decisions.
const OverrideName = "override"

// Override is the emergency specialist. It fires only when reality has
// left the plan behind: a consumption spike far above what the other
// specialists were planning against, or a battery drained under its
// safety floor. Its recommendations always carry the veto flag.
type Override struct {
	calc *tariff.Calculator
	cfg  config.EngineConfig
}

// NewOverride returns the override specialist.
func NewOverride(calc *tariff.Calculator, cfg config.EngineConfig) *Override {
	return &Override{calc: calc, cfg: cfg}
}

func (o *Override) Name() string { return OverrideName }

// Evaluate checks for emergency conditions. Normal hours return nil.
func (o *Override) Evaluate(ctx context.Context, hc types.HourlyContext) *types.Recommendation {
	if hc.IsMeasurementHour {
		if rec := o.spikeDischarge(ctx, hc); rec != nil {
			return rec
		}
		return nil
	}
	return o.safetyRecharge(ctx, hc)
}

// spikeDischarge reacts to consumption running far above the running
// average the other specialists planned against, or to demand pressing
// on the peak threshold while the battery sits under its safety floor.
func (o *Override) spikeDischarge(ctx context.Context, hc types.HourlyContext) *types.Recommendation {
	spike := hc.AvgConsumptionKW > 0 &&
		hc.ConsumptionKW > hc.AvgConsumptionKW*o.cfg.OverrideSpikeMultiplier
	floorBreach := hc.SOCKWH < hc.MinSOCKWH &&
		hc.ConsumptionKW > o.cfg.TargetPeakCeilingKW

	if !spike && !floorBreach {
		return nil
	}
	threatened := len(hc.TopPeaksKW) < o.cfg.TopN || hc.GridImportKW > hc.PeakThresholdKW*o.cfg.PeakSafetyMargin
	if !threatened {
		return nil
	}

	// Discharge the minimum that brings grid import back under the
	// current threshold (or the target ceiling while the threshold is
	// still unset), clipped to what the battery can physically deliver.
	target := hc.PeakThresholdKW * o.cfg.PeakSafetyMargin
	if target <= 0 {
		target = o.cfg.TargetPeakCeilingKW
	}
	needed := hc.GridImportKW - target
	dischargeKWH := math.Min(needed, hc.MaxDischargeKWH())
	if dischargeKWH < minActionKWH {
		return nil
	}

	inTopN := len(hc.TopPeaksKW) < o.cfg.TopN || hc.GridImportKW > hc.PeakThresholdKW
	value := o.calc.PeakShavingValue(dischargeKWH, inTopN)

	log.Ctx(ctx).DebugContext(ctx, "override discharge triggered",
		slog.Float64("consumptionKW", hc.ConsumptionKW),
		slog.Float64("avgConsumptionKW", hc.AvgConsumptionKW),
		slog.Float64("gridImportKW", hc.GridImportKW),
		slog.Float64("thresholdKW", hc.PeakThresholdKW),
		slog.Float64("dischargeKWH", dischargeKWH),
	)

	return &types.Recommendation{
		Specialist: o.Name(),
		Action:     types.ActionDischarge,
		KWH:        dischargeKWH,
		ValueSEK:   value,
		Priority:   types.PriorityCritical,
		Confidence: 1.0,
		Veto:       true,
		Timestamp:  hc.Timestamp,
		Rationale: fmt.Sprintf(
			"consumption spike %.1f kW against planned %.1f kW, discharging %.1f kWh to stay under %.1f kW",
			hc.ConsumptionKW, hc.AvgConsumptionKW, dischargeKWH, target),
	}
}

// safetyRecharge restores the reserve when the battery is under its
// floor outside the measurement window. Inside the window it stays
// low on purpose: charging there would create a billable peak.
func (o *Override) safetyRecharge(ctx context.Context, hc types.HourlyContext) *types.Recommendation {
	if hc.SOCKWH >= hc.MinSOCKWH {
		return nil
	}

	chargeKWH := math.Min(hc.MinSOCKWH+minActionKWH-hc.SOCKWH, hc.MaxChargeKWH())
	if chargeKWH < minActionKWH {
		return nil
	}

	log.Ctx(ctx).DebugContext(ctx, "override safety recharge triggered",
		slog.Float64("socKWH", hc.SOCKWH),
		slog.Float64("minSOCKWH", hc.MinSOCKWH),
		slog.Float64("chargeKWH", chargeKWH),
	)

	return &types.Recommendation{
		Specialist: o.Name(),
		Action:     types.ActionCharge,
		KWH:        chargeKWH,
		ValueSEK:   0, // safety, not value
		Priority:   types.PriorityCritical,
		Confidence: 1.0,
		Veto:       true,
		Timestamp:  hc.Timestamp,
		Rationale: fmt.Sprintf(
			"battery at %.1f kWh is under the %.1f kWh reserve, recharging off-window",
			hc.SOCKWH, hc.MinSOCKWH),
	}
}
