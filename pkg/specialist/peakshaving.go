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

// PeakShavingName identifies the peak shaving specialist in decisions.
const PeakShavingName = "peak_shaving"

// PeakShaving discharges during measurement hours to keep grid import
// under the month's billing peaks. It only ever proposes discharge and
// only inside the measurement window; the effect tariff does not care
// what happens at night.
type PeakShaving struct {
	calc *tariff.Calculator
	cfg  config.EngineConfig
}

// NewPeakShaving returns the peak shaving specialist.
func NewPeakShaving(calc *tariff.Calculator, cfg config.EngineConfig) *PeakShaving {
	return &PeakShaving{calc: calc, cfg: cfg}
}

func (p *PeakShaving) Name() string { return PeakShavingName }

func (p *PeakShaving) Evaluate(ctx context.Context, hc types.HourlyContext) *types.Recommendation {
	if !hc.IsMeasurementHour {
		return nil
	}
	projected := hc.GridImportKW
	if projected <= 0 {
		return nil
	}

	// Fire either when import would exceed the hard ceiling or when it
	// creeps into the safety margin under the month's current threshold.
	overCeiling := projected > p.cfg.TargetPeakCeilingKW
	nearThreshold := hc.PeakThresholdKW > 0 && projected >= hc.PeakThresholdKW*p.cfg.PeakSafetyMargin
	if !overCeiling && !nearThreshold {
		return nil
	}

	dischargeKWH := math.Min(projected-p.cfg.TargetPeakCeilingKW, hc.MaxDischargeKWH())
	if p.cfg.TargetPeakCeilingKW >= projected {
		// Under the ceiling but inside the margin: shave down to the
		// margin line instead.
		dischargeKWH = math.Min(projected-hc.PeakThresholdKW*p.cfg.PeakSafetyMargin, hc.MaxDischargeKWH())
	}
	if dischargeKWH < minActionKWH {
		return nil
	}

	wouldEnter := len(hc.TopPeaksKW) < p.cfg.TopN || projected > hc.PeakThresholdKW
	shavedKW := math.Min(dischargeKWH, projected-p.cfg.TargetPeakCeilingKW)
	if shavedKW < 0 {
		shavedKW = dischargeKWH
	}
	value := p.calc.PeakShavingValue(shavedKW, wouldEnter)

	confidence := 0.8
	if wouldEnter {
		confidence = 0.95
	}

	log.Ctx(ctx).DebugContext(ctx, "peak shaving recommendation",
		slog.Float64("projectedKW", projected),
		slog.Float64("thresholdKW", hc.PeakThresholdKW),
		slog.Float64("dischargeKWH", dischargeKWH),
		slog.Float64("valueSEK", value),
		slog.Bool("wouldEnterTopN", wouldEnter),
	)

	return &types.Recommendation{
		Specialist: p.Name(),
		Action:     types.ActionDischarge,
		KWH:        dischargeKWH,
		ValueSEK:   value,
		Priority:   types.PriorityHigh,
		Confidence: confidence,
		Timestamp:  hc.Timestamp,
		Rationale: fmt.Sprintf(
			"projected import %.1f kW against threshold %.1f kW, shaving %.1f kWh toward %.1f kW",
			projected, hc.PeakThresholdKW, dischargeKWH, p.cfg.TargetPeakCeilingKW),
	}
}
