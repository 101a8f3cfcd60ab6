package engine

import (
	"math"

	"github.com/MendeTr/BatterySim/pkg/config"
	"github.com/MendeTr/BatterySim/pkg/types"
)

// Battery is the simulated storage unit. State of charge is tracked in
// kWh; the one-way efficiency loss is taken on charge so every stored
// kWh discharges at face value.
type Battery struct {
	cfg config.BatteryConfig
	soc float64

	// Volume-weighted cost basis of the stored energy in SEK/kWh.
	// Used to value discharges against what the energy cost to store.
	costBasisSEK float64
}

// NewBattery returns a battery at its configured initial state of charge.
func NewBattery(cfg config.BatteryConfig) *Battery {
	return &Battery{cfg: cfg, soc: cfg.InitialSOCKWH}
}

// SOC returns the current state of charge in kWh.
func (b *Battery) SOC() float64 { return b.soc }

// CostBasis returns the volume-weighted cost of stored energy in SEK/kWh.
func (b *Battery) CostBasis() float64 { return b.costBasisSEK }

// Charge absorbs up to gridKWH of grid energy at the given price and
// returns the grid energy actually consumed. Power and headroom limits
// clamp silently.
func (b *Battery) Charge(gridKWH, priceSEKKWH float64) float64 {
	if gridKWH <= 0 {
		return 0
	}
	maxGrid := math.Min(gridKWH, b.cfg.MaxPowerKW/b.cfg.Efficiency)
	stored := math.Min(maxGrid*b.cfg.Efficiency, b.cfg.CapacityKWH-b.soc)
	if stored <= 0 {
		return 0
	}
	grid := stored / b.cfg.Efficiency

	// Blend the new energy's price into the cost basis.
	total := b.soc + stored
	b.costBasisSEK = (b.costBasisSEK*b.soc + priceSEKKWH*grid) / total
	b.soc = total
	return grid
}

// Discharge delivers up to kwh from the battery and returns the energy
// actually delivered. The cost basis is unchanged: what remains cost
// the same per kWh as what left.
func (b *Battery) Discharge(kwh float64) float64 {
	if kwh <= 0 {
		return 0
	}
	delivered := math.Min(math.Min(kwh, b.cfg.MaxPowerKW), b.soc)
	if delivered <= 0 {
		return 0
	}
	b.soc -= delivered
	if b.soc < 1e-9 {
		b.soc = 0
		b.costBasisSEK = 0
	}
	return delivered
}

// Apply executes a decision against the battery and the hour's load,
// returning the realized energy flows.
func (b *Battery) Apply(d types.Decision, netLoadKW, spotSEKKWH float64) flows {
	var f flows
	switch d.Action {
	case types.ActionCharge:
		f.chargeKWH = b.Charge(d.KWH, spotSEKKWH)
		f.gridImportKW = math.Max(0, netLoadKW) + f.chargeKWH
	case types.ActionDischarge:
		f.dischargeKWH = b.Discharge(math.Min(d.KWH, math.Max(0, netLoadKW)))
		f.gridImportKW = math.Max(0, netLoadKW-f.dischargeKWH)
	case types.ActionExport:
		f.exportKWH = b.Discharge(d.KWH)
		f.gridImportKW = math.Max(0, netLoadKW)
		f.gridExportKW = f.exportKWH
	default:
		f.gridImportKW = math.Max(0, netLoadKW)
	}
	if netLoadKW < 0 {
		// Surplus solar goes to the grid regardless of the decision.
		f.gridExportKW += -netLoadKW
	}
	return f
}

// flows is the realized energy movement of one hour.
type flows struct {
	chargeKWH    float64
	dischargeKWH float64
	exportKWH    float64
	gridImportKW float64
	gridExportKW float64
}
