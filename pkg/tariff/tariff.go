// Package tariff prices battery actions under a Swedish grid tariff:
// import cost is spot plus grid fee and energy tax with VAT on top,
// export revenue is spot minus the transfer fee, and the effect tariff
// bills the average of the top-N monthly demand peaks per kW.
package tariff

import (
	"fmt"
	"math"
)

// daysPerMonth amortizes the monthly effect tariff to a per-day figure,
// since peaks are evaluated hourly but billed monthly.
const daysPerMonth = 30

// Config holds the tariff and battery parameters the calculator needs.
type Config struct {
	GridFeeSEKKWH          float64 `yaml:"grid_fee_sek_kwh"`
	EnergyTaxSEKKWH        float64 `yaml:"energy_tax_sek_kwh"`
	TransferFeeSEKKWH      float64 `yaml:"transfer_fee_sek_kwh"`
	VATRate                float64 `yaml:"vat_rate"`
	EffectTariffSEKKWMonth float64 `yaml:"effect_tariff_sek_kw_month"`
	Efficiency             float64 `yaml:"efficiency"` // battery round-trip, 0-1
}

// Validate rejects out-of-range tariff parameters. These are fatal
// before any hour is simulated.
func (c Config) Validate() error {
	if c.GridFeeSEKKWH < 0 {
		return fmt.Errorf("grid_fee_sek_kwh must be >= 0, got %f", c.GridFeeSEKKWH)
	}
	if c.EnergyTaxSEKKWH < 0 {
		return fmt.Errorf("energy_tax_sek_kwh must be >= 0, got %f", c.EnergyTaxSEKKWH)
	}
	if c.TransferFeeSEKKWH < 0 {
		return fmt.Errorf("transfer_fee_sek_kwh must be >= 0, got %f", c.TransferFeeSEKKWH)
	}
	if c.VATRate < 0 || c.VATRate >= 1 {
		return fmt.Errorf("vat_rate must be in [0, 1), got %f", c.VATRate)
	}
	if c.EffectTariffSEKKWMonth < 0 {
		return fmt.Errorf("effect_tariff_sek_kw_month must be >= 0, got %f", c.EffectTariffSEKKWMonth)
	}
	if c.Efficiency <= 0 || c.Efficiency > 1 {
		return fmt.Errorf("efficiency must be in (0, 1], got %f", c.Efficiency)
	}
	return nil
}

// Calculator converts proposed battery quantities into SEK values.
// It is stateless for a fixed Config.
type Calculator struct {
	cfg Config
}

// NewCalculator returns a Calculator for the given tariff configuration.
// The config must already be validated.
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// Config returns the tariff configuration the calculator prices with.
func (c *Calculator) Config() Config {
	return c.cfg
}

// ImportCost returns the full SEK/kWh cost of importing at the given
// spot price: (spot + grid fee + energy tax) with VAT on top.
func (c *Calculator) ImportCost(spotPrice float64) float64 {
	return (spotPrice + c.cfg.GridFeeSEKKWH + c.cfg.EnergyTaxSEKKWH) * (1 + c.cfg.VATRate)
}

// ExportRevenue returns the SEK/kWh earned by exporting at the given
// spot price, net of the transfer fee. Never negative: when spot is
// below the transfer fee, exporting is worthless, not lossy, and the
// caller must refuse to export rather than book a loss.
func (c *Calculator) ExportRevenue(spotPrice float64) float64 {
	return math.Max(0, spotPrice-c.cfg.TransferFeeSEKKWH)
}

// PeakShavingValue returns the daily SEK value of reducing a monthly
// demand peak by kwReduction. Shaving demand that was never going to
// land in the top-N set has no billing effect and is worth zero.
func (c *Calculator) PeakShavingValue(kwReduction float64, isInTopN bool) float64 {
	if !isInTopN || kwReduction <= 0 {
		return 0
	}
	return kwReduction * c.cfg.EffectTariffSEKKWMonth / daysPerMonth
}

// SelfConsumptionValue returns the SEK saved by discharging kwh to
// cover load instead of importing it. chargeCost is the SEK/kWh cost
// basis of the stored energy; the round-trip losses are charged here.
func (c *Calculator) SelfConsumptionValue(dischargeKWH, spotPrice, chargeCost float64) float64 {
	if dischargeKWH <= 0 {
		return 0
	}
	return c.ImportCost(spotPrice)*dischargeKWH - chargeCost*dischargeKWH/c.cfg.Efficiency
}

// ArbitrageValue returns the SEK profit of exporting kwh bought at
// chargePrice and sold at dischargePrice. May be negative; callers must
// reject negative results instead of executing a loss-making export.
func (c *Calculator) ArbitrageValue(dischargeKWH, dischargePrice, chargePrice float64) float64 {
	return (c.ExportRevenue(dischargePrice) - chargePrice) * dischargeKWH * c.cfg.Efficiency
}

// CombinedValue sums the peak-shaving and self-consumption value of a
// single discharge. The same kWh legitimately counts once under each
// billing mechanism, so the values add rather than take a max.
func (c *Calculator) CombinedValue(dischargeKWH, spotPrice, chargeCost, kwReduction float64, isInTopN bool) float64 {
	return c.PeakShavingValue(kwReduction, isInTopN) +
		c.SelfConsumptionValue(dischargeKWH, spotPrice, chargeCost)
}
