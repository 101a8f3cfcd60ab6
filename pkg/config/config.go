// Package config loads and validates the simulation parameter file.
// Bad parameters are fatal: the run aborts before any hour is
// simulated.
package config

import (
	"fmt"
	"os"

	"github.com/MendeTr/BatterySim/pkg/tariff"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	Battery BatteryConfig `yaml:"battery"`
	Tariff  tariff.Config `yaml:"tariff"`
	Engine  EngineConfig  `yaml:"engine"`
}

// BatteryConfig describes the physical battery.
type BatteryConfig struct {
	CapacityKWH   float64 `yaml:"capacity_kwh"`
	MaxPowerKW    float64 `yaml:"max_power_kw"`
	Efficiency    float64 `yaml:"efficiency"` // round-trip, 0-1
	InitialSOCKWH float64 `yaml:"initial_soc_kwh"`
	MinSOCKWH     float64 `yaml:"min_soc_kwh"`
	TargetSOCKWH  float64 `yaml:"target_soc_kwh"`
}

// EngineConfig describes the dispatch policy.
type EngineConfig struct {
	TopN                 int `yaml:"top_n"`
	MeasurementStartHour int `yaml:"measurement_start_hour"`
	MeasurementEndHour   int `yaml:"measurement_end_hour"`

	TargetPeakCeilingKW float64 `yaml:"target_peak_ceiling_kw"`
	// PeakSafetyMargin triggers preventive shaving at this fraction of
	// the current threshold (e.g. 0.85).
	PeakSafetyMargin float64 `yaml:"peak_safety_margin"`

	CheapPriceSEKKWH   float64 `yaml:"cheap_price_sek_kwh"`
	HighPriceSEKKWH    float64 `yaml:"high_price_sek_kwh"`
	ExtremePriceSEKKWH float64 `yaml:"extreme_price_sek_kwh"`

	// PeakReserveKWH is capacity night charging leaves free so a later
	// peak-shaving discharge is not starved.
	PeakReserveKWH float64 `yaml:"peak_reserve_kwh"`

	OverrideSpikeMultiplier float64 `yaml:"override_spike_multiplier"`

	// ReserveSelfConsumption suppresses self-consumption discharge during
	// measurement hours to preserve capacity for peak shaving. Default
	// off: the combined peak+self-consumption discharge is the modeled
	// best case.
	ReserveSelfConsumption bool `yaml:"reserve_self_consumption"`

	// ForecastMode is "perfect" or "realistic".
	ForecastMode string `yaml:"forecast_mode"`

	PlannerEnabled bool `yaml:"planner_enabled"`
	// PlannerHour is the hour of day the daily plan is rebuilt.
	PlannerHour int `yaml:"planner_hour"`
}

const (
	ForecastModePerfect   = "perfect"
	ForecastModeRealistic = "realistic"
)

// Load reads, defaults, and validates a config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse parses raw YAML, applies defaults, and validates.
func Parse(raw []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns the built-in configuration: a 25 kWh / 12 kW home
// battery under an E.ON-style tariff.
func Default() *Config {
	c := &Config{
		Battery: BatteryConfig{
			CapacityKWH: 25,
			MaxPowerKW:  12,
			Efficiency:  0.95,
		},
		Tariff: tariff.Config{
			GridFeeSEKKWH:          0.42,
			EnergyTaxSEKKWH:        0.40,
			TransferFeeSEKKWH:      0.42,
			VATRate:                0.25,
			EffectTariffSEKKWMonth: 60,
		},
	}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Battery.InitialSOCKWH == 0 {
		c.Battery.InitialSOCKWH = c.Battery.CapacityKWH / 2
	}
	if c.Battery.MinSOCKWH == 0 {
		c.Battery.MinSOCKWH = c.Battery.CapacityKWH * 0.1
	}
	if c.Battery.TargetSOCKWH == 0 {
		c.Battery.TargetSOCKWH = c.Battery.CapacityKWH * 0.9
	}
	// The calculator amortizes round-trip losses; it prices with the
	// battery's efficiency unless the tariff section overrides it.
	if c.Tariff.Efficiency == 0 {
		c.Tariff.Efficiency = c.Battery.Efficiency
	}

	e := &c.Engine
	if e.TopN == 0 {
		e.TopN = 3
	}
	if e.MeasurementStartHour == 0 && e.MeasurementEndHour == 0 {
		e.MeasurementStartHour = 6
		e.MeasurementEndHour = 23
	}
	if e.TargetPeakCeilingKW == 0 {
		e.TargetPeakCeilingKW = 5
	}
	if e.PeakSafetyMargin == 0 {
		e.PeakSafetyMargin = 0.85
	}
	if e.CheapPriceSEKKWH == 0 {
		e.CheapPriceSEKKWH = 0.70
	}
	if e.HighPriceSEKKWH == 0 {
		e.HighPriceSEKKWH = 1.50
	}
	if e.ExtremePriceSEKKWH == 0 {
		e.ExtremePriceSEKKWH = 3.00
	}
	if e.PeakReserveKWH == 0 {
		e.PeakReserveKWH = 10
	}
	if e.OverrideSpikeMultiplier == 0 {
		e.OverrideSpikeMultiplier = 1.3
	}
	if e.ForecastMode == "" {
		e.ForecastMode = ForecastModePerfect
	}
	if e.PlannerHour == 0 {
		e.PlannerHour = 13
	}
}

// Validate rejects missing or out-of-range parameters.
func (c *Config) Validate() error {
	b := c.Battery
	if b.CapacityKWH <= 0 {
		return fmt.Errorf("battery.capacity_kwh must be > 0, got %f", b.CapacityKWH)
	}
	if b.MaxPowerKW <= 0 {
		return fmt.Errorf("battery.max_power_kw must be > 0, got %f", b.MaxPowerKW)
	}
	if b.Efficiency <= 0 || b.Efficiency > 1 {
		return fmt.Errorf("battery.efficiency must be in (0, 1], got %f", b.Efficiency)
	}
	if b.InitialSOCKWH < 0 || b.InitialSOCKWH > b.CapacityKWH {
		return fmt.Errorf("battery.initial_soc_kwh must be within [0, capacity], got %f", b.InitialSOCKWH)
	}
	if b.MinSOCKWH < 0 || b.MinSOCKWH >= b.CapacityKWH {
		return fmt.Errorf("battery.min_soc_kwh must be within [0, capacity), got %f", b.MinSOCKWH)
	}
	if b.TargetSOCKWH < b.MinSOCKWH || b.TargetSOCKWH > b.CapacityKWH {
		return fmt.Errorf("battery.target_soc_kwh must be within [min_soc, capacity], got %f", b.TargetSOCKWH)
	}

	if err := c.Tariff.Validate(); err != nil {
		return fmt.Errorf("tariff: %w", err)
	}

	e := c.Engine
	if e.TopN <= 0 {
		return fmt.Errorf("engine.top_n must be > 0, got %d", e.TopN)
	}
	if e.MeasurementStartHour < 0 || e.MeasurementStartHour > 23 ||
		e.MeasurementEndHour < 0 || e.MeasurementEndHour > 23 ||
		e.MeasurementStartHour > e.MeasurementEndHour {
		return fmt.Errorf("engine measurement window %d-%d invalid", e.MeasurementStartHour, e.MeasurementEndHour)
	}
	if e.TargetPeakCeilingKW <= 0 {
		return fmt.Errorf("engine.target_peak_ceiling_kw must be > 0, got %f", e.TargetPeakCeilingKW)
	}
	if e.PeakSafetyMargin <= 0 || e.PeakSafetyMargin > 1 {
		return fmt.Errorf("engine.peak_safety_margin must be in (0, 1], got %f", e.PeakSafetyMargin)
	}
	if e.CheapPriceSEKKWH >= e.HighPriceSEKKWH || e.HighPriceSEKKWH >= e.ExtremePriceSEKKWH {
		return fmt.Errorf("engine price thresholds must satisfy cheap < high < extreme, got %f/%f/%f",
			e.CheapPriceSEKKWH, e.HighPriceSEKKWH, e.ExtremePriceSEKKWH)
	}
	if e.PeakReserveKWH < 0 || e.PeakReserveKWH > b.CapacityKWH {
		return fmt.Errorf("engine.peak_reserve_kwh must be within [0, capacity], got %f", e.PeakReserveKWH)
	}
	if e.OverrideSpikeMultiplier <= 1 {
		return fmt.Errorf("engine.override_spike_multiplier must be > 1, got %f", e.OverrideSpikeMultiplier)
	}
	switch e.ForecastMode {
	case ForecastModePerfect, ForecastModeRealistic:
	default:
		return fmt.Errorf("engine.forecast_mode must be %q or %q, got %q",
			ForecastModePerfect, ForecastModeRealistic, e.ForecastMode)
	}
	if e.PlannerHour < 0 || e.PlannerHour > 23 {
		return fmt.Errorf("engine.planner_hour must be 0-23, got %d", e.PlannerHour)
	}
	return nil
}
