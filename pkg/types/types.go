package types

import (
	"fmt"
	"math"
	"time"
)

// Action represents what the battery should do for one hour.
type Action string

const (
	ActionCharge    Action = "charge"
	ActionDischarge Action = "discharge"
	ActionHold      Action = "hold"
	ActionExport    Action = "export"
)

// Recommendation priorities. Lower is more urgent.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityMedium   = 3
	PriorityLow      = 4
)

// MonthKeyLayout is the format used for month keys (e.g. "2024-07").
const MonthKeyLayout = "2006-01"

// MonthKey returns the month key for a timestamp.
func MonthKey(ts time.Time) string {
	return ts.Format(MonthKeyLayout)
}

// HourlyContext is the full state handed to the specialists for one
// simulated hour. It is immutable for the duration of the hour.
type HourlyContext struct {
	Timestamp time.Time `json:"timestamp"`
	Hour      int       `json:"hour"` // 0-23

	// Battery state
	SOCKWH         float64 `json:"socKWH"`
	CapacityKWH    float64 `json:"capacityKWH"`
	MaxChargeKW    float64 `json:"maxChargeKW"`
	MaxDischargeKW float64 `json:"maxDischargeKW"`
	Efficiency     float64 `json:"efficiency"` // round-trip, 0-1

	// Current conditions
	ConsumptionKW float64 `json:"consumptionKW"`
	SolarKW       float64 `json:"solarKW"`
	// GridImportKW is the grid import before any battery action this hour.
	GridImportKW float64 `json:"gridImportKW"`

	// Market
	SpotPriceSEKKWH float64 `json:"spotPriceSEKKWH"`
	// ChargeCostSEKKWH is the cost basis of the energy currently in the
	// battery (volume-weighted SEK/kWh of grid energy, before efficiency
	// amortization).
	ChargeCostSEKKWH float64 `json:"chargeCostSEKKWH"`

	// Forecasts for the next 24 hours, starting at the next hour.
	// May be empty when no forecast is available.
	PriceForecast       []float64 `json:"priceForecast,omitempty"`
	ConsumptionForecast []float64 `json:"consumptionForecast,omitempty"`
	SolarForecast       []float64 `json:"solarForecast,omitempty"`

	// Peak tracking
	Month             string    `json:"month"` // YYYY-MM
	TopPeaksKW        []float64 `json:"topPeaksKW"`
	PeakThresholdKW   float64   `json:"peakThresholdKW"`
	IsMeasurementHour bool      `json:"isMeasurementHour"`

	// Running statistics for the simulation so far
	AvgConsumptionKW  float64 `json:"avgConsumptionKW"`
	PeakConsumptionKW float64 `json:"peakConsumptionKW"`

	// Policy bounds
	MinSOCKWH    float64 `json:"minSOCKWH"`
	TargetSOCKWH float64 `json:"targetSOCKWH"`
}

// MaxDischargeKWH returns the most energy the battery can deliver this
// hour, limited by stored energy and discharge power.
func (c HourlyContext) MaxDischargeKWH() float64 {
	return math.Max(0, math.Min(c.SOCKWH, c.MaxDischargeKW))
}

// MaxChargeKWH returns the most grid energy the battery can absorb this
// hour, limited by headroom and charge power, amortized by efficiency.
func (c HourlyContext) MaxChargeKWH() float64 {
	if c.Efficiency <= 0 {
		return 0
	}
	return math.Max(0, math.Min(c.CapacityKWH-c.SOCKWH, c.MaxChargeKW)/c.Efficiency)
}

// AvailableKWH returns the dischargeable energy above the minimum SOC.
func (c HourlyContext) AvailableKWH() float64 {
	return math.Max(0, c.SOCKWH-c.MinSOCKWH)
}

// Recommendation is one specialist's proposal for the hour.
type Recommendation struct {
	Specialist string    `json:"specialist"`
	Action     Action    `json:"action"`
	KWH        float64   `json:"kwh"`
	ValueSEK   float64   `json:"valueSEK"`
	Priority   int       `json:"priority"`   // 1 critical .. 4 low
	Confidence float64   `json:"confidence"` // 0-1
	Rationale  string    `json:"rationale"`
	Veto       bool      `json:"veto"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate checks the recommendation fields that specialists are
// responsible for. SOC/power bounds are the coordinator's job.
func (r Recommendation) Validate() error {
	if r.Specialist == "" {
		return fmt.Errorf("recommendation missing specialist name")
	}
	switch r.Action {
	case ActionCharge, ActionDischarge, ActionHold, ActionExport:
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}
	if r.KWH < 0 {
		return fmt.Errorf("quantity must be >= 0, got %f", r.KWH)
	}
	if r.Priority < PriorityCritical || r.Priority > PriorityLow {
		return fmt.Errorf("priority must be 1-4, got %d", r.Priority)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence must be 0-1, got %f", r.Confidence)
	}
	return nil
}

// Decision is the coordinator's single resolved action for the hour.
type Decision struct {
	Timestamp   time.Time `json:"timestamp"`
	Action      Action    `json:"action"`
	KWH         float64   `json:"kwh"`
	ValueSEK    float64   `json:"valueSEK"`
	Confidence  float64   `json:"confidence"`
	Specialists []string  `json:"specialists,omitempty"`
	Veto        bool      `json:"veto"`
	Clipped     bool      `json:"clipped,omitempty"`
	Rationale   string    `json:"rationale"`
}

// EnergyRecord is one hour of input data from the record stream.
type EnergyRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	ConsumptionKW   float64   `json:"consumptionKW"`
	SpotPriceSEKKWH float64   `json:"spotPriceSEKKWH"`
	SolarKW         float64   `json:"solarKW"`
}

// HourResult is one row of the per-hour simulation ledger.
type HourResult struct {
	Timestamp time.Time `json:"timestamp"`
	Decision  Decision  `json:"decision"`

	ChargeKWH    float64 `json:"chargeKWH"`    // grid energy into the battery
	DischargeKWH float64 `json:"dischargeKWH"` // energy delivered from the battery
	ExportKWH    float64 `json:"exportKWH"`

	GridImportKW float64 `json:"gridImportKW"` // realized, after battery action
	GridExportKW float64 `json:"gridExportKW"`
	SOCKWH       float64 `json:"socKWH"` // at end of hour

	// Skipped marks hours dropped because the input record was invalid.
	Skipped bool `json:"skipped,omitempty"`
}

// SpecialistMetrics tracks per-specialist activity over a run.
type SpecialistMetrics struct {
	Calls           int     `json:"calls"`
	Recommendations int     `json:"recommendations"`
	TotalValueSEK   float64 `json:"totalValueSEK"`
}

// MonthPeaks is the final top-N peak set for one month of a run.
type MonthPeaks struct {
	Month     string    `json:"month"`
	PeaksKW   []float64 `json:"peaksKW"` // descending
	AverageKW float64   `json:"averageKW"`
}

// RunSummary is the cumulative output of one simulation run.
type RunSummary struct {
	ID      string    `json:"id,omitempty"`
	Started time.Time `json:"started"`
	Hours   int       `json:"hours"`
	Skipped int       `json:"skipped"`

	PeakShavingSEK     float64 `json:"peakShavingSEK"`
	SelfConsumptionSEK float64 `json:"selfConsumptionSEK"`
	ExportRevenueSEK   float64 `json:"exportRevenueSEK"`

	Decisions         int `json:"decisions"`
	Vetoes            int `json:"vetoes"`
	ConflictsResolved int `json:"conflictsResolved"`

	MonthlyPeaks []MonthPeaks                 `json:"monthlyPeaks"`
	Specialists  map[string]SpecialistMetrics `json:"specialists"`

	FinalSOCKWH    float64 `json:"finalSOCKWH"`
	GridImportKWH  float64 `json:"gridImportKWH"`
	GridExportKWH  float64 `json:"gridExportKWH"`
	ConsumptionKWH float64 `json:"consumptionKWH"`
}
