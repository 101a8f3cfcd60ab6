package engine

import (
	"github.com/MendeTr/BatterySim/pkg/config"
	"github.com/MendeTr/BatterySim/pkg/types"
)

// Forecaster produces the 24-hour lookahead slices handed to the
// specialists and the planner.
type Forecaster interface {
	// Forecast returns price, consumption and solar forecasts for the
	// 24 hours following index i. Slices may be shorter near the end
	// of the record stream.
	Forecast(records []types.EnergyRecord, i int) (prices, consumption, solar []float64)
}

// NewForecaster returns the forecaster for the configured mode.
func NewForecaster(mode string) Forecaster {
	if mode == config.ForecastModeRealistic {
		return &profileForecaster{}
	}
	return perfectForecaster{}
}

// perfectForecaster reads the future straight out of the record
// stream. It bounds what the strategy could ever earn.
type perfectForecaster struct{}

func (perfectForecaster) Forecast(records []types.EnergyRecord, i int) ([]float64, []float64, []float64) {
	n := len(records) - i - 1
	if n > 24 {
		n = 24
	}
	if n <= 0 {
		return nil, nil, nil
	}
	prices := make([]float64, n)
	consumption := make([]float64, n)
	solar := make([]float64, n)
	for j := 0; j < n; j++ {
		r := records[i+1+j]
		prices[j] = r.SpotPriceSEKKWH
		consumption[j] = r.ConsumptionKW
		solar[j] = r.SolarKW
	}
	return prices, consumption, solar
}

// profileForecaster predicts each hour of day from the running average
// of what that hour has looked like so far. The first day it has seen
// nothing and predicts from the little history it has.
type profileForecaster struct {
	priceSum       [24]float64
	consumptionSum [24]float64
	solarSum       [24]float64
	count          [24]int
}

func (p *profileForecaster) Forecast(records []types.EnergyRecord, i int) ([]float64, []float64, []float64) {
	// Fold the current hour into the profile before predicting.
	r := records[i]
	h := r.Timestamp.Hour()
	p.priceSum[h] += r.SpotPriceSEKKWH
	p.consumptionSum[h] += r.ConsumptionKW
	p.solarSum[h] += r.SolarKW
	p.count[h]++

	prices := make([]float64, 24)
	consumption := make([]float64, 24)
	solar := make([]float64, 24)
	for j := 0; j < 24; j++ {
		fh := (h + 1 + j) % 24
		if p.count[fh] == 0 {
			// No history for this hour yet; fall back to the current
			// hour's values.
			prices[j] = r.SpotPriceSEKKWH
			consumption[j] = r.ConsumptionKW
			solar[j] = r.SolarKW
			continue
		}
		n := float64(p.count[fh])
		prices[j] = p.priceSum[fh] / n
		consumption[j] = p.consumptionSum[fh] / n
		solar[j] = p.solarSum[fh] / n
	}
	return prices, consumption, solar
}
