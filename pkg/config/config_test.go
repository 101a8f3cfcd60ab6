package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
battery:
  capacity_kwh: 25
  max_power_kw: 12
  efficiency: 0.95
tariff:
  grid_fee_sek_kwh: 0.42
  energy_tax_sek_kwh: 0.40
  transfer_fee_sek_kwh: 0.42
  vat_rate: 0.25
  effect_tariff_sek_kw_month: 60
`

func TestParse(t *testing.T) {
	t.Run("valid config with defaults filled in", func(t *testing.T) {
		c, err := Parse([]byte(validYAML))
		require.NoError(t, err)
		assert.Equal(t, 25.0, c.Battery.CapacityKWH)
		assert.Equal(t, 12.5, c.Battery.InitialSOCKWH, "defaults to half capacity")
		assert.Equal(t, 2.5, c.Battery.MinSOCKWH)
		assert.Equal(t, 22.5, c.Battery.TargetSOCKWH)
		assert.Equal(t, 0.95, c.Tariff.Efficiency, "tariff inherits battery efficiency")
		assert.Equal(t, 3, c.Engine.TopN)
		assert.Equal(t, 6, c.Engine.MeasurementStartHour)
		assert.Equal(t, 23, c.Engine.MeasurementEndHour)
		assert.Equal(t, ForecastModePerfect, c.Engine.ForecastMode)
		assert.False(t, c.Engine.ReserveSelfConsumption)
	})

	t.Run("explicit values are not overridden", func(t *testing.T) {
		c, err := Parse([]byte(validYAML + `
engine:
  top_n: 5
  measurement_start_hour: 7
  measurement_end_hour: 22
  forecast_mode: realistic
`))
		require.NoError(t, err)
		assert.Equal(t, 5, c.Engine.TopN)
		assert.Equal(t, 7, c.Engine.MeasurementStartHour)
		assert.Equal(t, 22, c.Engine.MeasurementEndHour)
		assert.Equal(t, ForecastModeRealistic, c.Engine.ForecastMode)
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		_, err := Parse([]byte("battery: ["))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero capacity",
			mutate:  func(c *Config) { c.Battery.CapacityKWH = 0 },
			wantErr: "capacity_kwh",
		},
		{
			name:    "efficiency over one",
			mutate:  func(c *Config) { c.Battery.Efficiency = 1.2 },
			wantErr: "efficiency",
		},
		{
			name:    "initial soc beyond capacity",
			mutate:  func(c *Config) { c.Battery.InitialSOCKWH = 30 },
			wantErr: "initial_soc_kwh",
		},
		{
			name:    "inverted measurement window",
			mutate:  func(c *Config) { c.Engine.MeasurementStartHour = 20; c.Engine.MeasurementEndHour = 6 },
			wantErr: "measurement window",
		},
		{
			name:    "price thresholds out of order",
			mutate:  func(c *Config) { c.Engine.CheapPriceSEKKWH = 2.0 },
			wantErr: "cheap < high < extreme",
		},
		{
			name:    "spike multiplier at or below one",
			mutate:  func(c *Config) { c.Engine.OverrideSpikeMultiplier = 1.0 },
			wantErr: "override_spike_multiplier",
		},
		{
			name:    "unknown forecast mode",
			mutate:  func(c *Config) { c.Engine.ForecastMode = "psychic" },
			wantErr: "forecast_mode",
		},
		{
			name:    "negative vat",
			mutate:  func(c *Config) { c.Tariff.VATRate = -0.1 },
			wantErr: "tariff",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoad(t *testing.T) {
	t.Run("reads a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))
		c, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 25.0, c.Battery.CapacityKWH)
	})

	t.Run("missing file fails", func(t *testing.T) {
		_, err := Load("/does/not/exist.yaml")
		assert.Error(t, err)
	})
}
