package tariff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		GridFeeSEKKWH:          0.42,
		EnergyTaxSEKKWH:        0.40,
		TransferFeeSEKKWH:      0.42,
		VATRate:                0.25,
		EffectTariffSEKKWMonth: 60.0,
		Efficiency:             0.95,
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, testConfig().Validate())

	t.Run("Negative Grid Fee", func(t *testing.T) {
		cfg := testConfig()
		cfg.GridFeeSEKKWH = -0.1
		assert.Error(t, cfg.Validate())
	})

	t.Run("Zero Efficiency", func(t *testing.T) {
		cfg := testConfig()
		cfg.Efficiency = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("VAT Over 100%", func(t *testing.T) {
		cfg := testConfig()
		cfg.VATRate = 1.0
		assert.Error(t, cfg.Validate())
	})
}

func TestImportCost(t *testing.T) {
	c := NewCalculator(testConfig())

	// (3.00 + 0.42 + 0.40) * 1.25
	assert.InDelta(t, 4.775, c.ImportCost(3.00), 1e-9)
	// Zero spot still pays fees and tax.
	assert.InDelta(t, 1.025, c.ImportCost(0), 1e-9)
}

func TestExportRevenueNeverNegative(t *testing.T) {
	c := NewCalculator(testConfig())

	assert.InDelta(t, 2.58, c.ExportRevenue(3.00), 1e-9)
	// Spot below the transfer fee clips to zero, never negative.
	assert.Equal(t, 0.0, c.ExportRevenue(0.30))
	assert.Equal(t, 0.0, c.ExportRevenue(0.42))
	assert.Equal(t, 0.0, c.ExportRevenue(0))
}

func TestPeakShavingValue(t *testing.T) {
	c := NewCalculator(testConfig())

	// 4 kW * 60 SEK/kW/month / 30 days
	assert.InDelta(t, 8.0, c.PeakShavingValue(4.0, true), 1e-9)
	// Off the top-N margin, shaving is worthless.
	assert.Equal(t, 0.0, c.PeakShavingValue(4.0, false))
	assert.Equal(t, 0.0, c.PeakShavingValue(0, true))
	assert.Equal(t, 0.0, c.PeakShavingValue(-1, true))
}

func TestSelfConsumptionValue(t *testing.T) {
	c := NewCalculator(testConfig())

	// Avoided import minus the cost basis of the discharged energy.
	got := c.SelfConsumptionValue(5.0, 2.00, 0.60)
	want := c.ImportCost(2.00)*5.0 - 0.60*5.0/0.95
	assert.InDelta(t, want, got, 1e-9)
	assert.Greater(t, got, 0.0)

	assert.Equal(t, 0.0, c.SelfConsumptionValue(0, 2.00, 0.60))
}

func TestArbitrageValueMayBeNegative(t *testing.T) {
	c := NewCalculator(testConfig())

	// Cheap charge, extreme discharge price: profitable.
	assert.Greater(t, c.ArbitrageValue(5.0, 4.00, 0.60), 0.0)

	// Spot below the transfer fee: revenue clips to zero so the value is
	// negative after the charge cost. Callers must reject it.
	assert.Less(t, c.ArbitrageValue(5.0, 0.30, 0.60), 0.0)
}

func TestCombinedValueIsAdditive(t *testing.T) {
	c := NewCalculator(testConfig())

	discharge := 6.0
	spot := 2.50
	chargeCost := 0.55
	reduction := 3.0

	combined := c.CombinedValue(discharge, spot, chargeCost, reduction, true)
	sum := c.PeakShavingValue(reduction, true) + c.SelfConsumptionValue(discharge, spot, chargeCost)
	assert.InDelta(t, sum, combined, 1e-9, "combined value must be the sum, not a max")

	// Without the top-N condition only self-consumption remains.
	assert.InDelta(t,
		c.SelfConsumptionValue(discharge, spot, chargeCost),
		c.CombinedValue(discharge, spot, chargeCost, reduction, false), 1e-9)
}
