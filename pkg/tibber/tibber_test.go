package tibber

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("parses a full file", func(t *testing.T) {
		data := strings.Join([]string{
			"timestamp,consumption_kw,spot_price_sek_kwh,solar_kw",
			"2024-03-01T00:00:00Z,1.2,0.85,0",
			"2024-03-01T01:00:00Z,1.1,0.80,0.4",
		}, "\n")
		recs, err := Load(ctx, strings.NewReader(data))
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), recs[0].Timestamp)
		assert.Equal(t, 1.2, recs[0].ConsumptionKW)
		assert.Equal(t, 0.85, recs[0].SpotPriceSEKKWH)
		assert.Equal(t, 0.4, recs[1].SolarKW)
	})

	t.Run("solar column is optional", func(t *testing.T) {
		data := strings.Join([]string{
			"time,consumption,price",
			"2024-03-01 00:00,2.0,1.10",
		}, "\n")
		recs, err := Load(ctx, strings.NewReader(data))
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Zero(t, recs[0].SolarKW)
	})

	t.Run("bad rows are skipped not fatal", func(t *testing.T) {
		data := strings.Join([]string{
			"timestamp,consumption,price",
			"2024-03-01T00:00:00Z,1.2,0.85",
			"not-a-time,1.0,0.80",
			"2024-03-01T02:00:00Z,n/a,0.75",
			"2024-03-01T03:00:00Z,-2,0.75",
			"2024-03-01T04:00:00Z,0.9,0.70",
		}, "\n")
		recs, err := Load(ctx, strings.NewReader(data))
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})

	t.Run("missing required column fails", func(t *testing.T) {
		data := "timestamp,consumption\n2024-03-01T00:00:00Z,1.2\n"
		_, err := Load(ctx, strings.NewReader(data))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "price")
	})

	t.Run("all rows bad fails", func(t *testing.T) {
		data := "timestamp,consumption,price\nnope,x,y\n"
		_, err := Load(ctx, strings.NewReader(data))
		assert.Error(t, err)
	})
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(context.Background(), "/does/not/exist.csv")
	assert.Error(t, err)
}
