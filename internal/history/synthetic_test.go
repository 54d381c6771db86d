package history

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"marketfeed/models"
)

func seeded() *Generator {
	return NewGenerator(rand.New(rand.NewSource(42)))
}

func TestGenerateOHLCInvariant(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewDateRange(start, start.AddDate(0, 0, 59))
	for _, inst := range []models.Instrument{
		{ID: "BTC-USD", AssetType: models.AssetCrypto},
		{ID: "EUR-USD", AssetType: models.AssetForex},
		{ID: "UNKNOWN", AssetType: models.AssetStock},
	} {
		records := seeded().Generate(inst, r, 0)
		if len(records) != 60 {
			t.Fatalf("%s: expected 60 records, got %d", inst.ID, len(records))
		}
		for _, rec := range records {
			if rec.High < rec.Open || rec.High < rec.Close || rec.Low > rec.Open || rec.Low > rec.Close {
				t.Fatalf("%s %s: OHLC out of order: %+v", inst.ID, rec.Date, rec)
			}
			if rec.Low <= 0 {
				t.Fatalf("%s %s: non-positive low %f", inst.ID, rec.Date, rec.Low)
			}
			if rec.Volume <= 0 {
				t.Fatalf("%s %s: non-positive volume", inst.ID, rec.Date)
			}
			if rec.DataSource != SourceSyntheticName {
				t.Errorf("unexpected data source %q", rec.DataSource)
			}
			if len(rec.Intraday) != 24 {
				t.Fatalf("expected 24 intraday points, got %d", len(rec.Intraday))
			}
			for _, p := range rec.Intraday {
				if p.Price < rec.Low || p.Price > rec.High {
					t.Fatalf("intraday price %f outside [%f, %f]", p.Price, rec.Low, rec.High)
				}
			}
		}
	}
}

func TestGenerateDatesAreConsecutive(t *testing.T) {
	start := time.Date(2024, 2, 27, 0, 0, 0, 0, time.UTC)
	records := seeded().Generate(models.Instrument{ID: "ETH-USD", AssetType: models.AssetCrypto}, NewDateRange(start, start.AddDate(0, 0, 4)), 0)
	want := []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01", "2024-03-02"}
	for i, rec := range records {
		if rec.Date != want[i] {
			t.Errorf("record %d: expected %s, got %s", i, want[i], rec.Date)
		}
	}
}

func TestGenerateIsReproducibleWithSeed(t *testing.T) {
	r := SingleDay(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))
	inst := models.Instrument{ID: "AAPL", AssetType: models.AssetStock}
	a := seeded().Generate(inst, r, 0)
	b := seeded().Generate(inst, r, 0)
	if a[0].Close != b[0].Close || a[0].Volume != b[0].Volume {
		t.Fatalf("expected identical output for identical seeds")
	}
}

func TestGenerateAnchorsStartingPrice(t *testing.T) {
	r := SingleDay(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	inst := models.Instrument{ID: "EUR-USD", AssetType: models.AssetForex}
	rec := seeded().Generate(inst, r, 2.0)[0]
	if rec.Open < 1.99 || rec.Open > 2.01 {
		t.Fatalf("expected open near anchor 2.0, got %f", rec.Open)
	}
}

func TestDailyVolatilityWidensEdgeOfWeek(t *testing.T) {
	monday := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	wednesday, friday, sunday := monday.AddDate(0, 0, 2), monday.AddDate(0, 0, 4), monday.AddDate(0, 0, 6)

	mid := dailyVolatility(3.2, wednesday, 0.5)
	if math.Abs(mid-3.2) > 1e-12 {
		t.Fatalf("midweek volatility = %v want 3.2", mid)
	}
	for _, d := range []time.Time{monday, friday} {
		if got := dailyVolatility(3.2, d, 0.5); math.Abs(got-mid*edgeOfWeekMultiplier) > 1e-12 {
			t.Errorf("%s volatility = %v want %v", d.Weekday(), got, mid*edgeOfWeekMultiplier)
		}
	}
	if got := dailyVolatility(3.2, sunday, 0.5); got != mid {
		t.Errorf("weekend volatility = %v want %v", got, mid)
	}
}

func TestGenerateEdgeOfWeekRangesAreWider(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := seeded().Generate(btc, NewDateRange(start, start.AddDate(0, 0, 52*7-1)), 0)

	var edgeSum, midSum float64
	var edgeN, midN int
	for _, rec := range records {
		switch rec.Day().Weekday() {
		case time.Monday, time.Friday:
			edgeSum += *rec.Volatility
			edgeN++
		case time.Tuesday, time.Wednesday, time.Thursday:
			midSum += *rec.Volatility
			midN++
		}
	}
	ratio := (edgeSum / float64(edgeN)) / (midSum / float64(midN))
	if ratio < 1.1 {
		t.Fatalf("Monday/Friday ranges should be wider than midweek, ratio %.3f", ratio)
	}
}
