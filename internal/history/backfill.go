package history

import (
	"time"

	"marketfeed/internal/indicators"
	"marketfeed/models"
)

// IsMarketOpen reports whether the asset class trades on day. Crypto trades
// every day, everything else on weekdays only.
func IsMarketOpen(assetType models.AssetType, day time.Time) bool {
	if assetType == models.AssetCrypto {
		return true
	}
	wd := day.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// Backfill fills the derived fields of date-ordered records in place. Fields a
// record already carries are left alone. Indicators for day i only see days
// 0..i.
func Backfill(records []models.DailyRecord, assetType models.AssetType) {
	if len(records) == 0 {
		return
	}

	var maxVolume float64
	for _, r := range records {
		if r.Volume > maxVolume {
			maxVolume = r.Volume
		}
	}

	points := models.PricePointsFromDaily(records)
	for i := range records {
		r := &records[i]

		if r.IsMarketOpen == nil {
			open := IsMarketOpen(assetType, r.Day())
			r.IsMarketOpen = &open
		}

		if r.Open != 0 {
			if r.Performance == nil {
				perf := (r.Close - r.Open) / r.Open * 100
				r.Performance = &perf
			}
			if r.Volatility == nil {
				vol := (r.High - r.Low) / r.Open * 100
				r.Volatility = &vol
			}
		}

		if r.Liquidity == nil {
			liq := 0.0
			if maxVolume > 0 {
				liq = r.Volume / maxVolume
			}
			r.Liquidity = &liq
		}

		if r.TechnicalIndicators == nil {
			r.TechnicalIndicators = &models.TechnicalIndicators{}
		}
		ti := r.TechnicalIndicators
		upTo := points[:i+1]
		if ti.SMA5 == nil {
			if v, ok := indicators.SMA(upTo, 5); ok {
				ti.SMA5 = &v
			}
		}
		if ti.SMA20 == nil {
			if v, ok := indicators.SMA(upTo, 20); ok {
				ti.SMA20 = &v
			}
		}
		if ti.RSI == nil {
			if v, ok := indicators.LatestRSI(upTo, indicators.DefaultRSIPeriod); ok {
				ti.RSI = &v
			}
		}
	}
}
