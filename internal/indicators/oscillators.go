package indicators

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"marketfeed/models"
)

// RSI averages gains and losses over the first period deltas of the series
// only, without Wilder smoothing. It is exactly 100 when there is no loss.
func RSI(data []models.PricePoint, period int) (float64, bool) {
	if period <= 0 || len(data) < period+1 {
		return 0, false
	}
	gains, losses := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := data[i].Close - data[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100, true
	}
	rsi := 100 - 100/(1+avgGain/avgLoss)
	return finite(math.Max(0, math.Min(100, rsi)))
}

// StochasticResult holds %K and %D.
type StochasticResult struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

// Stochastic computes %K from the last kPeriod highs and lows. %D is the
// dPeriod average of a history that only ever holds the current %K, so it
// always equals %K.
func Stochastic(data []models.PricePoint, kPeriod, dPeriod int) (StochasticResult, bool) {
	if kPeriod <= 0 || dPeriod <= 0 || len(data) < kPeriod {
		return StochasticResult{}, false
	}
	highest, lowest := highestLowest(data[len(data)-kPeriod:])
	k := 50.0
	if highest != lowest {
		k = (data[len(data)-1].Close - lowest) / (highest - lowest) * 100
	}
	history := []float64{k}
	if len(history) > dPeriod {
		history = history[len(history)-dPeriod:]
	}
	res := StochasticResult{K: k, D: mean(history)}
	if !allFinite(res.K, res.D) {
		return StochasticResult{}, false
	}
	return res, true
}

// CCI is the commodity channel index over the last period typical prices.
// A flat window yields 0.
func CCI(data []models.PricePoint, period int) (float64, bool) {
	if period < 2 || len(data) < period {
		return 0, false
	}
	highs, lows, cl, _ := ohlcv(data[len(data)-period:])
	if flat(highs, lows, cl) {
		return 0, true
	}
	return last(talib.Cci(highs, lows, cl, period))
}

// WilliamsR is in [-100, 0]. A flat window yields -50.
func WilliamsR(data []models.PricePoint, period int) (float64, bool) {
	if period <= 0 || len(data) < period {
		return 0, false
	}
	window := data[len(data)-period:]
	if highest, lowest := highestLowest(window); highest == lowest {
		return -50, true
	}
	highs, lows, cl, _ := ohlcv(window)
	return last(talib.WillR(highs, lows, cl, period))
}

// MFI is the money flow index over the last period typical-price changes.
// It is 100 when there is no negative flow.
func MFI(data []models.PricePoint, period int) (float64, bool) {
	if period <= 0 || len(data) < period+1 {
		return 0, false
	}
	window := data[len(data)-period-1:]
	if !hasNegativeFlow(window) {
		return 100, true
	}
	highs, lows, cl, volumes := ohlcv(window)
	return last(talib.Mfi(highs, lows, cl, volumes, period))
}

// LatestRSI is RSI over the trailing period+1 points, so the reading belongs
// to the newest bar.
func LatestRSI(data []models.PricePoint, period int) (float64, bool) {
	if period <= 0 || len(data) < period+1 {
		return 0, false
	}
	return RSI(data[len(data)-period-1:], period)
}

func typicalPrice(p models.PricePoint) float64 {
	high, low := bounds(p)
	return (high + low + p.Close) / 3
}

// flat reports whether every typical price in the window is the same.
func flat(highs, lows, cl []float64) bool {
	first := (highs[0] + lows[0] + cl[0]) / 3
	for i := range cl {
		if (highs[i]+lows[i]+cl[i])/3 != first {
			return false
		}
	}
	return true
}

func hasNegativeFlow(window []models.PricePoint) bool {
	for i := 1; i < len(window); i++ {
		if typicalPrice(window[i]) < typicalPrice(window[i-1]) && window[i].Volume > 0 {
			return true
		}
	}
	return false
}
