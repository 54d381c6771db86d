// Package indicators computes technical indicators over an ordered series of
// price points, oldest first. Every function reports ok == false when the
// series is shorter than the window it needs; none of them extrapolate.
//
// Percent-valued results are whole numbers (2.5 means 2.5%).
package indicators

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"marketfeed/models"
)

const (
	DefaultRSIPeriod       = 14
	DefaultBollingerPeriod = 20
	DefaultBollingerK      = 2.0
	DefaultMACDFast        = 12
	DefaultMACDSlow        = 26
	DefaultMACDSignal      = 9
	DefaultStochasticK     = 14
	DefaultStochasticD     = 3
	DefaultCCIPeriod       = 20
	DefaultWilliamsRPeriod = 14
	DefaultMFIPeriod       = 14
	DefaultATRPeriod       = 14
	DefaultSARStep         = 0.02
	DefaultSARMax          = 0.2
	DefaultVIXPeriod       = 30
	NeutralVIX             = 25.0
	cciConstant            = 0.015
	tradingDaysPerYear     = 252
	ichimokuTenkanPeriod   = 9
	ichimokuKijunPeriod    = 26
	ichimokuSenkouBPeriod  = 52
)

// SMA is the arithmetic mean of the last period closes.
func SMA(data []models.PricePoint, period int) (float64, bool) {
	if period <= 0 || len(data) < period {
		return 0, false
	}
	if period == 1 {
		return finite(data[len(data)-1].Close)
	}
	return last(talib.Sma(closes(data[len(data)-period:]), period))
}

// EMA seeds from the SMA of the first period closes and then applies the
// 2/(period+1) multiplier over the remaining points. The result depends on
// where the series starts, so callers should keep their windows fixed.
func EMA(data []models.PricePoint, period int) (float64, bool) {
	if period <= 0 || len(data) < period {
		return 0, false
	}
	return last(talib.Ema(closes(data), period))
}

// Bands is a Bollinger envelope.
type Bands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// Bollinger returns SMA ± k standard deviations (population) over the last
// period closes.
func Bollinger(data []models.PricePoint, period int, k float64) (Bands, bool) {
	if period < 2 || len(data) < period {
		return Bands{}, false
	}
	upper, middle, lower := talib.BBands(closes(data[len(data)-period:]), period, k, k, talib.SMA)
	b := Bands{Upper: upper[period-1], Middle: middle[period-1], Lower: lower[period-1]}
	if !allFinite(b.Upper, b.Middle, b.Lower) {
		return Bands{}, false
	}
	return b, true
}

// ATR is the mean true range of the last period bars. It needs one extra bar
// for the first previous close.
func ATR(data []models.PricePoint, period int) (float64, bool) {
	if period <= 0 || len(data) < period+1 {
		return 0, false
	}
	sum := 0.0
	for i := len(data) - period; i < len(data); i++ {
		sum += trueRange(data[i], data[i-1].Close)
	}
	return finite(sum / float64(period))
}

func trueRange(p models.PricePoint, prevClose float64) float64 {
	high, low := bounds(p)
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// VIXLike estimates annualised volatility over the last period points. When
// the points carry a daily volatility their mean is annualised; otherwise the
// standard deviation of log returns is. NeutralVIX is returned when fewer than
// two usable values exist.
func VIXLike(data []models.PricePoint, period int) float64 {
	if period <= 0 {
		period = DefaultVIXPeriod
	}
	window := data
	if len(window) > period {
		window = window[len(window)-period:]
	}

	vols := make([]float64, 0, len(window))
	for _, p := range window {
		if p.Volatility != nil && !math.IsNaN(*p.Volatility) && !math.IsInf(*p.Volatility, 0) {
			vols = append(vols, *p.Volatility)
		}
	}
	if len(vols) >= 2 {
		if v, ok := finite(mean(vols) * math.Sqrt(tradingDaysPerYear)); ok {
			return v
		}
		return NeutralVIX
	}

	returns := make([]float64, 0, len(window))
	for i := 1; i < len(window); i++ {
		prev, cur := window[i-1].Close, window[i].Close
		if prev <= 0 || cur <= 0 {
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}
	if len(returns) < 2 {
		return NeutralVIX
	}
	v, ok := finite(stddev(returns, mean(returns)) * math.Sqrt(tradingDaysPerYear) * 100)
	if !ok {
		return NeutralVIX
	}
	return v
}

func closes(data []models.PricePoint) []float64 {
	out := make([]float64, len(data))
	for i, p := range data {
		out[i] = p.Close
	}
	return out
}

// ohlcv splits data into the parallel slices talib expects. Points without a
// range use their close for high and low.
func ohlcv(data []models.PricePoint) (highs, lows, closesOut, volumes []float64) {
	highs = make([]float64, len(data))
	lows = make([]float64, len(data))
	closesOut = make([]float64, len(data))
	volumes = make([]float64, len(data))
	for i, p := range data {
		highs[i], lows[i] = bounds(p)
		closesOut[i] = p.Close
		volumes[i] = p.Volume
	}
	return highs, lows, closesOut, volumes
}

// last returns the newest value of a talib output series.
func last(series []float64) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	return finite(series[len(series)-1])
}

// bounds falls back to the close when a point has no high/low.
func bounds(p models.PricePoint) (high, low float64) {
	if !p.HasRange() {
		return p.Close, p.Close
	}
	return p.High, p.Low
}

func highestLowest(data []models.PricePoint) (highest, lowest float64) {
	highest, lowest = math.Inf(-1), math.Inf(1)
	for _, p := range data {
		h, l := bounds(p)
		highest = math.Max(highest, h)
		lowest = math.Min(lowest, l)
	}
	return highest, lowest
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, m float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

func finite(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func allFinite(values ...float64) bool {
	for _, v := range values {
		if _, ok := finite(v); !ok {
			return false
		}
	}
	return true
}
