package indicators

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"marketfeed/models"
)

// MACDResult is the MACD line, its signal line and their difference.
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// MACD needs at least slow+signal points. The MACD line is evaluated for every
// prefix long enough to seed the slow EMA and the signal is the EMA of that
// line.
func MACD(data []models.PricePoint, fast, slow, signal int) (MACDResult, bool) {
	if fast <= 0 || slow <= 0 || signal <= 0 || fast > slow || len(data) < slow+signal {
		return MACDResult{}, false
	}
	values := closes(data)
	// Each EMA output is the value of that EMA over the prefix ending there.
	fastEMA, slowEMA := talib.Ema(values, fast), talib.Ema(values, slow)
	line := make([]float64, 0, len(values)-slow+1)
	for i := slow - 1; i < len(values); i++ {
		line = append(line, fastEMA[i]-slowEMA[i])
	}
	sig, ok := last(talib.Ema(line, signal))
	if !ok {
		return MACDResult{}, false
	}
	res := MACDResult{MACD: line[len(line)-1], Signal: sig}
	res.Histogram = res.MACD - res.Signal
	if !allFinite(res.MACD, res.Signal, res.Histogram) {
		return MACDResult{}, false
	}
	return res, true
}

// SARResult is a one-step parabolic SAR estimate.
type SARResult struct {
	SAR   float64 `json:"sar"`
	Trend string  `json:"trend"`
	AF    float64 `json:"af"`
}

// ParabolicSAR takes a single step from the previous bar instead of iterating
// over the whole series. The trend comes from the last two closes; the SAR
// moves from the previous bar's extreme towards the current extreme by af.
func ParabolicSAR(data []models.PricePoint, af, maxAF float64) (SARResult, bool) {
	if len(data) < 2 || af <= 0 {
		return SARResult{}, false
	}
	if maxAF > 0 {
		af = math.Min(af, maxAF)
	}
	prev, cur := data[len(data)-2], data[len(data)-1]
	prevHigh, prevLow := bounds(prev)
	curHigh, curLow := bounds(cur)

	res := SARResult{AF: af}
	if cur.Close >= prev.Close {
		res.Trend = "up"
		res.SAR = prevLow + af*(curHigh-prevLow)
	} else {
		res.Trend = "down"
		res.SAR = prevHigh + af*(curLow-prevHigh)
	}
	if _, ok := finite(res.SAR); !ok {
		return SARResult{}, false
	}
	return res, true
}

// IchimokuResult holds the five Ichimoku lines at the latest bar.
type IchimokuResult struct {
	Tenkan  float64 `json:"tenkan"`
	Kijun   float64 `json:"kijun"`
	SenkouA float64 `json:"senkouA"`
	SenkouB float64 `json:"senkouB"`
	Chikou  float64 `json:"chikou"`
}

// Ichimoku needs at least 52 points.
func Ichimoku(data []models.PricePoint) (IchimokuResult, bool) {
	if len(data) < ichimokuSenkouBPeriod {
		return IchimokuResult{}, false
	}
	mid := func(period int) float64 {
		h, l := highestLowest(data[len(data)-period:])
		return (h + l) / 2
	}
	res := IchimokuResult{
		Tenkan:  mid(ichimokuTenkanPeriod),
		Kijun:   mid(ichimokuKijunPeriod),
		SenkouB: mid(ichimokuSenkouBPeriod),
		Chikou:  data[len(data)-1].Close,
	}
	res.SenkouA = (res.Tenkan + res.Kijun) / 2
	if !allFinite(res.Tenkan, res.Kijun, res.SenkouA, res.SenkouB, res.Chikou) {
		return IchimokuResult{}, false
	}
	return res, true
}
