package indicators

import "marketfeed/models"

// Signals are simple readings derived from a Bundle.
type Signals struct {
	RSIOverbought   bool `json:"rsiOverbought"`
	RSIOversold     bool `json:"rsiOversold"`
	MACDBullish     bool `json:"macdBullish"`
	PriceAboveSMA20 bool `json:"priceAboveSma20"`
}

// Bundle is every indicator at default settings. Nil fields did not have
// enough data.
type Bundle struct {
	SMA5         *float64          `json:"sma5"`
	SMA20        *float64          `json:"sma20"`
	SMA50        *float64          `json:"sma50"`
	EMA12        *float64          `json:"ema12"`
	EMA26        *float64          `json:"ema26"`
	RSI          *float64          `json:"rsi"`
	Bollinger    *Bands            `json:"bollinger"`
	MACD         *MACDResult       `json:"macd"`
	Stochastic   *StochasticResult `json:"stochastic"`
	CCI          *float64          `json:"cci"`
	WilliamsR    *float64          `json:"williamsR"`
	MFI          *float64          `json:"mfi"`
	ATR          *float64          `json:"atr"`
	ParabolicSAR *SARResult        `json:"parabolicSar"`
	Ichimoku     *IchimokuResult   `json:"ichimoku"`
	VIXLike      float64           `json:"vixLike"`
	Signals      Signals           `json:"signals"`
}

// AllIndicators evaluates every indicator once over data.
func AllIndicators(data []models.PricePoint) Bundle {
	b := Bundle{
		SMA5:         opt[float64](SMA(data, 5)),
		SMA20:        opt[float64](SMA(data, 20)),
		SMA50:        opt[float64](SMA(data, 50)),
		EMA12:        opt[float64](EMA(data, 12)),
		EMA26:        opt[float64](EMA(data, 26)),
		RSI:          opt[float64](LatestRSI(data, DefaultRSIPeriod)),
		Bollinger:    opt[Bands](Bollinger(data, DefaultBollingerPeriod, DefaultBollingerK)),
		MACD:         opt[MACDResult](MACD(data, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)),
		Stochastic:   opt[StochasticResult](Stochastic(data, DefaultStochasticK, DefaultStochasticD)),
		CCI:          opt[float64](CCI(data, DefaultCCIPeriod)),
		WilliamsR:    opt[float64](WilliamsR(data, DefaultWilliamsRPeriod)),
		MFI:          opt[float64](MFI(data, DefaultMFIPeriod)),
		ATR:          opt[float64](ATR(data, DefaultATRPeriod)),
		ParabolicSAR: opt[SARResult](ParabolicSAR(data, DefaultSARStep, DefaultSARMax)),
		Ichimoku:     opt[IchimokuResult](Ichimoku(data)),
		VIXLike:      VIXLike(data, DefaultVIXPeriod),
	}

	if b.RSI != nil {
		b.Signals.RSIOverbought = *b.RSI > 70
		b.Signals.RSIOversold = *b.RSI < 30
	}
	if b.MACD != nil {
		b.Signals.MACDBullish = b.MACD.MACD > b.MACD.Signal
	}
	if b.SMA20 != nil && len(data) > 0 {
		b.Signals.PriceAboveSMA20 = data[len(data)-1].Close > *b.SMA20
	}
	return b
}

func opt[T any](v T, ok bool) *T {
	if !ok {
		return nil
	}
	return &v
}
