package models

import "time"

// DateLayout is the ISO calendar-day key used for every history map.
const DateLayout = "2006-01-02"

// IntradayPoint is one hourly sample inside a day.
type IntradayPoint struct {
	Hour   int     `json:"hour"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// TechnicalIndicators are the per-day indicators stored on a DailyRecord.
type TechnicalIndicators struct {
	SMA5  *float64 `json:"sma5"`
	SMA20 *float64 `json:"sma20"`
	RSI   *float64 `json:"rsi"`
}

// DailyRecord is one canonical OHLCV day. Optional fields are nil until
// backfilled.
type DailyRecord struct {
	Date                string               `json:"date"`
	Open                float64              `json:"open"`
	High                float64              `json:"high"`
	Low                 float64              `json:"low"`
	Close               float64              `json:"close"`
	Volume              float64              `json:"volume"`
	Volatility          *float64             `json:"volatility,omitempty"`
	Performance         *float64             `json:"performance,omitempty"`
	Liquidity           *float64             `json:"liquidity,omitempty"`
	IsMarketOpen        *bool                `json:"isMarketOpen,omitempty"`
	TechnicalIndicators *TechnicalIndicators `json:"technicalIndicators,omitempty"`
	Intraday            []IntradayPoint      `json:"intraday,omitempty"`
	DataSource          string               `json:"dataSource"`
	Error               string               `json:"error,omitempty"`
}

// Day parses Date. The zero time is returned for malformed dates.
func (d DailyRecord) Day() time.Time {
	t, err := time.Parse(DateLayout, d.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

// PeriodRecord aggregates the daily records of one week or month.
type PeriodRecord struct {
	Open        float64  `json:"open"`
	High        float64  `json:"high"`
	Low         float64  `json:"low"`
	Close       float64  `json:"close"`
	Volume      float64  `json:"volume"`
	Volatility  float64  `json:"volatility"`
	Liquidity   float64  `json:"liquidity"`
	Performance float64  `json:"performance"`
	Days        []string `json:"days"`
}

type WeeklyRecord struct {
	WeekStart string `json:"weekStart"`
	PeriodRecord
}

type MonthlyRecord struct {
	MonthStart string `json:"monthStart"`
	PeriodRecord
}

// PricePoint is the input shape of the indicator library.
type PricePoint struct {
	Close      float64
	High       float64
	Low        float64
	Volume     float64
	Volatility *float64
}

// HasRange reports whether the point carries a usable high/low band.
func (p PricePoint) HasRange() bool {
	return p.High != 0 || p.Low != 0
}

// PricePointsFromDaily converts ordered daily records to indicator input.
func PricePointsFromDaily(records []DailyRecord) []PricePoint {
	out := make([]PricePoint, len(records))
	for i, r := range records {
		out[i] = PricePoint{Close: r.Close, High: r.High, Low: r.Low, Volume: r.Volume, Volatility: r.Volatility}
	}
	return out
}
