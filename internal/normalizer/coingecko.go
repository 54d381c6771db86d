package normalizer

import (
	"encoding/json"
	"time"

	"marketfeed/models"
)

// coingeckoQuote is one coin of a /simple/price response requested with
// vs_currencies=usd&include_24hr_change&include_24hr_vol&include_last_updated_at.
type coingeckoQuote struct {
	USD           *float64 `json:"usd"`
	USD24hChange  float64  `json:"usd_24h_change"`
	USD24hVol     float64  `json:"usd_24h_vol"`
	LastUpdatedAt int64    `json:"last_updated_at"`
}

// coingeckoTicker reads the quote for the coin id passed as symbol.
func coingeckoTicker(symbol string, raw []byte) (models.TickerRecord, error) {
	var quotes map[string]coingeckoQuote
	if err := json.Unmarshal(raw, &quotes); err != nil {
		return models.TickerRecord{}, malformed("coingecko: %v", err)
	}
	q, ok := quotes[symbol]
	if !ok || q.USD == nil {
		return models.TickerRecord{}, malformed("coingecko response has no usd price for %s", symbol)
	}
	rec := models.TickerRecord{
		Symbol:    symbol,
		Price:     *q.USD,
		Change24h: q.USD24hChange,
		Volume24h: q.USD24hVol,
		Timestamp: time.Now().UTC(),
	}
	if q.LastUpdatedAt > 0 {
		rec.Timestamp = time.Unix(q.LastUpdatedAt, 0).UTC()
	}
	return rec, nil
}
