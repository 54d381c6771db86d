package normalizer

import (
	"encoding/json"
	"time"

	"github.com/adshao/go-binance/v2"

	"marketfeed/models"
)

// binanceTicker reads a <symbol>@ticker frame.
func binanceTicker(symbol string, raw []byte) (models.TickerRecord, error) {
	var ev binance.WsMarketStatEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return models.TickerRecord{}, malformed("binance ticker: %v", err)
	}
	if ev.Event != "" && ev.Event != "24hrTicker" {
		return models.TickerRecord{}, ErrIgnored
	}
	if ev.LastPrice == "" {
		return models.TickerRecord{}, malformed("binance ticker has no last price")
	}

	price, err := number("c", ev.LastPrice)
	if err != nil {
		return models.TickerRecord{}, err
	}
	rec := models.TickerRecord{Symbol: symbol, Price: price, Timestamp: time.Now().UTC()}
	if ev.Symbol != "" {
		rec.Symbol = ev.Symbol
	}
	if rec.Change24h, err = optionalNumber("P", ev.PriceChangePercent); err != nil {
		return models.TickerRecord{}, err
	}
	if rec.Volume24h, err = optionalNumber("v", ev.BaseVolume); err != nil {
		return models.TickerRecord{}, err
	}
	if rec.High24h, err = optionalNumber("h", ev.HighPrice); err != nil {
		return models.TickerRecord{}, err
	}
	if rec.Low24h, err = optionalNumber("l", ev.LowPrice); err != nil {
		return models.TickerRecord{}, err
	}
	if ev.Time > 0 {
		rec.Timestamp = time.UnixMilli(ev.Time).UTC()
	}
	return rec, nil
}

type binanceDepth struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// binanceOrderbook reads a partial book <symbol>@depth20@100ms frame.
func binanceOrderbook(symbol string, raw []byte) (bookSides, error) {
	var depth binanceDepth
	if err := json.Unmarshal(raw, &depth); err != nil {
		return bookSides{}, malformed("binance depth: %v", err)
	}
	if depth.Bids == nil && depth.Asks == nil {
		return bookSides{}, ErrIgnored
	}
	bids, err := parseLevels(depth.Bids)
	if err != nil {
		return bookSides{}, err
	}
	asks, err := parseLevels(depth.Asks)
	if err != nil {
		return bookSides{}, err
	}
	return bookSides{symbol: symbol, timestamp: time.Now().UTC(), bids: bids, asks: asks}, nil
}
