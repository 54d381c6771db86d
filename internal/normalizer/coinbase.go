package normalizer

import (
	"encoding/json"
	"time"

	"marketfeed/models"
)

type coinbaseMessage struct {
	Type      string     `json:"type"`
	ProductID string     `json:"product_id"`
	Price     string     `json:"price"`
	Open24h   string     `json:"open_24h"`
	Volume24h string     `json:"volume_24h"`
	High24h   string     `json:"high_24h"`
	Low24h    string     `json:"low_24h"`
	Time      string     `json:"time"`
	Bids      [][]string `json:"bids"`
	Asks      [][]string `json:"asks"`
	Message   string     `json:"message"`
}

func decodeCoinbase(raw []byte) (coinbaseMessage, error) {
	var msg coinbaseMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, malformed("coinbase: %v", err)
	}
	if msg.Type == "error" {
		return msg, malformed("coinbase error frame: %s", msg.Message)
	}
	return msg, nil
}

func coinbaseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}

// coinbaseTicker reads a "ticker" channel frame. Change is derived from
// open_24h because the feed does not carry a percentage.
func coinbaseTicker(symbol string, raw []byte) (models.TickerRecord, error) {
	msg, err := decodeCoinbase(raw)
	if err != nil {
		return models.TickerRecord{}, err
	}
	if msg.Type != "ticker" {
		return models.TickerRecord{}, ErrIgnored
	}

	price, err := number("price", msg.Price)
	if err != nil {
		return models.TickerRecord{}, err
	}
	open, err := optionalNumber("open_24h", msg.Open24h)
	if err != nil {
		return models.TickerRecord{}, err
	}
	rec := models.TickerRecord{
		Symbol:    symbol,
		Price:     price,
		Change24h: percentChange(price, open),
		Timestamp: coinbaseTime(msg.Time),
	}
	if msg.ProductID != "" {
		rec.Symbol = msg.ProductID
	}
	if rec.Volume24h, err = optionalNumber("volume_24h", msg.Volume24h); err != nil {
		return models.TickerRecord{}, err
	}
	if rec.High24h, err = optionalNumber("high_24h", msg.High24h); err != nil {
		return models.TickerRecord{}, err
	}
	if rec.Low24h, err = optionalNumber("low_24h", msg.Low24h); err != nil {
		return models.TickerRecord{}, err
	}
	return rec, nil
}

// coinbaseOrderbook only accepts level2 snapshots; incremental l2update
// frames are ignored.
func coinbaseOrderbook(symbol string, raw []byte) (bookSides, error) {
	msg, err := decodeCoinbase(raw)
	if err != nil {
		return bookSides{}, err
	}
	if msg.Type != "snapshot" {
		return bookSides{}, ErrIgnored
	}
	bids, err := parseLevels(msg.Bids)
	if err != nil {
		return bookSides{}, err
	}
	asks, err := parseLevels(msg.Asks)
	if err != nil {
		return bookSides{}, err
	}
	sides := bookSides{symbol: symbol, timestamp: coinbaseTime(msg.Time), bids: bids, asks: asks}
	if msg.ProductID != "" {
		sides.symbol = msg.ProductID
	}
	return sides, nil
}
