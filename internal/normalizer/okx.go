package normalizer

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"marketfeed/models"
)

type okxEnvelope struct {
	Event string `json:"event"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []json.RawMessage `json:"data"`
}

type okxTickerData struct {
	InstID  string `json:"instId"`
	Last    string `json:"last"`
	SodUtc8 string `json:"sodUtc8"`
	Vol24h  string `json:"vol24h"`
	High24h string `json:"high24h"`
	Low24h  string `json:"low24h"`
	Ts      string `json:"ts"`
}

type okxBookData struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
	Ts   string     `json:"ts"`
}

// decodeOKX returns the first data element. Pongs and event frames are
// ignored; error events are malformed.
func decodeOKX(raw []byte) (okxEnvelope, json.RawMessage, error) {
	var env okxEnvelope
	if bytes.Equal(bytes.TrimSpace(raw), []byte("pong")) {
		return env, nil, ErrIgnored
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, nil, malformed("okx: %v", err)
	}
	if env.Event == "error" {
		return env, nil, malformed("okx error %s: %s", env.Code, env.Msg)
	}
	if env.Event != "" {
		return env, nil, ErrIgnored
	}
	if len(env.Data) == 0 {
		return env, nil, malformed("okx frame has no data")
	}
	return env, env.Data[0], nil
}

func okxTime(ts string) time.Time {
	if ms, err := strconv.ParseInt(ts, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	return time.Now().UTC()
}

// okxTicker reads a "tickers" channel frame. Change is measured against the
// UTC+8 start-of-day price.
func okxTicker(symbol string, raw []byte) (models.TickerRecord, error) {
	_, first, err := decodeOKX(raw)
	if err != nil {
		return models.TickerRecord{}, err
	}
	var data okxTickerData
	if err := json.Unmarshal(first, &data); err != nil {
		return models.TickerRecord{}, malformed("okx ticker: %v", err)
	}

	price, err := number("last", data.Last)
	if err != nil {
		return models.TickerRecord{}, err
	}
	sod, err := optionalNumber("sodUtc8", data.SodUtc8)
	if err != nil {
		return models.TickerRecord{}, err
	}
	rec := models.TickerRecord{
		Symbol:    symbol,
		Price:     price,
		Change24h: percentChange(price, sod),
		Timestamp: okxTime(data.Ts),
	}
	if data.InstID != "" {
		rec.Symbol = data.InstID
	}
	if rec.Volume24h, err = optionalNumber("vol24h", data.Vol24h); err != nil {
		return models.TickerRecord{}, err
	}
	if rec.High24h, err = optionalNumber("high24h", data.High24h); err != nil {
		return models.TickerRecord{}, err
	}
	if rec.Low24h, err = optionalNumber("low24h", data.Low24h); err != nil {
		return models.TickerRecord{}, err
	}
	return rec, nil
}

// okxOrderbook reads a "books5" channel frame.
func okxOrderbook(symbol string, raw []byte) (bookSides, error) {
	env, first, err := decodeOKX(raw)
	if err != nil {
		return bookSides{}, err
	}
	var data okxBookData
	if err := json.Unmarshal(first, &data); err != nil {
		return bookSides{}, malformed("okx book: %v", err)
	}
	bids, err := parseLevels(data.Bids)
	if err != nil {
		return bookSides{}, err
	}
	asks, err := parseLevels(data.Asks)
	if err != nil {
		return bookSides{}, err
	}
	sides := bookSides{symbol: symbol, timestamp: okxTime(data.Ts), bids: bids, asks: asks}
	if env.Arg.InstID != "" {
		sides.symbol = env.Arg.InstID
	}
	return sides, nil
}
