package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"
	"golang.org/x/time/rate"

	"marketfeed/internal/symbols"
	"marketfeed/models"
)

const bybitMaxKlines = 1000

type bybitKlineResult struct {
	Symbol string     `json:"symbol"`
	List   [][]string `json:"list"`
}

// bybitProvider reads spot daily klines through the Bybit v5 client.
type bybitProvider struct {
	client  *bybit.Client
	limiter *rate.Limiter
}

func newBybitProvider(baseURL string, hc *http.Client, limiter *rate.Limiter) *bybitProvider {
	client := bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(strings.TrimRight(baseURL, "/")))
	client.HTTPClient = hc
	return &bybitProvider{client: client, limiter: limiter}
}

func (p *bybitProvider) Name() string { return "bybit" }

func (p *bybitProvider) Fetch(ctx context.Context, inst models.Instrument, r DateRange) ([]models.DailyRecord, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	params := map[string]interface{}{
		"category": "spot",
		"symbol":   symbols.FormatFor("bybit", inst.Symbol),
		"interval": "D",
		"start":    r.Start.UnixMilli(),
		"end":      r.End.Add(24*time.Hour - time.Millisecond).UnixMilli(),
		"limit":    min(r.Len(), bybitMaxKlines),
	}
	resp, err := p.client.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err != nil {
		return nil, err
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("bybit error %d: %s", resp.RetCode, resp.RetMsg)
	}

	payload, err := json.Marshal(resp.Result)
	if err != nil {
		return nil, err
	}
	var result bybitKlineResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode bybit klines: %w", err)
	}

	// rows are [start, open, high, low, close, volume, turnover], newest first
	records := make([]models.DailyRecord, 0, len(result.List))
	for _, row := range result.List {
		if len(row) < 6 {
			return nil, fmt.Errorf("bybit kline has %d fields", len(row))
		}
		ts, err := msString(row[0])
		if err != nil {
			return nil, err
		}
		rec, err := candle(ts, row[1], row[2], row[3], row[4], row[5], p.Name())
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
