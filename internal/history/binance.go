package history

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"

	"marketfeed/internal/symbols"
	"marketfeed/models"
)

const binanceMaxKlines = 1000

// binanceProvider reads spot daily klines through go-binance.
type binanceProvider struct {
	client  *binance.Client
	limiter *rate.Limiter
}

func newBinanceProvider(baseURL string, hc *http.Client, limiter *rate.Limiter) *binanceProvider {
	client := binance.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = strings.TrimRight(baseURL, "/")
	}
	client.HTTPClient = hc
	return &binanceProvider{client: client, limiter: limiter}
}

func (p *binanceProvider) Name() string { return "binance" }

func (p *binanceProvider) Fetch(ctx context.Context, inst models.Instrument, r DateRange) ([]models.DailyRecord, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	klines, err := p.client.NewKlinesService().
		Symbol(strings.ToUpper(symbols.FormatFor("binance", inst.Symbol))).
		Interval("1d").
		StartTime(r.Start.UnixMilli()).
		EndTime(r.End.Add(24*time.Hour - time.Millisecond).UnixMilli()).
		Limit(min(r.Len(), binanceMaxKlines)).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]models.DailyRecord, 0, len(klines))
	for _, k := range klines {
		rec, err := candle(time.UnixMilli(k.OpenTime), k.Open, k.High, k.Low, k.Close, k.Volume, p.Name())
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
