package history

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/api"
	"github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/generate/spot/market"
	sdktype "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/types"
	"golang.org/x/time/rate"

	"marketfeed/internal/symbols"
	"marketfeed/models"
)

// kucoinProvider reads spot daily candles through the KuCoin universal SDK.
type kucoinProvider struct {
	market  market.MarketAPI
	limiter *rate.Limiter
}

func newKucoinProvider(baseURL string, timeout time.Duration, limiter *rate.Limiter) *kucoinProvider {
	transport := sdktype.NewTransportOptionBuilder().
		SetTimeout(timeout).
		Build()
	option := sdktype.NewClientOptionBuilder().
		WithSpotEndpoint(baseURL).
		WithTransportOption(transport).
		Build()
	client := api.NewClient(option)
	return &kucoinProvider{
		market:  client.RestService().GetSpotService().GetMarketAPI(),
		limiter: limiter,
	}
}

func (p *kucoinProvider) Name() string { return "kucoin" }

func (p *kucoinProvider) Fetch(ctx context.Context, inst models.Instrument, r DateRange) ([]models.DailyRecord, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req := market.NewGetKlinesReqBuilder().
		SetSymbol(symbols.FormatFor("kucoin", inst.Symbol)).
		SetType("1day").
		SetStartAt(r.Start.Unix()).
		SetEndAt(r.End.AddDate(0, 0, 1).Unix()).
		Build()
	resp, err := p.market.GetKlines(req, ctx)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("empty kucoin response for %s", inst.ID)
	}

	// rows are [time, open, close, high, low, volume, turnover] with time in seconds
	records := make([]models.DailyRecord, 0, len(resp.Data))
	for _, row := range resp.Data {
		if len(row) < 6 {
			return nil, fmt.Errorf("kucoin candle has %d fields", len(row))
		}
		sec, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid kucoin time %q: %w", row[0], err)
		}
		rec, err := candle(time.Unix(sec, 0), row[1], row[3], row[4], row[2], row[5], p.Name())
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
