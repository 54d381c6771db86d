package history

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"marketfeed/internal/normalizer"
	"marketfeed/models"
)

// coingeckoChart is the /coins/{id}/market_chart payload. Each point is
// [unix ms, value].
type coingeckoChart struct {
	Prices       [][2]float64 `json:"prices"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
}

// coingeckoProvider derives daily records from CoinGecko close prices. Open is
// the previous close, so high and low only bound the two.
type coingeckoProvider struct {
	client *restClient
	now    func() time.Time
}

func (p *coingeckoProvider) Name() string { return "coingecko" }

func (p *coingeckoProvider) Fetch(ctx context.Context, inst models.Instrument, r DateRange) ([]models.DailyRecord, error) {
	if inst.CoinGeckoID == "" {
		return nil, fmt.Errorf("no coingecko id for %s", inst.ID)
	}
	// market_chart counts back from now; one extra day supplies the first open.
	days := int(math.Ceil(p.now().Sub(r.Start).Hours()/24)) + 1
	if days < 1 {
		days = 1
	}
	query := url.Values{}
	query.Set("vs_currency", "usd")
	query.Set("days", strconv.Itoa(days))
	query.Set("interval", "daily")

	var chart coingeckoChart
	if err := p.client.getJSON(ctx, "/coins/"+url.PathEscape(inst.CoinGeckoID)+"/market_chart", query, &chart); err != nil {
		return nil, err
	}
	if len(chart.Prices) == 0 {
		return nil, errors.New("coingecko returned no prices")
	}

	volumes := make(map[string]float64, len(chart.TotalVolumes))
	for _, v := range chart.TotalVolumes {
		volumes[closeDateOfMillis(v[0])] = v[1]
	}

	closes := make(map[string]float64, len(chart.Prices))
	order := make([]string, 0, len(chart.Prices))
	for _, pt := range chart.Prices {
		d := closeDateOfMillis(pt[0])
		if _, seen := closes[d]; !seen {
			order = append(order, d)
		}
		closes[d] = pt[1]
	}

	records := make([]models.DailyRecord, 0, len(order))
	prev := math.NaN()
	for _, d := range order {
		closePrice := closes[d]
		open := prev
		if math.IsNaN(open) {
			open = closePrice
		}
		prev = closePrice
		records = append(records, models.DailyRecord{
			Date:       d,
			Open:       open,
			High:       math.Max(open, closePrice),
			Low:        math.Min(open, closePrice),
			Close:      closePrice,
			Volume:     volumes[d],
			DataSource: p.Name(),
		})
	}
	return records, nil
}

// price reads the spot quote for a coin through the shared normalizer.
func (p *coingeckoProvider) price(ctx context.Context, norm *normalizer.Normalizer, coinID string) (models.TickerRecord, error) {
	query := url.Values{}
	query.Set("ids", coinID)
	query.Set("vs_currencies", "usd")
	query.Set("include_24hr_change", "true")
	query.Set("include_24hr_vol", "true")
	query.Set("include_last_updated_at", "true")

	raw, err := p.client.get(ctx, "/simple/price", query)
	if err != nil {
		return models.TickerRecord{}, err
	}
	return norm.Ticker(models.ExchangeCoinGecko, coinID, raw)
}

// closeDateOfMillis files a daily sample under the day it closes. CoinGecko
// stamps a day's close at the following 00:00 UTC; any other time is the
// running price of its own day.
func closeDateOfMillis(ms float64) string {
	t := time.UnixMilli(int64(ms)).UTC()
	if t.Equal(t.Truncate(24 * time.Hour)) {
		t = t.AddDate(0, 0, -1)
	}
	return t.Format(models.DateLayout)
}
