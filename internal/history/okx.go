package history

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"marketfeed/internal/symbols"
	"marketfeed/models"
)

// okxMaxCandles is the page size limit of /api/v5/market/candles.
const okxMaxCandles = 300

type okxCandles struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}

// okxProvider reads UTC daily candles from OKX.
type okxProvider struct {
	client *restClient
}

func (p *okxProvider) Name() string { return "okx" }

func (p *okxProvider) Fetch(ctx context.Context, inst models.Instrument, r DateRange) ([]models.DailyRecord, error) {
	query := url.Values{}
	query.Set("instId", symbols.FormatFor("okx", inst.Symbol))
	query.Set("bar", "1Dutc")
	query.Set("limit", strconv.Itoa(min(r.Len(), okxMaxCandles)))
	// after/before are exclusive bounds: older than after, newer than before.
	query.Set("after", strconv.FormatInt(r.End.AddDate(0, 0, 1).UnixMilli(), 10))
	query.Set("before", strconv.FormatInt(r.Start.UnixMilli()-1, 10))

	var resp okxCandles
	if err := p.client.getJSON(ctx, "/api/v5/market/candles", query, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "0" {
		return nil, fmt.Errorf("okx error %s: %s", resp.Code, resp.Msg)
	}

	records := make([]models.DailyRecord, 0, len(resp.Data))
	for _, row := range resp.Data {
		if len(row) < 6 {
			return nil, fmt.Errorf("okx candle has %d fields", len(row))
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
