package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"marketfeed/config"
	"marketfeed/internal/metrics"
	"marketfeed/logger"
	"marketfeed/models"
)

// restClient issues rate limited GET requests against one venue's base URL.
type restClient struct {
	venue   string
	base    string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

func newRESTClient(venue, base string, hc *http.Client, limiter *rate.Limiter) *restClient {
	return &restClient{
		venue:   venue,
		base:    strings.TrimRight(base, "/"),
		http:    hc,
		limiter: limiter,
		log:     logger.GetLogger(),
	}
}

func newLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func (c *restClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	metrics.ReportUsedWeight(c.log, c.venue, resp.Header)
	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		metrics.ReportLimitFromMessage(c.log, c.venue, resp.StatusCode, snippet)
		return nil, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, snippet)
	}
	return body, nil
}

func (c *restClient) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	body, err := c.get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func parseDecimal(field, s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d.InexactFloat64(), nil
}

// candle builds a record from venue kline strings.
func candle(ts time.Time, open, high, low, closePrice, volume, source string) (models.DailyRecord, error) {
	var vals [5]float64
	for i, f := range []struct{ name, value string }{
		{"open", open}, {"high", high}, {"low", low}, {"close", closePrice}, {"volume", volume},
	} {
		v, err := parseDecimal(f.name, f.value)
		if err != nil {
			return models.DailyRecord{}, err
		}
		vals[i] = v
	}
	return models.DailyRecord{
		Date:       ts.UTC().Format(models.DateLayout),
		Open:       vals[0],
		High:       vals[1],
		Low:        vals[2],
		Close:      vals[3],
		Volume:     vals[4],
		DataSource: source,
	}, nil
}

func msString(s string) (time.Time, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return time.UnixMilli(d.IntPart()).UTC(), nil
}
