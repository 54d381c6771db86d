package history

import (
	"context"
	"fmt"
	"strings"

	"marketfeed/models"
)

// fxLatest is the open.er-api.com /latest/{base} payload.
type fxLatest struct {
	Result string             `json:"result"`
	Base   string             `json:"base_code"`
	Rates  map[string]float64 `json:"rates"`
}

// fxClient reads spot FX rates used to anchor synthetic forex history.
type fxClient struct {
	client *restClient
}

// splitFX splits a six letter pair such as EURUSD.
func splitFX(symbol string) (base, quote string, ok bool) {
	s := strings.ToUpper(strings.NewReplacer("-", "", "/", "").Replace(symbol))
	if len(s) != 6 {
		return "", "", false
	}
	return s[:3], s[3:], true
}

// rate returns the price of one unit of the pair's base in its quote.
func (c *fxClient) rate(ctx context.Context, inst models.Instrument) (float64, error) {
	base, quote, ok := splitFX(inst.Symbol)
	if !ok {
		return 0, fmt.Errorf("not an fx pair: %s", inst.Symbol)
	}

	var latest fxLatest
	if err := c.client.getJSON(ctx, "/"+base, nil, &latest); err != nil {
		return 0, err
	}
	if latest.Result != "success" {
		return 0, fmt.Errorf("fx endpoint returned %q", latest.Result)
	}
	r, ok := latest.Rates[quote]
	if !ok || r <= 0 {
		return 0, fmt.Errorf("no %s rate for %s", quote, base)
	}
	return r, nil
}
