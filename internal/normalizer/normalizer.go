// Package normalizer turns raw exchange frames into canonical ticker and
// orderbook records.
package normalizer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketfeed/internal/symbols"
	"marketfeed/models"
)

// DefaultDepth is the number of levels kept per orderbook side.
const DefaultDepth = 10

var (
	// ErrIgnored marks a well-formed frame that carries no market data,
	// such as a subscription ack or a heartbeat.
	ErrIgnored = errors.New("frame carries no market data")
	// ErrMalformed marks a frame that does not have the expected shape.
	ErrMalformed = errors.New("malformed frame")
	// ErrUnsupported is returned for an exchange/channel pair with no parser.
	ErrUnsupported = errors.New("unsupported exchange channel")
)

type tickerParser func(symbol string, raw []byte) (models.TickerRecord, error)
type orderbookParser func(symbol string, raw []byte) (bookSides, error)

type parserSet struct {
	ticker    tickerParser
	orderbook orderbookParser
}

var parsers = map[models.Exchange]parserSet{
	models.ExchangeBinance:   {ticker: binanceTicker, orderbook: binanceOrderbook},
	models.ExchangeCoinbase:  {ticker: coinbaseTicker, orderbook: coinbaseOrderbook},
	models.ExchangeOKX:       {ticker: okxTicker, orderbook: okxOrderbook},
	models.ExchangeCoinGecko: {ticker: coingeckoTicker},
}

// Normalizer converts frames for every supported exchange. It is stateless
// apart from the configured depth and safe for concurrent use.
type Normalizer struct {
	depth int
}

func New(depth int) *Normalizer {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Normalizer{depth: depth}
}

// Ticker parses a ticker frame. Records carry the subscribed symbol in
// canonical form whatever the venue calls the instrument.
func (n *Normalizer) Ticker(exchange models.Exchange, symbol string, raw []byte) (models.TickerRecord, error) {
	set, ok := parsers[exchange]
	if !ok || set.ticker == nil {
		return models.TickerRecord{}, fmt.Errorf("%w: %s ticker", ErrUnsupported, exchange)
	}
	rec, err := set.ticker(symbol, raw)
	if err != nil {
		return models.TickerRecord{}, err
	}
	rec.Exchange = exchange
	rec.Symbol = canonicalSymbol(exchange, symbol, rec.Symbol)
	return rec, nil
}

// Orderbook parses an orderbook frame into a sorted, depth-limited record.
func (n *Normalizer) Orderbook(exchange models.Exchange, symbol string, raw []byte) (models.OrderbookRecord, error) {
	set, ok := parsers[exchange]
	if !ok || set.orderbook == nil {
		return models.OrderbookRecord{}, fmt.Errorf("%w: %s orderbook", ErrUnsupported, exchange)
	}
	sides, err := set.orderbook(symbol, raw)
	if err != nil {
		return models.OrderbookRecord{}, err
	}
	return models.OrderbookRecord{
		Exchange:  exchange,
		Symbol:    canonicalSymbol(exchange, symbol, sides.symbol),
		Timestamp: sides.timestamp,
		Bids:      n.finish(sides.bids, true),
		Asks:      n.finish(sides.asks, false),
	}, nil
}

// canonicalSymbol prefers the subscribed symbol so live and demo records of
// one subscription agree. The venue's own name is the fallback.
func canonicalSymbol(exchange models.Exchange, subscribed, venue string) string {
	if strings.TrimSpace(subscribed) != "" {
		return symbols.ToCanonical(string(exchange), subscribed)
	}
	return symbols.ToCanonical(string(exchange), venue)
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// level keeps decimal precision until the side is sorted.
type level struct {
	price    decimal.Decimal
	quantity decimal.Decimal
}

func (n *Normalizer) finish(levels []level, descending bool) []models.OrderbookEntry {
	sort.SliceStable(levels, func(i, j int) bool {
		if descending {
			return levels[i].price.GreaterThan(levels[j].price)
		}
		return levels[i].price.LessThan(levels[j].price)
	})
	if len(levels) > n.depth {
		levels = levels[:n.depth]
	}
	out := make([]models.OrderbookEntry, len(levels))
	for i, l := range levels {
		out[i] = models.OrderbookEntry{Price: l.price.InexactFloat64(), Quantity: l.quantity.InexactFloat64()}
	}
	return out
}

// parseLevels reads [[price, qty, ...], ...] string arrays. Zero-quantity
// levels are skipped.
func parseLevels(raw [][]string) ([]level, error) {
	out := make([]level, 0, len(raw))
	for _, entry := range raw {
		if len(entry) < 2 {
			return nil, malformed("price level has %d fields", len(entry))
		}
		price, err := decimal.NewFromString(entry[0])
		if err != nil {
			return nil, malformed("price %q", entry[0])
		}
		qty, err := decimal.NewFromString(entry[1])
		if err != nil {
			return nil, malformed("quantity %q", entry[1])
		}
		if qty.IsZero() {
			continue
		}
		out = append(out, level{price: price, quantity: qty})
	}
	return out, nil
}

// number parses a numeric string field; an empty string is malformed.
func number(field, s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, malformed("%s is empty", field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, malformed("%s %q", field, s)
	}
	return d.InexactFloat64(), nil
}

// optionalNumber parses s when present and returns 0 otherwise.
func optionalNumber(field, s string) (float64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return number(field, s)
}

// percentChange returns (price-open)/open*100, or 0 when open is 0.
func percentChange(price, open float64) float64 {
	if open == 0 {
		return 0
	}
	return (price - open) / open * 100
}

type bookSides struct {
	symbol    string
	timestamp time.Time
	bids      []level
	asks      []level
}
