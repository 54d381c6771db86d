package models

import (
	"fmt"
	"strings"
	"time"
)

// Exchange identifies a live market-data venue.
type Exchange string

const (
	ExchangeBinance  Exchange = "binance"
	ExchangeCoinbase Exchange = "coinbase"
	ExchangeOKX      Exchange = "okx"

	// ExchangeCoinGecko is a pull-only aggregator; it has no stream.
	ExchangeCoinGecko Exchange = "coingecko"
)

// Exchanges lists the venues with a streaming adapter.
var Exchanges = []Exchange{ExchangeBinance, ExchangeCoinbase, ExchangeOKX}

// ParseExchange maps a venue name to an Exchange. An empty name selects Binance.
func ParseExchange(s string) (Exchange, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ExchangeBinance, nil
	}
	for _, e := range Exchanges {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("unsupported exchange '%s'", s)
}

// Channel is a live stream kind.
type Channel string

const (
	ChannelTicker    Channel = "ticker"
	ChannelOrderbook Channel = "orderbook"
)

// TickerRecord is the canonical 24h ticker pushed to subscribers.
type TickerRecord struct {
	Exchange  Exchange  `json:"exchange"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change24h"`
	Volume24h float64   `json:"volume24h"`
	High24h   float64   `json:"high24h"`
	Low24h    float64   `json:"low24h"`
	Timestamp time.Time `json:"timestamp"`
	Demo      bool      `json:"demo,omitempty"`
}

// OrderbookEntry represents a single price level in the orderbook
type OrderbookEntry struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderbookRecord is a depth-limited book: bids descending, asks ascending.
type OrderbookRecord struct {
	Exchange  Exchange         `json:"exchange"`
	Symbol    string           `json:"symbol"`
	Timestamp time.Time        `json:"timestamp"`
	Bids      []OrderbookEntry `json:"bids"`
	Asks      []OrderbookEntry `json:"asks"`
	Demo      bool             `json:"demo,omitempty"`
}
