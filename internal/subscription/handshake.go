package subscription

import (
	"strings"

	"marketfeed/models"
)

// route describes how to reach one venue's stream.
type route struct {
	// url builds the socket URL from the configured base.
	url func(base, wire string, channel models.Channel) string
	// subscribe returns the message sent once the socket opens, or nil.
	subscribe func(wire string, channel models.Channel) interface{}
	// ping is written as a text keepalive; nil uses protocol pings.
	ping []byte
}

var routes = map[models.Exchange]route{
	models.ExchangeBinance:  {url: binanceURL},
	models.ExchangeCoinbase: {url: plainURL, subscribe: coinbaseSubscribe},
	models.ExchangeOKX:      {url: plainURL, subscribe: okxSubscribe, ping: []byte("ping")},
}

// Binance routes by path, so no message is needed.
func binanceURL(base, wire string, channel models.Channel) string {
	stream := wire + "@ticker"
	if channel == models.ChannelOrderbook {
		stream = wire + "@depth20@100ms"
	}
	return strings.TrimRight(base, "/") + "/" + stream
}

func plainURL(base, _ string, _ models.Channel) string {
	return base
}

type coinbaseSubscription struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

func coinbaseSubscribe(wire string, channel models.Channel) interface{} {
	name := "ticker"
	if channel == models.ChannelOrderbook {
		name = "level2"
	}
	return coinbaseSubscription{Type: "subscribe", ProductIDs: []string{wire}, Channels: []string{name}}
}

type okxArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type okxSubscription struct {
	Op   string   `json:"op"`
	Args []okxArg `json:"args"`
}

func okxSubscribe(wire string, channel models.Channel) interface{} {
	name := "tickers"
	if channel == models.ChannelOrderbook {
		name = "books5"
	}
	return okxSubscription{Op: "subscribe", Args: []okxArg{{Channel: name, InstID: wire}}}
}
