package subscription

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"marketfeed/internal/symbols"
	"marketfeed/models"
)

// demoBasePrices anchors the synthetic walk per base asset.
var demoBasePrices = map[string]float64{
	"BTC":   43000,
	"ETH":   2300,
	"BNB":   310,
	"SOL":   100,
	"XRP":   0.62,
	"ADA":   0.5,
	"DOGE":  0.08,
	"DOT":   7,
	"AVAX":  35,
	"MATIC": 0.85,
	"LINK":  15,
	"LTC":   70,
}

const (
	defaultDemoPrice = 100.0
	demoStep         = 0.005 // max relative move per push
	demoBand         = 0.10  // walk stays within this fraction of base
	demoTick         = 0.0002
)

// demoFeed synthesizes plausible records around a fixed base price. It is
// owned by one key's goroutine and is not safe for concurrent use.
type demoFeed struct {
	exchange models.Exchange
	symbol   string
	depth    int
	base     float64
	price    float64
	rnd      *rand.Rand
}

func newDemoFeed(exchange models.Exchange, symbol string, depth int) *demoFeed {
	base, _ := symbols.SplitPair(symbol)
	price, ok := demoBasePrices[base]
	if !ok {
		price = defaultDemoPrice
	}
	h := fnv.New64a()
	h.Write([]byte(string(exchange) + symbol))
	return &demoFeed{
		exchange: exchange,
		symbol:   symbol,
		depth:    depth,
		base:     price,
		price:    price,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(h.Sum64()))),
	}
}

func (d *demoFeed) step() float64 {
	next := d.price * (1 + (d.rnd.Float64()-0.5)*2*demoStep)
	d.price = math.Min(math.Max(next, d.base*(1-demoBand)), d.base*(1+demoBand))
	return d.price
}

func (d *demoFeed) ticker(now time.Time) models.TickerRecord {
	price := d.step()
	return models.TickerRecord{
		Exchange:  d.exchange,
		Symbol:    d.symbol,
		Price:     price,
		Change24h: (price - d.base) / d.base * 100,
		Volume24h: 1000 + d.rnd.Float64()*9000,
		High24h:   math.Max(price, d.base) * 1.01,
		Low24h:    math.Min(price, d.base) * 0.99,
		Timestamp: now,
		Demo:      true,
	}
}

func (d *demoFeed) orderbook(now time.Time) models.OrderbookRecord {
	price := d.step()
	tick := price * demoTick
	rec := models.OrderbookRecord{
		Exchange:  d.exchange,
		Symbol:    d.symbol,
		Timestamp: now,
		Bids:      make([]models.OrderbookEntry, d.depth),
		Asks:      make([]models.OrderbookEntry, d.depth),
		Demo:      true,
	}
	for i := 0; i < d.depth; i++ {
		offset := float64(i+1) * tick
		rec.Bids[i] = models.OrderbookEntry{Price: price - offset, Quantity: d.quantity()}
		rec.Asks[i] = models.OrderbookEntry{Price: price + offset, Quantity: d.quantity()}
	}
	return rec
}

func (d *demoFeed) quantity() float64 {
	return math.Round((0.1+d.rnd.Float64()*5)*1000) / 1000
}
