package history

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"marketfeed/models"
)

// SourceSyntheticName tags records produced by the generator.
const SourceSyntheticName = "synthetic"

// profile seeds the synthetic walk. volatility is a daily percentage.
type profile struct {
	price      float64
	volume     float64
	volatility float64
}

var instrumentProfiles = map[string]profile{
	"BTC-USD":   {43000, 2.8e10, 3.2},
	"ETH-USD":   {2300, 1.2e10, 3.8},
	"BNB-USD":   {310, 9e8, 3.0},
	"SOL-USD":   {100, 2e9, 5.0},
	"XRP-USD":   {0.62, 1.5e9, 4.0},
	"ADA-USD":   {0.5, 4e8, 4.2},
	"DOGE-USD":  {0.08, 6e8, 5.5},
	"DOT-USD":   {7, 2e8, 4.5},
	"AVAX-USD":  {35, 5e8, 5.0},
	"MATIC-USD": {0.85, 4e8, 5.0},
	"LINK-USD":  {15, 4e8, 4.5},
	"LTC-USD":   {70, 4e8, 3.5},

	"AAPL":  {190, 5.5e7, 1.4},
	"MSFT":  {380, 2.5e7, 1.3},
	"GOOGL": {140, 2.8e7, 1.6},
	"AMZN":  {150, 4.5e7, 1.8},
	"TSLA":  {240, 1.1e8, 3.2},
	"NVDA":  {480, 4.5e7, 2.8},
	"META":  {350, 1.8e7, 2.2},
	"JPM":   {170, 1e7, 1.2},

	"EUR-USD": {1.09, 1e9, 0.45},
	"GBP-USD": {1.27, 7e8, 0.55},
	"USD-JPY": {148, 8e8, 0.5},
	"AUD-USD": {0.66, 4e8, 0.6},
	"USD-CAD": {1.35, 4e8, 0.45},
	"USD-CHF": {0.88, 3e8, 0.5},

	"GOLD":   {2030, 2e5, 0.9},
	"SILVER": {23, 9e4, 1.6},
	"OIL":    {75, 4e5, 2.2},
	"NATGAS": {2.6, 1.5e5, 3.5},
	"COPPER": {3.8, 6e4, 1.3},

	"SPX":  {4750, 3.8e9, 0.9},
	"NDX":  {16800, 2.5e9, 1.2},
	"DJI":  {37500, 3e8, 0.8},
	"FTSE": {7700, 6e8, 0.8},
	"DAX":  {16700, 8e7, 0.9},
	"N225": {33500, 1.2e9, 1.1},
}

var assetProfiles = map[models.AssetType]profile{
	models.AssetCrypto:    {100, 1e8, 4},
	models.AssetStock:     {100, 1e7, 1.5},
	models.AssetForex:     {1, 5e8, 0.5},
	models.AssetCommodity: {50, 1e5, 1.5},
	models.AssetIndex:     {5000, 1e9, 1},
}

// edgeOfWeekMultiplier scales Monday and Friday volatility.
const edgeOfWeekMultiplier = 1.3

func profileFor(inst models.Instrument) profile {
	if p, ok := instrumentProfiles[inst.ID]; ok {
		return p
	}
	if p, ok := assetProfiles[inst.AssetType]; ok {
		return p
	}
	return assetProfiles[models.AssetCrypto]
}

// Generator produces placeholder history. Output is structurally
// deterministic but not reproducible unless the random source is seeded.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator uses rnd, or a time-seeded source when rnd is nil.
func NewGenerator(rnd *rand.Rand) *Generator {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rnd: rnd}
}

// Generate walks one record per day of r. A positive anchor replaces the
// profile's starting price.
func (g *Generator) Generate(inst models.Instrument, r DateRange, anchor float64) []models.DailyRecord {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := profileFor(inst)
	price := p.price
	if anchor > 0 {
		price = anchor
	}

	records := make([]models.DailyRecord, 0, r.Len())
	for _, d := range r.Days() {
		vol := dailyVolatility(p.volatility, d, g.rnd.Float64())

		open := price * (1 + (g.rnd.Float64()-0.5)*0.002)
		closePrice := open * (1 + (g.rnd.Float64()-0.5)*2*vol/100)
		band := open * vol / 100
		high := math.Max(open, closePrice) + g.rnd.Float64()*band*0.5
		low := math.Min(open, closePrice) - g.rnd.Float64()*band*0.5
		if floor := math.Min(open, closePrice) * 0.5; low < floor {
			low = floor
		}
		volume := p.volume * (0.5 + g.rnd.Float64()) * (1 + vol/10)

		volatility := (high - low) / open * 100
		performance := (closePrice - open) / open * 100
		records = append(records, models.DailyRecord{
			Date:        d.Format(models.DateLayout),
			Open:        open,
			High:        high,
			Low:         low,
			Close:       closePrice,
			Volume:      volume,
			Volatility:  &volatility,
			Performance: &performance,
			Intraday:    g.intraday(open, high, low, closePrice, volume),
			DataSource:  SourceSyntheticName,
		})
		price = closePrice
	}
	return records
}

// dailyVolatility jitters base into [0.8, 1.2) of itself and widens Mondays
// and Fridays by edgeOfWeekMultiplier.
func dailyVolatility(base float64, d time.Time, jitter float64) float64 {
	vol := base * (0.8 + 0.4*jitter)
	if wd := d.Weekday(); wd == time.Monday || wd == time.Friday {
		vol *= edgeOfWeekMultiplier
	}
	return vol
}

// intraday interpolates 24 hourly samples from open to close inside the
// day's range.
func (g *Generator) intraday(open, high, low, closePrice, volume float64) []models.IntradayPoint {
	points := make([]models.IntradayPoint, 24)
	for h := range points {
		price := open + (closePrice-open)*float64(h)/23 + (g.rnd.Float64()-0.5)*(high-low)*0.5
		points[h] = models.IntradayPoint{
			Hour:   h,
			Price:  math.Min(math.Max(price, low), high),
			Volume: volume / 24 * (0.5 + g.rnd.Float64()),
		}
	}
	return points
}
