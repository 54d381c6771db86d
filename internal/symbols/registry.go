// Package symbols holds the static instrument catalog and the per-venue
// symbol format rules.
package symbols

import (
	"strings"

	"marketfeed/models"
)

type table struct {
	assetType models.AssetType
	category  string
	entries   []models.Instrument
}

// tables are consulted in this order when detecting an asset type.
var tables = []table{
	{
		assetType: models.AssetCrypto,
		category:  "Cryptocurrency",
		entries: []models.Instrument{
			{ID: "BTC-USD", Name: "Bitcoin", Symbol: "BTC", CoinGeckoID: "bitcoin"},
			{ID: "ETH-USD", Name: "Ethereum", Symbol: "ETH", CoinGeckoID: "ethereum"},
			{ID: "BNB-USD", Name: "BNB", Symbol: "BNB", CoinGeckoID: "binancecoin"},
			{ID: "SOL-USD", Name: "Solana", Symbol: "SOL", CoinGeckoID: "solana"},
			{ID: "XRP-USD", Name: "XRP", Symbol: "XRP", CoinGeckoID: "ripple"},
			{ID: "ADA-USD", Name: "Cardano", Symbol: "ADA", CoinGeckoID: "cardano"},
			{ID: "DOGE-USD", Name: "Dogecoin", Symbol: "DOGE", CoinGeckoID: "dogecoin"},
			{ID: "DOT-USD", Name: "Polkadot", Symbol: "DOT", CoinGeckoID: "polkadot"},
			{ID: "AVAX-USD", Name: "Avalanche", Symbol: "AVAX", CoinGeckoID: "avalanche-2"},
			{ID: "MATIC-USD", Name: "Polygon", Symbol: "MATIC", CoinGeckoID: "matic-network"},
			{ID: "LINK-USD", Name: "Chainlink", Symbol: "LINK", CoinGeckoID: "chainlink"},
			{ID: "LTC-USD", Name: "Litecoin", Symbol: "LTC", CoinGeckoID: "litecoin"},
		},
	},
	{
		assetType: models.AssetStock,
		category:  "Stocks",
		entries: []models.Instrument{
			{ID: "AAPL", Name: "Apple Inc.", Symbol: "AAPL"},
			{ID: "MSFT", Name: "Microsoft Corporation", Symbol: "MSFT"},
			{ID: "GOOGL", Name: "Alphabet Inc.", Symbol: "GOOGL"},
			{ID: "AMZN", Name: "Amazon.com Inc.", Symbol: "AMZN"},
			{ID: "TSLA", Name: "Tesla Inc.", Symbol: "TSLA"},
			{ID: "NVDA", Name: "NVIDIA Corporation", Symbol: "NVDA"},
			{ID: "META", Name: "Meta Platforms Inc.", Symbol: "META"},
			{ID: "JPM", Name: "JPMorgan Chase & Co.", Symbol: "JPM"},
		},
	},
	{
		assetType: models.AssetForex,
		category:  "Forex",
		entries: []models.Instrument{
			{ID: "EUR-USD", Name: "Euro / US Dollar", Symbol: "EURUSD"},
			{ID: "GBP-USD", Name: "British Pound / US Dollar", Symbol: "GBPUSD"},
			{ID: "USD-JPY", Name: "US Dollar / Japanese Yen", Symbol: "USDJPY"},
			{ID: "AUD-USD", Name: "Australian Dollar / US Dollar", Symbol: "AUDUSD"},
			{ID: "USD-CAD", Name: "US Dollar / Canadian Dollar", Symbol: "USDCAD"},
			{ID: "USD-CHF", Name: "US Dollar / Swiss Franc", Symbol: "USDCHF"},
		},
	},
	{
		assetType: models.AssetCommodity,
		category:  "Commodities",
		entries: []models.Instrument{
			{ID: "GOLD", Name: "Gold", Symbol: "XAU"},
			{ID: "SILVER", Name: "Silver", Symbol: "XAG"},
			{ID: "OIL", Name: "Crude Oil WTI", Symbol: "WTI"},
			{ID: "NATGAS", Name: "Natural Gas", Symbol: "NG"},
			{ID: "COPPER", Name: "Copper", Symbol: "HG"},
		},
	},
	{
		assetType: models.AssetIndex,
		category:  "Indices",
		entries: []models.Instrument{
			{ID: "SPX", Name: "S&P 500", Symbol: "SPX"},
			{ID: "NDX", Name: "Nasdaq 100", Symbol: "NDX"},
			{ID: "DJI", Name: "Dow Jones Industrial Average", Symbol: "DJI"},
			{ID: "FTSE", Name: "FTSE 100", Symbol: "UKX"},
			{ID: "DAX", Name: "DAX 40", Symbol: "DAX"},
			{ID: "N225", Name: "Nikkei 225", Symbol: "NKY"},
		},
	},
}

// DetectAssetType returns the asset class of symbol, matching ids and symbols
// case-insensitively. Unknown or empty input is treated as crypto.
func DetectAssetType(symbol string) models.AssetType {
	if inst, ok := Lookup(symbol); ok {
		return inst.AssetType
	}
	return models.AssetCrypto
}

// Lookup finds the instrument whose id or symbol matches s.
func Lookup(s string) (models.Instrument, bool) {
	key := compact(s)
	if key == "" {
		return models.Instrument{}, false
	}
	for _, tbl := range tables {
		for _, inst := range tbl.entries {
			if compact(inst.ID) == key || compact(inst.Symbol) == key {
				return tag(inst, tbl), true
			}
		}
	}
	return models.Instrument{}, false
}

// AllInstruments returns every instrument in registry order.
func AllInstruments() []models.Instrument {
	n := 0
	for _, tbl := range tables {
		n += len(tbl.entries)
	}
	out := make([]models.Instrument, 0, n)
	for _, tbl := range tables {
		for _, inst := range tbl.entries {
			out = append(out, tag(inst, tbl))
		}
	}
	return out
}

// InstrumentsOf returns the instruments of one asset class.
func InstrumentsOf(assetType models.AssetType) []models.Instrument {
	for _, tbl := range tables {
		if tbl.assetType != assetType {
			continue
		}
		out := make([]models.Instrument, 0, len(tbl.entries))
		for _, inst := range tbl.entries {
			out = append(out, tag(inst, tbl))
		}
		return out
	}
	return nil
}

func tag(inst models.Instrument, tbl table) models.Instrument {
	inst.AssetType = tbl.assetType
	inst.Category = tbl.category
	return inst
}

func compact(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", "/", "", "_", "", " ", "").Replace(s)
}
