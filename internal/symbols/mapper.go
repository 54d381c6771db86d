package symbols

import "strings"

// quoteAssets are recognised quote currencies, longest first so USDT wins over USD.
var quoteAssets = []string{"USDT", "USDC", "BUSD", "USD", "EUR", "GBP", "BTC", "ETH"}

// ToCanonical converts various exchange-specific symbol formats to the
// canonical BTCUSDT style: uppercase, no separators, BTC instead of XBT.
func ToCanonical(exchange, sym string) string {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	switch strings.ToLower(exchange) {
	case "binance":
		switch sym {
		case "1000BONKUSDT":
			sym = "BONKUSDT"
		case "1000PEPEUSDT":
			sym = "PEPEUSDT"
		case "1000SHIBUSDT":
			sym = "SHIBUSDT"
		}
	case "bybit":
		switch sym {
		case "1000BONKUSDT":
			sym = "BONKUSDT"
		case "1000PEPEUSDT":
			sym = "PEPEUSDT"
		case "SHIB1000USDT":
			sym = "SHIBUSDT"
		}
	case "kucoin":
		sym = strings.ReplaceAll(sym, "-", "")
		if strings.HasSuffix(sym, "USDTM") {
			sym = strings.TrimSuffix(sym, "M")
		}
	case "okx":
		sym = strings.TrimSuffix(sym, "-SWAP")
	}
	sym = strings.NewReplacer("-", "", "/", "", "_", "").Replace(sym)
	if strings.HasPrefix(sym, "XBT") {
		sym = "BTC" + sym[3:]
	}
	return sym
}

// SplitPair splits a canonical symbol into base and quote. A bare base such
// as "BTC" is quoted in USD.
func SplitPair(canonical string) (base, quote string) {
	canonical = ToCanonical("", canonical)
	for _, q := range quoteAssets {
		if len(canonical) > len(q) && strings.HasSuffix(canonical, q) {
			return strings.TrimSuffix(canonical, q), q
		}
	}
	return canonical, "USD"
}

// FormatFor renders sym in the wire format the venue expects:
//
//	binance, bybit  btcusdt / BTCUSDT (USD quoted as USDT)
//	coinbase        BTC-USD (USDT quoted as USD)
//	okx, kucoin     BTC-USDT (USD quoted as USDT)
func FormatFor(venue, sym string) string {
	base, quote := SplitPair(sym)
	switch strings.ToLower(venue) {
	case "binance":
		return strings.ToLower(base + stableQuote(quote))
	case "bybit":
		return base + stableQuote(quote)
	case "coinbase":
		if quote == "USDT" || quote == "USDC" || quote == "BUSD" {
			quote = "USD"
		}
		return base + "-" + quote
	case "okx", "kucoin":
		return base + "-" + stableQuote(quote)
	default:
		return base + quote
	}
}

func stableQuote(quote string) string {
	if quote == "USD" {
		return "USDT"
	}
	return quote
}
