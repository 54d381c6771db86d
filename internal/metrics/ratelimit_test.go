package metrics

import (
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"marketfeed/logger"
)

func TestDetectLimit(t *testing.T) {
	cases := []struct {
		venue  string
		status int
		msg    string
		rate   bool
		ban    bool
	}{
		{"binance", http.StatusBadRequest, "Too many requests", true, false},
		{"binance", http.StatusTeapot, "", false, true},
		{"okx", http.StatusForbidden, "IP has been blocked for 60 seconds", false, true},
		{"okx", http.StatusOK, "API frequency limit", true, false},
		{"kucoin", http.StatusBadRequest, "429 Too Many Requests", true, false},
		{"bybit", http.StatusForbidden, "IP rate limit reached", false, true},
		{"coingecko", http.StatusTooManyRequests, "throttled", true, false},
		{"unknown", http.StatusNotFound, "hello world", false, false},
	}
	for _, c := range cases {
		rl, ban := DetectLimit(c.venue, c.status, c.msg)
		if rl != c.rate {
			t.Errorf("%s %q: expected rateLimit %v got %v", c.venue, c.msg, c.rate, rl)
		}
		if ban != c.ban {
			t.Errorf("%s %q: expected ipBan %v got %v", c.venue, c.msg, c.ban, ban)
		}
	}
}

func TestUsedWeight(t *testing.T) {
	binance := http.Header{}
	binance.Set("X-MBX-USED-WEIGHT-1m", "37")
	if got, ok := UsedWeight("binance", binance); !ok || got != 37 {
		t.Fatalf("binance used weight = %d, %v", got, ok)
	}

	kucoin := http.Header{}
	kucoin.Set("gw-ratelimit-limit", "2000")
	kucoin.Set("gw-ratelimit-remaining", "1990")
	if got, ok := UsedWeight("kucoin", kucoin); !ok || got != 10 {
		t.Fatalf("kucoin used weight = %d, %v", got, ok)
	}

	okx := http.Header{}
	okx.Set("Rate-Limit-Limit", "20;w=2")
	okx.Set("Rate-Limit-Remaining", "15")
	if got, ok := UsedWeight("okx", okx); !ok || got != 5 {
		t.Fatalf("okx used weight = %d, %v", got, ok)
	}

	if _, ok := UsedWeight("binance", http.Header{}); ok {
		t.Fatal("expected no weight without headers")
	}
	if _, ok := UsedWeight("coingecko", binance); ok {
		t.Fatal("expected unknown venue to be ignored")
	}
}

func TestReportLimitFromMessageCountsEvents(t *testing.T) {
	log := logger.Logger()
	limited := rateLimitEvents.WithLabelValues("okx", "rate_limit")
	banned := rateLimitEvents.WithLabelValues("okx", "ip_ban")
	beforeLimit, beforeBan := testutil.ToFloat64(limited), testutil.ToFloat64(banned)

	ReportLimitFromMessage(log, "okx", http.StatusTooManyRequests, "Too Many Requests")
	ReportLimitFromMessage(log, "okx", http.StatusNotFound, "instrument not found")

	if got := testutil.ToFloat64(limited); got != beforeLimit+1 {
		t.Fatalf("rate limit events = %v, want %v", got, beforeLimit+1)
	}
	if got := testutil.ToFloat64(banned); got != beforeBan {
		t.Fatalf("ip ban events = %v, want %v", got, beforeBan)
	}
}

func TestReportUsedWeightSetsGauge(t *testing.T) {
	header := http.Header{}
	header.Set("X-MBX-USED-WEIGHT-1m", "120")
	ReportUsedWeight(logger.Logger(), "binance", header)
	if got := testutil.ToFloat64(venueUsedWeight.WithLabelValues("binance")); got != 120 {
		t.Fatalf("used weight gauge = %v, want 120", got)
	}
}
