package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"marketfeed/config"
	"marketfeed/internal/analytics"
	"marketfeed/internal/history"
	"marketfeed/internal/metrics"
	"marketfeed/internal/subscription"
	"marketfeed/internal/symbols"
	"marketfeed/logger"
	"marketfeed/models"
)

// fakeFeeds pushes one record per subscription and counts unsubscribes.
type fakeFeeds struct {
	mu           sync.Mutex
	subscribed   []string
	unsubscribed int
}

func (f *fakeFeeds) record(key string) func() {
	f.mu.Lock()
	f.subscribed = append(f.subscribed, key)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.unsubscribed++
		f.mu.Unlock()
	}
}

func (f *fakeFeeds) SubscribeTicker(symbol string, exchange models.Exchange, cb func(models.TickerRecord)) func() {
	go cb(models.TickerRecord{Exchange: exchange, Symbol: symbol, Price: 101.5, Demo: true})
	return f.record(subscription.Key(exchange, models.ChannelTicker, symbol))
}

func (f *fakeFeeds) SubscribeOrderbook(symbol string, exchange models.Exchange, cb func(models.OrderbookRecord)) func() {
	go cb(models.OrderbookRecord{
		Exchange: exchange,
		Symbol:   symbol,
		Bids:     []models.OrderbookEntry{{Price: 99, Quantity: 1}},
		Asks:     []models.OrderbookEntry{{Price: 101, Quantity: 2}},
	})
	return f.record(subscription.Key(exchange, models.ChannelOrderbook, symbol))
}

func (f *fakeFeeds) Stats() []subscription.KeyStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]subscription.KeyStats, 0, len(f.subscribed))
	for _, k := range f.subscribed {
		out = append(out, subscription.KeyStats{Key: k, State: "demo", Subscribers: 1})
	}
	return out
}

func (f *fakeFeeds) unsubscribes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribed
}

func newTestServer(t *testing.T) (*Server, *gin.Engine, *fakeFeeds) {
	t.Helper()
	cfg := config.Default()
	cfg.History.CryptoProviders = nil
	cfg.Server.Address = ":0"

	feeds := &fakeFeeds{}
	srv := NewServer(&cfg, history.NewService(&cfg), feeds, logger.Logger())
	t.Cleanup(srv.cleanup)

	router, err := srv.buildRouter("marketfeed")
	if err != nil {
		t.Fatalf("buildRouter error: %v", err)
	}
	return srv, router, feeds
}

func serve(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func decode(t *testing.T, res *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(res.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %s: %v", res.Body.String(), err)
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                         "0.0.0.0:8080",
		"  :9090  ":                "0.0.0.0:9090",
		"localhost":                "localhost:8080",
		"0.0.0.0:80":               "0.0.0.0:80",
		"[::1]:443":                "[::1]:443",
		"::1":                      "[::1]:8080",
		"*:8080":                   "0.0.0.0:8080",
		"http://10.0.0.5:8080":     "10.0.0.5:8080",
		"https://10.0.0.5":         "10.0.0.5:8080",
		"http://:7070":             "0.0.0.0:7070",
		"tcp://localhost:5050":     "localhost:5050",
		"https://feed.example.com": "feed.example.com:8080",
	}

	for input, want := range cases {
		if got := normalizeAddress(input); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNewServerNormalizesConfiguredAddress(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Address = ":9000"
	srv := NewServer(&cfg, history.NewService(&cfg), &fakeFeeds{}, logger.Logger())
	defer srv.cleanup()
	if got := srv.Address(); got != "0.0.0.0:9000" {
		t.Fatalf("server address = %q, want %q", got, "0.0.0.0:9000")
	}
}

func TestInstrumentsEndpoint(t *testing.T) {
	_, router, _ := newTestServer(t)

	var all struct {
		Instruments []models.Instrument `json:"instruments"`
	}
	decode(t, serve(t, router, http.MethodGet, "/api/instruments", ""), &all)
	if len(all.Instruments) != len(symbols.AllInstruments()) {
		t.Fatalf("expected %d instruments, got %d", len(symbols.AllInstruments()), len(all.Instruments))
	}

	var forex struct {
		Instruments []models.Instrument `json:"instruments"`
	}
	decode(t, serve(t, router, http.MethodGet, "/api/instruments?type=forex", ""), &forex)
	for _, inst := range forex.Instruments {
		if inst.AssetType != models.AssetForex {
			t.Fatalf("unexpected asset type %s", inst.AssetType)
		}
	}

	if res := serve(t, router, http.MethodGet, "/api/instruments?type=bonds", ""); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", res.Code)
	}
}

func TestAssetTypeEndpoint(t *testing.T) {
	_, router, _ := newTestServer(t)
	for symbol, want := range map[string]models.AssetType{
		"AAPL":     models.AssetStock,
		"eurusd":   models.AssetForex,
		"GOLD":     models.AssetCommodity,
		"whatever": models.AssetCrypto,
	} {
		var body struct {
			AssetType models.AssetType `json:"assetType"`
		}
		decode(t, serve(t, router, http.MethodGet, "/api/asset-type/"+symbol, ""), &body)
		if body.AssetType != want {
			t.Errorf("%s: expected %s, got %s", symbol, want, body.AssetType)
		}
	}
}

func TestHistoryEndpoint(t *testing.T) {
	_, router, _ := newTestServer(t)

	res := serve(t, router, http.MethodGet, "/api/history/BTC-USD?start=2024-01-01&end=2024-01-06", "")
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", res.Code, res.Body.String())
	}
	var body struct {
		Source string                        `json:"source"`
		Data   map[string]models.DailyRecord `json:"data"`
	}
	decode(t, res, &body)
	if body.Source != "synthetic" || len(body.Data) != 6 {
		t.Fatalf("expected 6 synthetic records, got %d from %s", len(body.Data), body.Source)
	}
	if _, ok := body.Data["2024-01-06"]; !ok {
		t.Errorf("missing last day of range")
	}

	for _, q := range []string{"?start=2024-13-01", "?start=2024-02-01&end=2024-01-01", "?start=2000-01-01&end=2024-01-01"} {
		if res := serve(t, router, http.MethodGet, "/api/history/BTC-USD"+q, ""); res.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, res.Code)
		}
	}
}

func TestPeriodEndpoints(t *testing.T) {
	_, router, _ := newTestServer(t)

	var daily models.DailyRecord
	decode(t, serve(t, router, http.MethodGet, "/api/daily/AAPL?date=2024-01-03", ""), &daily)
	if daily.Date != "2024-01-03" {
		t.Errorf("unexpected daily record %+v", daily)
	}

	var weekly models.WeeklyRecord
	decode(t, serve(t, router, http.MethodGet, "/api/weekly/BTC-USD?date=2024-01-04", ""), &weekly)
	if weekly.WeekStart != "2024-01-01" || len(weekly.Days) != 7 {
		t.Errorf("unexpected weekly record %+v", weekly)
	}

	var monthly models.MonthlyRecord
	decode(t, serve(t, router, http.MethodGet, "/api/monthly/GOLD?date=2024-02-10", ""), &monthly)
	if monthly.MonthStart != "2024-02-01" || len(monthly.Days) != 29 {
		t.Errorf("unexpected monthly record %s with %d days", monthly.MonthStart, len(monthly.Days))
	}
}

func TestIndicatorsEndpoint(t *testing.T) {
	_, router, _ := newTestServer(t)
	var body struct {
		Points     int `json:"points"`
		Indicators struct {
			SMA20 *float64 `json:"sma20"`
			SMA50 *float64 `json:"sma50"`
		} `json:"indicators"`
	}
	decode(t, serve(t, router, http.MethodGet, "/api/indicators/ETH-USD?start=2024-01-01&end=2024-01-30", ""), &body)
	if body.Points != 30 {
		t.Fatalf("expected 30 points, got %d", body.Points)
	}
	if body.Indicators.SMA20 == nil || body.Indicators.SMA50 != nil {
		t.Errorf("expected SMA20 without SMA50 over 30 days")
	}
}

func TestCompareEndpoint(t *testing.T) {
	_, router, _ := newTestServer(t)
	var body struct {
		Benchmark  string               `json:"benchmark"`
		Comparison analytics.Comparison `json:"comparison"`
	}
	decode(t, serve(t, router, http.MethodGet, "/api/compare/BTC-USD?benchmark=NDX&start=2024-01-01&end=2024-01-10", ""), &body)
	if body.Benchmark != "NDX" {
		t.Errorf("expected NDX benchmark, got %s", body.Benchmark)
	}
	if body.Comparison.Observations != 9 {
		t.Errorf("expected 9 paired returns, got %d", body.Comparison.Observations)
	}
	if body.Comparison.Outperformance != (body.Comparison.Alpha > 0) {
		t.Errorf("outperformance must follow alpha: %+v", body.Comparison)
	}
}

func TestPriceNotIntegrated(t *testing.T) {
	_, router, _ := newTestServer(t)
	if res := serve(t, router, http.MethodGet, "/api/price/SPX", ""); res.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", res.Code)
	}
}

func TestDataSourceToggle(t *testing.T) {
	srv, router, _ := newTestServer(t)

	var body struct {
		UseRealData bool   `json:"useRealData"`
		Source      string `json:"source"`
	}
	decode(t, serve(t, router, http.MethodPost, "/api/data-source", ""), &body)
	if !body.UseRealData || body.Source != "real" || !srv.UseRealData() {
		t.Fatalf("expected empty POST to flip to real, got %+v", body)
	}

	decode(t, serve(t, router, http.MethodPost, "/api/data-source", `{"useRealData":false}`), &body)
	if body.UseRealData {
		t.Fatalf("expected explicit false, got %+v", body)
	}

	decode(t, serve(t, router, http.MethodGet, "/api/data-source", ""), &body)
	if body.UseRealData || body.Source != "synthetic" {
		t.Fatalf("unexpected data source %+v", body)
	}

	if res := serve(t, router, http.MethodPost, "/api/data-source", `{"useRealData":`); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", res.Code)
	}
}

func TestMetricsEndpointEmitsStoredMetrics(t *testing.T) {
	srv, router, _ := newTestServer(t)
	log := logger.Logger()

	metrics.EmitMetric(log, "subscription", "demo_fallback", 1, "counter", logger.Fields{"exchange": "binance"})

	res := serve(t, router, http.MethodGet, "/api/metrics", "")
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", res.Code)
	}
	if len(srv.metricStore.snapshot()) == 0 {
		t.Fatalf("metrics store empty")
	}
	var body struct {
		Metrics []struct {
			Component string                 `json:"component"`
			Name      string                 `json:"name"`
			Value     interface{}            `json:"value"`
			Type      string                 `json:"type"`
			Fields    map[string]interface{} `json:"fields"`
		} `json:"metrics"`
	}
	decode(t, res, &body)
	found := false
	for _, m := range body.Metrics {
		if m.Name != "demo_fallback" {
			continue
		}
		found = true
		if m.Component != "subscription" || m.Type != "counter" || m.Value != float64(1) || m.Fields["exchange"] != "binance" {
			t.Errorf("unexpected metric payload: %+v", m)
		}
	}
	if !found {
		t.Errorf("expected emitted metric in response: %s", res.Body.String())
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	_, router, _ := newTestServer(t)
	res := serve(t, router, http.MethodGet, "/metrics", "")
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "go_goroutines") {
		t.Fatalf("unexpected exposition (%d): %.200s", res.Code, res.Body.String())
	}
}

func TestRequestIDHeader(t *testing.T) {
	_, router, _ := newTestServer(t)
	res := serve(t, router, http.MethodGet, "/healthz", "")
	if res.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc" {
		t.Fatalf("expected caller request id to be kept, got %q", got)
	}
}

func TestStreamRequiresValidParams(t *testing.T) {
	_, router, _ := newTestServer(t)
	if res := serve(t, router, http.MethodGet, "/ws/ticker", ""); res.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without symbol, got %d", res.Code)
	}
	if res := serve(t, router, http.MethodGet, "/ws/orderbook?symbol=BTCUSDT&exchange=kraken", ""); res.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unsupported exchange, got %d", res.Code)
	}
}

func dialStream(t *testing.T, router http.Handler, path string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+path, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	return conn
}

func TestTickerStreamBridge(t *testing.T) {
	_, router, feeds := newTestServer(t)
	conn := dialStream(t, router, "/ws/ticker?symbol=BTCUSDT&exchange=okx")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var tick models.TickerRecord
	if err := conn.ReadJSON(&tick); err != nil {
		t.Fatalf("read ticker: %v", err)
	}
	if tick.Exchange != models.ExchangeOKX || tick.Symbol != "BTCUSDT" || tick.Price != 101.5 {
		t.Fatalf("unexpected ticker %+v", tick)
	}

	var stats struct {
		Subscriptions []subscription.KeyStats `json:"subscriptions"`
	}
	decode(t, serve(t, router, http.MethodGet, "/api/subscriptions", ""), &stats)
	if len(stats.Subscriptions) != 1 || stats.Subscriptions[0].Key != subscription.Key(models.ExchangeOKX, models.ChannelTicker, "BTCUSDT") {
		t.Fatalf("unexpected subscriptions %+v", stats.Subscriptions)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for feeds.unsubscribes() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("closing the browser socket did not unsubscribe")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOrderbookStreamEndsOnShutdown(t *testing.T) {
	srv, router, feeds := newTestServer(t)
	conn := dialStream(t, router, "/ws/orderbook?symbol=ETH-USD")
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var book models.OrderbookRecord
	if err := conn.ReadJSON(&book); err != nil {
		t.Fatalf("read orderbook: %v", err)
	}
	if book.Exchange != models.ExchangeBinance || len(book.Bids) != 1 || book.Asks[0].Price != 101 {
		t.Fatalf("unexpected orderbook %+v", book)
	}

	srv.closeStreams()
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for feeds.unsubscribes() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("server shutdown did not unsubscribe")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
