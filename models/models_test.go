package models

import "testing"

func TestParseExchange(t *testing.T) {
	cases := map[string]Exchange{
		"":         ExchangeBinance,
		"Binance":  ExchangeBinance,
		" okx ":    ExchangeOKX,
		"COINBASE": ExchangeCoinbase,
	}
	for in, want := range cases {
		got, err := ParseExchange(in)
		if err != nil {
			t.Fatalf("ParseExchange(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseExchange(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseExchange("kraken"); err == nil {
		t.Fatalf("expected error for unsupported exchange")
	}
}

func TestParseAssetType(t *testing.T) {
	if got, ok := ParseAssetType("Forex"); !ok || got != AssetForex {
		t.Fatalf("ParseAssetType(Forex) = %s, %v", got, ok)
	}
	if _, ok := ParseAssetType("bond"); ok {
		t.Fatalf("bond should not parse")
	}
}

func TestDailyRecordDay(t *testing.T) {
	r := DailyRecord{Date: "2024-03-04"}
	if got := r.Day(); got.Weekday().String() != "Monday" {
		t.Fatalf("2024-03-04 should be a Monday, got %s", got.Weekday())
	}
	if !(DailyRecord{Date: "bad"}).Day().IsZero() {
		t.Fatalf("malformed date should yield zero time")
	}
}

func TestPricePointsFromDaily(t *testing.T) {
	vol := 2.5
	points := PricePointsFromDaily([]DailyRecord{{Close: 10, High: 11, Low: 9, Volume: 100, Volatility: &vol}})
	if len(points) != 1 || points[0].Close != 10 || *points[0].Volatility != 2.5 {
		t.Fatalf("unexpected points: %+v", points)
	}
	if !points[0].HasRange() {
		t.Fatalf("expected range")
	}
}
