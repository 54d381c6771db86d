package indicators

import (
	"math"
	"math/rand"
	"testing"

	"marketfeed/models"
)

const tolerance = 1e-9

func series(values ...float64) []models.PricePoint {
	out := make([]models.PricePoint, len(values))
	for i, v := range values {
		out[i] = models.PricePoint{Close: v}
	}
	return out
}

func linear(n int) []models.PricePoint {
	out := make([]models.PricePoint, n)
	for i := range out {
		out[i] = models.PricePoint{Close: float64(i + 1)}
	}
	return out
}

func randomWalk(r *rand.Rand, n int) []models.PricePoint {
	out := make([]models.PricePoint, n)
	price := 100.0
	for i := range out {
		price *= 1 + (r.Float64()-0.5)*0.04
		high := price * (1 + r.Float64()*0.01)
		low := price * (1 - r.Float64()*0.01)
		out[i] = models.PricePoint{Close: price, High: high, Low: low, Volume: 1000 + r.Float64()*500}
	}
	return out
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestInsufficientDataReturnsNotOK(t *testing.T) {
	short := linear(3)
	if _, ok := SMA(short, 5); ok {
		t.Errorf("SMA should need 5 points")
	}
	if _, ok := EMA(short, 5); ok {
		t.Errorf("EMA should need 5 points")
	}
	if _, ok := RSI(linear(14), 14); ok {
		t.Errorf("RSI should need period+1 points")
	}
	if _, ok := Bollinger(short, 20, 2); ok {
		t.Errorf("Bollinger should need 20 points")
	}
	if _, ok := MACD(linear(34), 12, 26, 9); ok {
		t.Errorf("MACD should need slow+signal points")
	}
	if _, ok := Stochastic(short, 14, 3); ok {
		t.Errorf("Stochastic should need kPeriod points")
	}
	if _, ok := CCI(short, 20); ok {
		t.Errorf("CCI should need 20 points")
	}
	if _, ok := WilliamsR(short, 14); ok {
		t.Errorf("WilliamsR should need 14 points")
	}
	if _, ok := MFI(linear(14), 14); ok {
		t.Errorf("MFI should need period+1 points")
	}
	if _, ok := ATR(linear(14), 14); ok {
		t.Errorf("ATR should need period+1 points")
	}
	if _, ok := ParabolicSAR(linear(1), 0.02, 0.2); ok {
		t.Errorf("ParabolicSAR should need 2 points")
	}
	if _, ok := Ichimoku(linear(51)); ok {
		t.Errorf("Ichimoku should need 52 points")
	}
	if _, ok := SMA(nil, 1); ok {
		t.Errorf("SMA of empty series should not be ok")
	}
}

func TestSMA(t *testing.T) {
	got, ok := SMA(linear(10), 5)
	if !ok || !near(got, 8) {
		t.Fatalf("SMA = %v, %v; want 8", got, ok)
	}
}

func TestSMAMatchesIndependentMean(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		data := randomWalk(r, 10+r.Intn(60))
		period := 1 + r.Intn(len(data))
		got, ok := SMA(data, period)
		if !ok {
			t.Fatalf("SMA not ok for len %d period %d", len(data), period)
		}
		sum := 0.0
		for i := len(data) - period; i < len(data); i++ {
			sum += data[i].Close
		}
		if want := sum / float64(period); math.Abs(got-want) > tolerance {
			t.Fatalf("SMA = %v want %v", got, want)
		}
	}
}

func TestEMASeedsFromSMA(t *testing.T) {
	got, ok := EMA(series(1, 2, 3, 4, 5), 3)
	if !ok || !near(got, 4) {
		t.Fatalf("EMA = %v, %v; want 4", got, ok)
	}
	got, ok = EMA(series(1, 2, 3), 3)
	if !ok || !near(got, 2) {
		t.Fatalf("EMA of exactly period points = %v; want the SMA 2", got)
	}
}

func TestRSIUsesFirstPeriodDeltas(t *testing.T) {
	got, ok := RSI(series(10, 12, 11), 2)
	want := 100 - 100/3.0
	if !ok || !near(got, want) {
		t.Fatalf("RSI = %v, %v; want %v", got, ok, want)
	}
	got, _ = RSI(series(10, 12, 11, 5, 4, 1), 2)
	if !near(got, want) {
		t.Fatalf("RSI should ignore deltas past the first period, got %v", got)
	}
}

func TestLatestRSIUsesTrailingWindow(t *testing.T) {
	data := series(10, 12, 11, 5, 4, 1)
	got, ok := LatestRSI(data, 2)
	if !ok || got != 0 {
		t.Fatalf("LatestRSI = %v, %v; want 0 over the falling tail", got, ok)
	}
	if whole, _ := RSI(data, 2); near(whole, got) {
		t.Fatalf("LatestRSI should not read the oldest deltas, both gave %v", got)
	}
	if _, ok := LatestRSI(linear(2), 2); ok {
		t.Fatalf("LatestRSI should need period+1 points")
	}
}

func TestAllIndicatorsRSIReadsNewestBar(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	data := randomWalk(r, 40)
	b := AllIndicators(data)
	want, _ := RSI(data[len(data)-DefaultRSIPeriod-1:], DefaultRSIPeriod)
	if b.RSI == nil || !near(*b.RSI, want) {
		t.Fatalf("bundle RSI = %v want %v", b.RSI, want)
	}
}

func TestRSIZeroLossIs100(t *testing.T) {
	got, ok := RSI(series(1, 1, 2, 3, 3, 4), 5)
	if !ok || got != 100 {
		t.Fatalf("RSI = %v, %v; want 100", got, ok)
	}
}

func TestRSIBounded(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for trial := 0; trial < 100; trial++ {
		got, ok := RSI(randomWalk(r, 30), DefaultRSIPeriod)
		if !ok || got < 0 || got > 100 {
			t.Fatalf("RSI out of range: %v %v", got, ok)
		}
	}
}

func TestBollinger(t *testing.T) {
	b, ok := Bollinger(series(2, 4, 4, 4, 5, 5, 7, 9), 8, 2)
	if !ok {
		t.Fatalf("Bollinger not ok")
	}
	if !near(b.Middle, 5) || !near(b.Upper, 9) || !near(b.Lower, 1) {
		t.Fatalf("unexpected bands: %+v", b)
	}
}

func TestLibraryIndicatorsMatchTextbookFormulas(t *testing.T) {
	r := rand.New(rand.NewSource(23))
	const eps = 1e-6
	for trial := 0; trial < 20; trial++ {
		data := randomWalk(r, 40+r.Intn(40))
		period := 5 + r.Intn(15)
		window := data[len(data)-period:]

		ema := 0.0
		for _, p := range data[:period] {
			ema += p.Close / float64(period)
		}
		k := 2 / float64(period+1)
		for _, p := range data[period:] {
			ema = p.Close*k + ema*(1-k)
		}
		if got, ok := EMA(data, period); !ok || math.Abs(got-ema) > eps {
			t.Fatalf("EMA(%d) = %v want %v", period, got, ema)
		}

		mean, tpMean := 0.0, 0.0
		highest, lowest := math.Inf(-1), math.Inf(1)
		tps := make([]float64, len(window))
		for i, p := range window {
			mean += p.Close / float64(period)
			tps[i] = (p.High + p.Low + p.Close) / 3
			tpMean += tps[i] / float64(period)
			highest, lowest = math.Max(highest, p.High), math.Min(lowest, p.Low)
		}
		variance, meanDev := 0.0, 0.0
		for i, p := range window {
			variance += (p.Close - mean) * (p.Close - mean) / float64(period)
			meanDev += math.Abs(tps[i]-tpMean) / float64(period)
		}
		b, ok := Bollinger(data, period, 2)
		if !ok || math.Abs(b.Middle-mean) > eps || math.Abs(b.Upper-(mean+2*math.Sqrt(variance))) > eps {
			t.Fatalf("Bollinger(%d) = %+v want middle %v sd %v", period, b, mean, math.Sqrt(variance))
		}
		cci := (tps[len(tps)-1] - tpMean) / (0.015 * meanDev)
		if got, ok := CCI(data, period); !ok || math.Abs(got-cci) > eps*math.Max(1, math.Abs(cci)) {
			t.Fatalf("CCI(%d) = %v want %v", period, got, cci)
		}
		wr := (highest - window[len(window)-1].Close) / (highest - lowest) * -100
		if got, ok := WilliamsR(data, period); !ok || math.Abs(got-wr) > eps {
			t.Fatalf("WilliamsR(%d) = %v want %v", period, got, wr)
		}

		flow := data[len(data)-period-1:]
		pos, neg := 0.0, 0.0
		for i := 1; i < len(flow); i++ {
			prev := (flow[i-1].High + flow[i-1].Low + flow[i-1].Close) / 3
			cur := (flow[i].High + flow[i].Low + flow[i].Close) / 3
			switch {
			case cur > prev:
				pos += cur * flow[i].Volume
			case cur < prev:
				neg += cur * flow[i].Volume
			}
		}
		mfi := 100.0
		if neg > 0 {
			mfi = 100 * pos / (pos + neg)
		}
		if got, ok := MFI(data, period); !ok || math.Abs(got-mfi) > eps {
			t.Fatalf("MFI(%d) = %v want %v", period, got, mfi)
		}
	}
}

func TestMACDFlatSeries(t *testing.T) {
	flat := make([]models.PricePoint, 35)
	for i := range flat {
		flat[i] = models.PricePoint{Close: 50}
	}
	m, ok := MACD(flat, 12, 26, 9)
	if !ok {
		t.Fatalf("MACD not ok with slow+signal points")
	}
	if !near(m.MACD, 0) || !near(m.Signal, 0) || !near(m.Histogram, 0) {
		t.Fatalf("flat MACD should be zero: %+v", m)
	}
}

func TestMACDRisingSeriesIsPositive(t *testing.T) {
	m, ok := MACD(linear(60), 12, 26, 9)
	if !ok {
		t.Fatalf("MACD not ok")
	}
	if m.MACD <= 0 {
		t.Fatalf("rising series should have positive MACD: %+v", m)
	}
	if !near(m.Histogram, m.MACD-m.Signal) {
		t.Fatalf("histogram mismatch: %+v", m)
	}
}

func TestStochastic(t *testing.T) {
	data := []models.PricePoint{
		{Close: 9, High: 10, Low: 8},
		{Close: 11, High: 12, Low: 9},
		{Close: 10, High: 11, Low: 7},
	}
	s, ok := Stochastic(data, 3, 3)
	if !ok || !near(s.K, 60) {
		t.Fatalf("Stochastic = %+v, %v; want K 60", s, ok)
	}
	if s.D != s.K {
		t.Fatalf("%%D should equal %%K: %+v", s)
	}
	flat, _ := Stochastic(series(5, 5, 5), 3, 3)
	if flat.K != 50 || flat.D != 50 {
		t.Fatalf("flat stochastic should be 50: %+v", flat)
	}
}

func TestCCIFlatIsZero(t *testing.T) {
	got, ok := CCI(series(3, 3, 3, 3), 4)
	if !ok || got != 0 {
		t.Fatalf("CCI = %v, %v; want 0", got, ok)
	}
}

func TestCCI(t *testing.T) {
	got, ok := CCI(series(1, 2, 3), 3)
	// mean 2, mean deviation 2/3, last deviation 1
	want := 1 / (0.015 * (2.0 / 3.0))
	if !ok || !near(got, want) {
		t.Fatalf("CCI = %v want %v", got, want)
	}
}

func TestWilliamsR(t *testing.T) {
	data := []models.PricePoint{
		{Close: 9, High: 10, Low: 8},
		{Close: 11, High: 12, Low: 9},
		{Close: 10, High: 11, Low: 7},
	}
	got, ok := WilliamsR(data, 3)
	if !ok || !near(got, -40) {
		t.Fatalf("WilliamsR = %v, %v; want -40", got, ok)
	}
	flat, _ := WilliamsR(series(4, 4), 2)
	if flat != -50 {
		t.Fatalf("flat WilliamsR = %v want -50", flat)
	}
}

func TestMFI(t *testing.T) {
	rising := []models.PricePoint{
		{Close: 1, Volume: 10},
		{Close: 2, Volume: 10},
		{Close: 3, Volume: 10},
	}
	got, ok := MFI(rising, 2)
	if !ok || got != 100 {
		t.Fatalf("MFI = %v, %v; want 100", got, ok)
	}
	mixed := []models.PricePoint{
		{Close: 2, Volume: 10},
		{Close: 3, Volume: 10},
		{Close: 1, Volume: 30},
	}
	got, _ = MFI(mixed, 2)
	// positive 30, negative 30
	if !near(got, 50) {
		t.Fatalf("MFI = %v want 50", got)
	}
}

func TestATR(t *testing.T) {
	data := []models.PricePoint{
		{Close: 10, High: 10, Low: 10},
		{Close: 11, High: 12, Low: 9},
	}
	got, ok := ATR(data, 1)
	if !ok || !near(got, 3) {
		t.Fatalf("ATR = %v, %v; want 3", got, ok)
	}
}

func TestParabolicSARSingleStep(t *testing.T) {
	up := []models.PricePoint{
		{Close: 10, High: 11, Low: 9},
		{Close: 12, High: 13, Low: 10},
	}
	sar, ok := ParabolicSAR(up, 0.02, 0.2)
	if !ok || sar.Trend != "up" || !near(sar.SAR, 9.08) {
		t.Fatalf("ParabolicSAR = %+v, %v", sar, ok)
	}
	down := []models.PricePoint{
		{Close: 12, High: 13, Low: 10},
		{Close: 10, High: 11, Low: 9},
	}
	sar, _ = ParabolicSAR(down, 0.5, 0.2)
	if sar.Trend != "down" || sar.AF != 0.2 || !near(sar.SAR, 13+0.2*(9-13)) {
		t.Fatalf("ParabolicSAR down = %+v", sar)
	}
}

func TestIchimoku(t *testing.T) {
	ich, ok := Ichimoku(linear(52))
	if !ok {
		t.Fatalf("Ichimoku not ok at 52 points")
	}
	want := IchimokuResult{Tenkan: 48, Kijun: 39.5, SenkouA: 43.75, SenkouB: 26.5, Chikou: 52}
	if ich != want {
		t.Fatalf("Ichimoku = %+v want %+v", ich, want)
	}
}

func TestVIXLike(t *testing.T) {
	if got := VIXLike(series(100), 30); got != NeutralVIX {
		t.Fatalf("single point VIX = %v want %v", got, NeutralVIX)
	}
	if got := VIXLike(nil, 30); got != NeutralVIX {
		t.Fatalf("empty VIX = %v want %v", got, NeutralVIX)
	}

	one, three := 1.0, 3.0
	withVol := []models.PricePoint{{Close: 1, Volatility: &one}, {Close: 1, Volatility: &three}}
	if got, want := VIXLike(withVol, 30), 2*math.Sqrt(252); !near(got, want) {
		t.Fatalf("volatility VIX = %v want %v", got, want)
	}

	if got := VIXLike(series(100, 100, 100, 100), 30); got != 0 {
		t.Fatalf("flat series VIX = %v want 0", got)
	}

	r := rand.New(rand.NewSource(3))
	if got := VIXLike(randomWalk(r, 40), 30); got <= 0 || math.IsNaN(got) {
		t.Fatalf("random walk VIX = %v", got)
	}
}

func TestAllIndicators(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	b := AllIndicators(randomWalk(r, 60))
	if b.SMA5 == nil || b.SMA20 == nil || b.SMA50 == nil || b.EMA12 == nil || b.EMA26 == nil {
		t.Fatalf("moving averages missing: %+v", b)
	}
	if b.RSI == nil || b.Bollinger == nil || b.MACD == nil || b.Stochastic == nil {
		t.Fatalf("oscillators missing: %+v", b)
	}
	if b.CCI == nil || b.WilliamsR == nil || b.MFI == nil || b.ATR == nil || b.ParabolicSAR == nil || b.Ichimoku == nil {
		t.Fatalf("indicators missing: %+v", b)
	}
	if b.Signals.RSIOverbought && b.Signals.RSIOversold {
		t.Fatalf("RSI cannot be both overbought and oversold")
	}

	short := AllIndicators(series(1, 2, 3))
	if short.SMA20 != nil || short.MACD != nil || short.Ichimoku != nil {
		t.Fatalf("short series should leave long indicators nil: %+v", short)
	}
	if short.SMA5 != nil {
		t.Fatalf("SMA5 needs 5 points")
	}
	if short.VIXLike <= 0 {
		t.Fatalf("VIXLike should always be populated: %v", short.VIXLike)
	}
}
