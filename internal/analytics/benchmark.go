// Package analytics compares an instrument against a benchmark.
package analytics

import "math"

const (
	// DefaultBeta is reported when the series cannot support a regression.
	DefaultBeta = 1.0
	// DefaultCorrelation is reported alongside DefaultBeta.
	DefaultCorrelation = 0.0
)

// Performance is a period return in percent.
type Performance struct {
	Performance float64 `json:"performance"`
}

// Comparison is the result of CalculateBenchmarkComparison.
type Comparison struct {
	Alpha          float64 `json:"alpha"`
	Beta           float64 `json:"beta"`
	Correlation    float64 `json:"correlation"`
	Outperformance bool    `json:"outperformance"`
	Observations   int     `json:"observations"`
}

// CalculateBenchmarkComparison reports alpha as the plain difference in
// performance. Beta and correlation come from the paired daily returns of the
// two close series, aligned on their most recent points.
func CalculateBenchmarkComparison(asset, benchmark Performance, assetSeries, benchSeries []float64) Comparison {
	alpha := asset.Performance - benchmark.Performance
	c := Comparison{
		Alpha:          alpha,
		Beta:           DefaultBeta,
		Correlation:    DefaultCorrelation,
		Outperformance: alpha > 0,
	}

	a, b := Returns(assetSeries), Returns(benchSeries)
	n := min(len(a), len(b))
	if n < 2 {
		return c
	}
	a, b = a[len(a)-n:], b[len(b)-n:]
	c.Observations = n

	ma, mb := mean(a), mean(b)
	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varB == 0 {
		return c
	}
	c.Beta = cov / varB
	if varA > 0 {
		c.Correlation = cov / math.Sqrt(varA*varB)
	}
	return c
}

// Returns converts closes to simple period returns. Points following a zero
// close are skipped.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		out = append(out, (closes[i]-closes[i-1])/closes[i-1])
	}
	return out
}

// PeriodPerformance is the percent change from the first to the last close.
func PeriodPerformance(closes []float64) Performance {
	if len(closes) < 2 || closes[0] == 0 {
		return Performance{}
	}
	return Performance{Performance: (closes[len(closes)-1] - closes[0]) / closes[0] * 100}
}

func mean(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
