package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"marketfeed/internal/metrics"
	"marketfeed/logger"
	"marketfeed/models"
)

var (
	// ErrInsufficientCoverage marks a provider result with too few of the
	// requested days.
	ErrInsufficientCoverage = errors.New("insufficient coverage")
	// ErrNotIntegrated is returned for asset classes without a real provider.
	ErrNotIntegrated = errors.New("data provider not integrated")
)

// DateRange is an inclusive span of UTC calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange truncates both ends to UTC days and orders them.
func NewDateRange(start, end time.Time) DateRange {
	s, e := day(start), day(end)
	if e.Before(s) {
		s, e = e, s
	}
	return DateRange{Start: s, End: e}
}

// SingleDay is the range covering only t's day.
func SingleDay(t time.Time) DateRange {
	return NewDateRange(t, t)
}

// Len is the number of days in the range.
func (r DateRange) Len() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Days lists every day of the range in order.
func (r DateRange) Days() []time.Time {
	out := make([]time.Time, 0, r.Len())
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// Contains reports whether t's day falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	d := day(t)
	return !d.Before(r.Start) && !d.After(r.End)
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Provider fetches real daily records for an instrument.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, inst models.Instrument, r DateRange) ([]models.DailyRecord, error)
}

// Chain tries providers in order until one covers enough of the range.
type Chain struct {
	providers   []Provider
	minCoverage float64
	log         *logger.Log
}

func NewChain(minCoverage float64, providers ...Provider) *Chain {
	return &Chain{providers: providers, minCoverage: minCoverage, log: logger.GetLogger()}
}

// Providers returns the provider names in try order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Fetch returns the first sufficient result, sorted and clipped to r, with
// the name of the provider that served it. When every provider fails the
// joined errors are returned.
func (c *Chain) Fetch(ctx context.Context, inst models.Instrument, r DateRange) ([]models.DailyRecord, string, error) {
	log := c.log.WithComponent("history").WithFields(logger.Fields{"instrument": inst.ID})
	var errs []error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		start := time.Now()
		records, err := p.Fetch(ctx, inst, r)
		if err == nil {
			records = clip(records, r)
			if cov := coverage(records, r); cov < c.minCoverage {
				err = fmt.Errorf("%w: %d of %d days (%.0f%%)", ErrInsufficientCoverage, len(records), r.Len(), cov*100)
			}
		}
		elapsed := time.Since(start)

		if err != nil {
			outcome := "error"
			if errors.Is(err, ErrInsufficientCoverage) {
				outcome = "insufficient"
			}
			metrics.RecordProviderResult(p.Name(), outcome, elapsed)
			if !errors.Is(err, ErrNotIntegrated) {
				metrics.EmitMetric(c.log, "history", "provider_failure", 1, "counter", logger.Fields{"provider": p.Name()})
			}
			log.WithError(err).WithField("provider", p.Name()).Debug("provider did not serve range")
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}

		metrics.RecordProviderResult(p.Name(), "ok", elapsed)
		logger.LogPerformanceEntry(log, "history", p.Name(), elapsed, logger.Fields{"days": len(records)})
		return records, p.Name(), nil
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no providers configured"))
	}
	return nil, "", errors.Join(errs...)
}

// clip keeps one record per day inside r, sorted by date. Later duplicates win.
func clip(records []models.DailyRecord, r DateRange) []models.DailyRecord {
	byDate := make(map[string]models.DailyRecord, len(records))
	for _, rec := range records {
		d := rec.Day()
		if d.IsZero() || !r.Contains(d) {
			continue
		}
		byDate[rec.Date] = rec
	}
	out := make([]models.DailyRecord, 0, len(byDate))
	for _, rec := range byDate {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func coverage(records []models.DailyRecord, r DateRange) float64 {
	if r.Len() <= 0 {
		return 0
	}
	return float64(len(records)) / float64(r.Len())
}

// notIntegrated stands in for asset classes without a real data source.
type notIntegrated struct {
	assetType models.AssetType
}

func (p notIntegrated) Name() string { return string(p.assetType) + "_unavailable" }

func (p notIntegrated) Fetch(context.Context, models.Instrument, DateRange) ([]models.DailyRecord, error) {
	return nil, fmt.Errorf("%w for %s", ErrNotIntegrated, p.assetType)
}
