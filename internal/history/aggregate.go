package history

import (
	"sort"
	"time"

	"marketfeed/models"
)

// WeekStart is the Monday on or before t.
func WeekStart(t time.Time) time.Time {
	d := day(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// MonthStart is the first day of t's month.
func MonthStart(t time.Time) time.Time {
	d := day(t)
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AggregateWeekly buckets daily records by Monday-started week.
func AggregateWeekly(daily map[string]models.DailyRecord) map[string]models.WeeklyRecord {
	out := make(map[string]models.WeeklyRecord)
	for key, days := range bucket(daily, WeekStart) {
		out[key] = models.WeeklyRecord{WeekStart: key, PeriodRecord: aggregate(days)}
	}
	return out
}

// AggregateMonthly buckets daily records by calendar month.
func AggregateMonthly(daily map[string]models.DailyRecord) map[string]models.MonthlyRecord {
	out := make(map[string]models.MonthlyRecord)
	for key, days := range bucket(daily, MonthStart) {
		out[key] = models.MonthlyRecord{MonthStart: key, PeriodRecord: aggregate(days)}
	}
	return out
}

func bucket(daily map[string]models.DailyRecord, start func(time.Time) time.Time) map[string][]models.DailyRecord {
	buckets := make(map[string][]models.DailyRecord)
	for _, rec := range daily {
		d := rec.Day()
		if d.IsZero() {
			continue
		}
		key := start(d).Format(models.DateLayout)
		buckets[key] = append(buckets[key], rec)
	}
	for _, days := range buckets {
		sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	}
	return buckets
}

// aggregate folds date-ordered days. Volatility and liquidity are means over
// the days that carry them.
func aggregate(days []models.DailyRecord) models.PeriodRecord {
	first, last := days[0], days[len(days)-1]
	p := models.PeriodRecord{
		Open:  first.Open,
		High:  first.High,
		Low:   first.Low,
		Close: last.Close,
		Days:  make([]string, 0, len(days)),
	}

	var volSum, liqSum float64
	var volN, liqN int
	for _, d := range days {
		if d.High > p.High {
			p.High = d.High
		}
		if d.Low < p.Low {
			p.Low = d.Low
		}
		p.Volume += d.Volume
		if d.Volatility != nil {
			volSum += *d.Volatility
			volN++
		}
		if d.Liquidity != nil {
			liqSum += *d.Liquidity
			liqN++
		}
		p.Days = append(p.Days, d.Date)
	}
	if volN > 0 {
		p.Volatility = volSum / float64(volN)
	}
	if liqN > 0 {
		p.Liquidity = liqSum / float64(liqN)
	}
	if p.Open != 0 {
		p.Performance = (p.Close - p.Open) / p.Open * 100
	}
	return p
}
