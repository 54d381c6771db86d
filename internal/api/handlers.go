package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"marketfeed/internal/analytics"
	"marketfeed/internal/history"
	"marketfeed/internal/indicators"
	"marketfeed/internal/symbols"
	"marketfeed/models"
)

const (
	defaultRangeDays = 30
	maxRangeDays     = 730
	defaultBenchmark = "SPX"
)

// instrumentFor resolves an id through the registry. Unknown ids become an
// ad hoc instrument of the detected asset type.
func instrumentFor(id string) models.Instrument {
	if inst, ok := symbols.Lookup(id); ok {
		return inst
	}
	id = strings.ToUpper(strings.TrimSpace(id))
	return models.Instrument{ID: id, Name: id, Symbol: id, AssetType: symbols.DetectAssetType(id)}
}

func parseDate(c *gin.Context, key string, def time.Time) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	t, err := time.Parse(models.DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD", key)
	}
	return t, nil
}

// dateRange reads start and end, defaulting to the trailing 30 days.
func dateRange(c *gin.Context) (history.DateRange, error) {
	end, err := parseDate(c, "end", time.Now().UTC())
	if err != nil {
		return history.DateRange{}, err
	}
	start, err := parseDate(c, "start", end.AddDate(0, 0, -(defaultRangeDays-1)))
	if err != nil {
		return history.DateRange{}, err
	}
	if start.After(end) {
		return history.DateRange{}, errors.New("start must not be after end")
	}
	r := history.NewDateRange(start, end)
	if r.Len() > maxRangeDays {
		return history.DateRange{}, fmt.Errorf("range exceeds %d days", maxRangeDays)
	}
	return r, nil
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (s *Server) getInstruments(c *gin.Context) {
	if t := c.Query("type"); t != "" {
		assetType, ok := models.ParseAssetType(t)
		if !ok {
			badRequest(c, fmt.Errorf("unknown asset type '%s'", t))
			return
		}
		c.JSON(http.StatusOK, gin.H{"instruments": symbols.InstrumentsOf(assetType)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"instruments": symbols.AllInstruments()})
}

func (s *Server) getAssetType(c *gin.Context) {
	symbol := c.Param("symbol")
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "assetType": symbols.DetectAssetType(symbol)})
}

func (s *Server) getHistory(c *gin.Context) {
	r, err := dateRange(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	inst := instrumentFor(c.Param("id"))
	src := s.source()
	data := s.history.GetHistoricalData(c.Request.Context(), inst, r, src)
	c.JSON(http.StatusOK, gin.H{"instrument": inst, "source": src.String(), "data": data})
}

func (s *Server) getDaily(c *gin.Context) {
	date, err := parseDate(c, "date", time.Now().UTC())
	if err != nil {
		badRequest(c, err)
		return
	}
	inst := instrumentFor(c.Param("id"))
	rec, ok := s.history.GetDaily(c.Request.Context(), date, inst, s.source())
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data for " + date.Format(models.DateLayout)})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) getWeekly(c *gin.Context) {
	date, err := parseDate(c, "date", time.Now().UTC())
	if err != nil {
		badRequest(c, err)
		return
	}
	rec, ok := s.history.GetWeekly(c.Request.Context(), date, instrumentFor(c.Param("id")), s.source())
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data for week of " + date.Format(models.DateLayout)})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) getMonthly(c *gin.Context) {
	date, err := parseDate(c, "date", time.Now().UTC())
	if err != nil {
		badRequest(c, err)
		return
	}
	rec, ok := s.history.GetMonthly(c.Request.Context(), date, instrumentFor(c.Param("id")), s.source())
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data for month of " + date.Format(models.DateLayout)})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) getIndicators(c *gin.Context) {
	r, err := dateRange(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	inst := instrumentFor(c.Param("id"))
	records := history.Ordered(s.history.GetHistoricalData(c.Request.Context(), inst, r, s.source()))
	c.JSON(http.StatusOK, gin.H{
		"instrument": inst,
		"points":     len(records),
		"indicators": indicators.AllIndicators(models.PricePointsFromDaily(records)),
	})
}

func (s *Server) getComparison(c *gin.Context) {
	r, err := dateRange(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	benchID := c.DefaultQuery("benchmark", defaultBenchmark)
	inst, bench := instrumentFor(c.Param("id")), instrumentFor(benchID)
	src := s.source()

	assetCloses := closes(s.history.GetHistoricalData(c.Request.Context(), inst, r, src))
	benchCloses := closes(s.history.GetHistoricalData(c.Request.Context(), bench, r, src))
	cmp := analytics.CalculateBenchmarkComparison(
		analytics.PeriodPerformance(assetCloses),
		analytics.PeriodPerformance(benchCloses),
		assetCloses, benchCloses,
	)
	c.JSON(http.StatusOK, gin.H{"instrument": inst.ID, "benchmark": bench.ID, "comparison": cmp})
}

func closes(daily map[string]models.DailyRecord) []float64 {
	records := history.Ordered(daily)
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.Close
	}
	return out
}

func (s *Server) getPrice(c *gin.Context) {
	inst := instrumentFor(c.Param("id"))
	tick, err := s.history.CurrentPrice(c.Request.Context(), inst)
	switch {
	case errors.Is(err, history.ErrNotIntegrated):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	case err != nil:
		s.log.WithComponent("api").WithError(err).WithField("instrument", inst.ID).Warn("current price unavailable")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, tick)
	}
}

func (s *Server) dataSourceBody() gin.H {
	return gin.H{"useRealData": s.useRealData.Load(), "source": s.source().String()}
}

func (s *Server) getDataSource(c *gin.Context) {
	c.JSON(http.StatusOK, s.dataSourceBody())
}

// toggleDataSource sets the flag from {"useRealData": bool}, or flips it when
// the body is empty.
func (s *Server) toggleDataSource(c *gin.Context) {
	var body struct {
		UseRealData *bool `json:"useRealData"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err)
			return
		}
	}
	if body.UseRealData != nil {
		s.useRealData.Store(*body.UseRealData)
	} else {
		for {
			old := s.useRealData.Load()
			if s.useRealData.CompareAndSwap(old, !old) {
				break
			}
		}
	}
	s.log.WithComponent("api").WithField("use_real_data", s.useRealData.Load()).Info("data source changed")
	c.JSON(http.StatusOK, s.dataSourceBody())
}

func (s *Server) getSubscriptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"subscriptions": s.feeds.Stats()})
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"metrics": s.metricStore.snapshot()})
}

func (s *Server) getLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logs": s.logStore.snapshot()})
}

func (s *Server) getResources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"resources": s.resourceSampler.snapshot()})
}
