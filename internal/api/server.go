package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"marketfeed/config"
	"marketfeed/internal/history"
	"marketfeed/internal/metrics"
	"marketfeed/internal/subscription"
	"marketfeed/logger"
	"marketfeed/models"
)

// History is the part of the history service the API serves.
type History interface {
	GetHistoricalData(ctx context.Context, inst models.Instrument, r history.DateRange, src history.Source) map[string]models.DailyRecord
	GetDaily(ctx context.Context, date time.Time, inst models.Instrument, src history.Source) (models.DailyRecord, bool)
	GetWeekly(ctx context.Context, date time.Time, inst models.Instrument, src history.Source) (models.WeeklyRecord, bool)
	GetMonthly(ctx context.Context, date time.Time, inst models.Instrument, src history.Source) (models.MonthlyRecord, bool)
	CurrentPrice(ctx context.Context, inst models.Instrument) (models.TickerRecord, error)
}

// Feeds is the part of the subscription manager the API serves.
type Feeds interface {
	SubscribeTicker(symbol string, exchange models.Exchange, cb func(models.TickerRecord)) func()
	SubscribeOrderbook(symbol string, exchange models.Exchange, cb func(models.OrderbookRecord)) func()
	Stats() []subscription.KeyStats
}

// Server exposes the market data operations over HTTP and browser sockets.
type Server struct {
	cfg        config.ServerConfig
	prometheus bool
	log        *logger.Log
	history    History
	feeds      Feeds

	// useRealData is the data-source toggle. It is read per request and
	// passed to the history service as an explicit Source.
	useRealData atomic.Bool

	metricStore     *metricStore
	logStore        *logStore
	metricSink      metrics.SinkID
	resourceSampler *resourceSampler
	upgrader        websocket.Upgrader
	httpServer      *http.Server

	stopOnce sync.Once
	stop     chan struct{}
}

func NewServer(cfg *config.Config, hist History, feeds Feeds, log *logger.Log) *Server {
	sc := cfg.Server
	sc.Address = normalizeAddress(sc.Address)
	if sc.ShutdownTimeout <= 0 {
		sc.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		cfg:         sc,
		prometheus:  cfg.Metrics.Prometheus,
		log:         log,
		history:     hist,
		feeds:       feeds,
		metricStore: newMetricStore(sc.MetricsHistory),
		logStore:    newLogStore(sc.LogHistory),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		stop: make(chan struct{}),
	}
	s.useRealData.Store(cfg.History.UseRealData)
	s.metricSink = metrics.AddSink(s.metricStore.handle)
	log.AddHook(s.logStore)
	s.resourceSampler = newResourceSampler(sc.MetricsHistory, sc.SampleInterval, "/", func() int { return len(feeds.Stats()) }, log)
	return s
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context, appName string) error {
	defer s.cleanup()

	router, err := s.buildRouter(appName)
	if err != nil {
		return err
	}
	s.resourceSampler.start(ctx)

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.WithComponent("api").WithField("address", s.cfg.Address).Info("api server listening")

	select {
	case <-ctx.Done():
		s.closeStreams()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// closeStreams ends every browser socket bridge. Hijacked connections are not
// covered by http.Server.Shutdown.
func (s *Server) closeStreams() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Server) cleanup() {
	s.closeStreams()
	metrics.RemoveSink(s.metricSink)
	s.logStore.close()
	s.resourceSampler.stop()
}

// Address reports the normalized listen address.
func (s *Server) Address() string {
	return s.cfg.Address
}

// UseRealData reports the current data-source toggle.
func (s *Server) UseRealData() bool {
	return s.useRealData.Load()
}

func (s *Server) source() history.Source {
	return history.SourceFor(s.useRealData.Load())
}

func (s *Server) buildRouter(appName string) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), s.accessLog())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"app": appName, "status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/instruments", s.getInstruments)
	api.GET("/asset-type/:symbol", s.getAssetType)
	api.GET("/history/:id", s.getHistory)
	api.GET("/daily/:id", s.getDaily)
	api.GET("/weekly/:id", s.getWeekly)
	api.GET("/monthly/:id", s.getMonthly)
	api.GET("/indicators/:id", s.getIndicators)
	api.GET("/compare/:id", s.getComparison)
	api.GET("/price/:id", s.getPrice)
	api.GET("/data-source", s.getDataSource)
	api.POST("/data-source", s.toggleDataSource)
	api.GET("/subscriptions", s.getSubscriptions)
	api.GET("/logs", s.getLogs)
	api.GET("/metrics", s.getMetrics)
	api.GET("/resources", s.getResources)

	router.GET("/ws/ticker", s.streamTicker)
	router.GET("/ws/orderbook", s.streamOrderbook)

	if s.prometheus {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return router, nil
}

// requestID tags every request with an id, reusing the caller's when present.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithComponent("api").WithFields(logger.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
		}).Debug("request served")
	}
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
