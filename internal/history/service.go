package history

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"marketfeed/config"
	"marketfeed/internal/metrics"
	"marketfeed/internal/normalizer"
	"marketfeed/logger"
	"marketfeed/models"
)

// Source selects where history comes from. It is passed on every call; the
// service holds no global data-source flag.
type Source int

const (
	SourceSynthetic Source = iota
	SourceReal
)

// SourceFor maps a use-real-data flag to a Source.
func SourceFor(useRealData bool) Source {
	if useRealData {
		return SourceReal
	}
	return SourceSynthetic
}

func (s Source) String() string {
	switch s {
	case SourceSynthetic:
		return "synthetic"
	case SourceReal:
		return "real"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// fxExchange tags spot quotes served by the FX endpoint.
const fxExchange models.Exchange = "fx"

// Service resolves daily history for any registered instrument. Callers
// always get a full range back; real-data failures degrade to synthetic
// records carrying the failure in their Error field.
type Service struct {
	timeout   time.Duration
	gen       *Generator
	crypto    *Chain
	others    map[models.AssetType]*Chain
	coingecko *coingeckoProvider
	fx        *fxClient
	norm      *normalizer.Normalizer
	log       *logger.Log
}

type Option func(*Service)

// WithGenerator replaces the time-seeded synthetic generator.
func WithGenerator(g *Generator) Option {
	return func(s *Service) { s.gen = g }
}

// WithCryptoProviders replaces the configured crypto provider chain.
func WithCryptoProviders(providers ...Provider) Option {
	return func(s *Service) { s.crypto = NewChain(s.crypto.minCoverage, providers...) }
}

func NewService(cfg *config.Config, opts ...Option) *Service {
	hc := &http.Client{Timeout: cfg.History.Timeout}
	s := &Service{
		timeout: cfg.History.Timeout,
		gen:     NewGenerator(nil),
		crypto:  NewChain(cfg.History.MinCoverage, buildProviders(cfg, hc)...),
		others:  make(map[models.AssetType]*Chain),
		coingecko: &coingeckoProvider{
			client: newRESTClient("coingecko", cfg.History.CoinGeckoURL, hc, newLimiter(cfg.History.RateLimit)),
			now:    time.Now,
		},
		fx:   &fxClient{client: newRESTClient(string(fxExchange), cfg.History.FxURL, hc, newLimiter(cfg.History.RateLimit))},
		norm: normalizer.New(normalizer.DefaultDepth),
		log:  logger.GetLogger(),
	}
	for _, t := range models.AssetTypes {
		if t != models.AssetCrypto {
			s.others[t] = NewChain(cfg.History.MinCoverage, notIntegrated{assetType: t})
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// buildProviders instantiates the crypto providers in configured order, each
// with its own rate limiter.
func buildProviders(cfg *config.Config, hc *http.Client) []Provider {
	providers := make([]Provider, 0, len(cfg.History.CryptoProviders))
	for _, name := range cfg.History.CryptoProviders {
		limiter := newLimiter(cfg.History.RateLimit)
		switch strings.ToLower(name) {
		case "okx":
			providers = append(providers, &okxProvider{client: newRESTClient("okx", cfg.Exchange.Okx.RestURL, hc, limiter)})
		case "coingecko":
			providers = append(providers, &coingeckoProvider{client: newRESTClient("coingecko", cfg.History.CoinGeckoURL, hc, limiter), now: time.Now})
		case "binance":
			providers = append(providers, newBinanceProvider(cfg.Exchange.Binance.RestURL, hc, limiter))
		case "bybit":
			providers = append(providers, newBybitProvider(cfg.Exchange.Bybit.RestURL, hc, limiter))
		case "kucoin":
			providers = append(providers, newKucoinProvider(cfg.Exchange.Kucoin.RestURL, cfg.History.Timeout, limiter))
		}
	}
	return providers
}

func (s *Service) chainFor(inst models.Instrument) *Chain {
	if inst.AssetType == models.AssetCrypto {
		return s.crypto
	}
	if c, ok := s.others[inst.AssetType]; ok {
		return c
	}
	return NewChain(s.crypto.minCoverage, notIntegrated{assetType: inst.AssetType})
}

// GetHistoricalData returns one backfilled record per day of r keyed by date.
func (s *Service) GetHistoricalData(ctx context.Context, inst models.Instrument, r DateRange, src Source) map[string]models.DailyRecord {
	log := s.log.WithComponent("history").WithFields(logger.Fields{
		"instrument": inst.ID,
		"source":     src.String(),
		"days":       r.Len(),
	})

	var fallbackErr error
	anchor := 0.0
	if src == SourceReal {
		fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
		records, provider, err := s.chainFor(inst).Fetch(fetchCtx, inst, r)
		cancel()
		if err == nil {
			Backfill(records, inst.AssetType)
			log.WithField("provider", provider).Debug("served real history")
			return byDate(records)
		}

		fallbackErr = err
		level := log.WithError(err)
		if errors.Is(err, ErrNotIntegrated) {
			level.Debug("no real provider, using synthetic history")
		} else {
			level.Warn("real history unavailable, falling back to synthetic")
		}
		metrics.RecordSyntheticFallback(string(inst.AssetType))
		metrics.EmitMetric(s.log, "history", "synthetic_fallback", 1, "counter", logger.Fields{"asset_type": string(inst.AssetType)})

		if inst.AssetType == models.AssetForex {
			anchor = s.forexAnchor(ctx, inst, log)
		}
	}

	records := s.gen.Generate(inst, r, anchor)
	if fallbackErr != nil {
		for i := range records {
			records[i].Error = fallbackErr.Error()
		}
	}
	Backfill(records, inst.AssetType)
	return byDate(records)
}

// forexAnchor returns the live rate for inst, or 0 to keep the static base.
func (s *Service) forexAnchor(ctx context.Context, inst models.Instrument, log *logger.Entry) float64 {
	fxCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	rate, err := s.fx.rate(fxCtx, inst)
	if err != nil {
		log.WithError(err).Debug("fx anchor unavailable, keeping static base price")
		return 0
	}
	return rate
}

// GetDaily returns the record for date's day.
func (s *Service) GetDaily(ctx context.Context, date time.Time, inst models.Instrument, src Source) (models.DailyRecord, bool) {
	r := SingleDay(date)
	rec, ok := s.GetHistoricalData(ctx, inst, r, src)[r.Start.Format(models.DateLayout)]
	return rec, ok
}

// GetWeekly aggregates the Monday-started week containing date.
func (s *Service) GetWeekly(ctx context.Context, date time.Time, inst models.Instrument, src Source) (models.WeeklyRecord, bool) {
	start := WeekStart(date)
	daily := s.GetHistoricalData(ctx, inst, NewDateRange(start, start.AddDate(0, 0, 6)), src)
	rec, ok := AggregateWeekly(daily)[start.Format(models.DateLayout)]
	return rec, ok
}

// GetMonthly aggregates the calendar month containing date.
func (s *Service) GetMonthly(ctx context.Context, date time.Time, inst models.Instrument, src Source) (models.MonthlyRecord, bool) {
	start := MonthStart(date)
	daily := s.GetHistoricalData(ctx, inst, NewDateRange(start, start.AddDate(0, 1, -1)), src)
	rec, ok := AggregateMonthly(daily)[start.Format(models.DateLayout)]
	return rec, ok
}

// CurrentPrice reads a live spot quote. Crypto comes from CoinGecko and forex
// from the FX endpoint; other asset classes return ErrNotIntegrated.
func (s *Service) CurrentPrice(ctx context.Context, inst models.Instrument) (models.TickerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch inst.AssetType {
	case models.AssetCrypto:
		if inst.CoinGeckoID == "" {
			return models.TickerRecord{}, fmt.Errorf("no coingecko id for %s", inst.ID)
		}
		t, err := s.coingecko.price(ctx, s.norm, inst.CoinGeckoID)
		if err != nil {
			return models.TickerRecord{}, fmt.Errorf("coingecko price %s: %w", inst.ID, err)
		}
		t.Symbol = inst.ID
		return t, nil
	case models.AssetForex:
		rate, err := s.fx.rate(ctx, inst)
		if err != nil {
			return models.TickerRecord{}, fmt.Errorf("fx rate %s: %w", inst.ID, err)
		}
		return models.TickerRecord{
			Exchange:  fxExchange,
			Symbol:    inst.ID,
			Price:     rate,
			Timestamp: time.Now().UTC(),
		}, nil
	default:
		return models.TickerRecord{}, fmt.Errorf("%w for %s", ErrNotIntegrated, inst.AssetType)
	}
}

// Ordered returns the records of a daily map sorted by date.
func Ordered(daily map[string]models.DailyRecord) []models.DailyRecord {
	out := make([]models.DailyRecord, 0, len(daily))
	for _, r := range daily {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func byDate(records []models.DailyRecord) map[string]models.DailyRecord {
	out := make(map[string]models.DailyRecord, len(records))
	for _, r := range records {
		out[r.Date] = r
	}
	return out
}
