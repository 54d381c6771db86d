package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Logging  LoggingConfig  `yaml:"logging"`
	Feed     FeedConfig     `yaml:"feed"`
	History  HistoryConfig  `yaml:"history"`
	Server   ServerConfig   `yaml:"server"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Exchange ExchangeConfig `yaml:"exchange"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level          string        `yaml:"level"`
	Format         string        `yaml:"format"`
	Output         string        `yaml:"output"`
	MaxAge         int           `yaml:"max_age"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

// FeedConfig drives the streaming subscription manager.
type FeedConfig struct {
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	DemoInterval         time.Duration `yaml:"demo_interval"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	OrderbookDepth       int           `yaml:"orderbook_depth"`
	PingInterval         time.Duration `yaml:"ping_interval"`
}

type ExchangeConfig struct {
	Binance  ExchangeEndpoints `yaml:"binance"`
	Coinbase ExchangeEndpoints `yaml:"coinbase"`
	Okx      ExchangeEndpoints `yaml:"okx"`
	Bybit    ExchangeEndpoints `yaml:"bybit"`
	Kucoin   ExchangeEndpoints `yaml:"kucoin"`
}

type ExchangeEndpoints struct {
	WebsocketURL string `yaml:"websocket_url"`
	RestURL      string `yaml:"rest_url"`
}

type HistoryConfig struct {
	UseRealData     bool            `yaml:"use_real_data"`
	CryptoProviders []string        `yaml:"crypto_providers"`
	MinCoverage     float64         `yaml:"min_coverage"`
	Timeout         time.Duration   `yaml:"timeout"`
	CoinGeckoURL    string          `yaml:"coingecko_url"`
	FxURL           string          `yaml:"fx_url"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	LogHistory      int           `yaml:"log_history"`
	MetricsHistory  int           `yaml:"metrics_history"`
	SampleInterval  time.Duration `yaml:"sample_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type MetricsConfig struct {
	Prometheus bool             `yaml:"prometheus"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Namespace       string `yaml:"namespace"`
	Dashboard       string `yaml:"dashboard"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() Config {
	return Config{
		App: AppConfig{Name: "marketfeed", Version: "dev"},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "json",
			Output:         "stdout",
			ReportInterval: 30 * time.Second,
		},
		Feed: FeedConfig{
			ConnectTimeout:       8 * time.Second,
			DemoInterval:         3 * time.Second,
			ReconnectBaseDelay:   time.Second,
			MaxReconnectAttempts: 3,
			OrderbookDepth:       10,
			PingInterval:         20 * time.Second,
		},
		Exchange: ExchangeConfig{
			Binance:  ExchangeEndpoints{WebsocketURL: "wss://stream.binance.com:9443/ws", RestURL: "https://api.binance.com"},
			Coinbase: ExchangeEndpoints{WebsocketURL: "wss://ws-feed.pro.coinbase.com", RestURL: "https://api.exchange.coinbase.com"},
			Okx:      ExchangeEndpoints{WebsocketURL: "wss://ws.okx.com:8443/ws/v5/public", RestURL: "https://www.okx.com"},
			Bybit:    ExchangeEndpoints{RestURL: "https://api.bybit.com"},
			Kucoin:   ExchangeEndpoints{RestURL: "https://api.kucoin.com"},
		},
		History: HistoryConfig{
			CryptoProviders: []string{"okx", "coingecko", "binance", "bybit", "kucoin"},
			MinCoverage:     0.5,
			Timeout:         10 * time.Second,
			CoinGeckoURL:    "https://api.coingecko.com/api/v3",
			FxURL:           "https://open.er-api.com/v6/latest",
			RateLimit:       RateLimitConfig{RequestsPerSecond: 5, BurstSize: 1},
		},
		Server: ServerConfig{
			Address:         "0.0.0.0:8080",
			LogHistory:      200,
			MetricsHistory:  200,
			SampleInterval:  5 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Prometheus: true,
			CloudWatch: CloudWatchConfig{Namespace: "MarketFeed", Dashboard: "MarketFeed"},
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applyEnvOverrides(&config); err != nil {
		return nil, err
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("MARKETFEED_USE_REAL_DATA")); v != "" {
		useReal, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MARKETFEED_USE_REAL_DATA: %w", err)
		}
		cfg.History.UseRealData = useReal
	}
	if v := strings.TrimSpace(os.Getenv("MARKETFEED_SERVER_ADDRESS")); v != "" {
		cfg.Server.Address = v
	}

	if cfg.Metrics.CloudWatch.Enabled {
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Metrics.CloudWatch.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			cfg.Metrics.CloudWatch.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			cfg.Metrics.CloudWatch.SecretAccessKey = strings.TrimSpace(v)
		}
	}
	return nil
}

var knownProviders = map[string]struct{}{
	"okx":       {},
	"coingecko": {},
	"binance":   {},
	"bybit":     {},
	"kucoin":    {},
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if cfg.Feed.ConnectTimeout <= 0 {
		return fmt.Errorf("feed.connect_timeout must be greater than 0")
	}
	if cfg.Feed.DemoInterval <= 0 {
		return fmt.Errorf("feed.demo_interval must be greater than 0")
	}
	if cfg.Feed.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("feed.reconnect_base_delay must be greater than 0")
	}
	if cfg.Feed.MaxReconnectAttempts < 0 {
		return fmt.Errorf("feed.max_reconnect_attempts must not be negative")
	}
	if cfg.Feed.OrderbookDepth <= 0 {
		return fmt.Errorf("feed.orderbook_depth must be greater than 0")
	}

	if cfg.History.MinCoverage < 0 || cfg.History.MinCoverage > 1 {
		return fmt.Errorf("history.min_coverage must be between 0 and 1")
	}
	if cfg.History.Timeout <= 0 {
		return fmt.Errorf("history.timeout must be greater than 0")
	}
	for _, p := range cfg.History.CryptoProviders {
		if _, ok := knownProviders[strings.ToLower(p)]; !ok {
			return fmt.Errorf("history.crypto_providers: unknown provider '%s'", p)
		}
	}

	if cfg.Exchange.Binance.WebsocketURL == "" || cfg.Exchange.Coinbase.WebsocketURL == "" || cfg.Exchange.Okx.WebsocketURL == "" {
		return fmt.Errorf("exchange websocket_url is required for binance, coinbase and okx")
	}

	if cfg.Metrics.CloudWatch.Enabled {
		if cfg.Metrics.CloudWatch.Namespace == "" {
			return fmt.Errorf("metrics.cloudwatch.namespace is required when CloudWatch is enabled")
		}
		if (cfg.Metrics.CloudWatch.AccessKeyID == "") != (cfg.Metrics.CloudWatch.SecretAccessKey == "") {
			return fmt.Errorf("metrics.cloudwatch.access_key_id and metrics.cloudwatch.secret_access_key must be set together")
		}
	}

	return nil
}
