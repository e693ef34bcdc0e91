// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, listeners, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Polygon configures the REST market data provider.
type Polygon struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Screener holds the thresholds applied to each ticker before any option is considered.
type Screener struct {
	Mode            string  `yaml:"mode"` // thresholds|mean_band
	LookbackDays    int     `yaml:"lookback_days"`
	SMAWindow       int     `yaml:"sma_window"`
	ShortWindow     int     `yaml:"short_window"`
	LongWindow      int     `yaml:"long_window"`
	Lambda          float64 `yaml:"lambda"`
	MinPriceDiffPct float64 `yaml:"min_price_diff_pct"`
	MaxPriceDiffPct float64 `yaml:"max_price_diff_pct"`
	MinVolatility   float64 `yaml:"min_volatility"`
	MaxVolatility   float64 `yaml:"max_volatility"`
	BandPct         float64 `yaml:"band_pct"`
}

// Orders tunes how the executor submits and confirms option orders.
type Orders struct {
	MaxRetries      int    `yaml:"max_retries"`
	RetryDelayMs    int    `yaml:"retry_delay_ms"`
	FillPollDelayMs int    `yaml:"fill_poll_delay_ms"`
	Quantity        int    `yaml:"quantity"`
	OrderType       string `yaml:"order_type"`
	TimeInForce     string `yaml:"tif"`
	Exchange        string `yaml:"exchange"`
	Multiplier      int    `yaml:"multiplier"`
}

// Risk encodes guard-rails for how much size the executor may take on.
type Risk struct {
	MaxNotionalPerTrade float64 `yaml:"max_notional_per_trade"`
	DefaultBalance      float64 `yaml:"default_balance"` // used when a run request names no balance
}

// Paper captures simulated brokerage settings.
type Paper struct {
	StartingCash    float64 `yaml:"starting_cash"`
	FillAfterPolls  int     `yaml:"fill_after_polls"`
	PremiumPct      float64 `yaml:"premium_pct"`
	StrikeStep      float64 `yaml:"strike_step"`
	StrikeCount     int     `yaml:"strike_count"`
	ExpirationCount int     `yaml:"expiration_count"`
	FillsPath       string  `yaml:"fills_path"`
	MarkTTLMs       int     `yaml:"mark_ttl_ms"`
}

// Store configures the SQLite audit trail of runs and order outcomes.
type Store struct {
	Path string `yaml:"path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Broker   Broker   `yaml:"broker"`
	Orders   Orders   `yaml:"orders"`
	Screener Screener `yaml:"screener"`
	Polygon  Polygon  `yaml:"polygon"`
	Risk     Risk     `yaml:"risk"`
	Paper    Paper    `yaml:"paper"`
	Store    Store    `yaml:"store"`
}

// Load reads a YAML file from disk, hydrates a Config struct and fills defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.ApplyDefaults()
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyDefaults fills every zero value with the production default.
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "leprechaun"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":8080"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	c.Broker.applyDefaults()

	o := &c.Orders
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.RetryDelayMs <= 0 {
		o.RetryDelayMs = 3000
	}
	if o.FillPollDelayMs <= 0 {
		o.FillPollDelayMs = 1000
	}
	if o.Quantity <= 0 {
		o.Quantity = 1
	}
	if o.OrderType == "" {
		o.OrderType = "MKT"
	}
	if o.TimeInForce == "" {
		o.TimeInForce = "DAY"
	}
	if o.Exchange == "" {
		o.Exchange = "SMART"
	}
	if o.Multiplier <= 0 {
		o.Multiplier = 100
	}

	s := &c.Screener
	if s.Mode == "" {
		s.Mode = "thresholds"
	}
	if s.LookbackDays <= 0 {
		s.LookbackDays = 60
	}
	if s.SMAWindow <= 0 {
		s.SMAWindow = 20
	}
	if s.ShortWindow <= 0 {
		s.ShortWindow = 5
	}
	if s.LongWindow <= 0 {
		s.LongWindow = 21
	}
	if s.Lambda <= 0 || s.Lambda >= 1 {
		s.Lambda = 0.94
	}
	if s.MinPriceDiffPct == 0 && s.MaxPriceDiffPct == 0 {
		s.MinPriceDiffPct, s.MaxPriceDiffPct = 1, 15
	}
	if s.MinVolatility == 0 && s.MaxVolatility == 0 {
		s.MinVolatility, s.MaxVolatility = 0.05, 5
	}
	if s.BandPct <= 0 {
		s.BandPct = 4
	}

	if c.Polygon.BaseURL == "" {
		c.Polygon.BaseURL = "https://api.polygon.io"
	}
	if c.Polygon.TimeoutMs <= 0 {
		c.Polygon.TimeoutMs = 10000
	}

	if c.Risk.DefaultBalance <= 0 {
		c.Risk.DefaultBalance = 10000
	}

	p := &c.Paper
	if p.StartingCash <= 0 {
		p.StartingCash = 10000
	}
	if p.PremiumPct <= 0 {
		p.PremiumPct = 0.02
	}
	if p.StrikeStep <= 0 {
		p.StrikeStep = 5
	}
	if p.StrikeCount <= 0 {
		p.StrikeCount = 10
	}
	if p.ExpirationCount <= 0 {
		p.ExpirationCount = 3
	}
	if p.MarkTTLMs <= 0 {
		p.MarkTTLMs = 60000
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Broker.Mode) {
	case ModePaper:
	case ModeIBKR:
		if c.Broker.Host == "" || c.Broker.Port <= 0 {
			errs = append(errs, errors.New("broker host and port are required for ibkr mode"))
		}
		if c.Broker.ClientID == "" {
			errs = append(errs, errors.New("broker client_id (account id) is required for ibkr mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown broker mode %q", c.Broker.Mode))
	}
	switch strings.ToLower(c.Broker.ChainSource) {
	case ChainSourceBroker:
	case ChainSourcePolygon:
		if c.Polygon.APIKey == "" {
			errs = append(errs, errors.New("polygon api key is required for the polygon chain source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown chain source %q", c.Broker.ChainSource))
	}
	switch strings.ToLower(c.Screener.Mode) {
	case "thresholds", "mean_band":
	default:
		errs = append(errs, fmt.Errorf("unknown screener mode %q", c.Screener.Mode))
	}
	if c.Screener.MinPriceDiffPct > c.Screener.MaxPriceDiffPct {
		errs = append(errs, errors.New("screener min_price_diff_pct exceeds max_price_diff_pct"))
	}
	if c.Screener.MinVolatility > c.Screener.MaxVolatility {
		errs = append(errs, errors.New("screener min_volatility exceeds max_volatility"))
	}
	if c.Screener.LookbackDays < c.Screener.LongWindow+1 {
		errs = append(errs, errors.New("screener lookback_days must cover long_window"))
	}
	return errors.Join(errs...)
}
