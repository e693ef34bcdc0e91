// Package config also contains brokerage gateway configuration surfaces.
package config

import (
	"strings"
	"time"
)

const (
	// ModePaper routes orders to the in-memory simulated brokerage.
	ModePaper = "paper"
	// ModeIBKR routes orders to an Interactive Brokers Client Portal gateway.
	ModeIBKR = "ibkr"

	// ChainSourceBroker asks the brokerage for option chains.
	ChainSourceBroker = "broker"
	// ChainSourcePolygon reads option chains from Polygon reference data.
	ChainSourcePolygon = "polygon"
)

// Broker defines the gateway endpoint and the connection retry policy.
type Broker struct {
	Mode                string `yaml:"mode"` // paper|ibkr
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	ClientID            string `yaml:"client_id"` // IBKR account id
	BasePath            string `yaml:"base_path"`
	InsecureTLS         bool   `yaml:"insecure_tls"`
	MaxRetries          int    `yaml:"max_retries"`
	RetryDelayMs        int    `yaml:"retry_delay_ms"`         // trading flow
	MonitorRetryDelayMs int    `yaml:"monitor_retry_delay_ms"` // long-lived monitor
	MonitorIntervalMs   int    `yaml:"monitor_interval_ms"`
	ChainSource         string `yaml:"chain_source"` // broker|polygon
}

func (b *Broker) applyDefaults() {
	b.Mode = strings.ToLower(strings.TrimSpace(b.Mode))
	if b.Mode == "" {
		b.Mode = ModePaper
	}
	if b.Host == "" {
		b.Host = "127.0.0.1"
	}
	if b.Port <= 0 {
		b.Port = 5000
	}
	if b.BasePath == "" {
		b.BasePath = "/v1/api"
	}
	if b.MaxRetries <= 0 {
		b.MaxRetries = 5
	}
	if b.RetryDelayMs <= 0 {
		b.RetryDelayMs = 3000
	}
	if b.MonitorRetryDelayMs <= 0 {
		b.MonitorRetryDelayMs = 5000
	}
	if b.MonitorIntervalMs <= 0 {
		b.MonitorIntervalMs = 10000
	}
	b.ChainSource = strings.ToLower(strings.TrimSpace(b.ChainSource))
	if b.ChainSource == "" {
		b.ChainSource = ChainSourceBroker
	}
}

// RetryDelay is the wait between connect attempts in the trading flow.
func (b Broker) RetryDelay() time.Duration { return ms(b.RetryDelayMs) }

// MonitorRetryDelay is the wait between connect attempts in the monitor.
func (b Broker) MonitorRetryDelay() time.Duration { return ms(b.MonitorRetryDelayMs) }

// MonitorInterval is the liveness poll cadence of the monitor.
func (b Broker) MonitorInterval() time.Duration { return ms(b.MonitorIntervalMs) }

// RetryDelay is the wait between order resubmissions.
func (o Orders) RetryDelay() time.Duration { return ms(o.RetryDelayMs) }

// FillPollDelay is the settle time between a submission and its status poll.
func (o Orders) FillPollDelay() time.Duration { return ms(o.FillPollDelayMs) }

// Timeout is the HTTP client timeout for market data calls.
func (p Polygon) Timeout() time.Duration { return ms(p.TimeoutMs) }

// MarkTTL is how long the paper broker reuses an underlying mark.
func (p Paper) MarkTTL() time.Duration { return ms(p.MarkTTLMs) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
