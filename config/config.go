package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethersync/ethersync/libs/log"
)

// Config defines the top level configuration for an ethersync node.
type Config struct {
	BaseConfig `mapstructure:",squash"`

	Sync            *SyncConfig            `mapstructure:"sync"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration for an ethersync node.
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		Sync:            DefaultSyncConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing.
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		Sync:            TestSyncConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Sync.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [sync] section: %w", err)
	}
	if err := cfg.Instrumentation.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [instrumentation] section: %w", err)
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration for an ethersync node.
type BaseConfig struct {
	// A custom human readable name for this node
	Moniker string `mapstructure:"moniker"`

	// Output level for logging
	LogLevel string `mapstructure:"log_level"`

	// Output format: 'plain' or 'text' (uncolored text) or 'json'
	LogFormat string `mapstructure:"log_format"`
}

// DefaultBaseConfig returns a default base configuration.
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Moniker:   "anonymous",
		LogLevel:  log.LogLevelInfo,
		LogFormat: log.LogFormatPlain,
	}
}

// TestBaseConfig returns a base configuration for testing.
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.Moniker = "test"
	return cfg
}

// ValidateBasic performs basic validation and returns an error if any check
// fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case log.LogFormatPlain, log.LogFormatText, log.LogFormatJSON:
	default:
		return errors.New("unknown log format (must be 'plain', 'text' or 'json')")
	}
	return nil
}

//-----------------------------------------------------------------------------
// SyncConfig

// SyncConfig defines the configuration for the block download pipeline.
type SyncConfig struct {
	// Fetch headers from remote peers. Disabling it leaves the header chain
	// to be fed externally.
	HeadersDownload bool `mapstructure:"headers_download"`

	// Fetch block bodies for downloaded headers. Disabled for headers-only
	// light sync.
	BlockBodiesDownload bool `mapstructure:"block_bodies_download"`

	// Maximum number of headers buffered in the reassembly queue before
	// header requests are throttled.
	HeaderQueueLimit int `mapstructure:"header_queue_limit"`

	// Maximum number of downloaded blocks waiting for import.
	BlockQueueLimit int `mapstructure:"block_queue_limit"`

	// Maximum number of header requests handed to the header loop per
	// scheduling call.
	MaxHeaderRequests int `mapstructure:"max_header_requests"`

	// How long a scheduled header range stays reserved before the queue
	// reissues it to another peer.
	HeaderRequestTimeout time.Duration `mapstructure:"header_request_timeout"`

	// Header loop latch timeout while actively syncing.
	HeaderLatchTimeout time.Duration `mapstructure:"header_latch_timeout"`

	// Header loop latch timeout once the importer reports the node caught
	// up; the steady state polls slowly.
	SteadyHeaderLatchTimeout time.Duration `mapstructure:"steady_header_latch_timeout"`

	// Body loop latch timeout.
	BodyLatchTimeout time.Duration `mapstructure:"body_latch_timeout"`

	// Upper bound on headers covered by a single bulk body request before
	// sharding.
	BulkBodyRequestLimit int `mapstructure:"bulk_body_request_limit"`

	// Cap on the number of body request shards dispatched per loop
	// iteration.
	MaxBodyRequestsPerCycle int `mapstructure:"max_body_requests_per_cycle"`
}

// DefaultSyncConfig returns a default configuration for the block download
// pipeline.
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		HeadersDownload:          true,
		BlockBodiesDownload:      true,
		HeaderQueueLimit:         10000,
		BlockQueueLimit:          2000,
		MaxHeaderRequests:        128,
		HeaderRequestTimeout:     5 * time.Second,
		HeaderLatchTimeout:       500 * time.Millisecond,
		SteadyHeaderLatchTimeout: 10 * time.Second,
		BodyLatchTimeout:         200 * time.Millisecond,
		BulkBodyRequestLimit:     16 * 1024,
		MaxBodyRequestsPerCycle:  32,
	}
}

// TestSyncConfig returns a configuration for testing the block download
// pipeline. Latch timeouts are shortened so tests converge quickly.
func TestSyncConfig() *SyncConfig {
	cfg := DefaultSyncConfig()
	cfg.HeaderRequestTimeout = 500 * time.Millisecond
	cfg.HeaderLatchTimeout = 20 * time.Millisecond
	cfg.SteadyHeaderLatchTimeout = 100 * time.Millisecond
	cfg.BodyLatchTimeout = 10 * time.Millisecond
	return cfg
}

// ValidateBasic performs basic validation and returns an error if any check
// fails.
func (cfg *SyncConfig) ValidateBasic() error {
	if cfg.HeaderQueueLimit <= 0 {
		return errors.New("header_queue_limit can't be <= 0")
	}
	if cfg.BlockQueueLimit <= 0 {
		return errors.New("block_queue_limit can't be <= 0")
	}
	if cfg.MaxHeaderRequests <= 0 {
		return errors.New("max_header_requests can't be <= 0")
	}
	if cfg.BulkBodyRequestLimit <= 0 {
		return errors.New("bulk_body_request_limit can't be <= 0")
	}
	if cfg.MaxBodyRequestsPerCycle <= 0 {
		return errors.New("max_body_requests_per_cycle can't be <= 0")
	}
	if cfg.HeaderRequestTimeout < time.Millisecond {
		return errors.New("header_request_timeout is too short")
	}
	if cfg.HeaderLatchTimeout <= 0 || cfg.BodyLatchTimeout <= 0 {
		return errors.New("latch timeouts can't be <= 0")
	}
	if !cfg.HeadersDownload && !cfg.BlockBodiesDownload {
		return errors.New("headers_download and block_bodies_download can't both be disabled")
	}
	return nil
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	Prometheus bool `mapstructure:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus_listen_addr"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		Namespace:            "ethersync",
	}
}

// ValidateBasic performs basic validation and returns an error if any check
// fails.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.Prometheus && cfg.PrometheusListenAddr == "" {
		return errors.New("prometheus_listen_addr can't be empty when prometheus is enabled")
	}
	if cfg.Namespace == "" {
		return errors.New("instrumentation namespace can't be empty")
	}
	return nil
}
