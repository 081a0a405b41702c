/*
   Copyright The Soci Snapshotter Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/awslabs/stream-inflate/config/internal/merge"
	"github.com/awslabs/stream-inflate/inflate"
	"github.com/containerd/errdefs"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultConfigPath is the default filesystem path for the configuration file.
	DefaultConfigPath = "/etc/stream-inflate/config.toml"
)

type Config struct {
	// Variant is the compression dialect of the input, "deflate" or "deflate64".
	Variant string `toml:"variant"`

	// PageSize is the size of the output pages produced by the decoder.
	PageSize int `toml:"page_size"`

	// InputChunkSize is the number of compressed bytes handed to the decoder at a time.
	InputChunkSize int `toml:"input_chunk_size"`

	// MaxConcurrency is the maximum number of streams decoded at once.
	MaxConcurrency int `toml:"max_concurrency"`

	// MetricsAddress is address for the metrics API
	MetricsAddress string `toml:"metrics_address"`

	// MetricsNetwork is the type of network for the metrics API (e.g. tcp or unix)
	MetricsNetwork string `toml:"metrics_network"`

	// NoPrometheus is a flag to disable the emission of the metrics
	NoPrometheus bool `toml:"no_prometheus"`

	// LogLevel is the logrus level name.
	LogLevel string `toml:"log_level"`

	RetryableHTTPClientConfig `toml:"http"`
}

// RetryConfig represents the settings for retries in a retryable http client.
type RetryConfig struct {
	// MaxRetries is the maximum number of retries before giving up on a retryable request.
	// This does not include the initial request so the total number of attempts will be MaxRetries + 1.
	MaxRetries int `toml:"max_retries"`
	// MinWaitMsec is the minimum wait time between attempts.
	MinWaitMsec int64 `toml:"min_wait_msec"`
	// MaxWaitMsec is the maximum wait time between attempts.
	MaxWaitMsec int64 `toml:"max_wait_msec"`
}

// TimeoutConfig represents the settings for timeout at various points in a request lifecycle in a retryable http client.
type TimeoutConfig struct {
	// DialTimeoutMsec is the maximum duration that connection can take before a request attempt is timed out.
	DialTimeoutMsec int64 `toml:"dial_timeout_msec"`
	// ResponseHeaderTimeoutMsec is the maximum duration waiting for response headers before a request attempt is timed out.
	ResponseHeaderTimeoutMsec int64 `toml:"response_header_timeout_msec"`
	// RequestTimeoutMsec is the maximum duration before the entire request attempt is timed out. This starts when the
	// client starts the connection attempt and ends when the entire response body is read.
	RequestTimeoutMsec int64 `toml:"request_timeout_msec"`
}

// RetryableHTTPClientConfig is the complete config for a retryable http client
type RetryableHTTPClientConfig struct {
	TimeoutConfig
	RetryConfig
}

type configParser func(*Config)

var parsers = []configParser{parseRootConfig, parseDecoderConfig, parseRetryableHTTPClientConfig}

// NewConfig returns an initialized Config with default values set.
func NewConfig() *Config {
	cfg := &Config{}
	parseConfig(cfg)
	return cfg
}

func NewConfigFromToml(cfgPath string) (*Config, error) {
	f, err := os.Open(cfgPath)
	if err != nil {
		if os.IsNotExist(err) && cfgPath == DefaultConfigPath {
			return NewConfig(), nil
		}
		return nil, fmt.Errorf("failed to open config file %q: %w", cfgPath, err)
	}
	defer f.Close()

	cfg := &Config{}
	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err = dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", cfgPath, err)
	}
	parseConfig(cfg)
	return cfg, nil
}

// Override applies values keyed by their TOML names on top of cfg, for
// example settings given on the command line. Zero values left by the
// overrides are filled with defaults again.
func (cfg *Config) Override(values map[string]any) error {
	if err := merge.Merge(cfg, values); err != nil {
		return fmt.Errorf("failed to apply overrides: %w", err)
	}
	parseConfig(cfg)
	return nil
}

func parseConfig(cfg *Config) {
	for _, p := range parsers {
		p(cfg)
	}
}

func parseRootConfig(cfg *Config) {
	if cfg.MetricsNetwork == "" {
		cfg.MetricsNetwork = defaultMetricsNetwork
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
}

func parseDecoderConfig(cfg *Config) {
	if cfg.Variant == "" {
		cfg.Variant = defaultVariant
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = inflate.DefaultPageSize
	}
	if cfg.InputChunkSize == 0 {
		cfg.InputChunkSize = defaultInputChunkSize
	}
}

func parseRetryableHTTPClientConfig(cfg *Config) {
	if cfg.DialTimeoutMsec == 0 {
		cfg.DialTimeoutMsec = defaultDialTimeoutMsec
	}
	if cfg.ResponseHeaderTimeoutMsec == 0 {
		cfg.ResponseHeaderTimeoutMsec = defaultResponseHeaderTimeoutMsec
	}
	if cfg.RequestTimeoutMsec == 0 {
		cfg.RequestTimeoutMsec = defaultRequestTimeoutMsec
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.MinWaitMsec == 0 {
		cfg.MinWaitMsec = defaultMinWaitMsec
	}
	if cfg.MaxWaitMsec == 0 {
		cfg.MaxWaitMsec = defaultMaxWaitMsec
	}
}

// Validate reports every setting that cannot be used. The returned error
// matches errdefs.ErrInvalidArgument.
func (cfg *Config) Validate() error {
	var errs []error
	if _, err := inflate.ParseVariant(cfg.Variant); err != nil {
		errs = append(errs, err)
	}
	if cfg.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page_size must be positive, got %d", cfg.PageSize))
	}
	if cfg.InputChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("input_chunk_size must be positive, got %d", cfg.InputChunkSize))
	}
	if cfg.MaxConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("max_concurrency must be positive, got %d", cfg.MaxConcurrency))
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if cfg.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("http.max_retries must not be negative, got %d", cfg.MaxRetries))
	}
	if cfg.MinWaitMsec > cfg.MaxWaitMsec {
		errs = append(errs, fmt.Errorf("http.min_wait_msec (%d) exceeds http.max_wait_msec (%d)", cfg.MinWaitMsec, cfg.MaxWaitMsec))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %w: %w", errors.Join(errs...), errdefs.ErrInvalidArgument)
}

// DecoderConfig converts the decoder settings.
func (cfg *Config) DecoderConfig() (inflate.Config, error) {
	v, err := inflate.ParseVariant(cfg.Variant)
	if err != nil {
		return inflate.Config{}, err
	}
	return inflate.Config{Variant: v, PageSize: cfg.PageSize}, nil
}
