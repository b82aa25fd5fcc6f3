// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"strings"
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrEmptyDataDir
	}

	if cfg.Network != "mainnet" && cfg.Network != "testnet" && cfg.Network != "regtest" {
		return ErrInvalidNetwork
	}

	if err := validateAddr(cfg.ListenAddr); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidListenAddr, err)
	}
	if cfg.MetricsAddr != "" {
		if err := validateAddr(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("%w: metrics_listen: %w", ErrInvalidListenAddr, err)
		}
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return ErrInvalidLogLevel
	}

	switch cfg.Backend {
	case BackendLedger:
	case BackendProvider:
		if cfg.ProviderURL == "" && cfg.DiscoveryDomain == "" {
			return ErrMissingProvider
		}
	default:
		return ErrInvalidBackend
	}

	positive := []struct {
		key string
		v   int64
	}{
		{"chunk_size", int64(cfg.ChunkSize)},
		{"upload_retry_limit", int64(cfg.UploadRetryLimit)},
		{"upload_loop_interval", cfg.UploadLoopInterval.Milliseconds()},
		{"concurrent_download_delay", cfg.ConcurrentDownloadDelay.Milliseconds()},
		{"upload_workers", int64(cfg.UploadWorkers)},
		{"fetch_workers", int64(cfg.FetchWorkers)},
		{"decrypt_workers", int64(cfg.DecryptWorkers)},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrOutOfRange, p.key)
		}
	}
	if cfg.HTTPRetries < 0 || cfg.MinConfirmations < 0 {
		return fmt.Errorf("%w: http_retries and min_confirmations must not be negative", ErrOutOfRange)
	}
	if cfg.ServeProvider && (cfg.ProviderPort <= 0 || cfg.ProviderPort > 65535) {
		return fmt.Errorf("%w: provider_port", ErrOutOfRange)
	}

	return nil
}

// validateAddr checks that addr is a valid host:port address.
func validateAddr(addr string) error {
	_, _, err := net.SplitHostPort(addr)
	return err
}
