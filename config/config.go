// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads and saves the node configuration: a flat
// "key = value" file in the data directory, overridable per key through
// CHUNKD_<KEY> environment variables.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bitfsorg/chunkd/storage"
)

// EnvPrefix prefixes environment overrides: upload_retry_limit is read
// from CHUNKD_UPLOAD_RETRY_LIMIT.
const EnvPrefix = "CHUNKD_"

// Backend names.
const (
	BackendLedger   = "ledger"
	BackendProvider = "provider"
)

// Config is the complete node configuration.
type Config struct {
	DataDir    string
	ListenAddr string
	Network    string
	LogLevel   string
	LogFile    string

	// Chunk engine.
	ChunkSize                int
	UploadRetryLimit         int
	UploadLoopInterval       time.Duration
	ConcurrentDownloadDelay  time.Duration
	RevalidateDecryptedChunk bool
	UploadWorkers            int
	FetchWorkers             int
	DecryptWorkers           int
	DecryptTimeout           time.Duration
	MetricsAddr              string

	// Backend selects where uploads go: "ledger" or "provider".
	Backend string

	// Remote HTTP.
	HTTPRetries     int
	HTTPTimeout     time.Duration
	AcceleratorURLs []string
	EdgeURL         string
	IndexURL        string

	// S3 accelerator; disabled when S3Bucket is empty.
	S3Bucket    string
	S3Prefix    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3PathStyle bool

	// BSV node.
	RPCURL           string
	RPCUser          string
	RPCPassword      string
	FeeRate          uint64
	MinConfirmations int64
	ConfirmTimeout   time.Duration

	// Storage provider, served locally and/or used remotely.
	ServeProvider   bool
	ProviderURL     string
	ProviderPubKey  string
	ProviderHost    string
	ProviderPort    int
	Collateral      uint64
	CostPerKB       uint64
	DiscoveryDomain string
	DNSUpstream     string
	RequireDNSSEC   bool
}

// DefaultDataDir returns ~/.chunkd, or .chunkd when the home directory
// cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chunkd"
	}
	return filepath.Join(home, ".chunkd")
}

// ConfigPath returns the configuration file inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config")
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:    DefaultDataDir(),
		ListenAddr: ":8400",
		Network:    "mainnet",
		LogLevel:   "info",

		ChunkSize:               storage.DefaultChunkSize,
		UploadRetryLimit:        3,
		UploadLoopInterval:      time.Second,
		ConcurrentDownloadDelay: 500 * time.Millisecond,
		UploadWorkers:           4,
		FetchWorkers:            8,
		DecryptWorkers:          4,
		DecryptTimeout:          time.Minute,

		Backend: BackendLedger,

		HTTPRetries: 2,
		HTTPTimeout: 30 * time.Second,

		FeeRate:        1,
		ConfirmTimeout: 30 * time.Second,

		ProviderPort: 8400,
	}
}

// field binds a config key to its Config member.
type field struct {
	key string
	get func(*Config) string
	set func(*Config, string) error
}

func str(key string, p func(*Config) *string) field {
	return field{
		key: key,
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) error { *p(c) = v; return nil },
	}
}

func integer(key string, p func(*Config) *int) field {
	return field{
		key: key,
		get: func(c *Config) string { return strconv.Itoa(*p(c)) },
		set: func(c *Config, v string) (err error) { *p(c), err = strconv.Atoi(v); return },
	}
}

func uint64Field(key string, p func(*Config) *uint64) field {
	return field{
		key: key,
		get: func(c *Config) string { return strconv.FormatUint(*p(c), 10) },
		set: func(c *Config, v string) (err error) { *p(c), err = strconv.ParseUint(v, 10, 64); return },
	}
}

func int64Field(key string, p func(*Config) *int64) field {
	return field{
		key: key,
		get: func(c *Config) string { return strconv.FormatInt(*p(c), 10) },
		set: func(c *Config, v string) (err error) { *p(c), err = strconv.ParseInt(v, 10, 64); return },
	}
}

func boolean(key string, p func(*Config) *bool) field {
	return field{
		key: key,
		get: func(c *Config) string { return strconv.FormatBool(*p(c)) },
		set: func(c *Config, v string) (err error) { *p(c), err = strconv.ParseBool(v); return },
	}
}

// millis stores a duration as integer milliseconds.
func millis(key string, p func(*Config) *time.Duration) field {
	return field{
		key: key,
		get: func(c *Config) string { return strconv.FormatInt(p(c).Milliseconds(), 10) },
		set: func(c *Config, v string) error {
			ms, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return err
			}
			*p(c) = time.Duration(ms) * time.Millisecond
			return nil
		},
	}
}

func list(key string, p func(*Config) *[]string) field {
	return field{
		key: key,
		get: func(c *Config) string { return strings.Join(*p(c), ",") },
		set: func(c *Config, v string) error {
			var out []string
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
			*p(c) = out
			return nil
		},
	}
}

var fields = []field{
	str("datadir", func(c *Config) *string { return &c.DataDir }),
	str("listen", func(c *Config) *string { return &c.ListenAddr }),
	str("network", func(c *Config) *string { return &c.Network }),
	str("loglevel", func(c *Config) *string { return &c.LogLevel }),
	str("logfile", func(c *Config) *string { return &c.LogFile }),

	integer("chunk_size", func(c *Config) *int { return &c.ChunkSize }),
	integer("upload_retry_limit", func(c *Config) *int { return &c.UploadRetryLimit }),
	millis("upload_loop_interval", func(c *Config) *time.Duration { return &c.UploadLoopInterval }),
	millis("concurrent_download_delay", func(c *Config) *time.Duration { return &c.ConcurrentDownloadDelay }),
	boolean("revalidate_decrypted_chunk", func(c *Config) *bool { return &c.RevalidateDecryptedChunk }),
	integer("upload_workers", func(c *Config) *int { return &c.UploadWorkers }),
	integer("fetch_workers", func(c *Config) *int { return &c.FetchWorkers }),
	integer("decrypt_workers", func(c *Config) *int { return &c.DecryptWorkers }),
	millis("decrypt_timeout", func(c *Config) *time.Duration { return &c.DecryptTimeout }),
	str("metrics_listen", func(c *Config) *string { return &c.MetricsAddr }),

	str("backend", func(c *Config) *string { return &c.Backend }),

	integer("http_retries", func(c *Config) *int { return &c.HTTPRetries }),
	millis("http_timeout", func(c *Config) *time.Duration { return &c.HTTPTimeout }),
	list("accelerator_urls", func(c *Config) *[]string { return &c.AcceleratorURLs }),
	str("edge_url", func(c *Config) *string { return &c.EdgeURL }),
	str("index_url", func(c *Config) *string { return &c.IndexURL }),

	str("s3_bucket", func(c *Config) *string { return &c.S3Bucket }),
	str("s3_prefix", func(c *Config) *string { return &c.S3Prefix }),
	str("s3_region", func(c *Config) *string { return &c.S3Region }),
	str("s3_endpoint", func(c *Config) *string { return &c.S3Endpoint }),
	str("s3_access_key", func(c *Config) *string { return &c.S3AccessKey }),
	str("s3_secret_key", func(c *Config) *string { return &c.S3SecretKey }),
	boolean("s3_path_style", func(c *Config) *bool { return &c.S3PathStyle }),

	str("rpc_url", func(c *Config) *string { return &c.RPCURL }),
	str("rpc_user", func(c *Config) *string { return &c.RPCUser }),
	str("rpc_password", func(c *Config) *string { return &c.RPCPassword }),
	uint64Field("fee_rate", func(c *Config) *uint64 { return &c.FeeRate }),
	int64Field("min_confirmations", func(c *Config) *int64 { return &c.MinConfirmations }),
	millis("confirm_timeout", func(c *Config) *time.Duration { return &c.ConfirmTimeout }),

	boolean("serve_provider", func(c *Config) *bool { return &c.ServeProvider }),
	str("provider_url", func(c *Config) *string { return &c.ProviderURL }),
	str("provider_pubkey", func(c *Config) *string { return &c.ProviderPubKey }),
	str("provider_host", func(c *Config) *string { return &c.ProviderHost }),
	integer("provider_port", func(c *Config) *int { return &c.ProviderPort }),
	uint64Field("collateral", func(c *Config) *uint64 { return &c.Collateral }),
	uint64Field("cost_per_kb", func(c *Config) *uint64 { return &c.CostPerKB }),
	str("discovery_domain", func(c *Config) *string { return &c.DiscoveryDomain }),
	str("dns_upstream", func(c *Config) *string { return &c.DNSUpstream }),
	boolean("require_dnssec", func(c *Config) *bool { return &c.RequireDNSSEC }),
}

func lookup(key string) (field, bool) {
	for _, f := range fields {
		if f.key == key {
			return f, true
		}
	}
	return field{}, false
}

// Set assigns one key. Unknown keys are ignored so that older binaries
// can read newer files.
func (c *Config) Set(key, value string) error {
	f, ok := lookup(key)
	if !ok {
		return nil
	}
	if err := f.set(c, value); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidValue, key, err)
	}
	return nil
}

// parseKeyValue splits "key = value" on the first '='.
func parseKeyValue(line string) (string, string, bool) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}

// LoadConfig reads path on top of DefaultConfig. Blank lines and lines
// starting with '#' are skipped.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := parseKeyValue(line)
		if !ok {
			return cfg, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		if err := cfg.Set(key, value); err != nil {
			return cfg, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes every key of cfg to path, creating parent directories.
func SaveConfig(path string, cfg Config) error {
	var b strings.Builder
	b.WriteString("# chunkd configuration\n")
	b.WriteString("# Durations are in milliseconds. Each key may be overridden by CHUNKD_<KEY>.\n\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "%s = %s\n", f.key, f.get(&cfg))
	}
	return storage.WriteFileAtomic(path, []byte(b.String()))
}

// ApplyEnv overrides cfg from env, a map of environment variables.
func ApplyEnv(cfg *Config, env map[string]string) error {
	for _, f := range fields {
		v, ok := env[EnvPrefix+strings.ToUpper(f.key)]
		if !ok {
			continue
		}
		if err := cfg.Set(f.key, v); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, strings.ToUpper(f.key), err)
		}
	}
	return nil
}

// Environ returns the process environment as a map for ApplyEnv.
func Environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

func isNotFound(err error) bool { return errors.Is(err, ErrConfigNotFound) }

// Load reads the config file in dataDir, tolerating its absence, and
// applies environment overrides.
func Load(dataDir string, env map[string]string) (Config, error) {
	cfg, err := LoadConfig(ConfigPath(dataDir))
	if err != nil && !isNotFound(err) {
		return cfg, err
	}
	if cfg.DataDir == DefaultDataDir() {
		cfg.DataDir = dataDir
	}
	if err := ApplyEnv(&cfg, env); err != nil {
		return cfg, err
	}
	return cfg, ValidateConfig(cfg)
}
