package network

import (
	"fmt"
	"time"
)

// RPCConfig holds the connection parameters for a BSV node's JSON-RPC interface.
type RPCConfig struct {
	URL      string        `json:"url"`
	User     string        `json:"user"`
	Password string        `json:"password"`
	Network  string        `json:"network"`
	Retries  int           `json:"retries"`
	Timeout  time.Duration `json:"timeout"`
}

// NetworkPresets contains default RPC configurations for known networks.
// Mainnet is omitted to require explicit configuration.
var NetworkPresets = map[string]RPCConfig{
	"regtest": {URL: "http://localhost:18332", User: "chunkd", Password: "chunkd"},
	"testnet": {URL: "http://localhost:18333", User: "chunkd", Password: "chunkd"},
}

// Environment variables read by ResolveConfig.
const (
	EnvRPCURL  = "CHUNKD_RPC_URL"
	EnvRPCUser = "CHUNKD_RPC_USER"
	EnvRPCPass = "CHUNKD_RPC_PASS"
)

// ResolveConfig merges RPC configuration from three sources with decreasing priority:
//  1. explicit settings (flags or config file)
//  2. environment variables (CHUNKD_RPC_URL, CHUNKD_RPC_USER, CHUNKD_RPC_PASS)
//  3. network presets (regtest/testnet only)
//
// Retries and Timeout are taken from explicit when set.
func ResolveConfig(explicit *RPCConfig, env map[string]string, network string) (*RPCConfig, error) {
	result := RPCConfig{Network: network}

	if preset, ok := NetworkPresets[network]; ok {
		result = preset
		result.Network = network
	}

	if v := env[EnvRPCURL]; v != "" {
		result.URL = v
	}
	if v := env[EnvRPCUser]; v != "" {
		result.User = v
	}
	if v := env[EnvRPCPass]; v != "" {
		result.Password = v
	}

	if explicit != nil {
		if explicit.URL != "" {
			result.URL = explicit.URL
		}
		if explicit.User != "" {
			result.User = explicit.User
		}
		if explicit.Password != "" {
			result.Password = explicit.Password
		}
		result.Retries = explicit.Retries
		result.Timeout = explicit.Timeout
	}

	if result.URL == "" {
		return nil, fmt.Errorf("network: %s requires explicit RPC configuration (set rpc_url or %s)", network, EnvRPCURL)
	}
	return &result, nil
}
