package config

import (
	"testing"
	"time"

	"github.com/goran-ethernal/ChainRuntime/internal/common"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Chains: []ChainConfig{{
			ID:     1,
			RPCURL: "http://localhost:8545",
			Contracts: []ContractConfig{{
				Name:      "ERC20",
				Addresses: []string{"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"},
				Events:    []EventConfig{{Signature: "Transfer(address indexed from, address indexed to, uint256 value)"}},
			}},
		}},
		Handlers: []string{"erc20"},
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "no chains",
			mutate:  func(c *Config) { c.Chains = nil },
			wantErr: "at least one chain",
		},
		{
			name:    "duplicate chain",
			mutate:  func(c *Config) { c.Chains = append(c.Chains, c.Chains[0]) },
			wantErr: "duplicate chain id 1",
		},
		{
			name:    "missing rpc url",
			mutate:  func(c *Config) { c.Chains[0].RPCURL = "" },
			wantErr: "rpc_url is required",
		},
		{
			name:    "bad address",
			mutate:  func(c *Config) { c.Chains[0].Contracts[0].Addresses = []string{"0x1234"} },
			wantErr: "invalid address",
		},
		{
			name: "duplicate contract",
			mutate: func(c *Config) {
				c.Chains[0].Contracts = append(c.Chains[0].Contracts, c.Chains[0].Contracts[0])
			},
			wantErr: "duplicate contract name 'ERC20'",
		},
		{
			name:    "zero interval block job",
			mutate:  func(c *Config) { c.Chains[0].BlockJobs = []BlockJobConfig{{Name: "Tick"}} },
			wantErr: "interval must be greater than 0",
		},
		{
			name:    "unknown handler error policy",
			mutate:  func(c *Config) { c.Scheduler.OnHandlerError = "retry" },
			wantErr: "on_handler_error",
		},
		{
			name: "invalid effect rate limit",
			mutate: func(c *Config) {
				c.Effects = []EffectConfig{{Name: "price", RateLimit: &RateLimitConfig{Calls: 0, Per: common.NewDuration(time.Second)}}}
			},
			wantErr: "must be positive",
		},
		{
			name:    "persistence without path",
			mutate:  func(c *Config) { c.Persistence = &PersistenceConfig{Enabled: true} },
			wantErr: "db.path is required",
		},
		{
			name: "unknown log component",
			mutate: func(c *Config) {
				c.Logging = &LoggingConfig{DefaultLevel: "info", ComponentLevels: map[string]string{"downloader": "debug"}}
			},
			wantErr: "unknown component 'downloader'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)
			cfg.ApplyDefaults()

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Chains[0].StartBlock = 50
	cfg.Chains[0].Retry = &RetryConfig{}
	cfg.Chains[0].BlockJobs = []BlockJobConfig{{Name: "Tick", Interval: 10}}
	cfg.API = &APIConfig{CORS: &CORSConfig{}}
	cfg.Logging = &LoggingConfig{}

	cfg.ApplyDefaults()

	require.Equal(t, uint64(2000), cfg.Chains[0].ChunkSize)
	require.Equal(t, 5, cfg.Chains[0].Retry.MaxAttempts)
	require.Equal(t, uint64(50), cfg.Chains[0].BlockJobs[0].StartBlock)
	require.Equal(t, OnHandlerErrorAbort, cfg.Scheduler.OnHandlerError)
	require.Equal(t, ":8080", cfg.API.ListenAddress)
	require.Equal(t, []string{"*"}, cfg.API.CORS.AllowedOrigins)
	require.Equal(t, "info", cfg.Logging.GetComponentLevel("scheduler"))
	require.NoError(t, cfg.Validate())
}
