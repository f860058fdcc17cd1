package config

import (
	"fmt"
	"slices"
	"time"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ChainRuntime/internal/common"
	"github.com/goran-ethernal/ChainRuntime/internal/logger"
)

// Handler error policies.
const (
	OnHandlerErrorAbort = "abort"
	OnHandlerErrorSkip  = "skip"
)

// Config represents the complete configuration for the runtime.
type Config struct {
	// Chains lists every chain the runtime processes, with its contracts and block jobs
	Chains []ChainConfig `yaml:"chains" json:"chains" toml:"chains"`

	// Handlers lists the handler modules to load (see the `list` command)
	Handlers []string `yaml:"handlers" json:"handlers" toml:"handlers"`

	// Entities optionally restricts the entity types handlers may read and write
	Entities []string `yaml:"entities,omitempty" json:"entities,omitempty" toml:"entities,omitempty"`

	// Effects overrides rate limits and timeouts of effects by name
	Effects []EffectConfig `yaml:"effects,omitempty" json:"effects,omitempty" toml:"effects,omitempty"`

	// Scheduler controls item processing behavior
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler" toml:"scheduler"`

	// Persistence configures the optional SQLite checkpoint database
	Persistence *PersistenceConfig `yaml:"persistence,omitempty" json:"persistence,omitempty" toml:"persistence,omitempty"`

	// API configures the read-only query API
	API *APIConfig `yaml:"api,omitempty" json:"api,omitempty" toml:"api,omitempty"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// ChainConfig describes a single chain.
type ChainConfig struct {
	// ID is the chain id
	ID uint64 `yaml:"id" json:"id" toml:"id"`

	// RPCURL is the JSON-RPC endpoint used to fetch logs
	RPCURL string `yaml:"rpc_url" json:"rpc_url" toml:"rpc_url"`

	// StartBlock is the first block to process
	StartBlock uint64 `yaml:"start_block" json:"start_block" toml:"start_block"`

	// EndBlock is the last block to process (0 = follow the head forever)
	EndBlock uint64 `yaml:"end_block,omitempty" json:"end_block,omitempty" toml:"end_block,omitempty"`

	// ChunkSize is the block range per eth_getLogs call
	ChunkSize uint64 `yaml:"chunk_size" json:"chunk_size" toml:"chunk_size"`

	// Confirmations is the number of blocks to stay behind the head
	Confirmations uint64 `yaml:"confirmations" json:"confirmations" toml:"confirmations"`

	// PollInterval is how long to wait for new blocks once the head is reached
	PollInterval common.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// Retry contains RPC retry configuration with exponential backoff
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`

	// Contracts lists the contracts and events handlers subscribe to
	Contracts []ContractConfig `yaml:"contracts" json:"contracts" toml:"contracts"`

	// BlockJobs lists the block interval callbacks for this chain
	BlockJobs []BlockJobConfig `yaml:"block_jobs,omitempty" json:"block_jobs,omitempty" toml:"block_jobs,omitempty"`
}

// ApplyDefaults sets default values for optional chain configuration fields.
func (c *ChainConfig) ApplyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 2000
	}
	if c.PollInterval.Duration == 0 {
		c.PollInterval = common.NewDuration(5 * time.Second) //nolint:mnd
	}
	if c.Retry != nil {
		c.Retry.ApplyDefaults()
	}
	for i := range c.BlockJobs {
		if c.BlockJobs[i].StartBlock == 0 {
			c.BlockJobs[i].StartBlock = c.StartBlock
		}
	}
}

// Validate checks if the chain configuration is valid.
func (c *ChainConfig) Validate() error {
	if c.ID == 0 {
		return fmt.Errorf("id is required")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("rpc_url is required")
	}
	if c.EndBlock != 0 && c.EndBlock < c.StartBlock {
		return fmt.Errorf("end_block %d is before start_block %d", c.EndBlock, c.StartBlock)
	}
	if len(c.Contracts) == 0 && len(c.BlockJobs) == 0 {
		return fmt.Errorf("at least one contract or block job must be configured")
	}

	names := make(map[string]struct{}, len(c.Contracts))
	for i, contract := range c.Contracts {
		if err := contract.Validate(); err != nil {
			return fmt.Errorf("contracts[%d]: %w", i, err)
		}
		if _, dup := names[contract.Name]; dup {
			return fmt.Errorf("contracts[%d]: duplicate contract name '%s'", i, contract.Name)
		}
		names[contract.Name] = struct{}{}
	}

	jobs := make(map[string]struct{}, len(c.BlockJobs))
	for i, job := range c.BlockJobs {
		if err := job.Validate(); err != nil {
			return fmt.Errorf("block_jobs[%d]: %w", i, err)
		}
		if _, dup := jobs[job.Name]; dup {
			return fmt.Errorf("block_jobs[%d]: duplicate job name '%s'", i, job.Name)
		}
		jobs[job.Name] = struct{}{}
	}

	return nil
}

// ContractConfig represents a contract and the events handlers subscribe to.
// A contract with no addresses and no wildcard flag is a template that only
// becomes active through dynamic registration from a handler.
type ContractConfig struct {
	// Name identifies the contract in handler keys ("Name.Event")
	Name string `yaml:"name" json:"name" toml:"name"`

	// Addresses are the statically known deployments
	Addresses []string `yaml:"addresses,omitempty" json:"addresses,omitempty" toml:"addresses,omitempty"`

	// Wildcard matches the events from any address
	Wildcard bool `yaml:"wildcard,omitempty" json:"wildcard,omitempty" toml:"wildcard,omitempty"`

	// Events lists the subscribed events
	Events []EventConfig `yaml:"events" json:"events" toml:"events"`
}

// Validate checks if the contract configuration is valid.
func (c *ContractConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(c.Events) == 0 {
		return fmt.Errorf("contract '%s': at least one event must be configured", c.Name)
	}
	for _, addr := range c.Addresses {
		if !gethcommon.IsHexAddress(addr) {
			return fmt.Errorf("contract '%s': invalid address '%s'", c.Name, addr)
		}
	}
	for i, ev := range c.Events {
		if ev.Signature == "" {
			return fmt.Errorf("contract '%s', events[%d]: signature is required", c.Name, i)
		}
	}

	return nil
}

// EventConfig is a subscribed event with optional field filters.
type EventConfig struct {
	// Signature is the event signature, e.g. "Transfer(address indexed from, address indexed to, uint256 value)"
	Signature string `yaml:"signature" json:"signature" toml:"signature"`

	// Filters are OR'd together; the fields inside one filter are AND'd.
	// A list value matches any of its elements.
	Filters []map[string]any `yaml:"filters,omitempty" json:"filters,omitempty" toml:"filters,omitempty"`
}

// BlockJobConfig represents a block interval callback.
type BlockJobConfig struct {
	// Name is the key the handler is registered under
	Name string `yaml:"name" json:"name" toml:"name"`

	// Interval is the number of blocks between two runs
	Interval uint64 `yaml:"interval" json:"interval" toml:"interval"`

	// StartBlock is the first block the job may run on (defaults to the chain start block)
	StartBlock uint64 `yaml:"start_block,omitempty" json:"start_block,omitempty" toml:"start_block,omitempty"`

	// EndBlock is the last block the job may run on (0 = unbounded)
	EndBlock uint64 `yaml:"end_block,omitempty" json:"end_block,omitempty" toml:"end_block,omitempty"`
}

// Validate checks if the block job configuration is valid.
func (b *BlockJobConfig) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("name is required")
	}
	if b.Interval == 0 {
		return fmt.Errorf("job '%s': interval must be greater than 0", b.Name)
	}
	if b.EndBlock != 0 && b.EndBlock < b.StartBlock {
		return fmt.Errorf("job '%s': end_block is before start_block", b.Name)
	}

	return nil
}

// EffectConfig overrides the options of an effect by name.
type EffectConfig struct {
	// Name is the effect name
	Name string `yaml:"name" json:"name" toml:"name"`

	// RateLimit caps the number of calls per period across all call sites
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty" toml:"rate_limit,omitempty"`

	// Timeout bounds a single invocation including rate limiter waits
	Timeout common.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" toml:"timeout,omitempty"`
}

// RateLimitConfig is a token bucket of Calls per Per.
type RateLimitConfig struct {
	Calls int             `yaml:"calls" json:"calls" toml:"calls"`
	Per   common.Duration `yaml:"per" json:"per" toml:"per"`
}

// Validate checks if the effect configuration is valid.
func (e *EffectConfig) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("name is required")
	}
	if e.RateLimit != nil && (e.RateLimit.Calls <= 0 || e.RateLimit.Per.Duration <= 0) {
		return fmt.Errorf("effect '%s': rate_limit.calls and rate_limit.per must be positive", e.Name)
	}
	if e.Timeout.Duration < 0 {
		return fmt.Errorf("effect '%s': timeout must not be negative", e.Name)
	}

	return nil
}

// SchedulerConfig configures the scheduler.
type SchedulerConfig struct {
	// OnHandlerError is the handler failure policy: "abort" halts the chain, "skip" drops the item
	OnHandlerError string `yaml:"on_handler_error" json:"on_handler_error" toml:"on_handler_error"`
}

// ApplyDefaults sets default values for the scheduler configuration.
func (s *SchedulerConfig) ApplyDefaults() {
	if s.OnHandlerError == "" {
		s.OnHandlerError = OnHandlerErrorAbort
	}
}

// Validate checks if the scheduler configuration is valid.
func (s *SchedulerConfig) Validate() error {
	if s.OnHandlerError != OnHandlerErrorAbort && s.OnHandlerError != OnHandlerErrorSkip {
		return fmt.Errorf("scheduler.on_handler_error must be one of: 'abort', 'skip'")
	}
	return nil
}

// RetryConfig represents RPC retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// PersistenceConfig configures the checkpoint database.
type PersistenceConfig struct {
	// Enabled turns checkpointing on; state is restored from the database on start
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// DB contains the SQLite settings
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 1
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 1
	}
}

// Validate checks if the database configuration is valid.
func (d *DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("db.path is required")
	}
	if d.JournalMode != "" && !slices.Contains([]string{"WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY"}, d.JournalMode) {
		return fmt.Errorf("db.journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}
	if d.Synchronous != "" && !slices.Contains([]string{"FULL", "NORMAL", "OFF"}, d.Synchronous) {
		return fmt.Errorf("db.synchronous must be one of: FULL, NORMAL, OFF")
	}
	return nil
}

// APIConfig configures the query API server.
type APIConfig struct {
	// Enabled controls whether the API server is started
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the API server to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// ReadTimeout bounds reading a request
	ReadTimeout common.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`

	// WriteTimeout bounds writing a response
	WriteTimeout common.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`

	// IdleTimeout bounds keep-alive connections
	IdleTimeout common.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`

	// CORS configures cross-origin requests
	CORS *CORSConfig `yaml:"cors,omitempty" json:"cors,omitempty" toml:"cors,omitempty"`
}

// CORSConfig configures cross-origin resource sharing.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers" toml:"allowed_headers"`
}

// ApplyDefaults sets default values for the API configuration.
func (a *APIConfig) ApplyDefaults() {
	if a.ListenAddress == "" {
		a.ListenAddress = ":8080"
	}
	if a.ReadTimeout.Duration == 0 {
		a.ReadTimeout = common.NewDuration(15 * time.Second) //nolint:mnd
	}
	if a.WriteTimeout.Duration == 0 {
		a.WriteTimeout = common.NewDuration(15 * time.Second) //nolint:mnd
	}
	if a.IdleTimeout.Duration == 0 {
		a.IdleTimeout = common.NewDuration(60 * time.Second) //nolint:mnd
	}
	if a.CORS != nil {
		if len(a.CORS.AllowedOrigins) == 0 {
			a.CORS.AllowedOrigins = []string{"*"}
		}
		if len(a.CORS.AllowedMethods) == 0 {
			a.CORS.AllowedMethods = []string{"GET", "OPTIONS"}
		}
		if len(a.CORS.AllowedHeaders) == 0 {
			a.CORS.AllowedHeaders = []string{"Content-Type"}
		}
	}
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components:
	//   - scheduler: per-chain item processing
	//   - subscription-registry: static and dynamic subscriptions
	//   - effect-cache: effect memoization and rate limiting
	//   - entity-store: snapshot commits
	//   - log-source: RPC log fetching
	//   - checkpoint: checkpoint database
	//   - api: query API server
	//   - orchestrator: runtime wiring
	//   - handler: user handler log sink
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return common.ToLowerWithTrim(level)
	}
	if l.DefaultLevel == "" {
		return "info"
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" || m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	for i := range c.Chains {
		c.Chains[i].ApplyDefaults()
	}

	c.Scheduler.ApplyDefaults()

	if c.Persistence != nil {
		c.Persistence.DB.ApplyDefaults()
	}
	if c.API != nil {
		c.API.ApplyDefaults()
	}
	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}
	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}

	chainIDs := make(map[uint64]struct{}, len(c.Chains))
	for i := range c.Chains {
		chain := &c.Chains[i]
		if err := chain.Validate(); err != nil {
			return fmt.Errorf("chains[%d]: %w", i, err)
		}
		if _, dup := chainIDs[chain.ID]; dup {
			return fmt.Errorf("chains[%d]: duplicate chain id %d", i, chain.ID)
		}
		chainIDs[chain.ID] = struct{}{}
	}

	if err := c.Scheduler.Validate(); err != nil {
		return err
	}

	effects := make(map[string]struct{}, len(c.Effects))
	for i := range c.Effects {
		if err := c.Effects[i].Validate(); err != nil {
			return fmt.Errorf("effects[%d]: %w", i, err)
		}
		if _, dup := effects[c.Effects[i].Name]; dup {
			return fmt.Errorf("effects[%d]: duplicate effect '%s'", i, c.Effects[i].Name)
		}
		effects[c.Effects[i].Name] = struct{}{}
	}

	if c.Persistence != nil && c.Persistence.Enabled {
		if err := c.Persistence.DB.Validate(); err != nil {
			return fmt.Errorf("persistence: %w", err)
		}
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}
