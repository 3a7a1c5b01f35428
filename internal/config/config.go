// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SNIPER_* environment variables.
type Config struct {
	Wallet    WalletConfig    `toml:"wallet"`
	RPC       RPCConfig       `toml:"rpc"`
	Venues    VenuesConfig    `toml:"venues"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Trading   TradingConfig   `toml:"trading"`
	Risk      RiskConfig      `toml:"risk"`
	Breaker   BreakerConfig   `toml:"breaker"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// WalletConfig holds the signing key source. Key generation is handled by
// external tooling; the engine only loads and decrypts.
type WalletConfig struct {
	// RawPrivateKey is a base58-encoded ed25519 secret key. Intended for
	// development only; production deployments should use the keyfile.
	RawPrivateKey    string `toml:"raw_private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	Address          string `toml:"address"`
}

// RPCConfig holds the chain RPC endpoint parameters.
type RPCConfig struct {
	Endpoint       string   `toml:"endpoint"`
	Commitment     string   `toml:"commitment"`
	RequestTimeout duration `toml:"request_timeout"`
	ConfirmTimeout duration `toml:"confirm_timeout"`
	ConfirmPoll    duration `toml:"confirm_poll"`
}

// VenueConfig holds one venue adapter's connection parameters.
type VenueConfig struct {
	Enabled    bool   `toml:"enabled"`
	BaseURL    string `toml:"base_url"`
	WsURL      string `toml:"ws_url"`
	FeeBps     int64  `toml:"fee_bps"`
	RatePerSec int    `toml:"rate_per_sec"`
}

// VenuesConfig enumerates the closed venue set.
type VenuesConfig struct {
	Jupiter VenueConfig `toml:"jupiter"`
	Raydium VenueConfig `toml:"raydium"`
	Orca    VenueConfig `toml:"orca"`
}

// DiscoveryConfig holds quote aggregation and route search parameters.
type DiscoveryConfig struct {
	BaseAsset       string   `toml:"base_asset"`
	TradeAssets     []string `toml:"trade_assets"`
	PollInterval    duration `toml:"poll_interval"`
	VenueTimeout    duration `toml:"venue_timeout"`
	StalenessWindow duration `toml:"staleness_window"`
	MaxHops         int      `toml:"max_hops"`
	LiquidityFloor  int64    `toml:"liquidity_floor"`
	ProbeAmount     int64    `toml:"probe_amount"`
}

// TradingConfig holds execution sizing and profitability thresholds. All
// amounts are base units of the base asset (lamports for SOL).
type TradingConfig struct {
	InputAmount     int64    `toml:"input_amount"`
	MinNetProfit    int64    `toml:"min_net_profit"`
	SafetyMargin    int64    `toml:"safety_margin"`
	BaseFeePerSig   int64    `toml:"base_fee_per_sig"`
	PriorityFee     int64    `toml:"priority_fee"`
	OpportunityTTL  duration `toml:"opportunity_ttl"`
	MitigationSlack int64    `toml:"mitigation_slack_bps"`
}

// RiskConfig holds the risk validator limits.
type RiskConfig struct {
	MinHopLiquidity  int64   `toml:"min_hop_liquidity"`
	MaxPositionSize  int64   `toml:"max_position_size"`
	MaxSlippageBps   int64   `toml:"max_slippage_bps"`
	SentimentEnabled bool    `toml:"sentiment_enabled"`
	SentimentURL     string  `toml:"sentiment_url"`
	SentimentFloor   float64 `toml:"sentiment_floor"`
}

// BreakerConfig holds retry and circuit-breaker parameters.
type BreakerConfig struct {
	MaxAttempts        int      `toml:"max_attempts"`
	InitialBackoff     duration `toml:"initial_backoff"`
	MaxBackoff         duration `toml:"max_backoff"`
	FailureWindow      duration `toml:"failure_window"`
	VenueFailThreshold int      `toml:"venue_fail_threshold"`
	PartialFailLimit   int      `toml:"partial_fail_limit"`
	MaxLossUnits       int64    `toml:"max_loss_units"`
	CoolDown           duration `toml:"cool_down"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int    `toml:"stream_max_len"`
}

// S3Config holds object storage parameters for the attempt archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	ExportCron     string `toml:"export_cron"`
	RetentionDays  int    `toml:"retention_days"`
}

// ServerConfig holds the ops HTTP server parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "250ms", "5s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		RPC: RPCConfig{
			Endpoint:       "https://api.mainnet-beta.solana.com",
			Commitment:     "confirmed",
			RequestTimeout: duration{10 * time.Second},
			ConfirmTimeout: duration{30 * time.Second},
			ConfirmPoll:    duration{500 * time.Millisecond},
		},
		Venues: VenuesConfig{
			Jupiter: VenueConfig{
				Enabled:    true,
				BaseURL:    "https://quote-api.jup.ag/v6",
				FeeBps:     4,
				RatePerSec: 10,
			},
			Raydium: VenueConfig{
				Enabled:    true,
				BaseURL:    "https://api.raydium.io/v2",
				FeeBps:     25,
				RatePerSec: 10,
			},
			Orca: VenueConfig{
				Enabled:    true,
				BaseURL:    "https://api.orca.so/v1",
				WsURL:      "",
				FeeBps:     30,
				RatePerSec: 10,
			},
		},
		Discovery: DiscoveryConfig{
			BaseAsset:       "So11111111111111111111111111111111111111112",
			TradeAssets:     []string{"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
			PollInterval:    duration{400 * time.Millisecond},
			VenueTimeout:    duration{900 * time.Millisecond},
			StalenessWindow: duration{500 * time.Millisecond},
			MaxHops:         3,
			LiquidityFloor:  50_000_000_000, // 50 SOL equivalent depth
			ProbeAmount:     1_000_000_000,  // 1 SOL
		},
		Trading: TradingConfig{
			InputAmount:     1_000_000_000, // 1 SOL
			MinNetProfit:    500_000,       // 0.0005 SOL
			SafetyMargin:    100_000,
			BaseFeePerSig:   5_000,
			PriorityFee:     10_000,
			OpportunityTTL:  duration{800 * time.Millisecond},
			MitigationSlack: 300,
		},
		Risk: RiskConfig{
			MinHopLiquidity: 10_000_000_000,
			MaxPositionSize: 5_000_000_000,
			MaxSlippageBps:  100,
			SentimentFloor:  -0.5,
		},
		Breaker: BreakerConfig{
			MaxAttempts:        4,
			InitialBackoff:     duration{100 * time.Millisecond},
			MaxBackoff:         duration{2 * time.Second},
			FailureWindow:      duration{time.Minute},
			VenueFailThreshold: 3,
			PartialFailLimit:   5,
			MaxLossUnits:       100_000_000, // 0.1 SOL
			CoolDown:           duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "sniperforge",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 10_000,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "sniperforge-attempts",
			ForcePathStyle: true,
			ExportCron:     "0 * * * *",
			RetentionDays:  90,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Notify: NotifyConfig{
			Events: []string{"partial_failure", "breaker_open", "attempt_completed"},
		},
		Mode:     "detect",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"detect": true,
	"trade":  true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: detect, trade, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet — only trading modes need a signing key.
	needsWallet := c.Mode == "trade" || c.Mode == "full"
	if needsWallet {
		if c.Wallet.RawPrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: raw_private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if c.RPC.Endpoint == "" {
		errs = append(errs, "rpc: endpoint must not be empty")
	}
	if c.RPC.ConfirmPoll.Duration <= 0 {
		errs = append(errs, "rpc: confirm_poll must be > 0")
	}

	enabledVenues := 0
	for name, v := range map[string]VenueConfig{
		"jupiter": c.Venues.Jupiter,
		"raydium": c.Venues.Raydium,
		"orca":    c.Venues.Orca,
	} {
		if !v.Enabled {
			continue
		}
		enabledVenues++
		if v.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("venues.%s: base_url must not be empty when enabled", name))
		}
		if v.FeeBps < 0 || v.FeeBps >= 10_000 {
			errs = append(errs, fmt.Sprintf("venues.%s: fee_bps must be in [0, 10000)", name))
		}
	}
	if enabledVenues == 0 {
		errs = append(errs, "venues: at least one venue must be enabled")
	}

	if c.Discovery.BaseAsset == "" {
		errs = append(errs, "discovery: base_asset must not be empty")
	}
	if len(c.Discovery.TradeAssets) == 0 {
		errs = append(errs, "discovery: trade_assets must not be empty")
	}
	if c.Discovery.MaxHops < 2 || c.Discovery.MaxHops > 4 {
		errs = append(errs, fmt.Sprintf("discovery: max_hops must be 2-4, got %d", c.Discovery.MaxHops))
	}
	if c.Discovery.StalenessWindow.Duration <= 0 {
		errs = append(errs, "discovery: staleness_window must be > 0")
	}
	if c.Discovery.ProbeAmount <= 0 {
		errs = append(errs, "discovery: probe_amount must be > 0")
	}

	if needsWallet {
		if c.Trading.InputAmount <= 0 {
			errs = append(errs, "trading: input_amount must be > 0")
		}
		if c.Trading.MinNetProfit < 0 {
			errs = append(errs, "trading: min_net_profit must be >= 0")
		}
		if c.Trading.OpportunityTTL.Duration <= 0 {
			errs = append(errs, "trading: opportunity_ttl must be > 0")
		}
	}

	if c.Risk.MaxPositionSize <= 0 {
		errs = append(errs, "risk: max_position_size must be > 0")
	}
	if c.Risk.MaxSlippageBps <= 0 {
		errs = append(errs, "risk: max_slippage_bps must be > 0")
	}

	if c.Breaker.MaxAttempts < 1 {
		errs = append(errs, "breaker: max_attempts must be >= 1")
	}
	if c.Breaker.VenueFailThreshold < 1 {
		errs = append(errs, "breaker: venue_fail_threshold must be >= 1")
	}
	if c.Breaker.PartialFailLimit < 1 {
		errs = append(errs, "breaker: partial_fail_limit must be >= 1")
	}
	if c.Breaker.CoolDown.Duration <= 0 {
		errs = append(errs, "breaker: cool_down must be > 0")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
