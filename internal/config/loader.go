package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SNIPER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SNIPER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.RawPrivateKey, "SNIPER_WALLET_RAW_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "SNIPER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "SNIPER_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.Address, "SNIPER_WALLET_ADDRESS")

	// ── RPC ──
	setStr(&cfg.RPC.Endpoint, "SNIPER_RPC_ENDPOINT")
	setStr(&cfg.RPC.Commitment, "SNIPER_RPC_COMMITMENT")
	setDuration(&cfg.RPC.RequestTimeout, "SNIPER_RPC_REQUEST_TIMEOUT")
	setDuration(&cfg.RPC.ConfirmTimeout, "SNIPER_RPC_CONFIRM_TIMEOUT")
	setDuration(&cfg.RPC.ConfirmPoll, "SNIPER_RPC_CONFIRM_POLL")

	// ── Venues ──
	setBool(&cfg.Venues.Jupiter.Enabled, "SNIPER_VENUES_JUPITER_ENABLED")
	setStr(&cfg.Venues.Jupiter.BaseURL, "SNIPER_VENUES_JUPITER_BASE_URL")
	setBool(&cfg.Venues.Raydium.Enabled, "SNIPER_VENUES_RAYDIUM_ENABLED")
	setStr(&cfg.Venues.Raydium.BaseURL, "SNIPER_VENUES_RAYDIUM_BASE_URL")
	setBool(&cfg.Venues.Orca.Enabled, "SNIPER_VENUES_ORCA_ENABLED")
	setStr(&cfg.Venues.Orca.BaseURL, "SNIPER_VENUES_ORCA_BASE_URL")
	setStr(&cfg.Venues.Orca.WsURL, "SNIPER_VENUES_ORCA_WS_URL")

	// ── Discovery ──
	setStr(&cfg.Discovery.BaseAsset, "SNIPER_DISCOVERY_BASE_ASSET")
	setStringSlice(&cfg.Discovery.TradeAssets, "SNIPER_DISCOVERY_TRADE_ASSETS")
	setDuration(&cfg.Discovery.PollInterval, "SNIPER_DISCOVERY_POLL_INTERVAL")
	setDuration(&cfg.Discovery.VenueTimeout, "SNIPER_DISCOVERY_VENUE_TIMEOUT")
	setDuration(&cfg.Discovery.StalenessWindow, "SNIPER_DISCOVERY_STALENESS_WINDOW")
	setInt(&cfg.Discovery.MaxHops, "SNIPER_DISCOVERY_MAX_HOPS")
	setInt64(&cfg.Discovery.LiquidityFloor, "SNIPER_DISCOVERY_LIQUIDITY_FLOOR")
	setInt64(&cfg.Discovery.ProbeAmount, "SNIPER_DISCOVERY_PROBE_AMOUNT")

	// ── Trading ──
	setInt64(&cfg.Trading.InputAmount, "SNIPER_TRADING_INPUT_AMOUNT")
	setInt64(&cfg.Trading.MinNetProfit, "SNIPER_TRADING_MIN_NET_PROFIT")
	setInt64(&cfg.Trading.SafetyMargin, "SNIPER_TRADING_SAFETY_MARGIN")
	setInt64(&cfg.Trading.BaseFeePerSig, "SNIPER_TRADING_BASE_FEE_PER_SIG")
	setInt64(&cfg.Trading.PriorityFee, "SNIPER_TRADING_PRIORITY_FEE")
	setDuration(&cfg.Trading.OpportunityTTL, "SNIPER_TRADING_OPPORTUNITY_TTL")

	// ── Risk ──
	setInt64(&cfg.Risk.MinHopLiquidity, "SNIPER_RISK_MIN_HOP_LIQUIDITY")
	setInt64(&cfg.Risk.MaxPositionSize, "SNIPER_RISK_MAX_POSITION_SIZE")
	setInt64(&cfg.Risk.MaxSlippageBps, "SNIPER_RISK_MAX_SLIPPAGE_BPS")
	setBool(&cfg.Risk.SentimentEnabled, "SNIPER_RISK_SENTIMENT_ENABLED")
	setStr(&cfg.Risk.SentimentURL, "SNIPER_RISK_SENTIMENT_URL")

	// ── Breaker ──
	setInt(&cfg.Breaker.MaxAttempts, "SNIPER_BREAKER_MAX_ATTEMPTS")
	setDuration(&cfg.Breaker.InitialBackoff, "SNIPER_BREAKER_INITIAL_BACKOFF")
	setDuration(&cfg.Breaker.MaxBackoff, "SNIPER_BREAKER_MAX_BACKOFF")
	setDuration(&cfg.Breaker.FailureWindow, "SNIPER_BREAKER_FAILURE_WINDOW")
	setInt(&cfg.Breaker.VenueFailThreshold, "SNIPER_BREAKER_VENUE_FAIL_THRESHOLD")
	setInt(&cfg.Breaker.PartialFailLimit, "SNIPER_BREAKER_PARTIAL_FAIL_LIMIT")
	setInt64(&cfg.Breaker.MaxLossUnits, "SNIPER_BREAKER_MAX_LOSS_UNITS")
	setDuration(&cfg.Breaker.CoolDown, "SNIPER_BREAKER_COOL_DOWN")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SNIPER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SNIPER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SNIPER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SNIPER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SNIPER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SNIPER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SNIPER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SNIPER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SNIPER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SNIPER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SNIPER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SNIPER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SNIPER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SNIPER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SNIPER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SNIPER_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.StreamMaxLen, "SNIPER_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SNIPER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SNIPER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SNIPER_S3_REGION")
	setStr(&cfg.S3.Bucket, "SNIPER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SNIPER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SNIPER_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "SNIPER_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.ExportCron, "SNIPER_S3_EXPORT_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SNIPER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SNIPER_SERVER_PORT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SNIPER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SNIPER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SNIPER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SNIPER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SNIPER_MODE")
	setStr(&cfg.LogLevel, "SNIPER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
