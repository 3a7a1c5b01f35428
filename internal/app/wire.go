package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/juant72/sniperforge/internal/aggregator"
	s3blob "github.com/juant72/sniperforge/internal/blob/s3"
	"github.com/juant72/sniperforge/internal/breaker"
	"github.com/juant72/sniperforge/internal/cache/redis"
	"github.com/juant72/sniperforge/internal/chain"
	"github.com/juant72/sniperforge/internal/config"
	"github.com/juant72/sniperforge/internal/domain"
	"github.com/juant72/sniperforge/internal/engine"
	"github.com/juant72/sniperforge/internal/executor"
	"github.com/juant72/sniperforge/internal/graph"
	"github.com/juant72/sniperforge/internal/notify"
	"github.com/juant72/sniperforge/internal/risk"
	"github.com/juant72/sniperforge/internal/scorer"
	"github.com/juant72/sniperforge/internal/store/postgres"
	"github.com/juant72/sniperforge/internal/venue"
	"github.com/juant72/sniperforge/internal/venue/jupiter"
	"github.com/juant72/sniperforge/internal/venue/orca"
	"github.com/juant72/sniperforge/internal/venue/raydium"
	"github.com/juant72/sniperforge/internal/wallet"
)

// Dependencies bundles every component the application modes need to
// operate. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Persistence and messaging
	AttemptStore domain.AttemptStore
	QuoteCache   domain.QuoteCache
	AttemptBus   domain.AttemptBus
	LockManager  domain.LockManager

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	// Discovery pipeline
	Aggregator *aggregator.Aggregator
	OrcaStream *orca.Stream
	Builder    *graph.Builder
	Scorer     *scorer.Scorer

	// Execution
	Breaker   *breaker.Breaker
	Validator *risk.Validator
	Chain     *chain.Client
	Signer    *chain.Signer
	Wallet    *wallet.State
	Executor  *executor.Executor
	Engine    *engine.Engine

	// Notifications
	Notifier *notify.Notifier
	Alerts   *notify.Alerts
}

// needsPostgres returns true for modes that read or write the attempt
// journal.
func needsPostgres(mode string) bool {
	switch mode {
	case "trade", "server", "full":
		return true
	default:
		return false
	}
}

// needsWallet returns true for modes that sign and submit transactions.
func needsWallet(mode string) bool {
	switch mode {
	case "trade", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that touch the attempt journal) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.AttemptStore = postgres.NewAttemptStore(pgClient.Pool())
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.QuoteCache = redis.NewQuoteCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.AttemptBus = redis.NewAttemptBus(redisClient, int64(cfg.Redis.StreamMaxLen))

	// --- S3 blob storage for the attempt archive ---
	if cfg.S3.Enabled && deps.AttemptStore != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		retention := time.Duration(cfg.S3.RetentionDays) * 24 * time.Hour
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.AttemptStore, retention, logger)
	}

	// --- Circuit breaker ---
	deps.Breaker = breaker.New(breaker.Config{
		FailureWindow:      cfg.Breaker.FailureWindow.Duration,
		VenueFailThreshold: cfg.Breaker.VenueFailThreshold,
		PartialFailLimit:   cfg.Breaker.PartialFailLimit,
		MaxLossUnits:       cfg.Breaker.MaxLossUnits,
		CoolDown:           cfg.Breaker.CoolDown.Duration,
	}, logger)

	// --- Venue adapters and aggregator ---
	baseAsset := domain.Asset(cfg.Discovery.BaseAsset)
	tradeAssets := make([]domain.Asset, 0, len(cfg.Discovery.TradeAssets))
	for _, a := range cfg.Discovery.TradeAssets {
		tradeAssets = append(tradeAssets, domain.Asset(a))
	}

	var adapters []venue.Adapter
	if cfg.Venues.Jupiter.Enabled {
		adapters = append(adapters, jupiter.New(jupiter.Config{
			BaseURL:     cfg.Venues.Jupiter.BaseURL,
			FeeBps:      cfg.Venues.Jupiter.FeeBps,
			BaseAsset:   baseAsset,
			TradeAssets: tradeAssets,
		}))
	}
	if cfg.Venues.Raydium.Enabled {
		adapters = append(adapters, raydium.New(raydium.Config{
			BaseURL:     cfg.Venues.Raydium.BaseURL,
			FeeBps:      cfg.Venues.Raydium.FeeBps,
			BaseAsset:   baseAsset,
			TradeAssets: tradeAssets,
		}))
	}
	if cfg.Venues.Orca.Enabled {
		adapters = append(adapters, orca.New(orca.Config{
			BaseURL:     cfg.Venues.Orca.BaseURL,
			FeeBps:      cfg.Venues.Orca.FeeBps,
			BaseAsset:   baseAsset,
			TradeAssets: tradeAssets,
		}))
	}

	health := aggregator.NewHealthTracker(cfg.Breaker.VenueFailThreshold)
	agg, err := aggregator.New(adapters, health, deps.Breaker, deps.QuoteCache, aggregator.Options{
		ProbeAmount:     cfg.Discovery.ProbeAmount,
		VenueTimeout:    cfg.Discovery.VenueTimeout.Duration,
		StalenessWindow: cfg.Discovery.StalenessWindow.Duration,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: aggregator: %w", err)
	}
	deps.Aggregator = agg

	// Orca streams pool updates over WebSocket; prewarmed quotes fill pairs
	// the HTTP poll has not covered yet.
	if cfg.Venues.Orca.Enabled && cfg.Venues.Orca.WsURL != "" {
		deps.OrcaStream = orca.NewStream(cfg.Venues.Orca.WsURL, cfg.Discovery.ProbeAmount, agg.Prewarm, logger)
	}

	// --- Scoring and route search ---
	deps.Builder = graph.NewBuilder(cfg.Discovery.MaxHops, cfg.Discovery.LiquidityFloor)
	deps.Scorer = scorer.New(cfg.Trading.InputAmount, cfg.Trading.MinNetProfit,
		cfg.Trading.OpportunityTTL.Duration, scorer.Costs{
			BaseFeePerSig: cfg.Trading.BaseFeePerSig,
			PriorityFee:   cfg.Trading.PriorityFee,
			SafetyMargin:  cfg.Trading.SafetyMargin,
		})

	// --- Risk validation ---
	var sentiment risk.SentimentSource
	if cfg.Risk.SentimentEnabled && cfg.Risk.SentimentURL != "" {
		sentiment = risk.NewFearGreedSource(cfg.Risk.SentimentURL)
	}
	deps.Validator = risk.NewValidator(risk.Limits{
		MinHopLiquidity: cfg.Risk.MinHopLiquidity,
		MaxPositionSize: cfg.Risk.MaxPositionSize,
		MaxSlippageBps:  cfg.Risk.MaxSlippageBps,
	}, deps.Breaker, sentiment, cfg.Risk.SentimentFloor, logger)

	// --- Chain access, wallet, and executor ---
	deps.Chain = chain.NewClient(cfg.RPC.Endpoint, cfg.RPC.Commitment, cfg.RPC.RequestTimeout.Duration, logger)

	if needsWallet(cfg.Mode) {
		signer, err := chain.LoadSigner(chain.KeyConfig{
			RawPrivateKey:    cfg.Wallet.RawPrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load signer: %w", err)
		}
		deps.Signer = signer

		balance, err := deps.Chain.GetBalance(ctx, signer.Address())
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: seed wallet balance: %w", err)
		}
		deps.Wallet = wallet.NewState(signer.Address(), map[domain.Asset]int64{
			baseAsset: balance,
		})

		deps.Executor = executor.New(deps.Wallet, agg, signer, deps.Chain, deps.Scorer,
			deps.Breaker, deps.AttemptStore, deps.AttemptBus, executor.Config{
				MinNetProfit:       cfg.Trading.MinNetProfit,
				ConfirmPoll:        cfg.RPC.ConfirmPoll.Duration,
				ConfirmTimeout:     cfg.RPC.ConfirmTimeout.Duration,
				MitigationSlackBps: cfg.Trading.MitigationSlack,
				RetryPolicy: breaker.Policy{
					MaxAttempts:    cfg.Breaker.MaxAttempts,
					InitialBackoff: cfg.Breaker.InitialBackoff.Duration,
					MaxBackoff:     cfg.Breaker.MaxBackoff.Duration,
				},
			}, logger)
	} else {
		// Detection-only wallet: no key material, no balances.
		deps.Wallet = wallet.NewState(cfg.Wallet.Address, nil)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Alerts = notify.NewAlerts(deps.Notifier)

	// --- Engine ---
	deps.Engine = engine.New(agg, deps.Builder, deps.Scorer, deps.Validator,
		deps.Executor, deps.Wallet, deps.Breaker, deps.LockManager, deps.Alerts,
		engine.Config{
			BaseAsset:      baseAsset,
			PollInterval:   cfg.Discovery.PollInterval.Duration,
			ExecuteEnabled: needsWallet(cfg.Mode),
			LockTTL:        2 * cfg.RPC.ConfirmTimeout.Duration,
		}, logger)

	return deps, cleanup, nil
}
