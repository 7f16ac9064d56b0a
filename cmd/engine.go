package cmd

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/michaelpento.lv/dexarb/aggregator"
	"github.com/michaelpento.lv/dexarb/chain"
	"github.com/michaelpento.lv/dexarb/cmd/bot"
	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/dex/balancer"
	"github.com/michaelpento.lv/dexarb/dex/subgraph"
	"github.com/michaelpento.lv/dexarb/dex/uniswap"
	"github.com/michaelpento.lv/dexarb/executor"
	"github.com/michaelpento.lv/dexarb/flashbots"
	"github.com/michaelpento.lv/dexarb/flashloan"
	"github.com/michaelpento.lv/dexarb/flashloan/aave"
	"github.com/michaelpento.lv/dexarb/gas"
	"github.com/michaelpento.lv/dexarb/simulator"
	"github.com/michaelpento.lv/dexarb/store/postgres"
	redisstore "github.com/michaelpento.lv/dexarb/store/redis"
	"github.com/michaelpento.lv/dexarb/tokens"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
	"github.com/michaelpento.lv/dexarb/utils/monitor"
	"github.com/michaelpento.lv/dexarb/utils/resilience"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// engine is everything a command needs, wired from one Config.
type engine struct {
	bot      *bot.Bot
	client   *ethclient.Client
	registry *prometheus.Registry
	system   *monitor.SystemMonitor
	closers  []func()
}

func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// buildEngine connects to the node and the optional stores. withExecution
// also sets up the wallet, executor and flash loan provider.
func buildEngine(ctx context.Context, cfg *config.Config, withExecution bool, logger *zap.Logger) (*engine, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to node: %w", err)
	}
	e := &engine{client: client, registry: prometheus.NewRegistry()}
	e.closers = append(e.closers, client.Close)

	namespace := cfg.Metrics.Namespace
	if namespace == "" {
		namespace = metrics.DefaultNamespace
	}
	engineMetrics := metrics.NewEngineMetrics(namespace, e.registry)
	e.system = monitor.NewSystemMonitor(ctx, metrics.NewRuntimeMetrics(namespace, e.registry), 15*time.Second, logger.Named("system"))
	e.closers = append(e.closers, e.system.Cleanup)

	rc := cfg.RunConfig()
	resolver, err := tokens.NewResolver(client, cfg.Tokens.MetadataCacheSize, rc.Tokens, logger.Named("tokens"))
	if err != nil {
		e.Close()
		return nil, err
	}

	venues, err := buildVenues(cfg, client, resolver, logger)
	if err != nil {
		e.Close()
		return nil, err
	}
	adapters := make([]dex.Adapter, len(venues))
	for i, v := range venues {
		adapters[i] = v
	}

	aggOpts := []aggregator.Option{aggregator.WithMetrics(engineMetrics)}
	if cfg.CircuitBreaker.Enabled {
		aggOpts = append(aggOpts, aggregator.WithCircuitBreakers(resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			Cooldown:         cfg.CircuitBreaker.Cooldown,
			OnStateChange: func(name string, from, to resilience.State) {
				logger.Warn("Venue circuit breaker", zap.String("venue", name), zap.Stringer("from", from), zap.Stringer("to", to))
			},
		}))
	}
	agg := aggregator.New(adapters, logger.Named("aggregator"), aggOpts...)
	oracle := gas.NewOracle(client, decimal.NewFromFloat(cfg.Costs.BaseGasPriceGwei), logger.Named("gas"))

	opts := []bot.Option{bot.WithMetrics(engineMetrics)}

	if cfg.Redis.Addr != "" {
		rdb, err := redisstore.New(ctx, cfg.Redis)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.closers = append(e.closers, func() { _ = rdb.Close() })
		opts = append(opts,
			bot.WithSnapshotStore(redisstore.NewSnapshotCache(rdb, cfg.Redis.SnapshotTTL)),
			bot.WithCooldowns(redisstore.NewCooldown(rdb)))
	}

	if cfg.Postgres.DSN != "" {
		journal, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.closers = append(e.closers, journal.Close)
		if err := journal.Migrate(ctx); err != nil {
			e.Close()
			return nil, err
		}
		opts = append(opts, bot.WithJournal(journal))
	}

	if withExecution && cfg.Execution.Enabled {
		execOpts, err := buildExecution(cfg, client, venues, engineMetrics, logger)
		if err != nil {
			e.Close()
			return nil, err
		}
		opts = append(opts, execOpts...)
	}

	e.bot = bot.New(cfg, agg, oracle, logger.Named("bot"), opts...)
	return e, nil
}

func buildVenues(cfg *config.Config, client *ethclient.Client, resolver *tokens.Resolver, logger *zap.Logger) ([]dex.Venue, error) {
	var venues []dex.Venue
	for _, v := range cfg.Venues {
		if !v.Enabled {
			continue
		}
		venueLogger := logger.Named(v.Name)

		switch v.Kind {
		case config.KindConstantProduct:
			venues = append(venues, uniswap.NewV2Adapter(uniswap.V2Config{
				Name:        v.Name,
				Factory:     common.HexToAddress(v.Factory),
				Router:      common.HexToAddress(v.Router),
				FeeTier:     v.FeeTier,
				MaxPools:    v.MaxPools,
				Concurrency: int64(v.ScanConcurrency),
				RateLimit:   rate.Limit(cfg.RPCRateLimit.RequestsPerSecond),
				Burst:       cfg.RPCRateLimit.BurstSize,
			}, client, resolver, venueLogger))
		case config.KindConcentrated:
			venues = append(venues, uniswap.NewV3Adapter(uniswap.V3Config{
				Name:     v.Name,
				Router:   common.HexToAddress(v.Router),
				MaxPools: v.MaxPools,
				PageSize: v.PageSize,
			}, client, graphClient(cfg, v, venueLogger), resolver, venueLogger))
		case config.KindWeighted:
			venues = append(venues, balancer.NewWeightedAdapter(balancer.Config{
				Name:     v.Name,
				Vault:    common.HexToAddress(v.Vault),
				MaxPools: v.MaxPools,
				PageSize: v.PageSize,
			}, client, graphClient(cfg, v, venueLogger), resolver, venueLogger))
		default:
			return nil, fmt.Errorf("venue %s: unknown kind %q", v.Name, v.Kind)
		}
	}
	if len(venues) == 0 {
		return nil, fmt.Errorf("no venues enabled")
	}
	return venues, nil
}

func graphClient(cfg *config.Config, v config.VenueConfig, logger *zap.Logger) *subgraph.Client {
	return subgraph.NewClient(v.Subgraph, v.APIKey, logger,
		subgraph.WithRateLimit(cfg.SubgraphRateLimit.RequestsPerSecond, cfg.SubgraphRateLimit.BurstSize))
}

func buildExecution(cfg *config.Config, client *ethclient.Client, venues []dex.Venue, m *metrics.EngineMetrics, logger *zap.Logger) ([]bot.Option, error) {
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("execution is enabled but %s is not set", config.EnvPrivateKey)
	}

	var sender chain.Sender
	if cfg.Execution.PrivateRelayURL != "" {
		authKey, err := relayKey(cfg.Execution.RelayAuthKey, logger)
		if err != nil {
			return nil, err
		}
		sender = flashbots.NewClient(cfg.Execution.PrivateRelayURL, authKey, client, logger.Named("relay"))
	}

	wallet, err := chain.NewWallet(client, sender, cfg.PrivateKey, chain.WalletConfig{
		ConfirmTimeout: cfg.Execution.ConfirmTimeout,
	}, logger.Named("wallet"))
	if err != nil {
		return nil, err
	}

	sim := simulator.NewSimulator(client, logger.Named("simulator"))
	var tx chain.Transactor = wallet
	if cfg.Execution.DryRun {
		tx = simulator.NewDryRun(sim, wallet.Address(), logger.Named("dryrun"))
	}
	ledger := chain.NewLedger(client, client, tx, logger.Named("ledger"))

	opts := []bot.Option{
		bot.WithTrader(func(rc config.RunConfig) bot.Trader {
			return executor.New(rc, venues, ledger, tx, logger.Named("executor"),
				executor.WithMetrics(m), executor.WithHeadReader(client))
		}),
	}

	if cfg.FlashLoan.Enabled && !cfg.SafeMode.Enabled {
		provider, err := aave.NewProvider(client,
			common.HexToAddress(cfg.FlashLoan.Pool), common.HexToAddress(cfg.FlashLoan.Receiver), logger.Named("aave"))
		if err != nil {
			return nil, err
		}
		logger.Info("Flash loans enabled",
			zap.String("provider", provider.Name()),
			zap.String("receiver", provider.Receiver().Hex()))
		opts = append(opts, bot.WithLender(func(rc config.RunConfig) bot.Lender {
			return flashloan.NewOrchestrator(rc, provider, tx, logger.Named("flashloan"),
				flashloan.WithSimulator(sim), flashloan.WithMetrics(m))
		}))
	}

	logger.Info("Execution enabled",
		zap.String("wallet", wallet.Address().Hex()),
		zap.Bool("dryRun", cfg.Execution.DryRun),
		zap.Bool("privateRelay", sender != nil))
	return opts, nil
}

// relayKey parses the relay auth key, or generates a throwaway one. The relay
// only uses it to identify the searcher.
func relayKey(hexKey string, logger *zap.Logger) (*ecdsa.PrivateKey, error) {
	if hexKey == "" {
		logger.Warn("No relay auth key configured, using an ephemeral one")
		return crypto.GenerateKey()
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid relay auth key: %w", err)
	}
	return key, nil
}
