package main

import (
	"context"
	"errors"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantarch/medusa/bot"
	"github.com/quantarch/medusa/broker"
	"github.com/quantarch/medusa/config"
	"github.com/quantarch/medusa/core"
	"github.com/quantarch/medusa/dashboard"
	"github.com/quantarch/medusa/feeds"
	"github.com/quantarch/medusa/position"
	"github.com/quantarch/medusa/regime"
	"github.com/quantarch/medusa/risk"
	"github.com/quantarch/medusa/signal"
	"github.com/quantarch/medusa/storage"
	"github.com/quantarch/medusa/strategy"
)

func main() {
	// ═══════════════════════════════════════════════════════════════════════════════
	// BOOTSTRAP
	// ═══════════════════════════════════════════════════════════════════════════════

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Configuration invalid")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Msg("═══════════════════════════════════════════════════════════════")
	log.Info().Msg("            MEDUSA - MULTI-STRATEGY ADAPTIVE ENGINE")
	log.Info().Msg("═══════════════════════════════════════════════════════════════")

	// ═══════════════════════════════════════════════════════════════════════════════
	// INITIALIZE COMPONENTS
	// ═══════════════════════════════════════════════════════════════════════════════

	// 1. Storage
	db, err := storage.New(cfg.DatabaseDSN)
	if err != nil {
		log.Warn().Err(err).Msg("Database unavailable, continuing without persistence")
		db = nil
	}

	// 2. Signal aggregator and price store
	agg := signal.NewAggregator()
	store := feeds.NewPriceStore()

	// 3. Feeds
	cryptoSymbols := map[string]string{"BTC": "BTCUSDT", "ETH": "ETHUSDT"}
	binanceFeed := feeds.NewBinanceFeed(store, agg, cryptoSymbols)
	binanceStream := feeds.NewBinanceStream(store, cryptoSymbols)
	equitiesFeed := feeds.NewEquitiesFeed(store, feeds.DefaultEquitySymbols())
	chainlinkFeed := feeds.NewChainlinkFeed(cfg.EthRPCURL, store, agg, feeds.DefaultFeedAddresses())

	// 4. Broker
	executor, err := broker.NewClient(broker.Config{
		BaseURL:       cfg.BrokerURL,
		APIKey:        cfg.BrokerAPIKey,
		APISecret:     cfg.BrokerAPISecret,
		Passphrase:    cfg.BrokerPassphrase,
		ETHPrivateKey: cfg.ETHPrivateKey,
		DryRun:        cfg.DryRun,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Broker init failed")
	}

	// 5. Risk manager
	riskMgr := risk.NewManager(cfg.Capital, risk.Limits{
		MaxPerPositionFraction: cfg.MaxPositionFraction,
		MaxPerAssetFraction:    cfg.MaxAssetFraction,
		MaxTotalFraction:       cfg.MaxTotalFraction,
		MaxDailyLossFraction:   cfg.MaxDailyLoss,
		MaxTradesPerDay:        cfg.MaxTradesPerDay,
		MaxConsecutiveLosses:   cfg.MaxConsecLosses,
		CooldownDuration:       cfg.CooldownDuration,
	})

	// 6. Strategies, ranker, weights
	baseNotional := cfg.Capital.Mul(cfg.MaxPositionFraction)
	strategies := []strategy.Strategy{
		strategy.NewLiquidationFlow(baseNotional),
		strategy.NewEventVol(baseNotional),
		strategy.NewMarginFlow(baseNotional),
		strategy.NewNarrativeShock(baseNotional),
		strategy.NewCrossAsset(baseNotional),
	}
	dispatcher := core.NewDispatcher(strategies)
	ranker := strategy.NewRanker(dispatcher.Names(), cfg.TopK)
	weights := strategy.NewWeightTracker(dispatcher.Names())

	// 7. Regime detector and position book
	detector := regime.NewDetector(regime.DefaultThresholds())
	book := position.NewManager()

	// 8. Engine
	engine := core.NewEngine(core.Config{
		CycleInterval:  cfg.CycleInterval,
		RecomputeEvery: cfg.RecomputeEvery,
		RegimeAsset:    cfg.RegimeAsset,
		HistoryBars:    90,
	}, agg, detector, store, dispatcher, ranker, weights, riskMgr, book, executor, core.DefaultUniverse())

	if db != nil {
		engine.SetJournal(db)
	}

	// 9. Telegram (optional)
	var tg *bot.TelegramBot
	if cfg.TelegramEnabled() {
		tg, err = bot.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID, engine, db)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram unavailable, continuing without notifications")
		} else {
			engine.SetNotifier(tg)
		}
	}

	// 10. Dashboard
	dash := dashboard.NewServer(cfg.DashboardAddr, engine)

	// ═══════════════════════════════════════════════════════════════════════════════
	// START
	// ═══════════════════════════════════════════════════════════════════════════════

	binanceFeed.Start()
	binanceStream.Start()
	equitiesFeed.Start()
	chainlinkFeed.Start()
	if tg != nil {
		tg.Start()
	}
	dash.Start()

	ctx, cancel := context.WithCancel(context.Background())
	engineDone := make(chan error, 1)
	go func() { engineDone <- engine.Run(ctx) }()

	mode := "LIVE TRADING"
	if cfg.DryRun {
		mode = "PAPER TRADING"
	}
	log.Info().
		Str("mode", mode).
		Str("capital", cfg.Capital.StringFixed(2)).
		Dur("cycle", cfg.CycleInterval).
		Msg("🚀 All systems running")

	// ═══════════════════════════════════════════════════════════════════════════════
	// GRACEFUL SHUTDOWN
	// ═══════════════════════════════════════════════════════════════════════════════

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("🛑 Shutting down...")
	cancel()
	if err := <-engineDone; err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Engine exited with error")
	}

	binanceFeed.Stop()
	binanceStream.Stop()
	equitiesFeed.Stop()
	chainlinkFeed.Stop()
	if tg != nil {
		tg.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := dash.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Dashboard shutdown timed out")
	}

	log.Info().Msg("👋 Goodbye!")
}
