// betengined is the betting engine daemon. It runs the capital allocation
// cycle, exposes the HTTP control API and WebSocket stream, and gates all
// live placement behind the kill switch.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/oddsforge/betengine/pkg/api"
	"github.com/oddsforge/betengine/pkg/bookmaker"
	"github.com/oddsforge/betengine/pkg/bookmaker/paper"
	"github.com/oddsforge/betengine/pkg/bookmaker/rest"
	"github.com/oddsforge/betengine/pkg/config"
	"github.com/oddsforge/betengine/pkg/engine"
	"github.com/oddsforge/betengine/pkg/engine/arbitrage"
	"github.com/oddsforge/betengine/pkg/engine/correlation"
	"github.com/oddsforge/betengine/pkg/engine/orchestrator"
	"github.com/oddsforge/betengine/pkg/engine/portfolio"
	"github.com/oddsforge/betengine/pkg/engine/staking"
	"github.com/oddsforge/betengine/pkg/feed"
	"github.com/oddsforge/betengine/pkg/logger"
	"github.com/oddsforge/betengine/pkg/metrics"
	"github.com/oddsforge/betengine/pkg/notify"
	"github.com/oddsforge/betengine/pkg/safety"
	"github.com/oddsforge/betengine/pkg/streaming"
)

var (
	dryRun   = flag.Bool("dry-run", true, "Simulate placements against paper bookmakers")
	bankroll = flag.Float64("bankroll", 0, "Override starting bankroll")
	verbose  = flag.Bool("verbose", false, "Verbose logging")
)

func main() {
	flag.Parse()
	cfg := config.Load()
	if !*dryRun {
		cfg.DryRun = false
	}
	if *bankroll > 0 {
		cfg.Bankroll = *bankroll
	}
	env := cfg.Env
	if *verbose {
		env = "local"
	}

	log, err := logger.New(cfg.ServiceName, env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting betting engine",
		zap.Bool("dry_run", cfg.DryRun),
		zap.Float64("bankroll", cfg.Bankroll))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Safety stores: redis shared, file fallback.
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	safetyMgr := safety.NewManager(
		safety.NewRedisStore(redisClient, cfg.KillSwitchKey),
		safety.NewFileStore(cfg.KillSwitchFile),
		log.Named("safety"),
	)

	// Metrics and health.
	m := metrics.New()
	m.SetBankroll(cfg.Bankroll)
	metricsSrv := metrics.StartServer(cfg.MetricsPort, m, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, cfg.SafetyPollTimeout)
		defer cancel()
		return redisClient.Ping(ctx).Err()
	})
	defer metricsSrv.Shutdown(context.Background())

	// Alert sinks.
	sinks := []notify.Notifier{notify.NewLogNotifier(log.Named("alerts"))}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookNotifier(cfg.WebhookURL))
	}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		kn := notify.NewKafkaNotifier(brokers, cfg.KafkaTopic)
		defer kn.Close()
		sinks = append(sinks, kn)
	}
	notifier := notify.NewFanout(log, sinks...)

	// Bookmakers.
	registry := bookmaker.NewRegistry()
	if cfg.DryRun {
		for _, name := range []string{"alpha", "beta", "gamma"} {
			registry.Register(paper.New(paper.DefaultConfig(name)))
		}
	} else {
		for name, url := range cfg.Bookmakers() {
			registry.Register(rest.NewClient(name, url, rest.WithAPIKey(cfg.BookmakerAPIKey)))
		}
	}
	log.Info("bookmakers registered", zap.Strings("names", registry.Names()))

	// Core decision components.
	executor := arbitrage.NewExecutor(arbitrage.Config{
		Timeout: cfg.ExecutionTimeout,
		DryRun:  cfg.DryRun,
	}, safetyMgr, notifier, log.Named("executor"))

	optimizer := portfolio.New(portfolio.Config{
		KellyFraction:     cfg.KellyFraction,
		MaxPositionSize:   cfg.MaxPositionSize,
		PortfolioFraction: cfg.MaxStakeFrac,
		RiskFreeRate:      cfg.RiskFreeRate,
	}, log.Named("portfolio"))

	sizer := staking.NewSizer(staking.Config{
		KellyFraction:    cfg.KellyFraction,
		MaxStakeFraction: cfg.MaxStakeFrac,
	})

	orch := orchestrator.New(orchestrator.Config{
		Bankroll:      cfg.Bankroll,
		MinEdge:       cfg.MinEdge,
		CycleInterval: cfg.CycleInterval,
		DryRun:        cfg.DryRun,
	}, correlation.NewEstimator(), sizer, optimizer, executor, registry, safetyMgr, m, log.Named("cycle"))
	orch.SetPolicy(safety.NewPolicyEngine(safety.DefaultBetLimits()))

	// Streaming hub.
	hub := streaming.NewHub(log.Named("stream"))
	go hub.Run()

	orch.OnAllocation(func(r portfolio.Result) {
		hub.BroadcastAllocation(r)
	})
	orch.OnExecution(func(r engine.ExecutionResult) {
		hub.BroadcastExecution(r)
	})
	orch.OnError(func(err error) {
		hub.BroadcastError(err, "cycle")
	})

	// HTTP API.
	apiSrv := api.NewServer(cfg.APIPort, orch, safetyMgr, registry, hub, log.Named("api"))
	go func() {
		if err := apiSrv.Start(); err != nil {
			log.Error("api server failed", zap.Error(err))
			sigCh <- syscall.SIGTERM
		}
	}()

	// Opportunity intake: run the cycle loop only when a feed is configured;
	// otherwise the engine is driven through the API.
	if topic := cfg.KafkaOppsTopic; topic != "" && len(cfg.Brokers()) > 0 {
		source := feed.NewKafkaSource(cfg.Brokers(), topic, cfg.ServiceName, log.Named("feed"))
		defer source.Close()
		go func() {
			if err := orch.Start(ctx, source); err != nil && err != context.Canceled {
				log.Error("decision cycle stopped", zap.Error(err))
			}
		}()
		log.Info("decision cycle attached to feed", zap.String("topic", topic))
	} else {
		log.Info("no opportunity feed configured, api-driven mode")
	}

	log.Info("engine running",
		zap.String("api_port", cfg.APIPort),
		zap.String("metrics_port", cfg.MetricsPort))

	<-sigCh
	log.Info("shutting down")

	orch.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("api shutdown", zap.Error(err))
	}
	log.Info("stopped")
}
