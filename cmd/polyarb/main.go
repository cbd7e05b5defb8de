package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samayp01/polyarb-engine/internal/backtest"
	"github.com/samayp01/polyarb-engine/internal/config"
	"github.com/samayp01/polyarb-engine/internal/embedding"
	"github.com/samayp01/polyarb-engine/internal/graph"
	"github.com/samayp01/polyarb-engine/internal/ingest"
	"github.com/samayp01/polyarb-engine/internal/logger"
	"github.com/samayp01/polyarb-engine/internal/polymarket"
	"github.com/samayp01/polyarb-engine/internal/signals"
	"github.com/samayp01/polyarb-engine/internal/similarity"
	"github.com/samayp01/polyarb-engine/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

const usage = `Usage: polyarb [-config path] <command>

Commands:
  build      Rebuild the event graph from closed markets
  backtest   Evaluate the graph against known historical outcomes
  ingest     Snapshot active market prices and record new resolutions
  monitor    Watch for resolutions and emit live signals
  status     Print graph and signal statistics
  help       Show this message
`

func main() {
	flag.Parse()

	command := flag.Arg(0)
	if command == "" || command == "help" {
		fmt.Print(usage)
		if command == "" {
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup logging with level support
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	app, err := newApp(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if err := app.run(ctx, command); err != nil {
		logger.Fatal("Command %s failed: %v", command, err)
	}
}

// app wires every component explicitly; nothing holds global state.
type app struct {
	cfg      *config.Config
	client   *polymarket.Client
	graph    *graph.EventGraph
	builder  *graph.Builder
	tracker  *ingest.Tracker
	ingester *ingest.SnapshotIngester
	engine   *signals.Engine
	notifier *telegram.Client
}

func newApp(cfg *config.Config) (*app, error) {
	client := polymarket.NewClient(
		cfg.Polymarket.APIBaseURL,
		cfg.Polymarket.Timeout,
		polymarket.ClientConfig{
			MaxRetries:     cfg.Polymarket.MaxRetries,
			RetryDelayBase: cfg.Polymarket.RetryDelayBase,
			PageSize:       cfg.Polymarket.PageSize,
			MaxPages:       cfg.Polymarket.MaxPages,
		},
	)
	filters := polymarket.MarketFilters{
		MinLiquidity: cfg.Polymarket.MinLiquidity,
		MinVolume:    cfg.Polymarket.MinVolume,
	}

	provider, err := embedding.NewHashingProvider(cfg.Graph.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	proposer := similarity.NewProposer(cfg.Graph.MinSimilarity, cfg.Graph.MaxDaysApart, cfg.Graph.ClusterHint)

	eventGraph := graph.New(cfg.GraphPath())
	if err := eventGraph.Load(); err != nil {
		return nil, fmt.Errorf("failed to load event graph: %w", err)
	}

	tracker := ingest.NewTracker(client, cfg.ResolutionsPath())
	if err := tracker.Load(); err != nil {
		return nil, fmt.Errorf("failed to load resolutions: %w", err)
	}

	engine := signals.NewEngine(eventGraph, client, cfg.Signals, filters, cfg.SignalsPath())
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("failed to load signal history: %w", err)
	}

	var notifier *telegram.Client
	if cfg.Telegram.Enabled {
		notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	return &app{
		cfg:      cfg,
		client:   client,
		graph:    eventGraph,
		builder:  graph.NewBuilder(provider, proposer),
		tracker:  tracker,
		ingester: ingest.NewSnapshotIngester(client, cfg.SnapshotsPath(), filters),
		engine:   engine,
		notifier: notifier,
	}, nil
}

func (a *app) run(ctx context.Context, command string) error {
	switch command {
	case "build":
		return a.runBuild(ctx)
	case "backtest":
		return a.runBacktest(ctx)
	case "ingest":
		return a.runIngest(ctx)
	case "monitor":
		return a.runMonitor(ctx)
	case "status":
		return a.runStatus()
	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runBuild fetches closed markets, rebuilds the event graph, and persists the
// graph plus the derived outcome table for backtesting.
func (a *app) runBuild(ctx context.Context) error {
	closed, err := a.client.FetchClosedMarkets(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch closed markets: %w", err)
	}
	logger.Info("Building graph from %d closed markets", len(closed))

	edges, outcomes, err := a.builder.BuildHistorical(closed)
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}

	a.graph.Clear()
	a.graph.Add(edges)
	if err := a.graph.Save(); err != nil {
		return fmt.Errorf("failed to save graph: %w", err)
	}
	if err := backtest.SaveOutcomes(a.cfg.OutcomesPath(), outcomes); err != nil {
		return fmt.Errorf("failed to save outcomes: %w", err)
	}

	a.printStats()
	return nil
}

func (a *app) runBacktest(ctx context.Context) error {
	outcomes, err := backtest.LoadOutcomes(a.cfg.OutcomesPath())
	if err != nil {
		return fmt.Errorf("failed to load outcomes: %w", err)
	}

	engine := backtest.NewEngine(a.graph, outcomes, a.cfg.Backtest)
	result := engine.Run(a.cfg.Backtest.TestFraction)

	if result.Empty() {
		fmt.Println("Backtest produced no predictions (not enough connected markets with known outcomes).")
		return nil
	}

	fmt.Printf("Predictions:  %d\n", result.TotalSignals)
	fmt.Printf("Hit rate:     %.1f%% (baseline %.1f%%)\n", 100*result.HitRate, 100*result.BaselineHitRate)
	fmt.Printf("Total PnL:    %+.2f\n", result.TotalPnL)
	fmt.Printf("Avg per-sig:  %+.4f\n", result.AvgPnLPerSignal)
	fmt.Println("\nAccuracy by similarity:")
	for _, b := range result.Buckets {
		if b.Count == 0 {
			continue
		}
		fmt.Printf("  [%.2f, %.2f)  %3d trades  %.1f%% hit rate\n", b.Low, b.High, b.Count, 100*b.HitRate)
	}
	return nil
}

// runIngest performs one collection pass: snapshot active market prices and
// record any resolutions observed since the last run.
func (a *app) runIngest(ctx context.Context) error {
	snapshots, err := a.ingester.Capture(ctx)
	if err != nil {
		return fmt.Errorf("failed to capture snapshots: %w", err)
	}

	fresh, err := a.tracker.CheckNew(ctx)
	if err != nil {
		return fmt.Errorf("failed to check resolutions: %w", err)
	}

	fmt.Printf("Captured %d snapshots, %d new resolutions.\n", len(snapshots), len(fresh))
	return nil
}

func (a *app) runMonitor(ctx context.Context) error {
	var notifier signals.Notifier
	if a.notifier != nil {
		notifier = a.notifier
	}

	monitor := signals.NewMonitor(a.tracker, a.engine, notifier, a.cfg.Signals.PollInterval, a.cfg.Signals.ErrorBackoff)
	if err := monitor.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func (a *app) runStatus() error {
	a.printStats()
	fmt.Printf("Resolutions:   %d tracked\n", len(a.tracker.All()))

	recent := a.engine.Recent(24 * time.Hour)
	fmt.Printf("Signals (24h): %d\n", len(recent))
	for _, s := range recent {
		fmt.Printf("  %s %s  %.3f -> %.3f  confidence %.2f\n",
			s.Direction, s.MarketID, s.CurrentPrice, s.ExpectedPrice, s.Confidence)
	}
	return nil
}

func (a *app) printStats() {
	stats := a.graph.Stats(a.cfg.Graph.MinSamples, a.cfg.Graph.MinDelta, a.cfg.Graph.MinLagSeconds)
	fmt.Printf("Graph edges:   %d (%d actionable)\n", stats.TotalEdges, stats.ValidEdges)
	fmt.Printf("Leaders:       %d\n", stats.UniqueLeaders)
	fmt.Printf("Followers:     %d\n", stats.UniqueFollowers)
	fmt.Printf("Avg similarity: %.3f\n", stats.AvgSimilarity)
}
