package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rahul/scout/internal/agent"
	"github.com/rahul/scout/internal/browser"
	"github.com/rahul/scout/internal/challenge"
	"github.com/rahul/scout/internal/extract"
	"github.com/rahul/scout/internal/gateway"
	"github.com/rahul/scout/internal/governance"
	"github.com/rahul/scout/internal/observability"
	"github.com/rahul/scout/internal/reasoner"
	"github.com/rahul/scout/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to a YAML or JSON config file")
	flag.Parse()

	observability.PrintBanner()
	observability.InitializeTerminal()

	// Route all log output through the terminal mutex so it never
	// interrupts the dashboard's cursor save/restore sequence.
	log.SetOutput(observability.NewTermWriter())

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := observability.NewLogger(observability.Options{
		Level:      cfg.Logging.Level,
		Output:     observability.NewTermWriter(),
		LLMLogPath: cfg.Logging.LLMLogPath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, err := buildService(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer service.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		service.Start(ctx)
		return nil
	})

	server := gateway.NewServer(service, metrics, logger)
	g.Go(func() error {
		if err := server.Start(ctx, cfg.Server.Addr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	for _, m := range messengers(cfg, service, logger) {
		g.Go(func() error {
			return m.Start(ctx)
		})
	}

	if cfg.App.Dashboard {
		g.Go(func() error {
			tick(ctx, time.Second, observability.PrintLiveStatus)
			return nil
		})
	}

	g.Go(func() error {
		tick(ctx, 30*time.Second, func() {
			observability.Heartbeat()
			logger.LogHeartbeat()
		})
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shutting down after failure", zap.Error(err))
	}

	// Reset terminal aesthetics
	observability.CleanupTerminal()
	log.Println("\033[95m[ EXIT ] SCOUT STOPPED. GOODBYE.\033[0m")
}

// loadConfig falls back to defaults when the default config file is absent.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err == nil {
		return cfg, nil
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		log.Printf("No config at %s, using defaults", path)
		return config.Default(), nil
	}
	return nil, err
}

func buildService(ctx context.Context, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (*agent.Service, error) {
	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		logger.Warn("no reasoner provider enabled, planning with lexicon rules only")
	}

	guarded := func(component string) reasoner.Reasoner {
		if provider == nil {
			return nil
		}
		return reasoner.NewGuard(provider, reasoner.GuardConfig{
			Component: component,
			Timeout:   cfg.Agent.ReasonerTimeout(),
			Logger:    logger,
			Metrics:   metrics,
		})
	}

	lexicon := agent.DefaultLexicon()
	if cfg.Agent.LexiconPath != "" {
		if lexicon, err = agent.LoadLexicon(cfg.Agent.LexiconPath); err != nil {
			return nil, err
		}
	}
	if _, ok := lexicon.Engine(cfg.Agent.DefaultEngine); ok {
		lexicon.DefaultEngine = cfg.Agent.DefaultEngine
	} else {
		logger.Warn("unknown default engine, keeping lexicon default",
			zap.String("engine", cfg.Agent.DefaultEngine), zap.String("default", lexicon.DefaultEngine))
	}

	prompts := agent.NewPromptManager(cfg.Agent.PromptsDir)

	detector, err := challenge.NewDetector(lexicon.Challenge)
	if err != nil {
		return nil, err
	}
	waiter := challenge.NewWaiter(detector, cfg.Agent.MaxWait(), cfg.Agent.PollInterval())

	keyPoints, err := prompts.Prompt(agent.PromptKeyPoints)
	if err != nil {
		return nil, err
	}
	extractCfg := extract.DefaultConfig()
	extractCfg.ContentCap = cfg.Agent.ContentCap
	extractCfg.PreviewCap = cfg.Agent.PreviewCap
	extractCfg.KeyPointsPrompt = keyPoints

	policy, err := governance.NewPolicyEngine(cfg.Governance.DenyPatterns, cfg.Governance.DenyHosts)
	if err != nil {
		return nil, err
	}

	driver := browser.NewChromedp(browser.ChromedpConfig{
		Headless:          cfg.Browser.Headless,
		ExecPath:          cfg.Browser.ExecPath,
		UserAgent:         cfg.Browser.UserAgent,
		Width:             cfg.Browser.ViewportWidth,
		Height:            cfg.Browser.ViewportHeight,
		NavigationTimeout: cfg.Browser.NavigationTimeout(),
		SettleDelay:       cfg.Browser.SettleDelay(),
	})

	executor := agent.NewExecutor(agent.Deps{
		Driver:     driver,
		Reasoner:   guarded("summarizer"),
		Planner:    agent.NewPlanner(guarded("planner"), lexicon, prompts, logger),
		Strategist: agent.NewStrategist(guarded("strategist"), lexicon, prompts, logger, cfg.Agent.MaxStrategies),
		Detector:   detector,
		Waiter:     waiter,
		Extractor:  extract.New(guarded("extractor"), extractCfg, logger),
		Policy:     policy,
		Sessions:   agent.NewSessions(cfg.Agent.ParkedSessionTTL(), logger, metrics),
		Lexicon:    lexicon,
		Prompts:    prompts,
		Logger:     logger,
		Metrics:    metrics,
	}, agent.Options{
		TopResults:        cfg.Agent.TopResults,
		MaxChallengeWaits: cfg.Agent.MaxChallengeWaits,
	})

	return agent.NewService(executor), nil
}

// newProvider returns nil when no provider is enabled.
func newProvider(ctx context.Context, cfg *config.Config) (reasoner.Reasoner, error) {
	name, p := cfg.GetDefaultProvider()
	switch name {
	case "":
		return nil, nil
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(p.APIKey),
			openai.WithModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return reasoner.NewLangChain(llm), nil
	case "gemini":
		g, err := reasoner.NewGemini(ctx, p.APIKey, p.Model)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("provider %s is not supported", name)
	}
}

func messengers(cfg *config.Config, a gateway.Agent, logger *observability.Logger) []gateway.Messenger {
	var out []gateway.Messenger
	if g, ok := cfg.GetGatewayConfig("telegram"); ok {
		tg, err := gateway.NewTelegramGateway(g.Token, a, logger)
		if err != nil {
			logger.Error("telegram gateway disabled", zap.Error(err))
		} else {
			out = append(out, tg)
		}
	}
	if g, ok := cfg.GetGatewayConfig("discord"); ok {
		dc, err := gateway.NewDiscordGateway(g.Token, a, logger)
		if err != nil {
			logger.Error("discord gateway disabled", zap.Error(err))
		} else {
			out = append(out, dc)
		}
	}
	return out
}

func tick(ctx context.Context, every time.Duration, fn func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
