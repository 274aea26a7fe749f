package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"speechbridge-server-go/internal/domain/asr"
	"speechbridge-server-go/internal/domain/audio"
	"speechbridge-server-go/internal/domain/cache"
	"speechbridge-server-go/internal/domain/embedding"
	"speechbridge-server-go/internal/domain/eventbus"
	"speechbridge-server-go/internal/domain/pipeline"
	"speechbridge-server-go/internal/domain/similarity"
	"speechbridge-server-go/internal/domain/translate"
	"speechbridge-server-go/internal/domain/tts"
	platformconfig "speechbridge-server-go/internal/platform/config"
	platformerrors "speechbridge-server-go/internal/platform/errors"
	platformlogging "speechbridge-server-go/internal/platform/logging"
	platformobservability "speechbridge-server-go/internal/platform/observability"
	platformstorage "speechbridge-server-go/internal/platform/storage"
	httptransport "speechbridge-server-go/internal/transport/http"
	wstransport "speechbridge-server-go/internal/transport/ws"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config                *platformconfig.Config
	configPath            string
	logger                *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	store                 cache.Store
	normalizer            *audio.Normalizer
	recognizer            asr.Provider
	translator            *translate.Service
	speech                *tts.Service
	scorer                *similarity.Scorer
	history               *platformstorage.History
	queue                 *pipeline.Queue
	orchestrator          *pipeline.Orchestrator
}

// Run boots the full service lifecycle: configuration, providers, the
// pipeline orchestrator and both transports, then blocks until a shutdown
// signal and tears everything down in reverse.
func Run(ctx context.Context) error {
	state := &appState{}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger
	if config == nil || logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
		)
	}
	if state.orchestrator == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"pipeline orchestrator not initialised",
		)
	}

	logBootstrapGraph(steps, logger)

	if shutdown := state.observabilityShutdown; shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WarnTag("BOOT", "observability did not shut down cleanly: %v", err)
			}
		}()
	}

	defer func() {
		if state.queue != nil {
			state.queue.Stop()
		}
		eventbus.Shutdown()
		if state.history != nil {
			if err := state.history.Close(); err != nil {
				logger.WarnTag("HISTORY", "history store close failed: %v", err)
			}
		}
		if state.store != nil {
			if err := state.store.Close(); err != nil {
				logger.WarnTag("CACHE", "cache store close failed: %v", err)
			}
		}
	}()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if _, err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	if err := waitForShutdown(signalCtx, cancel, logger, group); err != nil {
		return err
	}

	logger.InfoTag("BOOT", "service stopped")
	logger.Close()
	return nil
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("BOOT", "initialisation order")
	for _, step := range steps {
		logger.InfoTag("BOOT", "  %s", step.Title)
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph declares the boot order. Every step only reads what earlier
// steps put on the state.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Set up observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "cache:open-store",
			Title:     "Open cache store",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindCache,
			Execute:   openCacheStep,
		},
		{
			ID:        "audio:init-normalizer",
			Title:     "Initialise audio normalizer",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindConfig,
			Execute:   initNormalizerStep,
		},
		{
			ID:        "providers:init",
			Title:     "Initialise model providers",
			DependsOn: []string{"logging:init-provider", "audio:init-normalizer"},
			Kind:      platformerrors.KindConfig,
			Execute:   initProvidersStep,
		},
		{
			ID:        "similarity:init-scorer",
			Title:     "Initialise similarity scorer",
			DependsOn: []string{"logging:init-provider", "audio:init-normalizer"},
			Kind:      platformerrors.KindConfig,
			Execute:   initScorerStep,
		},
		{
			ID:        "storage:open-history",
			Title:     "Open pipeline history store",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   openHistoryStep,
		},
		{
			ID:        "pipeline:init-orchestrator",
			Title:     "Initialise pipeline orchestrator",
			DependsOn: []string{"providers:init", "cache:open-store", "storage:open-history"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initOrchestratorStep,
		},
		{
			ID:        "eventbus:attach-log-subscriber",
			Title:     "Attach event bus log subscriber",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   attachEventSubscriberStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := platformconfig.NewLoader("").Load()
	if err != nil {
		return err
	}
	state.config = result.Config
	state.configPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return err
	}
	state.logger = logger
	logger.InfoTag("BOOT", "configuration loaded from %s", state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	shutdown, err := platformobservability.Setup(ctx, platformobservability.Config{
		Enabled: state.config.Log.Level == "debug",
	}, state.logger.Slog())
	if err != nil {
		return err
	}
	state.observabilityShutdown = shutdown
	return nil
}

func openCacheStep(_ context.Context, state *appState) error {
	store, err := cache.New(state.config.Cache)
	if err != nil {
		return err
	}
	state.store = store
	if store == nil {
		state.logger.InfoTag("CACHE", "caching disabled")
	} else {
		state.logger.InfoTag("CACHE", "cache store ready (driver=%s ttl=%s)",
			state.config.Cache.Driver, state.config.Cache.TTL)
	}
	return nil
}

func initNormalizerStep(_ context.Context, state *appState) error {
	state.normalizer = audio.NewNormalizer(audio.Options{
		TargetSampleRate: state.config.Audio.TargetSampleRate,
		PeakLevel:        state.config.Audio.PeakLevel,
		Denoise:          state.config.Audio.Denoise,
	})
	return nil
}

func initProvidersStep(_ context.Context, state *appState) error {
	cfg := state.config

	recognizer, err := buildRecognizer(cfg, state.logger)
	if err != nil {
		return err
	}
	state.recognizer = recognizer

	translator, err := buildTranslator(cfg, state.logger)
	if err != nil {
		return err
	}
	state.translator = translator

	speech, err := buildSpeech(cfg, state.normalizer, state.logger)
	if err != nil {
		return err
	}
	state.speech = speech

	state.logger.InfoTag("BOOT", "providers ready (asr=%s mt=%s tts=%s cloning=%v)",
		recognizer.Name(), cfg.Translate.Provider, cfg.TTS.Provider, speech.CloningAvailable())
	return nil
}

func buildRecognizer(cfg *platformconfig.Config, logger *platformlogging.Logger) (asr.Provider, error) {
	switch cfg.ASR.Provider {
	case "", "openai":
		return asr.NewOpenAIProvider(cfg.ASR.OpenAI, logger)
	default:
		return nil, platformerrors.New(
			platformerrors.KindConfig,
			"providers:init",
			fmt.Sprintf("unknown asr provider %q", cfg.ASR.Provider),
		)
	}
}

func buildTranslator(cfg *platformconfig.Config, logger *platformlogging.Logger) (*translate.Service, error) {
	var (
		provider translate.Provider
		err      error
	)
	switch cfg.Translate.Provider {
	case "", "opennmt":
		provider, err = translate.NewOpenNMTProvider(cfg.Translate.OpenNMT)
	case "openai":
		provider, err = translate.NewOpenAIProvider(cfg.Translate.OpenAI)
	default:
		err = platformerrors.New(
			platformerrors.KindConfig,
			"providers:init",
			fmt.Sprintf("unknown translation provider %q", cfg.Translate.Provider),
		)
	}
	if err != nil {
		return nil, err
	}
	return translate.NewService(cfg.Translate, provider, logger)
}

func buildSpeech(cfg *platformconfig.Config, normalizer *audio.Normalizer, logger *platformlogging.Logger) (*tts.Service, error) {
	var (
		provider tts.Provider
		err      error
	)
	switch cfg.TTS.Provider {
	case "", "edge":
		provider = tts.NewEdgeProvider(cfg.TTS.Edge)
	case "openai":
		provider, err = tts.NewOpenAIProvider(cfg.TTS.OpenAI)
	default:
		err = platformerrors.New(
			platformerrors.KindConfig,
			"providers:init",
			fmt.Sprintf("unknown tts provider %q", cfg.TTS.Provider),
		)
	}
	if err != nil {
		return nil, err
	}

	var cloner tts.Provider
	if cfg.TTS.XTTS.URL != "" {
		cloner, err = tts.NewXTTSProvider(cfg.TTS.XTTS)
		if err != nil {
			return nil, err
		}
	}

	return tts.NewService(cfg.TTS, provider, cloner, normalizer, logger)
}

func initScorerStep(_ context.Context, state *appState) error {
	if state.config.Embedding.URL == "" {
		state.logger.InfoTag("SIM", "no embedding endpoint configured, similarity disabled")
		return nil
	}
	embedder, err := embedding.NewRESTProvider(state.config.Embedding)
	if err != nil {
		return err
	}
	scorer, err := similarity.NewScorer(state.config.Similarity, embedder, state.normalizer, state.logger)
	if err != nil {
		return err
	}
	state.scorer = scorer
	return nil
}

func openHistoryStep(_ context.Context, state *appState) error {
	if !state.config.History.Enabled {
		state.logger.InfoTag("HISTORY", "pipeline history disabled")
		return nil
	}
	history, err := platformstorage.NewHistory(state.config.History, state.logger)
	if err != nil {
		return err
	}
	state.history = history
	return nil
}

func initOrchestratorStep(_ context.Context, state *appState) error {
	state.queue = pipeline.NewQueue(state.config.Pipeline.Workers, state.logger)

	opts := pipeline.Options{
		Config:     state.config.Pipeline,
		Normalizer: state.normalizer,
		Recognizer: state.recognizer,
		Translator: state.translator,
		Speech:     state.speech,
		Store:      state.store,
		CacheTTL:   state.config.Cache.TTL.Std(),
		Queue:      state.queue,
		Logger:     state.logger,
	}
	if state.history != nil {
		opts.History = state.history
	}

	orchestrator, err := pipeline.New(opts)
	if err != nil {
		return err
	}
	state.orchestrator = orchestrator
	return nil
}

func attachEventSubscriberStep(_ context.Context, state *appState) error {
	return eventbus.NewLogSubscriber(state.logger).Attach()
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	config := state.config
	logger := state.logger

	router, err := httptransport.Build(httptransport.Options{
		Config: config,
		Logger: logger,
	})
	if err != nil {
		return nil, platformerrors.Wrap(
			platformerrors.KindTransport,
			"start http server",
			"router build failed",
			err,
		)
	}

	var comparer httptransport.Comparer
	if state.scorer != nil {
		comparer = state.scorer
	}
	var historyReader httptransport.HistoryReader
	if state.history != nil {
		historyReader = state.history
	}
	var cachePing httptransport.Pinger
	if state.store != nil {
		cachePing = state.store
	}

	service := httptransport.NewService(
		config,
		state.orchestrator,
		comparer,
		historyReader,
		cachePing,
		httptransport.LanguageInfo{
			TranslationPairs: state.translator.Pairs(),
			SynthesisLangs:   state.speech.Languages(),
			CloningAvailable: state.speech.CloningAvailable(),
		},
		logger,
	)
	service.Register(router.API)

	wstransport.NewStream(state.orchestrator, logger).Register(router.Engine)

	addr := config.Server.IP + ":" + strconv.Itoa(config.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router.Engine,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "listening on http://%s", addr)
		logger.InfoTag("HTTP", "api base: http://%s/api/v1", addr)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "server shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "server shut down cleanly")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("BOOT", "shutdown signal received (%v), cleaning up", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "error during shutdown: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
	case <-time.After(15 * time.Second):
		timeoutErr := errors.New("shutdown timed out")
		logger.ErrorTag("BOOT", "shutdown timed out, forcing exit")
		return timeoutErr
	}
	return nil
}
