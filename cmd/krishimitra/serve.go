package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/krishimitra/krishimitra/internal/advisor"
	"github.com/krishimitra/krishimitra/internal/analysis"
	"github.com/krishimitra/krishimitra/internal/classify"
	"github.com/krishimitra/krishimitra/internal/config"
	"github.com/krishimitra/krishimitra/internal/extract"
	"github.com/krishimitra/krishimitra/internal/handlers"
	"github.com/krishimitra/krishimitra/internal/history"
	"github.com/krishimitra/krishimitra/internal/logger"
	"github.com/krishimitra/krishimitra/internal/server"
	"github.com/krishimitra/krishimitra/internal/session"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBPool,
			provideHistoryStore,
			provideClassifier,
			provideExtractor,
			provideDispatcher,
			provideAdvisorClient,
			provideManager,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewAttachmentsHandler),
			provideServerHandler(handlers.NewChatHandler),
			provideServerHandler(provideHistoryHandler),
			provideServerHandler(provideVoiceHandler),
			provideServer,
		),
		fx.Invoke(startServer),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if !cfg.Postgres.Enabled {
		return nil, nil
	}
	pool, err := pgxpool.New(context.Background(), cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideHistoryStore(log *slog.Logger, cfg config.Config, pool *pgxpool.Pool) (history.Store, error) {
	budget := int64(cfg.Limits.SessionBudgetMB) * 1024 * 1024
	if pool == nil {
		return history.NewMemoryStore(budget), nil
	}
	store, err := history.NewPostgresStore(context.Background(), log, pool, budget)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}
	return store, nil
}

func provideClassifier(log *slog.Logger, cfg config.Config) *classify.Client {
	return classify.NewClient(log, cfg.Classifier.BaseURL, time.Duration(cfg.Classifier.TimeoutSeconds)*time.Second)
}

func provideExtractor(log *slog.Logger, cfg config.Config) *extract.Client {
	return extract.NewClient(log, cfg.Extractor.BaseURL, time.Duration(cfg.Extractor.TimeoutSeconds)*time.Second)
}

func provideDispatcher(log *slog.Logger, cfg config.Config, classifier *classify.Client, extractor *extract.Client) *analysis.Dispatcher {
	return analysis.NewDispatcher(log, classifier, extractor, time.Duration(cfg.Limits.AnalysisTimeoutSeconds)*time.Second)
}

func provideAdvisorClient(log *slog.Logger, cfg config.Config) *advisor.Client {
	return advisor.NewClient(log, cfg.Advisor.BaseURL(), time.Duration(cfg.Advisor.TimeoutSeconds)*time.Second)
}

func provideManager(log *slog.Logger, cfg config.Config, dispatcher *analysis.Dispatcher, adv *advisor.Client, store history.Store) *session.Manager {
	limits := session.Limits{
		MaxAttachmentsPerBatch: cfg.Limits.MaxAttachmentsPerBatch,
		MaxAttachmentBytes:     int64(cfg.Limits.MaxAttachmentMB) * 1024 * 1024,
	}
	return session.NewManager(log, dispatcher, adv, store, limits, cfg.Voice.DefaultLanguage)
}

func provideHistoryHandler(log *slog.Logger, manager *session.Manager, store history.Store) *handlers.HistoryHandler {
	return handlers.NewHistoryHandler(log, manager, store)
}

func provideVoiceHandler(log *slog.Logger, manager *session.Manager, cfg config.Config) *handlers.VoiceHandler {
	return handlers.NewVoiceHandler(log, manager, cfg.Voice.AutoSpeak)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers)
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
