package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"doodle-duel/internal/config"
	"doodle-duel/internal/db"
	"doodle-duel/internal/game"
	"doodle-duel/internal/judge"
	"doodle-duel/internal/logger"
	"doodle-duel/internal/metrics"
	"doodle-duel/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "doodle-duel",
		Usage: "realtime drawing party game server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "dotenv file loaded before reading the environment",
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address, overrides ADDR",
			},
		},
		Action: serve,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func serve(c *cli.Context) error {
	if err := config.LoadDotEnv(c.String("env-file")); err != nil {
		log.Printf("failed to load %s: %v", c.String("env-file"), err)
	}
	cfg := config.Load()
	if addr := c.String("addr"); addr != "" {
		cfg.Addr = addr
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger setup failed: %w", err)
	}
	defer func() { _ = zlog.Sync() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	judges := judge.NewRegistry(cfg.DefaultJudgeModel)
	judges.Register(judge.ModelOpenAI, judge.NewOpenAI(judge.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
		Timeout: cfg.JudgeTimeout(),
	}))
	judges.Register(judge.ModelRandom, judge.NewRandom(uint64(time.Now().UnixNano())))
	if _, ok := judges.Lookup(cfg.DefaultJudgeModel); !ok {
		return fmt.Errorf("unknown DEFAULT_JUDGE_MODEL %q", cfg.DefaultJudgeModel)
	}
	if cfg.OpenAIAPIKey == "" {
		zlog.Warn("OPENAI_API_KEY is not set; openai rounds will use the fallback ranking")
	}
	evaluator := judge.NewEvaluator(judges, judge.EvaluatorConfig{
		Attempts: cfg.JudgeAttempts,
		Backoff:  cfg.JudgeBackoff(),
		Timeout:  cfg.JudgeTimeout(),
	}, zlog.Named("judge"), m)

	keywords := game.DefaultVocabulary()
	if cfg.KeywordsFile != "" {
		keywords, err = game.LoadVocabulary(cfg.KeywordsFile)
		if err != nil {
			return fmt.Errorf("load keywords: %w", err)
		}
		zlog.Info("keywords loaded", zap.String("file", cfg.KeywordsFile), zap.Int("count", len(keywords.Words())))
	}

	var archive *db.Archive
	var recorder game.Recorder
	var history server.HistoryReader
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(cfg.DatabaseURL, db.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetimeSeconds) * time.Second,
		}, zlog.Named("db"))
		if err != nil {
			return err
		}
		defer func() { _ = db.Close(conn) }()
		if err := db.Migrate(conn); err != nil {
			return fmt.Errorf("migrate archive: %w", err)
		}
		archive = db.NewArchive(conn, cfg.ArchiveBuffer, zlog, m)
		recorder = archive
		history = archive
	} else {
		zlog.Info("DATABASE_URL is not set; event archive disabled")
	}

	manager := game.NewManager(game.Options{
		RoundSeconds:    cfg.RoundSeconds,
		TickInterval:    cfg.TickInterval(),
		MinCanvasLength: cfg.MinCanvasLength,
		Keywords:        keywords,
		Judges:          judges,
		Evaluator:       evaluator,
		Recorder:        recorder,
		Logger:          zlog.Named("game"),
		Metrics:         m,
	})

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	monitor := game.NewMonitor(manager, cfg.LivenessInterval(), cfg.InactivityThreshold())
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitor.Run(monitorCtx)
	}()

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(manager, cfg, server.Options{
		History:  history,
		Logger:   zlog.Named("http"),
		Metrics:  m,
		Gatherer: registry,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		zlog.Info("server listening", zap.String("addr", cfg.Addr), zap.String("default_judge", cfg.DefaultJudgeModel))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	var runErr error
	select {
	case <-ctx.Done():
		zlog.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			zlog.Error("server failed", zap.Error(err))
			runErr = fmt.Errorf("serve %s: %w", cfg.Addr, err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("http shutdown incomplete", zap.Error(err))
	}
	srv.CloseStreams()
	stopMonitor()
	<-monitorDone
	manager.Close()
	if archive != nil {
		if err := archive.Close(shutdownCtx); err != nil {
			zlog.Warn("archive not fully drained", zap.Error(err))
		}
	}
	zlog.Info("server stopped")
	return runErr
}
