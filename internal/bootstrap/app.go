package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/phuslu/log"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"askdoc/internal/ai"
	"askdoc/internal/cache"
	"askdoc/internal/config"
	"askdoc/internal/model"
	mysqlClient "askdoc/internal/platform/mysql"
	rabbitmqClient "askdoc/internal/platform/rabbitmq"
	redisClient "askdoc/internal/platform/redis"
	"askdoc/internal/rag"
	"askdoc/internal/repository"
	"askdoc/internal/source"
	"askdoc/internal/worker"
)

// App wires the whole service together. Redis and the MySQL/RabbitMQ
// persistence path are optional: when disabled their fields stay nil and the
// handlers degrade gracefully.
type App struct {
	Config   *config.Config
	Provider ai.Provider
	Registry *source.Registry
	Pipeline *rag.Pipeline
	Sessions *cache.SessionStore

	Redis          *redis.Client
	MySQL          *gorm.DB
	MQConn         *amqp.Connection
	Publisher      *rabbitmqClient.TranscriptPublisher
	TranscriptRepo *repository.TranscriptRepository
	Worker         *worker.TranscriptWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	setupLogger(cfg)

	provider, err := ai.NewProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("build model provider failed: %w", err)
	}

	registry := source.NewRegistry()
	loader := source.NewLoader(cfg.Sources, registry)
	pipeline := rag.NewPipeline(provider, loader, rag.NewIndexCache(), cfg.RAG)

	app := &App{
		Config:    cfg,
		Provider:  provider,
		Registry:  registry,
		Pipeline:  pipeline,
		StartedAt: time.Now(),
	}

	historyTTL := time.Duration(cfg.Redis.HistoryTTLSeconds) * time.Second
	if cfg.Redis.Enabled {
		redisCli, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		app.Redis = redisCli
		app.Sessions = cache.NewSessionStore(redisCli, historyTTL)
	} else {
		app.Sessions = cache.NewSessionStore(nil, historyTTL)
	}

	if cfg.Persistence.Enabled {
		mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, err
		}
		if err := mysqlDB.AutoMigrate(&model.Transcript{}); err != nil {
			return nil, fmt.Errorf("auto migrate tables failed: %w", err)
		}
		app.MySQL = mysqlDB

		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return nil, err
		}
		app.MQConn = mqConn
		app.Publisher = rabbitmqClient.NewTranscriptPublisher(mqConn, cfg.RabbitMQ.TranscriptQueue)

		app.TranscriptRepo = repository.NewTranscriptRepository(mysqlDB)
		app.Worker = worker.NewTranscriptWorker(mqConn, app.TranscriptRepo, cfg.RabbitMQ.TranscriptQueue)
		if err := app.Worker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start transcript worker failed: %w", err)
		}
	}

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Env).
		Str("provider", cfg.LLM.Provider).
		Bool("redis", cfg.Redis.Enabled).
		Bool("persistence", cfg.Persistence.Enabled).
		Msg("application wired")

	return app, nil
}

func setupLogger(cfg *config.Config) {
	logger := log.Logger{
		Level:      log.InfoLevel,
		TimeFormat: time.RFC3339,
	}
	if cfg.App.Env == "dev" {
		logger.Level = log.DebugLevel
		logger.Writer = &log.ConsoleWriter{ColorOutput: true}
	}
	log.DefaultLogger = logger
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Worker != nil {
		a.Worker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
