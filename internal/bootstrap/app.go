package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"pdfchat/internal/ai"
	appsvc "pdfchat/internal/app"
	"pdfchat/internal/cache"
	"pdfchat/internal/config"
	"pdfchat/internal/model"
	"pdfchat/internal/pkg/logger"
	"pdfchat/internal/platform/database"
	rabbitmqClient "pdfchat/internal/platform/rabbitmq"
	redisClient "pdfchat/internal/platform/redis"
	"pdfchat/internal/rag"
	"pdfchat/internal/repository"
	"pdfchat/internal/storage"
	"pdfchat/internal/vectorstore"
	"pdfchat/internal/worker"
)

const (
	VectorBackendChromem  = "chromem"
	VectorBackendPGVector = "pgvector"
	VectorBackendMemory   = "memory"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Option func(*options)

type options struct {
	startWorkers bool
}

// WithoutWorkers skips the RabbitMQ consumers. Used by one-shot commands.
func WithoutWorkers() Option {
	return func(o *options) { o.startWorkers = false }
}

type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB       *gorm.DB
	VectorDB *gorm.DB
	Redis    *redis.Client
	MQConn   *amqp.Connection

	AI        ai.Client
	Vectors   vectorstore.Store
	Documents *storage.LocalStore
	Pipeline  *rag.Pipeline
	Retriever *rag.Retriever

	AuthService     *appsvc.AuthService
	ChatService     *appsvc.ChatService
	DocumentService *appsvc.DocumentService
	IngestWorker    *worker.IngestWorker

	StartedAt time.Time
}

func New(ctx context.Context, opts ...Option) (*App, error) {
	o := options{startWorkers: true}
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	log, err := logger.New(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File, JSON: cfg.Log.JSON})
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: log, StartedAt: time.Now()}
	if err := a.init(ctx, o); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, o options) error {
	cfg := a.Config
	log := a.Logger

	db, err := database.Open(ctx, cfg.Database.Driver, databaseDSN(cfg))
	if err != nil {
		return err
	}
	a.DB = db
	if err := db.WithContext(ctx).AutoMigrate(&model.User{}, &model.Chat{}, &model.Message{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	var (
		history appsvc.HistoryCache
		locker  appsvc.TurnLocker
	)
	historyTTL := time.Duration(cfg.Redis.HistoryTTLSeconds) * time.Second
	dirtyTTL := time.Duration(cfg.Redis.HistoryDirtyTTLSeconds) * time.Second
	if cfg.Redis.Addr != "" {
		a.Redis, err = redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		history = cache.NewHistoryCache(a.Redis, historyTTL, dirtyTTL)
		locker = cache.NewRedisTurnLocker(a.Redis, cfg.TurnLockTTL())
	} else {
		log.Warn("redis disabled, using in-process history cache and turn lock")
		history = cache.NewMemoryHistoryCache(historyTTL, dirtyTTL)
		locker = cache.NewMemoryTurnLocker(cfg.TurnLockTTL())
	}

	a.AI, err = newAIClient(ctx, cfg.LLM)
	switch {
	case errors.Is(err, ai.ErrNotConfigured):
		log.Warn("model provider has no api key, embedding and generation will fail", zap.String("provider", cfg.LLM.Provider))
	case err != nil:
		return err
	}
	var (
		embedder  ai.Embedder
		generator ai.Generator
	)
	if a.AI != nil {
		embedder = ai.NewRateLimitedEmbedder(a.AI, cfg.LLM.EmbedRPS, cfg.LLM.EmbedBurst)
		generator = a.AI
	}

	if err := a.openVectorStore(ctx); err != nil {
		return err
	}

	a.Documents, err = storage.NewLocalStore(cfg.Storage.Dir)
	if err != nil {
		return err
	}

	prompt, err := rag.NewPromptTemplate(cfg.Prompt.Template)
	if err != nil {
		return fmt.Errorf("load prompt template failed: %w", err)
	}

	ragOpts := ragOptions(cfg)
	a.Pipeline = rag.NewPipeline(a.Documents, rag.PDFExtractor{}, embedder, a.Vectors, ragOpts, log)
	a.Retriever = rag.NewRetriever(embedder, a.Vectors, ragOpts, log)

	userRepo := repository.NewUserRepository(db)
	chatRepo := repository.NewChatRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	a.AuthService = appsvc.NewAuthService(
		userRepo,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	a.ChatService = appsvc.NewChatService(
		chatRepo,
		messageRepo,
		history,
		locker,
		a.Retriever,
		prompt,
		generator,
		appsvc.ChatServiceConfig{GenerateTimeout: cfg.GenerateTimeout()},
		log,
	)

	var queue appsvc.IngestQueue
	if cfg.RabbitMQ.URL != "" {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		queue = rabbitmqClient.NewIngestPublisher(a.MQConn, cfg.RabbitMQ.IngestQueue)
	} else {
		log.Warn("rabbitmq disabled, re-index runs inline")
	}
	a.DocumentService = appsvc.NewDocumentService(chatRepo, a.Documents, a.Pipeline, queue, cfg.MaxUploadBytes(), log)

	if a.MQConn != nil && o.startWorkers {
		a.IngestWorker = worker.NewIngestWorker(a.MQConn, a.DocumentService, cfg.RabbitMQ.IngestQueue, log)
		if err := a.IngestWorker.Start(ctx); err != nil {
			return fmt.Errorf("start ingest worker failed: %w", err)
		}
	}

	log.Info("app initialized",
		zap.String("database", cfg.Database.Driver),
		zap.String("vector_backend", cfg.Vector.Backend),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("redis", a.Redis != nil),
		zap.Bool("rabbitmq", a.MQConn != nil),
	)
	return nil
}

func (a *App) openVectorStore(ctx context.Context) error {
	cfg := a.Config.Vector
	switch cfg.Backend {
	case VectorBackendChromem, "":
		store, err := vectorstore.NewChromemStore(cfg.ChromemPath, cfg.ChromemCompress)
		if err != nil {
			return err
		}
		a.Vectors = store
	case VectorBackendPGVector:
		db, err := database.Open(ctx, database.DriverPostgres, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open vector database failed: %w", err)
		}
		a.VectorDB = db
		store := vectorstore.NewPGVectorStore(db)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		a.Vectors = store
	case VectorBackendMemory:
		a.Logger.Warn("in-memory vector store selected, the index is lost on restart")
		a.Vectors = vectorstore.NewMemoryStore()
	default:
		return fmt.Errorf("unsupported vector backend %q", cfg.Backend)
	}
	return nil
}

func newAIClient(ctx context.Context, cfg config.LLMConfig) (ai.Client, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		client, err := ai.NewGeminiClient(ctx, ai.GeminiConfig{
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, ai.ErrNotConfigured
		}
		return ai.NewOpenAICompatibleClient(ai.OpenAIConfig{
			BaseURL:        cfg.BaseURL,
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func databaseDSN(cfg *config.Config) string {
	if cfg.Database.Driver == database.DriverPostgres {
		return cfg.Database.PostgresDSN
	}
	return cfg.MySQLDSN()
}

func ragOptions(cfg *config.Config) rag.Options {
	return rag.Options{
		ChunkSize:        cfg.RAG.ChunkSize,
		ChunkOverlap:     cfg.RAG.ChunkOverlap,
		MaxChunkBytes:    cfg.RAG.MaxChunkBytes,
		EmbedConcurrency: cfg.RAG.EmbedConcurrency,
		EmbedTimeout:     cfg.EmbedTimeout(),
		UpsertBatchSize:  cfg.Vector.UpsertBatchSize,
		IndexTimeout:     cfg.VectorTimeout(),
		TopK:             cfg.RAG.TopK,
		MinScore:         cfg.RAG.MinScore,
		MaxContextBytes:  cfg.RAG.MaxContextBytes,
	}
}

func (a *App) Close() error {
	var closeErr error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.AI != nil {
		if err := a.AI.Close(); err != nil {
			closeErr = err
		}
	}
	if a.VectorDB != nil {
		if err := database.Close(a.VectorDB); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			closeErr = err
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return closeErr
}
