package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rag-server/chat"
	"rag-server/config"
	"rag-server/database"
	"rag-server/ingest"
	"rag-server/llmclient"
	"rag-server/rag"
	"rag-server/scrape"
	"rag-server/web"
	"rag-server/web/services"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	// Initialize logger with default level to load config
	tempLogger, err := config.InitLogger("info", true)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Load config (which includes log level setting)
	cfg := config.Load(tempLogger)
	if err := cfg.Validate(); err != nil {
		tempLogger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Re-initialize logger with configured level
	logger, err := config.InitLogger(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		fmt.Printf("Failed to re-initialize logger with configured level: %v\n", err)
		os.Exit(1)
	}
	defer config.Cleanup()

	store, err := database.NewStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer store.Close()

	// Schema initialization failure is fatal; serving without the schema
	// corrupts nothing but helps no one.
	if err := store.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply database migrations", zap.Error(err))
	}

	llm := llmclient.New(cfg, logger)

	embedder, err := rag.NewEmbedder(llm, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize embedder", zap.Error(err))
	}

	searcher := rag.NewSearcher(store, embedder, cfg, logger)
	engine := rag.NewEngine(searcher, llm, cfg, logger)
	extractor := rag.NewMemoryExtractor(llm, logger)
	chatService := chat.NewService(store, engine, extractor, llm, cfg, logger)

	pipeline := ingest.NewPipeline(store, embedder, cfg, logger)
	scraper := scrape.NewScraper(cfg.ScrapingTimeout, cfg.ScrapingRateLimit(), logger)
	crawler := scrape.NewCrawler(scraper, logger)
	github := scrape.NewGitHubClient(cfg.GitHubToken, cfg.ScrapingTimeout, logger)
	resourceService := services.NewResourceService(store, pipeline, crawler, github, cfg, logger)
	uploadService := services.NewUploadService(resourceService, logger)

	webServer := web.NewServer(web.Deps{
		Store:     store,
		Chat:      chatService,
		Resources: resourceService,
		Uploads:   uploadService,
		Embedder:  llm,
	}, logger, cfg)

	// Create context that listens for interrupt signals
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	if err := webServer.Start(ctx, addr); err != nil {
		logger.Error("Web server error", zap.Error(err))
		os.Exit(1)
	}
}
