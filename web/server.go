package web

import (
	"context"
	"net/http"
	"time"

	"rag-server/chat"
	"rag-server/config"
	"rag-server/database"
	"rag-server/web/handlers"
	"rag-server/web/middleware"
	"rag-server/web/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

type Server struct {
	router  *gin.Engine
	limiter *middleware.UserRateLimiter
	logger  *zap.Logger
	config  *config.Config
}

// Deps collects everything the HTTP surface needs.
type Deps struct {
	Store     *database.Store
	Chat      *chat.Service
	Resources *services.ResourceService
	Uploads   *services.UploadService
	Embedder  handlers.EmbeddingPinger
}

func NewServer(deps Deps, logger *zap.Logger, cfg *config.Config) *Server {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	limiter := middleware.NewUserRateLimiter(middleware.RateLimiterConfig{
		MessagesPerMinute: cfg.RateLimitPerMinute,
		BurstSize:         cfg.RateLimitBurstSize,
	}, logger)

	server := &Server{
		router:  router,
		limiter: limiter,
		logger:  logger,
		config:  cfg,
	}

	server.setupRoutes(deps)
	return server
}

func (s *Server) setupRoutes(deps Deps) {
	healthHandler := handlers.NewHealthHandler(deps.Store, deps.Embedder, Version, s.logger)
	chatHandler := handlers.NewChatHandler(deps.Chat, s.logger)
	resourceHandler := handlers.NewResourceHandler(deps.Resources, deps.Uploads, s.logger)

	s.router.GET("/health", healthHandler.Check)
	s.router.GET("/ready", healthHandler.Ready)

	api := s.router.Group("/api")

	chatRoutes := api.Group("/chat")
	chatRoutes.Use(middleware.RateLimitMiddleware(s.limiter))
	chatRoutes.POST("/messages", chatHandler.SendMessage)
	chatRoutes.POST("/stream", chatHandler.StreamMessage)
	chatRoutes.GET("/conversations/:id", chatHandler.GetConversation)
	chatRoutes.DELETE("/conversations/:id", chatHandler.DeleteConversation)
	chatRoutes.POST("/title", chatHandler.GenerateTitle)

	resourceRoutes := api.Group("/resources")
	resourceRoutes.POST("", resourceHandler.Add)
	resourceRoutes.GET("", resourceHandler.List)
	resourceRoutes.GET("/status", resourceHandler.Status)
	resourceRoutes.DELETE("/:id", resourceHandler.Delete)
	resourceRoutes.POST("/cancel", resourceHandler.Cancel)
	resourceRoutes.POST("/upload", resourceHandler.Upload)
	resourceRoutes.POST("/sync", resourceHandler.Sync)
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.logger.Info("Starting web server", zap.String("address", addr))

	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Web server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()

	s.logger.Info("Shutting down web server")
	s.limiter.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
