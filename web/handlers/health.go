package handlers

import (
	"context"
	"net/http"
	"time"

	"rag-server/database"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EmbeddingPinger reports whether the embedding backend answers.
type EmbeddingPinger interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	store     *database.Store
	embedder  EmbeddingPinger
	version   string
	startedAt time.Time
	logger    *zap.Logger
}

func NewHealthHandler(store *database.Store, embedder EmbeddingPinger, version string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		store:     store,
		embedder:  embedder,
		version:   version,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// Check reports liveness.
func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

// Ready probes the database and the embedding backend. Ready only when
// both answer.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	deps := gin.H{
		"database":   h.store.Ping(ctx) == nil,
		"embeddings": h.pingEmbeddings(ctx),
	}

	ready := true
	for name, up := range deps {
		if up != true {
			ready = false
			h.logger.Warn("dependency not ready", zap.String("dependency", name))
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"ready":             ready,
		"dependency_status": deps,
	})
}

func (h *HealthHandler) pingEmbeddings(ctx context.Context) bool {
	_, err := h.embedder.EmbedBatch(ctx, []string{"ping"})
	return err == nil
}
