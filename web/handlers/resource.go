package handlers

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	apperrors "rag-server/errors"
	"rag-server/web/services"
	"rag-server/web/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ResourceHandler exposes resource ingestion and management over HTTP.
type ResourceHandler struct {
	resources *services.ResourceService
	uploads   *services.UploadService
	logger    *zap.Logger
}

func NewResourceHandler(resources *services.ResourceService, uploads *services.UploadService, logger *zap.Logger) *ResourceHandler {
	return &ResourceHandler{resources: resources, uploads: uploads, logger: logger}
}

type addResourceRequest struct {
	UserID      string             `json:"user_id"`
	URL         string             `json:"url,omitempty"`
	Text        string             `json:"text,omitempty"`
	FileContent string             `json:"file_content,omitempty"` // base64
	Filename    string             `json:"filename,omitempty"`
	Title       string             `json:"title,omitempty"`
	Type        types.DocumentType `json:"type,omitempty"`
	Metadata    map[string]string  `json:"metadata,omitempty"`
	AutoClean   bool               `json:"auto_clean,omitempty"`
}

// Add ingests a resource from a URL, raw text or an inline file.
func (h *ResourceHandler) Add(c *gin.Context) {
	var req addResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "bad request body: %v", err))
		return
	}

	sources := 0
	for _, set := range []bool{req.URL != "", req.Text != "", req.FileContent != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		respondError(c, h.logger, apperrors.WrapError(apperrors.ErrInvalidInput,
			"exactly one of url, text or file_content must be set"))
		return
	}

	var fileBytes []byte
	if req.FileContent != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.FileContent)
		if err != nil {
			respondError(c, h.logger, apperrors.WrapError(apperrors.ErrInvalidInput, "file_content is not valid base64"))
			return
		}
		fileBytes = decoded
	}

	resp, err := h.resources.AddResource(c.Request.Context(), &services.AddResourceRequest{
		UserID:      req.UserID,
		URL:         req.URL,
		Text:        req.Text,
		FileContent: fileBytes,
		Filename:    req.Filename,
		Title:       req.Title,
		Type:        req.Type,
		Metadata:    req.Metadata,
		AutoClean:   req.AutoClean,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Status reports progress by job_id or resource_id.
func (h *ResourceHandler) Status(c *gin.Context) {
	var jobID, resourceID *uuid.UUID
	if raw := c.Query("job_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, h.logger, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "bad job_id %q", raw))
			return
		}
		jobID = &id
	}
	if raw := c.Query("resource_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, h.logger, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "bad resource_id %q", raw))
			return
		}
		resourceID = &id
	}

	status, err := h.resources.GetResourceStatus(c.Request.Context(), c.Query("user_id"), jobID, resourceID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// List returns the user's resources with stats.
func (h *ResourceHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	items, total, err := h.resources.ListResources(c.Request.Context(), c.Query("user_id"), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"total_count": total,
	})
}

// Delete removes one resource and its chunks.
func (h *ResourceHandler) Delete(c *gin.Context) {
	resourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "bad resource id %q", c.Param("id")))
		return
	}

	chunks, err := h.resources.DeleteResource(c.Request.Context(), c.Query("user_id"), resourceID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "chunks_deleted": chunks})
}

type cancelRequest struct {
	UserID string `json:"user_id"`
	JobID  string `json:"job_id"`
}

// Cancel requests cancellation of a running ingestion job.
func (h *ResourceHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "bad request body: %v", err))
		return
	}
	jobID, err := uuid.Parse(req.JobID)
	if err != nil {
		respondError(c, h.logger, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "bad job_id %q", req.JobID))
		return
	}

	success, message, err := h.resources.CancelIngestion(c.Request.Context(), req.UserID, jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": success, "message": message})
}

// Upload assembles a chunked upload from newline-delimited JSON frames in
// the request body.
func (h *ResourceHandler) Upload(c *gin.Context) {
	result, err := h.uploads.Assemble(c.Request.Context(), services.NewJSONFrameSource(c.Request.Body))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type syncRequest struct {
	UserID         string   `json:"user_id"`
	SinceTimestamp string   `json:"since_timestamp,omitempty"`
	ResourceIDs    []string `json:"resource_ids,omitempty"`
}

// Sync returns resources changed since a timestamp.
func (h *ResourceHandler) Sync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "bad request body: %v", err))
		return
	}

	since := time.Time{}
	if req.SinceTimestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.SinceTimestamp)
		if err != nil {
			respondError(c, h.logger, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "bad since_timestamp %q", req.SinceTimestamp))
			return
		}
		since = parsed
	}

	ids := make([]uuid.UUID, 0, len(req.ResourceIDs))
	for _, raw := range req.ResourceIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, h.logger, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "bad resource id %q", raw))
			return
		}
		ids = append(ids, id)
	}

	result, err := h.resources.SyncResourceMetadata(c.Request.Context(), req.UserID, since, ids)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"resources_synced": len(result.Resources),
		"resources":        result.Resources,
		"sync_timestamp":   result.SyncTimestamp,
	})
}
