package ingest

import (
	"context"
	"fmt"
	"time"

	"rag-server/config"
	"rag-server/database"
	apperrors "rag-server/errors"
	"rag-server/utils"
	"rag-server/web/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Embedder turns document texts into vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentInput is one document handed to the pipeline. A zero ID gets a
// fresh one assigned during processing.
type DocumentInput struct {
	ID        uuid.UUID
	Title     string
	Content   string
	Type      types.DocumentType
	SourceURL string
	Metadata  map[string]string
	IsGlobal  bool
	AutoClean bool
}

// Pipeline runs documents through validate, clean, chunk, embed and
// persist, tracking progress on an ingestion job.
type Pipeline struct {
	store   *database.Store
	cleaner *Cleaner
	chunker *Chunker
	embed   Embedder
	cfg     *config.Config
	logger  *zap.Logger
}

func NewPipeline(store *database.Store, embed Embedder, cfg *config.Config, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:   store,
		cleaner: NewCleaner(logger),
		chunker: NewChunker(NewProseSentenceSplitter(), logger),
		embed:   embed,
		cfg:     cfg,
		logger:  logger,
	}
}

// CreateJob validates the batch and records a queued job for it. The
// caller runs the batch with Run, usually on its own goroutine.
func (p *Pipeline) CreateJob(ctx context.Context, userID string, docs []DocumentInput) (*types.IngestionJob, error) {
	if err := utils.ValidateUserID(userID); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, "batch contains no documents")
	}
	return p.store.CreateJob(ctx, userID, len(docs))
}

// Run processes every document of the batch. Documents fail individually:
// a bad document rolls back its own rows, bumps the failed counter and the
// batch moves on. Cancellation is checked between documents.
func (p *Pipeline) Run(ctx context.Context, job *types.IngestionJob, docs []DocumentInput) {
	start := time.Now()
	if err := p.store.MarkJobProcessing(ctx, job.ID); err != nil {
		p.logger.Error("failed to mark job processing", zap.String("job_id", job.ID.String()), zap.Error(err))
	}

	for i, doc := range docs {
		status, err := p.store.JobStatusByID(ctx, job.ID)
		if err == nil && status == types.JobStatusCancelled {
			p.logger.Info("job cancelled, stopping batch",
				zap.String("job_id", job.ID.String()), zap.Int("remaining", len(docs)-i))
			return
		}

		if err := p.processDocument(ctx, job, doc); err != nil {
			p.logger.Warn("document failed",
				zap.String("job_id", job.ID.String()),
				zap.String("title", doc.Title),
				zap.Error(err))
			if dbErr := p.store.IncrementFailed(ctx, job.ID, err.Error()); dbErr != nil {
				p.logger.Error("failed to record document failure", zap.Error(dbErr))
			}
			continue
		}
		if err := p.store.IncrementProcessed(ctx, job.ID); err != nil {
			p.logger.Error("failed to record document success", zap.Error(err))
		}
	}

	terminal, err := p.store.CompleteJob(ctx, job.ID)
	if err != nil {
		p.logger.Error("failed to complete job", zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}
	p.logger.Info("ingestion job finished",
		zap.String("job_id", job.ID.String()),
		zap.String("status", string(terminal)),
		zap.Int("documents", len(docs)),
		zap.Duration("elapsed", time.Since(start)))
}

// processDocument runs one document through the full pipeline. Any failure
// after the document row exists deletes the document again so no orphaned
// rows survive.
func (p *Pipeline) processDocument(ctx context.Context, job *types.IngestionJob, input DocumentInput) error {
	if err := utils.ValidateContentLength(input.Content, p.cfg.IngestionMaxContentLength); err != nil {
		return err
	}
	title, err := resolveTitle(input.Title)
	if err != nil {
		return err
	}
	metadata := utils.SanitizeMetadata(input.Metadata)

	content := input.Content
	if input.AutoClean {
		cleaned, metrics := p.cleaner.Clean(content, input.Type, StrategyStandard)
		p.logger.Debug("cleaned document",
			zap.String("title", title),
			zap.Int("original_length", metrics.OriginalLength),
			zap.Int("cleaned_length", metrics.CleanedLength),
			zap.Int("removed", metrics.CharsRemoved))
		content = cleaned
	}
	if content == "" {
		return apperrors.WrapError(apperrors.ErrInvalidInput, "document has no content after cleaning")
	}

	docID := input.ID
	if docID == uuid.Nil {
		docID = uuid.New()
	}
	metadata["job_id"] = job.ID.String()
	doc := &types.Document{
		ID:        docID,
		UserID:    job.UserID,
		Title:     title,
		Content:   content,
		Type:      input.Type,
		SourceURL: input.SourceURL,
		Metadata:  metadata,
		IsGlobal:  input.IsGlobal,
	}
	if err := p.store.CreateDocument(ctx, doc); err != nil {
		return err
	}

	if err := p.chunkAndEmbed(ctx, doc); err != nil {
		if _, delErr := p.store.DeleteDocument(ctx, doc.ID, doc.UserID); delErr != nil {
			p.logger.Error("rollback of failed document did not complete",
				zap.String("document_id", doc.ID.String()), zap.Error(delErr))
		}
		return err
	}
	return nil
}

// resolveTitle normalizes a document title, substituting "Untitled" for a
// missing one.
func resolveTitle(raw string) (string, error) {
	title, err := utils.ValidateDocumentTitle(raw, utils.MaxTitleLength)
	if err != nil {
		return "", err
	}
	if title == "" {
		title = "Untitled"
	}
	return title, nil
}

func (p *Pipeline) chunkAndEmbed(ctx context.Context, doc *types.Document) error {
	chunks, err := p.chunker.Split(doc.Content,
		p.cfg.IngestionChunkSize, p.cfg.IngestionChunkOverlap, doc.Metadata)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return apperrors.WrapError(apperrors.ErrInvalidInput, "document produced no chunks")
	}

	rows := make([]types.DocumentChunk, len(chunks))
	texts := make([]string, len(chunks))
	ids := make([]uuid.UUID, len(chunks))
	for i, chunk := range chunks {
		rows[i] = types.DocumentChunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			ChunkIndex: chunk.Index,
			Content:    chunk.Content,
			Metadata:   chunk.Metadata,
		}
		texts[i] = chunk.Content
		ids[i] = rows[i].ID
	}
	if err := p.store.InsertChunks(ctx, rows); err != nil {
		return err
	}

	var vectors [][]float32
	err = WithRetry(ctx, DefaultRetryConfig(), p.logger, "embed_chunks", func(ctx context.Context) error {
		var embedErr error
		vectors, embedErr = p.embed.EmbedDocuments(ctx, texts)
		return embedErr
	})
	if err != nil {
		return fmt.Errorf("embed %d chunks: %w", len(texts), err)
	}
	return p.store.UpdateChunkEmbeddings(ctx, ids, vectors)
}
