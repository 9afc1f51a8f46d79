package services

import (
	"context"
	"strings"
	"time"

	"rag-server/config"
	"rag-server/database"
	apperrors "rag-server/errors"
	"rag-server/ingest"
	"rag-server/scrape"
	"rag-server/utils"
	"rag-server/web/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AddResourceRequest is the transport-independent form of an ingestion
// request. Exactly one of URL, Text or FileContent is set.
type AddResourceRequest struct {
	UserID      string
	URL         string
	Text        string
	FileContent []byte
	Filename    string
	Title       string
	Type        types.DocumentType
	Metadata    map[string]string
	AutoClean   bool
}

// AddResourceResponse identifies the job tracking the ingestion and the
// resource it creates.
type AddResourceResponse struct {
	JobID      uuid.UUID  `json:"job_id"`
	ResourceID *uuid.UUID `json:"resource_id,omitempty"`
	Status     string     `json:"status"`
}

// ResourceStatus is the progress report for a job or a single resource.
type ResourceStatus struct {
	Status        string   `json:"status"`
	ChunksCreated int      `json:"chunks_created"`
	Progress      int      `json:"progress"`
	Errors        []string `json:"errors,omitempty"`
}

// ResourceService turns resource requests into ingestion pipeline runs
// and answers status queries.
type ResourceService struct {
	store    *database.Store
	pipeline *ingest.Pipeline
	crawler  *scrape.Crawler
	github   *scrape.GitHubClient
	cfg      *config.Config
	logger   *zap.Logger
}

func NewResourceService(store *database.Store, pipeline *ingest.Pipeline, crawler *scrape.Crawler, github *scrape.GitHubClient, cfg *config.Config, logger *zap.Logger) *ResourceService {
	return &ResourceService{
		store:    store,
		pipeline: pipeline,
		crawler:  crawler,
		github:   github,
		cfg:      cfg,
		logger:   logger,
	}
}

// AddResource validates the request, queues an ingestion job and runs the
// pipeline on a background goroutine. URL sources are fetched before the
// job is created so the job total counts real documents.
func (r *ResourceService) AddResource(ctx context.Context, req *AddResourceRequest) (*AddResourceResponse, error) {
	if err := utils.ValidateUserID(req.UserID); err != nil {
		return nil, err
	}

	docs, err := r.buildInputs(ctx, req)
	if err != nil {
		return nil, err
	}

	job, err := r.pipeline.CreateJob(ctx, req.UserID, docs)
	if err != nil {
		return nil, err
	}

	resp := &AddResourceResponse{JobID: job.ID, Status: string(job.Status)}
	if len(docs) == 1 {
		docs[0].ID = uuid.New()
		resp.ResourceID = &docs[0].ID
	}

	go func() {
		// The request context dies with the HTTP request; processing
		// continues under its own deadline.
		runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		r.pipeline.Run(runCtx, job, docs)
	}()

	return resp, nil
}

// buildInputs expands the request into pipeline documents. A website URL
// may expand into many documents, one per crawled page.
func (r *ResourceService) buildInputs(ctx context.Context, req *AddResourceRequest) ([]ingest.DocumentInput, error) {
	switch {
	case req.URL != "":
		return r.inputsFromURL(ctx, req)
	case req.Text != "":
		return []ingest.DocumentInput{{
			Title:     req.Title,
			Content:   req.Text,
			Type:      orDefaultType(req.Type, types.DocumentTypeText),
			Metadata:  req.Metadata,
			AutoClean: req.AutoClean,
		}}, nil
	case len(req.FileContent) > 0:
		return r.inputsFromFile(req)
	default:
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput,
			"request must carry exactly one of url, text or file_content")
	}
}

func (r *ResourceService) inputsFromURL(ctx context.Context, req *AddResourceRequest) ([]ingest.DocumentInput, error) {
	validated, err := utils.ValidateURL(req.URL)
	if err != nil {
		return nil, err
	}

	if owner, repo, err := scrape.ParseRepoURL(validated); err == nil {
		return r.inputsFromGitHub(ctx, req, owner, repo)
	}

	pages, err := r.crawler.Crawl(ctx, validated, scrape.CrawlOptions{
		MaxPages:   r.cfg.ScrapingMaxPages,
		MaxDepth:   r.cfg.ScrapingMaxDepth,
		SameDomain: true,
	})
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "no pages found at %s", validated)
	}

	docs := make([]ingest.DocumentInput, 0, len(pages))
	for _, page := range pages {
		title := page.Title
		if title == "" {
			title = req.Title
		}
		metadata := mergeMetadata(req.Metadata, page.Metadata)
		docs = append(docs, ingest.DocumentInput{
			Title:     title,
			Content:   page.Content,
			Type:      types.DocumentTypeWebsite,
			SourceURL: page.URL,
			Metadata:  metadata,
			AutoClean: true,
		})
	}
	return docs, nil
}

// inputsFromGitHub pulls the README plus every markdown file of the
// repository.
func (r *ResourceService) inputsFromGitHub(ctx context.Context, req *AddResourceRequest, owner, repo string) ([]ingest.DocumentInput, error) {
	var docs []ingest.DocumentInput

	if readme, err := r.github.FetchReadme(ctx, owner, repo); err == nil {
		docs = append(docs, ingest.DocumentInput{
			Title:     owner + "/" + repo + " README",
			Content:   readme,
			Type:      types.DocumentTypeMarkdown,
			SourceURL: "https://github.com/" + owner + "/" + repo,
			Metadata:  req.Metadata,
			AutoClean: req.AutoClean,
		})
	} else if !apperrors.IsNotFound(err) {
		return nil, err
	}

	paths, err := r.github.ListMarkdownFiles(ctx, owner, repo, "")
	if err != nil && !apperrors.IsNotFound(err) {
		return nil, err
	}
	for _, path := range paths {
		if strings.EqualFold(path, "README.md") {
			continue
		}
		file, err := r.github.FetchFile(ctx, owner, repo, "", path)
		if err != nil {
			r.logger.Warn("skipping repository file",
				zap.String("repo", owner+"/"+repo), zap.String("path", path), zap.Error(err))
			continue
		}
		docs = append(docs, ingest.DocumentInput{
			Title:     path,
			Content:   file.Content,
			Type:      types.DocumentTypeMarkdown,
			SourceURL: file.RawURL,
			Metadata:  req.Metadata,
			AutoClean: req.AutoClean,
		})
	}

	if len(docs) == 0 {
		return nil, apperrors.WrapErrorf(apperrors.ErrNotFound,
			"no markdown content in %s/%s", owner, repo)
	}
	return docs, nil
}

func (r *ResourceService) inputsFromFile(req *AddResourceRequest) ([]ingest.DocumentInput, error) {
	docType := req.Type
	content := ""

	if docType == types.DocumentTypePDF || strings.HasSuffix(strings.ToLower(req.Filename), ".pdf") {
		text, pages, err := ingest.ExtractPDFText(req.FileContent)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("extracted pdf", zap.String("filename", req.Filename), zap.Int("pages", pages))
		docType = types.DocumentTypePDF
		content = text
	} else {
		content = string(req.FileContent)
		docType = orDefaultType(docType, types.DocumentTypeText)
	}

	title := req.Title
	if title == "" {
		title = req.Filename
	}
	return []ingest.DocumentInput{{
		Title:     title,
		Content:   content,
		Type:      docType,
		Metadata:  req.Metadata,
		AutoClean: req.AutoClean,
	}}, nil
}

// GetResourceStatus reports progress either by job or by resource id.
func (r *ResourceService) GetResourceStatus(ctx context.Context, userID string, jobID, resourceID *uuid.UUID) (*ResourceStatus, error) {
	switch {
	case jobID != nil:
		job, err := r.store.GetJob(ctx, *jobID, userID)
		if err != nil {
			return nil, err
		}
		chunks := 0
		if doc, err := r.store.FindDocumentByJobID(ctx, *jobID, userID); err == nil {
			if n, err := r.store.CountChunks(ctx, doc.ID); err == nil {
				chunks = n
			}
		}
		return &ResourceStatus{
			Status:        string(job.Status),
			ChunksCreated: chunks,
			Progress:      job.ProgressPercent(),
			Errors:        job.Errors,
		}, nil

	case resourceID != nil:
		doc, err := r.store.GetDocument(ctx, *resourceID, userID)
		if err != nil {
			return nil, err
		}
		chunks, err := r.store.CountChunks(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		status := "completed"
		progress := 100
		if chunks == 0 {
			status = "processing"
			progress = 0
		}
		return &ResourceStatus{Status: status, ChunksCreated: chunks, Progress: progress}, nil

	default:
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, "job_id or resource_id required")
	}
}

// ListResources lists the user's documents with chunk stats.
func (r *ResourceService) ListResources(ctx context.Context, userID string, limit int) ([]types.ResourceItem, int, error) {
	if err := utils.ValidateUserID(userID); err != nil {
		return nil, 0, err
	}
	return r.store.ListResources(ctx, userID, limit)
}

// DeleteResource removes a document and reports how many chunks went with
// it.
func (r *ResourceService) DeleteResource(ctx context.Context, userID string, resourceID uuid.UUID) (int, error) {
	return r.store.DeleteDocument(ctx, resourceID, userID)
}

// CancelIngestion requests cancellation of a running job.
func (r *ResourceService) CancelIngestion(ctx context.Context, userID string, jobID uuid.UUID) (bool, string, error) {
	return r.store.CancelJob(ctx, jobID, userID)
}

// SyncResult is the response of a metadata sync.
type SyncResult struct {
	Resources     []types.Document `json:"resources"`
	SyncTimestamp time.Time        `json:"sync_timestamp"`
}

// SyncResourceMetadata returns resources changed since the given time.
func (r *ResourceService) SyncResourceMetadata(ctx context.Context, userID string, since time.Time, ids []uuid.UUID) (*SyncResult, error) {
	if err := utils.ValidateUserID(userID); err != nil {
		return nil, err
	}
	docs, err := r.store.SyncResources(ctx, userID, since, ids)
	if err != nil {
		return nil, err
	}
	return &SyncResult{Resources: docs, SyncTimestamp: time.Now().UTC()}, nil
}

func orDefaultType(t, fallback types.DocumentType) types.DocumentType {
	if t == "" {
		return fallback
	}
	return t
}

func mergeMetadata(base, extra map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		if _, exists := out[k]; !exists {
			out[k] = v
		}
	}
	return out
}
