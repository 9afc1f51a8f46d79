package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentType identifies the source format of ingested content.
type DocumentType string

const (
	DocumentTypeText     DocumentType = "TEXT"
	DocumentTypeMarkdown DocumentType = "MARKDOWN"
	DocumentTypeHTML     DocumentType = "HTML"
	DocumentTypePDF      DocumentType = "PDF"
	DocumentTypeCode     DocumentType = "CODE"
	DocumentTypeWebsite  DocumentType = "WEBSITE"
)

// JobStatus tracks an ingestion job through its lifecycle.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusPartial    JobStatus = "partial"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further job mutation is allowed.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusPartial, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

type Document struct {
	ID        uuid.UUID         `json:"id"`
	UserID    string            `json:"user_id"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	Type      DocumentType      `json:"type"`
	SourceURL string            `json:"source_url,omitempty"`
	Metadata  map[string]string `json:"metadata"`
	IsGlobal  bool              `json:"is_global"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type DocumentChunk struct {
	ID         uuid.UUID         `json:"id"`
	DocumentID uuid.UUID         `json:"document_id"`
	ChunkIndex int               `json:"chunk_index"`
	Content    string            `json:"content"`
	Embedding  []float32         `json:"-"`
	Metadata   map[string]string `json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}

type IngestionJob struct {
	ID          uuid.UUID  `json:"id"`
	UserID      string     `json:"user_id"`
	Status      JobStatus  `json:"status"`
	Total       int        `json:"total"`
	Processed   int        `json:"processed"`
	Failed      int        `json:"failed"`
	Errors      []string   `json:"errors"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ProgressPercent reports job completion as an integer percentage.
func (j *IngestionJob) ProgressPercent() int {
	if j.Total == 0 {
		return 0
	}
	return 100 * (j.Processed + j.Failed) / j.Total
}

type Conversation struct {
	ID        uuid.UUID         `json:"id"`
	UserID    string            `json:"user_id"`
	Title     string            `json:"title,omitempty"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type ChatMessage struct {
	ID             uuid.UUID         `json:"id"`
	ConversationID uuid.UUID         `json:"conversation_id"`
	Role           string            `json:"role"`
	Content        string            `json:"content"`
	Sources        []SourceRef       `json:"sources,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

type UserMemory struct {
	UserID    string            `json:"user_id"`
	Memory    string            `json:"memory"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// SourceRef links a generated answer back to the chunk that justified it.
type SourceRef struct {
	ChunkID        uuid.UUID `json:"chunk_id"`
	DocumentID     uuid.UUID `json:"document_id"`
	RelevanceScore float64   `json:"relevance_score"`
	Content        string    `json:"content,omitempty"`
}

// SearchResult is one row of a hybrid or vector search.
type SearchResult struct {
	ChunkID         uuid.UUID `json:"chunk_id"`
	DocumentID      uuid.UUID `json:"document_id"`
	Content         string    `json:"content"`
	SimilarityScore float64   `json:"similarity_score"`
	Rank            int       `json:"rank"`
}

// PromptMessage is one turn sent to the LLM.
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type QueryMetrics struct {
	RetrievalTimeMS  int64   `json:"retrieval_time_ms"`
	GenerationTimeMS int64   `json:"generation_time_ms"`
	TotalTimeMS      int64   `json:"total_time_ms"`
	SourcesRetrieved int     `json:"sources_retrieved"`
	AvgSimilarity    float64 `json:"avg_similarity"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TokensUsed       int     `json:"tokens_used"`
}

type QueryResponse struct {
	Response string       `json:"response"`
	Context  string       `json:"context"`
	Sources  []SourceRef  `json:"sources"`
	Metrics  QueryMetrics `json:"metrics"`
}

// StreamEventType discriminates the tagged stream event variant.
type StreamEventType string

const (
	StreamEventSources StreamEventType = "sources"
	StreamEventToken   StreamEventType = "token"
	StreamEventMetrics StreamEventType = "metrics"
	StreamEventError   StreamEventType = "error"
)

// StreamEvent is one element of a query pipeline stream. The payload
// field matching Type is set; terminal error events additionally carry
// partial-progress metrics.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Sources []SourceRef     `json:"sources,omitempty"`
	Token   string          `json:"token,omitempty"`
	Metrics *QueryMetrics   `json:"metrics,omitempty"`
	Error   string          `json:"error,omitempty"`
	IsFinal bool            `json:"is_final,omitempty"`
}

// ChatOptions is the per-request generation configuration. Unknown keys
// are rejected at the transport edge.
type ChatOptions struct {
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	UseRAG       *bool    `json:"use_rag,omitempty"`
	Model        string   `json:"model,omitempty"`
	ContextLimit *int     `json:"context_limit,omitempty"`
}

// UnmarshalJSON rejects option keys outside the known set so typos do
// not silently fall back to defaults.
func (o *ChatOptions) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range raw {
		switch key {
		case "temperature", "max_tokens", "use_rag", "model", "context_limit":
		default:
			return fmt.Errorf("unknown chat option %q", key)
		}
	}

	type plain ChatOptions
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*o = ChatOptions(decoded)
	return nil
}

// RAGEnabled applies the default of true when unset.
func (o *ChatOptions) RAGEnabled() bool {
	if o == nil || o.UseRAG == nil {
		return true
	}
	return *o.UseRAG
}

type ChatRequest struct {
	UserID         string            `json:"user_id"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Message        string            `json:"message"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Options        *ChatOptions      `json:"config,omitempty"`
}

type ChatResponse struct {
	ConversationID uuid.UUID    `json:"conversation_id"`
	MessageID      uuid.UUID    `json:"message_id"`
	Response       string       `json:"response"`
	Sources        []SourceRef  `json:"sources"`
	Metrics        QueryMetrics `json:"metrics"`
}

// ChatStreamChunk is the transport framing of one stream event.
type ChatStreamChunk struct {
	ConversationID uuid.UUID     `json:"conversation_id"`
	Source         *SourceRef    `json:"source,omitempty"`
	Token          string        `json:"token,omitempty"`
	Metrics        *QueryMetrics `json:"metrics,omitempty"`
	Error          string        `json:"error,omitempty"`
	IsFinal        bool          `json:"is_final,omitempty"`
}

// ResourceStats aggregates counts for a listed resource.
type ResourceStats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

type ResourceItem struct {
	ID        uuid.UUID         `json:"id"`
	Type      DocumentType      `json:"type"`
	Content   string            `json:"content"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata"`
	Stats     ResourceStats     `json:"stats"`
}
