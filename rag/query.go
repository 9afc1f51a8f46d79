package rag

import (
	"context"
	"time"

	"rag-server/config"
	"rag-server/llmclient"
	"rag-server/web/types"

	"go.uber.org/zap"
)

// fallbackResponse is returned when generation fails after retrieval
// succeeded, so the caller still gets sources and metrics.
const fallbackResponse = "I encountered an error generating a response."

// LLMClient is the slice of the llm client the query engine needs.
type LLMClient interface {
	Chat(ctx context.Context, messages []types.PromptMessage, opts *llmclient.GenerateOptions) (string, types.TokenUsage, error)
	ChatStream(ctx context.Context, messages []types.PromptMessage, opts *llmclient.GenerateOptions) (<-chan llmclient.StreamDelta, error)
}

// Engine runs the full retrieval-augmented query flow: search, context
// assembly, prompt construction and generation.
type Engine struct {
	searcher *Searcher
	llm      LLMClient
	cfg      *config.Config
	logger   *zap.Logger
}

func NewEngine(searcher *Searcher, llm LLMClient, cfg *config.Config, logger *zap.Logger) *Engine {
	return &Engine{searcher: searcher, llm: llm, cfg: cfg, logger: logger}
}

// QueryInput carries one query through the engine.
type QueryInput struct {
	UserID   string
	Question string
	Memory   string
	History  []types.ChatMessage
	Options  *types.ChatOptions
}

// retrieve runs search and context assembly, returning the optimized
// context and how long retrieval took. RAG can be disabled per request.
func (e *Engine) retrieve(ctx context.Context, input QueryInput) (OptimizedContext, time.Duration, error) {
	start := time.Now()
	if !input.Options.RAGEnabled() {
		return OptimizedContext{}, time.Since(start), nil
	}

	topK := e.cfg.TopK
	if input.Options != nil && input.Options.ContextLimit != nil && *input.Options.ContextLimit > 0 {
		topK = *input.Options.ContextLimit
	}
	results, err := e.searcher.Search(ctx, input.UserID, input.Question, topK)
	if err != nil {
		return OptimizedContext{}, time.Since(start), err
	}
	return BuildContext(results, e.cfg.MaxContextTokens), time.Since(start), nil
}

func (e *Engine) generateOptions(opts *types.ChatOptions) *llmclient.GenerateOptions {
	if opts == nil {
		return nil
	}
	return &llmclient.GenerateOptions{
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Model:       opts.Model,
	}
}

// Query answers one question without streaming. Generation failures after
// successful retrieval degrade to a fallback answer rather than an error.
func (e *Engine) Query(ctx context.Context, input QueryInput) (*types.QueryResponse, error) {
	total := time.Now()

	optimized, retrievalTime, err := e.retrieve(ctx, input)
	if err != nil {
		return nil, err
	}

	messages := BuildMessages(input.Memory, optimized.Text, input.History, input.Question)

	genStart := time.Now()
	answer, usage, err := e.llm.Chat(ctx, messages, e.generateOptions(input.Options))
	genTime := time.Since(genStart)
	if err != nil {
		e.logger.Error("generation failed, returning fallback",
			zap.String("user_id", input.UserID), zap.Error(err))
		answer = fallbackResponse
		usage = types.TokenUsage{}
	}

	return &types.QueryResponse{
		Response: answer,
		Context:  optimized.Text,
		Sources:  optimized.Sources,
		Metrics: types.QueryMetrics{
			RetrievalTimeMS:  retrievalTime.Milliseconds(),
			GenerationTimeMS: genTime.Milliseconds(),
			TotalTimeMS:      time.Since(total).Milliseconds(),
			SourcesRetrieved: len(optimized.Sources),
			AvgSimilarity:    optimized.AvgSimilarity,
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TokensUsed:       usage.TotalTokens,
		},
	}, nil
}
