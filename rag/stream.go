package rag

import (
	"context"
	"strings"
	"time"

	"rag-server/web/types"

	"go.uber.org/zap"
)

// QueryStream answers one question as a stream of events: a sources event
// first, then tokens, then exactly one terminal metrics or error event.
func (e *Engine) QueryStream(ctx context.Context, input QueryInput) (<-chan types.StreamEvent, error) {
	total := time.Now()

	optimized, retrievalTime, err := e.retrieve(ctx, input)
	if err != nil {
		return nil, err
	}

	messages := BuildMessages(input.Memory, optimized.Text, input.History, input.Question)

	genStart := time.Now()
	deltas, err := e.llm.ChatStream(ctx, messages, e.generateOptions(input.Options))
	if err != nil {
		return nil, err
	}

	events := make(chan types.StreamEvent)
	go func() {
		defer close(events)

		if !emit(ctx, events, types.StreamEvent{
			Type:    types.StreamEventSources,
			Sources: optimized.Sources,
		}) {
			return
		}

		var answer strings.Builder
		for delta := range deltas {
			if delta.Err != nil {
				// The terminal error event carries partial-progress metrics
				// so clients can account for what they already rendered.
				partial := e.partialMetrics(answer.String(), optimized, retrievalTime, genStart, total)
				emit(ctx, events, types.StreamEvent{
					Type:    types.StreamEventError,
					Error:   delta.Err.Error(),
					Metrics: &partial,
					IsFinal: true,
				})
				e.logger.Error("stream generation failed",
					zap.String("user_id", input.UserID), zap.Error(delta.Err))
				return
			}
			answer.WriteString(delta.Content)
			if !emit(ctx, events, types.StreamEvent{
				Type:  types.StreamEventToken,
				Token: delta.Content,
			}) {
				return
			}
		}

		metrics := e.partialMetrics(answer.String(), optimized, retrievalTime, genStart, total)
		emit(ctx, events, types.StreamEvent{
			Type:    types.StreamEventMetrics,
			Metrics: &metrics,
			IsFinal: true,
		})
	}()
	return events, nil
}

// partialMetrics builds metrics from a possibly incomplete answer. Token
// counts fall back to a whitespace split since streaming backends do not
// report usage.
func (e *Engine) partialMetrics(answer string, optimized OptimizedContext, retrievalTime time.Duration, genStart, total time.Time) types.QueryMetrics {
	completionTokens := len(strings.Fields(answer))
	return types.QueryMetrics{
		RetrievalTimeMS:  retrievalTime.Milliseconds(),
		GenerationTimeMS: time.Since(genStart).Milliseconds(),
		TotalTimeMS:      time.Since(total).Milliseconds(),
		SourcesRetrieved: len(optimized.Sources),
		AvgSimilarity:    optimized.AvgSimilarity,
		CompletionTokens: completionTokens,
		TokensUsed:       completionTokens,
	}
}

func emit(ctx context.Context, events chan<- types.StreamEvent, event types.StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
