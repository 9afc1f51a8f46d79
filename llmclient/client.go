package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rag-server/config"
	"rag-server/web/types"

	"go.uber.org/zap"
)

// ErrContextWindowExceeded is returned when the model reports the prompt
// exceeds the available context size.
var ErrContextWindowExceeded = errors.New("context window exceeded")

// GenerateOptions are per-request overrides; nil fields use server defaults.
type GenerateOptions struct {
	Temperature *float64
	MaxTokens   *int
	Model       string
}

// StreamDelta is one element of a streaming completion. Err is set on the
// final element when the stream failed.
type StreamDelta struct {
	Content string
	Err     error
}

type streamChoice struct {
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	Index int `json:"index"`
}

type streamResponse struct {
	Choices []streamChoice `json:"choices"`
}

type chatRequest struct {
	Model       string                `json:"model,omitempty"`
	Messages    []types.PromptMessage `json:"messages"`
	Stream      bool                  `json:"stream"`
	Temperature *float64              `json:"temperature,omitempty"`
	MaxTokens   *int                  `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message types.PromptMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type embeddingRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) *Client {
	// Use a client with the configured timeout; streaming requests rely on context
	// cancellation or server closing the stream.
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.LLMRequestTimeout},
		logger:     logger,
	}
}

// Chat performs a non-streaming chat completion call and returns the text
// plus reported token usage.
func (c *Client) Chat(ctx context.Context, messages []types.PromptMessage, opts *GenerateOptions) (string, types.TokenUsage, error) {
	var usage types.TokenUsage

	reqBody := chatRequest{
		Model:    c.cfg.LLMModel,
		Messages: messages,
		Stream:   false,
	}
	applyOptions(&reqBody, opts)
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", usage, fmt.Errorf("marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", strings.TrimRight(c.cfg.LLMBaseURL, "/"))

	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt < c.cfg.LLMMaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
		if err != nil {
			return "", usage, fmt.Errorf("create chat request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		r, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			// Do not retry on context cancellation/deadline
			if ctx.Err() != nil {
				break
			}
			c.backoffSleep(attempt)
			continue
		}
		if r.StatusCode == http.StatusServiceUnavailable || r.StatusCode == http.StatusTooManyRequests {
			io.Copy(io.Discard, r.Body)
			r.Body.Close()
			c.backoffSleep(attempt)
			continue
		}
		resp = r
		break
	}
	if resp == nil {
		return "", usage, fmt.Errorf("no response from LLM server: %w", lastErr)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", usage, fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if strings.Contains(string(bodyBytes), "exceeds the available context size") {
			return "", usage, ErrContextWindowExceeded
		}
		return "", usage, fmt.Errorf("llm server status %s: %s", resp.Status, string(bodyBytes))
	}

	var cr chatResponse
	if err := json.Unmarshal(bodyBytes, &cr); err != nil {
		return "", usage, fmt.Errorf("decode chat response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", usage, fmt.Errorf("no response choices from llm server")
	}

	usage = types.TokenUsage{
		PromptTokens:     cr.Usage.PromptTokens,
		CompletionTokens: cr.Usage.CompletionTokens,
		TotalTokens:      cr.Usage.TotalTokens,
	}
	return cr.Choices[0].Message.Content, usage, nil
}

// ChatStream performs a streaming chat completion call and returns a channel
// of deltas. The final delta carries Err when the stream ended abnormally.
func (c *Client) ChatStream(ctx context.Context, messages []types.PromptMessage, opts *GenerateOptions) (<-chan StreamDelta, error) {
	reqBody := chatRequest{
		Model:    c.cfg.LLMModel,
		Messages: messages,
		Stream:   true,
	}
	applyOptions(&reqBody, opts)
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", strings.TrimRight(c.cfg.LLMBaseURL, "/"))
	out := make(chan StreamDelta)

	go func() {
		defer close(out)

		var resp *http.Response
		// retry loop for model loading/unavailable
		for attempt := 0; attempt < c.cfg.LLMMaxRetries; attempt++ {
			req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
			if reqErr != nil {
				out <- StreamDelta{Err: fmt.Errorf("create chat stream request: %w", reqErr)}
				return
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "text/event-stream")

			r, err := c.httpClient.Do(req)
			if err != nil {
				if ctx.Err() != nil {
					out <- StreamDelta{Err: ctx.Err()}
					return
				}
				out <- StreamDelta{Err: fmt.Errorf("send chat stream request: %w", err)}
				return
			}

			if r.StatusCode == http.StatusServiceUnavailable || r.StatusCode == http.StatusTooManyRequests {
				io.Copy(io.Discard, r.Body)
				r.Body.Close()
				c.logger.Warn("LLM service unavailable, retrying", zap.Int("attempt", attempt+1))
				c.backoffSleep(attempt)
				continue
			}

			resp = r
			break
		}

		if resp == nil {
			out <- StreamDelta{Err: fmt.Errorf("no response from LLM server after retries")}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			bodyString := string(bodyBytes)
			if strings.Contains(bodyString, "exceeds the available context size") {
				out <- StreamDelta{Err: ErrContextWindowExceeded}
				return
			}
			out <- StreamDelta{Err: fmt.Errorf("llm server status %s: %s", resp.Status, bodyString)}
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				return
			}
			var sr streamResponse
			if err := json.Unmarshal([]byte(data), &sr); err != nil {
				continue
			}
			if len(sr.Choices) == 0 {
				continue
			}
			if chunk := sr.Choices[0].Delta.Content; chunk != "" {
				select {
				case out <- StreamDelta{Content: chunk}:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				out <- StreamDelta{Err: ctx.Err()}
				return
			}
			out <- StreamDelta{Err: fmt.Errorf("read chat stream: %w", err)}
		}
	}()

	return out, nil
}

// EmbedBatch generates embedding vectors for the provided texts using the
// OpenAI-compatible embeddings endpoint. Vectors come back in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := embeddingRequest{Input: texts}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/embeddings", strings.TrimRight(c.cfg.EmbeddingHost, "/"))
	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt < c.cfg.LLMMaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, fmt.Errorf("create embedding request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		r, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			c.backoffSleep(attempt)
			continue
		}

		if r.StatusCode == http.StatusServiceUnavailable {
			io.Copy(io.Discard, r.Body)
			r.Body.Close()
			c.logger.Warn("Embedding model loading, retrying")
			c.backoffSleep(attempt)
			continue
		}

		resp = r
		break
	}
	if resp == nil {
		return nil, fmt.Errorf("no response from embedding server: %w", lastErr)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding server status %s: %s", resp.Status, string(bodyBytes))
	}

	var er embeddingResponse
	if err := json.Unmarshal(bodyBytes, &er); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(er.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count %d does not match input count %d", len(er.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range er.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

func applyOptions(req *chatRequest, opts *GenerateOptions) {
	if opts == nil {
		return
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	req.Temperature = opts.Temperature
	req.MaxTokens = opts.MaxTokens
}

func (c *Client) backoffSleep(attempt int) {
	// Exponential backoff with jitter and cap
	base := c.cfg.LLMRetryDelay
	if base <= 0 {
		base = time.Second
	}
	d := base * time.Duration(1<<attempt)
	maxWait := 30 * time.Second
	if d > maxWait {
		d = maxWait
	}
	jitter := time.Duration(float64(d) * 0.1)
	time.Sleep(d - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter+1)))
}
