// Package localhttp implements the inference.Backend for the local_http
// backend tag (spec §4.1): models served by an OpenAI-compatible HTTP
// endpoint on the operator's own network, reached with go-openai the way
// the teacher's internal/llm/openai client does.
package localhttp

import (
	"context"
	"net/http"
	"strconv"
	"time"

	openailib "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/taskcouncil/engine/internal/errors"
	"github.com/taskcouncil/engine/internal/inference"
)

// Backend implements inference.Backend over a single OpenAI-compatible
// HTTP endpoint. It is not Exclusive: its client is goroutine-safe, so one
// shared owner serves every model descriptor loaded against this backend.
type Backend struct {
	log        *zap.Logger
	maxRetries int
}

// New builds a localhttp.Backend. maxRetries bounds transient HTTP-level
// retries per call, mirroring LLM_MAX_RETRIES in the teacher's config.
func New(log *zap.Logger, maxRetries int) *Backend {
	if maxRetries < 0 {
		maxRetries = 1
	}
	return &Backend{log: log.Named("localhttp"), maxRetries: maxRetries}
}

func (b *Backend) Tag() inference.BackendTag { return inference.BackendLocalHTTP }

func (b *Backend) Exclusive() bool { return false }

// handle is the NativeHandle this backend returns from Load: a client
// bound to the descriptor's base URL, plus the model name to send on
// every completion request.
type handle struct {
	client *openailib.Client
	model  string
}

func (b *Backend) Load(_ context.Context, desc inference.ModelDescriptor) (inference.NativeHandle, error) {
	baseURL := desc.Location
	if baseURL == "" {
		return nil, errors.New(errors.KindBadRequest, "local_http descriptor requires a base URL in Location")
	}
	apiKey := desc.Config["api_key"]

	timeout := 300 * time.Second
	if v := desc.Config["http_timeout_seconds"]; v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}

	cfg := openailib.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &handle{
		client: openailib.NewClientWithConfig(cfg),
		model:  desc.Config["model"],
	}, nil
}

func (b *Backend) Invoke(ctx context.Context, h inference.NativeHandle, req inference.InferenceRequest) (inference.InferenceResult, error) {
	hd, ok := h.(*handle)
	if !ok {
		return inference.InferenceResult{}, errors.New(errors.KindInternal, "local_http: wrong handle type")
	}

	messages := []openailib.ChatCompletionMessage{}
	if req.SystemText != "" {
		messages = append(messages, openailib.ChatCompletionMessage{Role: openailib.ChatMessageRoleSystem, Content: req.SystemText})
	}
	messages = append(messages, openailib.ChatCompletionMessage{Role: openailib.ChatMessageRoleUser, Content: req.Prompt})

	compReq := openailib.ChatCompletionRequest{
		Model:       hd.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
	}
	if req.MaxTokens > 0 {
		compReq.MaxTokens = req.MaxTokens
	}

	var resp openailib.ChatCompletionResponse
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		resp, lastErr = hd.client.CreateChatCompletion(ctx, compReq)
		if lastErr == nil {
			break
		}
		if attempt < b.maxRetries {
			wait := time.Duration(attempt+1) * time.Second
			b.log.Warn("local_http retry", zap.Int("attempt", attempt+1), zap.Error(lastErr))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return inference.InferenceResult{}, ctx.Err()
			}
		}
	}
	if lastErr != nil {
		return inference.InferenceResult{}, errors.Wrap(errors.KindInternal, "local_http completion failed", lastErr)
	}
	if len(resp.Choices) == 0 {
		return inference.InferenceResult{}, errors.New(errors.KindInternal, "local_http: no choices returned")
	}

	return inference.InferenceResult{
		Status: inference.ResultOK,
		Text:   resp.Choices[0].Message.Content,
	}, nil
}

func (b *Backend) Unload(h inference.NativeHandle) {
	// The go-openai client holds no unmanaged resources to release.
}
