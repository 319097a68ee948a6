// Package remoteapi implements the inference.Backend for the remote_api
// backend tag (spec §4.1): hosted models reached over the vendor's own
// SDK rather than a local HTTP endpoint. It wraps anthropic-sdk-go the
// way theRebelliousNerd-codenerd's perception package wraps the Anthropic
// Messages API, but through the official client instead of hand-rolled
// HTTP plumbing.
package remoteapi

import (
	"context"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/taskcouncil/engine/internal/errors"
	"github.com/taskcouncil/engine/internal/inference"
)

// Backend implements inference.Backend over the Anthropic Messages API.
// Like localhttp, it is not Exclusive — the SDK client is goroutine-safe
// and a single shared owner multiplexes every remote model loaded.
type Backend struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Backend {
	return &Backend{log: log.Named("remoteapi")}
}

func (b *Backend) Tag() inference.BackendTag { return inference.BackendRemoteAPI }

func (b *Backend) Exclusive() bool { return false }

type handle struct {
	client anthropic.Client
	model  anthropic.Model
}

func (b *Backend) Load(_ context.Context, desc inference.ModelDescriptor) (inference.NativeHandle, error) {
	if desc.Location == "" {
		return nil, errors.New(errors.KindBadRequest, "remote_api descriptor requires a model identifier in Location")
	}
	apiKey := desc.Config["api_key"]
	if apiKey == "" {
		apiKey = os.Getenv(desc.Config["api_key_env"])
	}
	if apiKey == "" {
		return nil, errors.New(errors.KindBadRequest, "remote_api descriptor requires api_key or a resolvable api_key_env")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if base := desc.Config["base_url"]; base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}

	return &handle{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(desc.Location),
	}, nil
}

func (b *Backend) Invoke(ctx context.Context, h inference.NativeHandle, req inference.InferenceRequest) (inference.InferenceResult, error) {
	hd, ok := h.(*handle)
	if !ok {
		return inference.InferenceResult{}, errors.New(errors.KindInternal, "remote_api: wrong handle type")
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     hd.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemText != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemText}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	msg, err := hd.client.Messages.New(ctx, params)
	if err != nil {
		return inference.InferenceResult{}, errors.Wrap(errors.KindInternal, "remote_api completion failed", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return inference.InferenceResult{
		Status: inference.ResultOK,
		Text:   text.String(),
	}, nil
}

func (b *Backend) Unload(h inference.NativeHandle) {
	// The SDK client holds no per-model resources beyond the handle itself.
}
