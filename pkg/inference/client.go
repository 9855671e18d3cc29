// Package inference calls the external extraction model. The pipeline
// treats it as an opaque function: chunk text in, structured JSON out.
// A failed or timed-out call yields no model output for that chunk; the
// pattern rules still run.
package inference

import (
	"context"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aegis-advisory/guidance-cli/internal/config"
	"github.com/aegis-advisory/guidance-cli/internal/model"
)

// Client produces model extraction JSON for one chunk.
type Client interface {
	Extract(ctx context.Context, chunk model.Chunk) (string, error)
}

const systemPrompt = `You are a physical-security analyst reviewing guidance documents.
For the provided passage, extract security vulnerabilities and options for consideration (OFCs).
Respond with JSON only, in the form:
{"extractions": [{"vulnerability": "...", "options_for_consideration": ["..."], "discipline": "...", "sector": "...", "subsector": "...", "confidence_score": 0.0, "source": "...", "page_ref": "..."}]}
Return {"extractions": []} when the passage contains no security guidance.`

// AnthropicClient implements Client on the official SDK, with client-side
// rate limiting and a per-call timeout.
type AnthropicClient struct {
	client  sdk.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
}

func NewAnthropic(cfg config.InferenceConfig) *AnthropicClient {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 2
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AnthropicClient{
		client:  sdk.NewClient(option.WithAPIKey(cfg.Key)),
		model:   cfg.Model,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (c *AnthropicClient) Extract(ctx context.Context, chunk model.Chunk) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "inference: rate limit wait")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: 4096,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(chunk.Text)),
		},
	})
	if err != nil {
		return "", eris.Wrapf(err, "inference: extract chunk %s", chunk.ID)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	zap.L().Debug("inference: chunk extracted",
		zap.String("chunk", chunk.ID),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)
	return text, nil
}
