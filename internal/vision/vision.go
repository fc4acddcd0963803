// Package vision extracts transaction drafts from captured receipts and
// statements using the Gemini vision API.
package vision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/capture"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/common"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/session"
)

const defaultModel = "gemini-2.5-pro"

// Gemini implements session.Analyzer against the Gemini API.
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	limiter *rateLimiter
	retry   common.RetryOptions
}

// Option configures a Gemini analyzer.
type Option func(*Gemini)

// WithRetryOptions overrides the default retry policy.
func WithRetryOptions(opts common.RetryOptions) Option {
	return func(g *Gemini) { g.retry = opts }
}

// WithRequestsPerMinute replaces the default request budget. Batch scans
// run several workers against the same analyzer, so the limiter is shared.
func WithRequestsPerMinute(rpm int) Option {
	return func(g *Gemini) {
		g.limiter.Close()
		g.limiter = newRateLimiter(rpm)
	}
}

// NewGemini creates a Gemini analyzer.
func NewGemini(ctx context.Context, apiKey, modelName string, opts ...Option) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key", common.ErrMissingConfig)
	}
	if modelName == "" {
		modelName = defaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	g := &Gemini{
		client:  client,
		model:   client.GenerativeModel(modelName),
		limiter: newRateLimiter(60),
		retry: common.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Second,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Analyze extracts a single transaction draft from a receipt image.
func (g *Gemini) Analyze(ctx context.Context, img capture.Image, hints session.Hints) (model.TransactionDraft, error) {
	text, err := g.generate(ctx, img, receiptPrompt(hints))
	if err != nil {
		return model.TransactionDraft{}, err
	}

	draft, err := parseDraft(text, hints)
	if err != nil {
		return model.TransactionDraft{}, fmt.Errorf("%w: %v", common.ErrAnalysisFailed, err)
	}
	return draft, nil
}

// AnalyzeStatement extracts every readable purchase from a photographed or
// exported statement page.
func (g *Gemini) AnalyzeStatement(ctx context.Context, img capture.Image, hints session.Hints) ([]model.TransactionDraft, error) {
	text, err := g.generate(ctx, img, statementPrompt(hints))
	if err != nil {
		return nil, err
	}

	drafts, err := parseStatementDrafts(text, hints)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrAnalysisFailed, err)
	}
	return drafts, nil
}

func (g *Gemini) generate(ctx context.Context, img capture.Image, prompt string) (string, error) {
	if len(img.Data) == 0 {
		return "", fmt.Errorf("%w: image has no data", common.ErrAnalysisFailed)
	}

	if err := g.limiter.wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit error: %w", err)
	}

	var out string
	err := common.WithRetry(ctx, func() error {
		// The capture loader normalizes everything to PNG, so the format
		// suffix is always "png".
		resp, err := g.model.GenerateContent(ctx,
			genai.ImageData("png", img.Data),
			genai.Text(prompt))
		if err != nil {
			slog.Warn("vision request failed", "error", err, "source", img.SourcePath)
			return &common.RetryableError{Err: err, Retryable: true}
		}

		text := responseText(resp)
		if text == "" {
			return &common.RetryableError{Err: common.ErrEmptyResponse, Retryable: true}
		}
		out = text
		return nil
	}, g.retry)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}
	return out, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String())
}

// Close releases the API client and stops the limiter.
func (g *Gemini) Close() error {
	g.limiter.Close()
	return g.client.Close()
}
