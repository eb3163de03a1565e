package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/interfaces"
	"golang.org/x/time/rate"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderClaude ProviderType = "claude"
)

// ContentRequest is one single-turn generation. OutputSchema, when set, asks the backend
// for JSON matching it.
type ContentRequest struct {
	Prompt            string
	Model             string
	Temperature       float32
	MaxTokens         int
	SystemInstruction string
	OutputSchema      map[string]interface{}
}

// ContentResponse is the text a backend produced for a ContentRequest
type ContentResponse struct {
	Text     string
	Provider ProviderType
	Model    string
}

// attemptRunner runs one vendor call per attempt, each with its own bounded context
type attemptRunner func(call func(ctx context.Context) error) error

// backend is one LLM vendor behind the factory.
// generate returns the response text and the model that produced it.
type backend interface {
	generate(ctx context.Context, request *ContentRequest, model string, run attemptRunner) (string, string, error)
	available(ctx context.Context) bool
	close()
}

// ProviderFactory routes generation requests to the Claude or Gemini backend by model name
type ProviderFactory struct {
	llmConfig *common.LLMConfig
	logger    arbor.ILogger
	retry     *RetryConfig
	backends  map[ProviderType]*limitedBackend
}

type limitedBackend struct {
	backend
	limiter *rate.Limiter
	timeout time.Duration
}

// NewProviderFactory creates a factory. Clients are created on first use so a missing key
// only fails the requests that need it.
func NewProviderFactory(
	geminiConfig *common.GeminiConfig,
	claudeConfig *common.ClaudeConfig,
	llmConfig *common.LLMConfig,
	kvStorage interfaces.KeyValueStorage,
	logger arbor.ILogger,
) *ProviderFactory {
	return &ProviderFactory{
		llmConfig: llmConfig,
		logger:    logger,
		retry:     NewDefaultRetryConfig(),
		backends: map[ProviderType]*limitedBackend{
			ProviderGemini: {
				backend: &geminiBackend{config: geminiConfig, kv: kvStorage, logger: logger},
				limiter: newLimiter(geminiConfig.RateLimit),
				timeout: parseDuration(geminiConfig.Timeout),
			},
			ProviderClaude: {
				backend: &claudeBackend{config: claudeConfig, kv: kvStorage},
				limiter: newLimiter(claudeConfig.RateLimit),
				timeout: parseDuration(claudeConfig.Timeout),
			},
		},
	}
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func newLimiter(interval string) *rate.Limiter {
	if d := parseDuration(interval); d > 0 {
		return rate.NewLimiter(rate.Every(d), 1)
	}
	return rate.NewLimiter(rate.Inf, 1)
}

// modelPrefixes maps the accepted "vendor/" prefixes of a model string to their provider
var modelPrefixes = []struct {
	prefix   string
	provider ProviderType
}{
	{"claude/", ProviderClaude},
	{"anthropic/", ProviderClaude},
	{"gemini/", ProviderGemini},
	{"google/", ProviderGemini},
}

// DetectProvider picks the provider for a model string such as "claude-haiku-3-5-20241022",
// "google/gemini-3-flash" or "" (the configured default)
func (f *ProviderFactory) DetectProvider(model string) ProviderType {
	lower := strings.ToLower(model)
	for _, p := range modelPrefixes {
		if strings.HasPrefix(lower, p.prefix) {
			return p.provider
		}
	}
	switch {
	case strings.HasPrefix(lower, "claude-"):
		return ProviderClaude
	case strings.HasPrefix(lower, "gemini-"):
		return ProviderGemini
	}
	return ProviderType(f.llmConfig.DefaultProvider)
}

// NormalizeModel strips a vendor prefix from model
func (f *ProviderFactory) NormalizeModel(model string) string {
	lower := strings.ToLower(model)
	for _, p := range modelPrefixes {
		if strings.HasPrefix(lower, p.prefix) {
			return model[len(p.prefix):]
		}
	}
	return model
}

func (f *ProviderFactory) backendFor(provider ProviderType) *limitedBackend {
	if b, ok := f.backends[provider]; ok {
		return b
	}
	return f.backends[ProviderGemini]
}

// Available reports whether an API key can be resolved for the default provider
func (f *ProviderFactory) Available(ctx context.Context) bool {
	return f.backendFor(ProviderType(f.llmConfig.DefaultProvider)).available(ctx)
}

// GenerateContent runs request on the provider its model selects, rate limited and retried
func (f *ProviderFactory) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	if strings.TrimSpace(request.Prompt) == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	provider := f.DetectProvider(request.Model)
	b := f.backendFor(provider)

	f.logger.Debug().
		Str("provider", string(provider)).
		Str("model", request.Model).
		Int("prompt_length", len(request.Prompt)).
		Bool("structured", len(request.OutputSchema) > 0).
		Msg("Generating content")

	text, model, err := b.generate(ctx, request, f.NormalizeModel(request.Model), func(call func(ctx context.Context) error) error {
		return f.withRetry(ctx, provider, b, call)
	})
	if err != nil {
		return nil, err
	}

	return &ContentResponse{Text: text, Provider: provider, Model: model}, nil
}

// withRetry runs call until it succeeds, retries are exhausted or ctx ends.
// Each attempt waits for the backend's limiter and is bounded by its timeout.
func (f *ProviderFactory) withRetry(ctx context.Context, provider ProviderType, b *limitedBackend, call func(ctx context.Context) error) error {
	var apiErr error
	for attempt := 0; attempt <= f.retry.MaxRetries; attempt++ {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}

		attemptCtx, cancel := b.attemptContext(ctx)
		apiErr = call(attemptCtx)
		cancel()
		if apiErr == nil {
			return nil
		}
		if attempt == f.retry.MaxRetries || ctx.Err() != nil {
			break
		}

		var hint time.Duration
		if IsRateLimitError(apiErr) {
			hint = ExtractRetryDelay(apiErr)
		}
		backoff := f.retry.CalculateBackoff(attempt, hint)

		f.logger.Warn().
			Str("provider", string(provider)).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying LLM call")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s call failed after %d retries: %w", provider, f.retry.MaxRetries, apiErr)
}

// attemptContext bounds one vendor call by the backend timeout
func (b *limitedBackend) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

// Close drops the vendor clients; they are recreated on the next request
func (f *ProviderFactory) Close() error {
	for _, b := range f.backends {
		b.close()
	}
	return nil
}
