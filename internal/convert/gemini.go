package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel    = "gemini-1.5-flash-latest"

	defaultGeminiTimeout    = 2 * time.Minute
	defaultGeminiMaxRetries = 3
	maxErrorBody            = 4 << 10
)

// retryBaseDelay is the first backoff after an HTTP 429. Tests shrink it.
var retryBaseDelay = 2 * time.Second

// GeminiConfig configures GeminiGenerator.
type GeminiConfig struct {
	Endpoint   string
	Model      string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	// MaxRPS throttles outbound calls; zero disables throttling.
	MaxRPS float64
	Burst  int
	Prompt Prompt
}

// GeminiGenerator calls the Gemini generateContent REST endpoint.
type GeminiGenerator struct {
	client     *http.Client
	url        string
	apiKey     string
	maxRetries int
	limiter    *rate.Limiter
	prompt     Prompt
	logger     zerolog.Logger
}

// NewGeminiGenerator validates cfg and builds a generator.
func NewGeminiGenerator(cfg GeminiConfig, logger zerolog.Logger) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGeminiEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultGeminiTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultGeminiMaxRetries
	}
	if cfg.Prompt.template == "" {
		cfg.Prompt = DefaultPrompt()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.MaxRPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), burst)
	}

	return &GeminiGenerator{
		client:     &http.Client{Timeout: cfg.Timeout},
		url:        fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(cfg.Endpoint, "/"), cfg.Model),
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		limiter:    limiter,
		prompt:     cfg.Prompt,
		logger:     logger.With().Str("component", "gemini").Str("model", cfg.Model).Logger(),
	}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (g *GeminiGenerator) Generate(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: g.prompt.Render(text)}}}},
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for generator slot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := g.doWithRetry(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("gemini returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked: %s", out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("gemini returned empty content (finish reason %q)", out.Candidates[0].FinishReason)
	}
	return b.String(), nil
}

// doWithRetry sends req and retries HTTP 429 with exponential backoff. After
// the last retry the 429 response is returned for the caller to report.
func (g *GeminiGenerator) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		r := req.Clone(ctx)
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body

		resp, err := g.client.Do(r)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= g.maxRetries {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		backoff := time.Duration(math.Pow(2, float64(attempt))) * retryBaseDelay
		g.logger.Warn().
			Dur("backoff", backoff).
			Int("attempt", attempt+1).
			Int("max_retries", g.maxRetries).
			Msg("generator rate limited, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}
