package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"crypto-signal-service/internal/asset"
	"crypto-signal-service/internal/store"
)

// ==================== LLM CLIENT ====================

type Provider string

const (
	ProviderClaude   Provider = "claude"
	ProviderOpenAI   Provider = "openai"
	ProviderDeepSeek Provider = "deepseek"
)

const llmTemperature = 0.3

var (
	ErrProvider = errors.New("llm provider error")
	ErrTimeout  = errors.New("llm request timed out")
)

type Config struct {
	Provider Provider
	APIKey   string
	Model    string
	BaseURL  string

	Timeout       time.Duration
	MaxConcurrent int
	MinInterval   time.Duration
	CacheTTL      time.Duration
	MaxTokens     int
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.MinInterval <= 0 {
		c.MinInterval = time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.BaseURL == "" {
		switch c.Provider {
		case ProviderClaude:
			c.BaseURL = "https://api.anthropic.com"
		case ProviderOpenAI:
			c.BaseURL = "https://api.openai.com"
		case ProviderDeepSeek:
			c.BaseURL = "https://api.deepseek.com"
		}
	}
}

// Client posts prompts and parses responses. Concurrency policy: one
// outstanding request per user, a process-wide cap, and a minimum 1 s
// spacing between submissions. A circuit breaker sheds load when the
// provider degrades.
type Client struct {
	cfg     Config
	http    *http.Client
	log     zerolog.Logger
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	sem     chan struct{}
	cache   ResponseCache

	mu        sync.Mutex
	userLocks map[int64]*sync.Mutex
}

func NewClient(cfg Config, cache ResponseCache, logger zerolog.Logger) *Client {
	cfg.applyDefaults()
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger.With().Str("component", "llm").Str("provider", string(cfg.Provider)).Logger(),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "llm",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		limiter:   rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		sem:       make(chan struct{}, cfg.MaxConcurrent),
		cache:     cache,
		userLocks: make(map[int64]*sync.Mutex),
	}
}

// Analyze submits the prompt and returns a validated recommendation.
// Identical prompts within the cache TTL skip the provider call.
func (c *Client) Analyze(ctx context.Context, userID int64, prompt string, expected asset.Type, style store.TradingStyle) (*store.Recommendation, error) {
	key := promptKey(prompt)
	if raw, ok := c.cache.Get(ctx, key); ok {
		return c.parse(raw, expected, style)
	}

	lock := c.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	start := time.Now()
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.complete(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", ErrProvider)
		}
		return nil, err
	}
	raw := res.(string)
	c.log.Debug().Int64("user_id", userID).Dur("elapsed", time.Since(start)).Msg("llm response received")

	c.cache.Set(ctx, key, raw, c.cfg.CacheTTL)
	return c.parse(raw, expected, style)
}

func (c *Client) parse(raw string, expected asset.Type, style store.TradingStyle) (*store.Recommendation, error) {
	rec, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	ValidateAndNormalize(rec, expected, style)
	return rec, nil
}

func (c *Client) userLock(userID int64) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		c.userLocks[userID] = lock
	}
	return lock
}

// complete performs one provider round-trip and extracts the text.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := c.buildRequest(ctx, prompt)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrProvider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, truncate(string(body), 200))
	}

	return c.extractText(body)
}

func (c *Client) buildRequest(ctx context.Context, prompt string) (*http.Request, error) {
	var (
		url     string
		payload interface{}
	)
	switch c.cfg.Provider {
	case ProviderClaude:
		url = c.cfg.BaseURL + "/v1/messages"
		payload = map[string]interface{}{
			"model":       c.cfg.Model,
			"max_tokens":  c.cfg.MaxTokens,
			"temperature": llmTemperature,
			"messages": []map[string]string{
				{"role": "user", "content": prompt},
			},
		}
	case ProviderOpenAI, ProviderDeepSeek:
		url = c.cfg.BaseURL + "/v1/chat/completions"
		payload = map[string]interface{}{
			"model":       c.cfg.Model,
			"temperature": llmTemperature,
			"messages": []map[string]string{
				{"role": "user", "content": prompt},
			},
		}
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrProvider, c.cfg.Provider)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Provider == ProviderClaude {
		req.Header.Set("x-api-key", c.cfg.APIKey)
		req.Header.Set("anthropic-version", "2023-06-01")
	} else {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	return req, nil
}

func (c *Client) extractText(body []byte) (string, error) {
	if c.cfg.Provider == ProviderClaude {
		var parsed struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Content) == 0 {
			return "", fmt.Errorf("%w: unexpected response shape", ErrProvider)
		}
		return parsed.Content[0].Text, nil
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: unexpected response shape", ErrProvider)
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
