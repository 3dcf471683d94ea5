package oracle

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeflow/internal/domain"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 2
	defaultRetryDelay = 2 * time.Second
	defaultMaxTokens  = 4000
)

// LLMConfig settings of an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	// APIURL full URL of the chat completions endpoint.
	APIURL     string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// LLM oracle backed by an OpenAI-compatible chat API.
type LLM struct {
	cfg    LLMConfig
	client *resty.Client
	logger *zap.Logger
}

// NewLLM creates an LLM oracle. Transport errors, 429 and 5xx responses are retried.
func NewLLM(cfg LLMConfig, logger *zap.Logger) *LLM {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryDelay).
		SetRetryMaxWaitTime(cfg.RetryDelay).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})

	return &LLM{cfg: cfg, client: client, logger: logger.With(zap.String("component", "oracle_llm"))}
}

// Name returns the model name.
func (l *LLM) Name() string {
	return "llm:" + l.cfg.Model
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// Evaluate asks the model for a verdict on the asset.
func (l *LLM) Evaluate(ctx context.Context, ac AssetContext) (domain.OracleVerdict, error) {
	if l.cfg.APIKey == "" {
		return domain.OracleVerdict{}, errors.New("LLM API key is empty")
	}

	content, err := l.complete(ctx, chatRequest{
		Model: l.cfg.Model,
		Messages: []message{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: BuildUserPrompt(ac)},
		},
		// deterministic responses for trading decisions
		Temperature: 0,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return domain.OracleVerdict{}, err
	}

	verdict, err := domain.ParseVerdict(content)
	if err != nil {
		l.logger.Warn("unparseable verdict", zap.String("asset", ac.Asset.Symbol), zap.String("response", content), zap.Error(err))
		return domain.OracleVerdict{}, err
	}
	return verdict, nil
}

func (l *LLM) complete(ctx context.Context, req chatRequest) (string, error) {
	var out chatResponse
	resp, err := l.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post(l.cfg.APIURL)
	if err != nil {
		return "", errors.Wrap(err, "LLM request failed")
	}

	if resp.IsError() {
		if out.Error != nil {
			return "", fmt.Errorf("LLM API returned status %d: %s (type: %s)", resp.StatusCode(), out.Error.Message, out.Error.Type)
		}
		return "", fmt.Errorf("LLM API returned status %d: %s", resp.StatusCode(), resp.String())
	}
	if out.Error != nil {
		return "", fmt.Errorf("LLM API error: %s (type: %s)", out.Error.Message, out.Error.Type)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("LLM API returned no choices")
	}

	l.logger.Debug("LLM response received",
		zap.Int("tokens", out.Usage.TotalTokens),
		zap.String("finish_reason", out.Choices[0].FinishReason),
	)
	return out.Choices[0].Message.Content, nil
}
