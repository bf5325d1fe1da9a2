package decision

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"wallet-copy-watcher/internal/domain"
)

const defaultSystemPrompt = `You review Solana token trades made by a wallet the user copies.
Consider the token, its price and the trade direction.
Answer with exactly one word on the first line: COPY or PASS.
You may add a one-sentence reason on the second line.`

// LLMConfig configures LLMEngine.
type LLMConfig struct {
	BaseURL      string // OpenAI-compatible base, e.g. https://api.openai.com/v1
	APIKey       string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
}

// LLMEngine asks an OpenAI-compatible chat completion endpoint for a verdict.
type LLMEngine struct {
	client *resty.Client
	cfg    LLMConfig
}

// NewLLMEngine creates an LLM engine.
func NewLLMEngine(cfg LLMConfig) *LLMEngine {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	base = strings.TrimSuffix(base, "/chat/completions")

	client := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &LLMEngine{client: client, cfg: cfg}
}

// Name implements Engine.
func (e *LLMEngine) Name() string { return "llm" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// Evaluate implements Engine.
func (e *LLMEngine) Evaluate(ctx context.Context, event domain.EnrichedTradeEvent) (Evaluation, error) {
	trade, err := json.Marshal(event)
	if err != nil {
		return Evaluation{}, errors.Wrap(err, "marshal trade")
	}

	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: e.cfg.Model,
			Messages: []chatMessage{
				{Role: "system", Content: e.cfg.SystemPrompt},
				{Role: "user", Content: string(trade)},
			},
		}).
		Post("/chat/completions")
	if err != nil {
		return Evaluation{}, errors.Wrap(err, "chat completion")
	}
	if !resp.IsSuccess() {
		msg := gjson.GetBytes(resp.Body(), "error.message").String()
		if msg == "" {
			msg = resp.Status()
		}
		return Evaluation{}, errors.Errorf("chat completion: status=%d: %s", resp.StatusCode(), msg)
	}

	content := gjson.GetBytes(resp.Body(), "choices.0.message.content")
	if !content.Exists() {
		return Evaluation{}, errors.New("chat completion: empty choices")
	}

	return parseLLMAnswer(content.String())
}

// parseLLMAnswer reads the verdict word from the first line and the reason from the rest.
func parseLLMAnswer(text string) (Evaluation, error) {
	text = strings.TrimSpace(text)
	first, rest, _ := strings.Cut(text, "\n")

	fields := strings.Fields(first)
	if len(fields) == 0 {
		return Evaluation{}, errors.New("chat completion: blank answer")
	}

	verdict, ok := ParseVerdict(fields[0])
	if !ok {
		return Evaluation{}, errors.Errorf("chat completion: unrecognized answer %q", truncate(first, 80))
	}

	return Evaluation{Verdict: verdict, Reason: strings.TrimSpace(rest)}, nil
}
