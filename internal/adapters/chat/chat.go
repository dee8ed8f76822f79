// Package chat executes confirmed actions by sending their prompt to a
// chat-completion model.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/okian/bci/pkg/logger"
	"github.com/okian/bci/pkg/metrics"
)

// Defaults for the OpenAI connector.
const (
	DefaultModel        = "gpt-4o"
	DefaultMaxTokens    = 200
	DefaultSystemPrompt = "You are an assistant controlled by a brain-computer interface. Answer concisely."
	defaultMaxTurns     = 20
)

// Completer answers a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Demo echoes prompts without calling any service.
type Demo struct{}

// Complete returns a canned reply naming the prompt.
func (Demo) Complete(_ context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	metrics.RecordChatRequest("demo", 0)
	return fmt.Sprintf("[DEMO] Response to: '%s'", prompt), nil
}

// Config configures the OpenAI connector.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	SystemPrompt string
	Timeout      time.Duration
	// MaxTurns bounds how many prompt/answer pairs are replayed as context.
	MaxTurns int
}

// OpenAI keeps a running conversation with a chat-completion model.
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int64
	system    string
	timeout   time.Duration
	maxTurns  int
	logger    logger.Logger

	mu      sync.Mutex
	history []openai.ChatCompletionMessageParamUnion
}

// NewOpenAI builds a connector from cfg, filling unset fields with defaults.
func NewOpenAI(cfg Config, extra ...option.RequestOption) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)

	c := &OpenAI{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
		system:    cfg.SystemPrompt,
		timeout:   cfg.Timeout,
		maxTurns:  cfg.MaxTurns,
		logger:    logger.Get().Named("chat"),
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	if c.system == "" {
		c.system = DefaultSystemPrompt
	}
	if c.maxTurns <= 0 {
		c.maxTurns = defaultMaxTurns
	}
	return c
}

// Complete sends prompt with the conversation so far and records the answer.
func (c *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(c.history)+2)
	messages = append(messages, openai.SystemMessage(c.system))
	messages = append(messages, c.history...)
	messages = append(messages, openai.UserMessage(prompt))

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(c.model),
		Messages:  messages,
		MaxTokens: openai.Int(c.maxTokens),
	})
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordChatRequest("error", elapsed.Seconds())
		metrics.RecordErrorByComponent("chat", "request_failed")
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		metrics.RecordChatRequest("empty", elapsed.Seconds())
		return "", ErrNoChoices
	}
	metrics.RecordChatRequest("ok", elapsed.Seconds())

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.history = append(c.history, openai.UserMessage(prompt), openai.AssistantMessage(answer))
	if over := len(c.history) - 2*c.maxTurns; over > 0 {
		c.history = append(c.history[:0:0], c.history[over:]...)
	}

	c.logger.Debug(ctx, "chat completion",
		logger.String("model", c.model),
		logger.Duration("elapsed", elapsed),
		logger.Int("answer_len", len(answer)))
	return answer, nil
}

// Turns returns the number of completed prompt/answer pairs kept as context.
func (c *OpenAI) Turns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history) / 2
}

// Reset forgets the conversation.
func (c *OpenAI) Reset() {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
}

// New returns the OpenAI connector when an API key is configured and the
// demo connector otherwise.
func New(cfg Config) Completer {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Demo{}
	}
	return NewOpenAI(cfg)
}
