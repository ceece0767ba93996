// Package genai provides GenAI-enhanced operations using the OpenAI API.
//
// It wraps chat completions behind a small interface so the turn engine's
// handlers can be tested without network access.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/studypal/studypal/internal/models"
)

// ErrNoChoicesReturned indicates the completion API returned an empty choice list.
var ErrNoChoicesReturned = errors.New("no choices returned")

// Generator is the text-generation capability consumed by handlers.
type Generator interface {
	// GeneratePrompt produces a single completion from a system and user prompt.
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// GenerateWithMessages produces a completion from a system prompt plus the
	// conversation log, preserving roles so the model sees the full exchange.
	GenerateWithMessages(ctx context.Context, systemPrompt string, history []models.Message) (string, error)
}

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// openaiChatAdapter adapts the real OpenAI client to chatService.
type openaiChatAdapter struct {
	client openai.Client
}

func (a *openaiChatAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option defines a configuration option for client construction.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel overrides the chat model used for completions.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat  chatService
	model openai.ChatModel
}

// NewClient initializes a GenAI client. The API key comes from options or the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("GenAI NewClient invoked", "api_key_set", cfg.APIKey != "", "model", cfg.Model)

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		slog.Error("GenAI NewClient: API key not provided")
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}

	cli := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{chat: &openaiChatAdapter{client: cli}, model: model}, nil
}

// GeneratePrompt generates a response based on the provided system and user prompts.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	slog.Debug("GenAI GeneratePrompt invoked", "system_len", len(systemPrompt), "user_len", len(userPrompt))
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	}
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("GenAI GeneratePrompt API error", "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		slog.Error("GenAI GeneratePrompt: no choices returned")
		return "", ErrNoChoicesReturned
	}
	result := resp.Choices[0].Message.Content
	slog.Debug("GenAI GeneratePrompt succeeded", "result_len", len(result))
	return result, nil
}

// GenerateWithMessages generates a response from the system prompt and the
// conversation log, mapping stored roles onto chat roles.
func (c *Client) GenerateWithMessages(ctx context.Context, systemPrompt string, history []models.Message) (string, error) {
	slog.Debug("GenAI GenerateWithMessages invoked", "history_len", len(history))
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	msgs = append(msgs, openai.SystemMessage(systemPrompt))
	for _, m := range history {
		switch m.Role {
		case models.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Text))
		default:
			msgs = append(msgs, openai.UserMessage(m.Text))
		}
	}
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: msgs,
	}
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("GenAI GenerateWithMessages API error", "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		slog.Error("GenAI GenerateWithMessages: no choices returned")
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}
