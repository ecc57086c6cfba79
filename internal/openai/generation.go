package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/cloo-solutions/docrag/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

const DefaultChatModel = "qwen/qwen3-8b"

// ErrEmptyAnswer is returned when the model produced no choices or only whitespace.
var ErrEmptyAnswer = errors.New("model returned an empty answer")

// ChatRequest is a single system+user exchange.
type ChatRequest struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// ChatAPI defines the interface for chat completions
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req ChatRequest) (string, error)
}

// CreateChatCompletion sends the exchange to the chat completions endpoint.
func (a *OpenAIAdapter) CreateChatCompletion(ctx context.Context, req ChatRequest) (string, error) {
	model := a.chatModel
	if model == "" {
		model = DefaultChatModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.User})

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyAnswer
	}
	return resp.Choices[0].Message.Content, nil
}

// GeneratorConfig holds the generation parameters passed through to the model.
type GeneratorConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Generator answers prompts through a chat model.
type Generator struct {
	api         ChatAPI
	model       string
	temperature float32
	maxTokens   int
}

// NewGenerator creates a generator for an OpenAI-compatible endpoint.
func NewGenerator(cfg GeneratorConfig) *Generator {
	model := cfg.Model
	if model == "" {
		model = DefaultChatModel
	}
	api := NewOpenAIAdapter(baseURLOrDefault(cfg.BaseURL), cfg.APIKey, "", model)
	return NewGeneratorWithAPI(api, model, cfg.Temperature, cfg.MaxTokens)
}

func NewGeneratorWithAPI(api ChatAPI, model string, temperature float32, maxTokens int) *Generator {
	return &Generator{api: api, model: model, temperature: temperature, maxTokens: maxTokens}
}

// ModelName is the chat model requested from the server.
func (g *Generator) ModelName() string {
	return g.model
}

// Generate returns the model's answer. Every failure is an ErrGeneration.
func (g *Generator) Generate(ctx context.Context, system, user string) (string, error) {
	answer, err := g.api.CreateChatCompletion(ctx, ChatRequest{
		System:      system,
		User:        user,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return "", domain.Wrap(domain.ErrGeneration, err)
	}
	answer = strings.TrimSpace(stripThinking(answer))
	if answer == "" {
		return "", domain.Wrap(domain.ErrGeneration, ErrEmptyAnswer)
	}
	return answer, nil
}

// stripThinking drops a leading <think>...</think> block emitted by reasoning models.
func stripThinking(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "<think>") {
		return s
	}
	if end := strings.Index(trimmed, "</think>"); end >= 0 {
		return trimmed[end+len("</think>"):]
	}
	return s
}
