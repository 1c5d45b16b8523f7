package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nexus-research/nexus/pkg/config"
)

const defaultOpenAIModel = "gpt-4o"

// chatClient is the subset of the go-openai client the adapter uses.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient implements Client on the OpenAI Chat Completions API.
type OpenAIClient struct {
	chat        chatClient
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAI builds an OpenAI-backed client from a provider entry.
func NewOpenAI(apiKey string, cfg config.LLMProviderConfig) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return newOpenAI(openai.NewClientWithConfig(clientCfg), cfg), nil
}

func newOpenAI(chat chatClient, cfg config.LLMProviderConfig) *OpenAIClient {
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIClient{
		chat:        chat,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// Complete issues one chat completion and returns the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	request := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(effectiveTemperature(req.Temperature, c.temperature)),
	}

	resp, err := c.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, wrapOpenAIErr(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ErrEmptyCompletion
	}
	return &Response{
		Text: resp.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// wrapOpenAIErr maps go-openai errors onto the package sentinels.
func wrapOpenAIErr(err error) error {
	var apierr *openai.APIError
	if errors.As(err, &apierr) {
		if apierr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return fmt.Errorf("%w: %w", ErrProvider, err)
	}
	return fmt.Errorf("openai chat completion: %w", err)
}
