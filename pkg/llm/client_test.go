package llm

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus/pkg/config"
)

type fakeMessages struct {
	gotParams sdk.MessageNewParams
	msg       *sdk.Message
	err       error
}

func (f *fakeMessages) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	f.gotParams = body
	return f.msg, f.err
}

func TestAnthropic_CompleteConcatenatesTextBlocks(t *testing.T) {
	fake := &fakeMessages{
		msg: &sdk.Message{
			Content: []sdk.ContentBlockUnion{
				{Type: "text", Text: "part one "},
				{Type: "tool_use"},
				{Type: "text", Text: "part two"},
			},
			Usage: sdk.Usage{InputTokens: 10, OutputTokens: 4},
		},
	}
	c := newAnthropic(fake, config.LLMProviderConfig{Model: "claude-test", MaxTokens: 128})

	resp, err := c.Complete(context.Background(), Request{System: "sys", Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "part one part two", resp.Text)
	assert.Equal(t, 10, resp.Usage.InputTokens)
	assert.Equal(t, 4, resp.Usage.OutputTokens)

	assert.Equal(t, sdk.Model("claude-test"), fake.gotParams.Model)
	assert.Equal(t, int64(128), fake.gotParams.MaxTokens)
	require.Len(t, fake.gotParams.System, 1)
	assert.Equal(t, "sys", fake.gotParams.System[0].Text)
}

func TestAnthropic_EmptyCompletion(t *testing.T) {
	fake := &fakeMessages{msg: &sdk.Message{}}
	c := newAnthropic(fake, config.LLMProviderConfig{})

	_, err := c.Complete(context.Background(), Request{Prompt: "hello"})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestAnthropic_RequestOverridesDefaults(t *testing.T) {
	fake := &fakeMessages{msg: &sdk.Message{Content: []sdk.ContentBlockUnion{{Type: "text", Text: "ok"}}}}
	c := newAnthropic(fake, config.LLMProviderConfig{MaxTokens: 100, Temperature: 0.2})

	_, err := c.Complete(context.Background(), Request{Prompt: "hi", MaxTokens: 50, Temperature: 0.9})
	require.NoError(t, err)
	assert.Equal(t, int64(50), fake.gotParams.MaxTokens)
	assert.Equal(t, 0.9, fake.gotParams.Temperature.Value)
}

type fakeChat struct {
	gotRequest openai.ChatCompletionRequest
	resp       openai.ChatCompletionResponse
	err        error
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.gotRequest = request
	return f.resp, f.err
}

func TestOpenAI_CompleteReturnsFirstChoice(t *testing.T) {
	fake := &fakeChat{
		resp: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "answer"}},
			},
			Usage: openai.Usage{PromptTokens: 7, CompletionTokens: 3},
		},
	}
	c := newOpenAI(fake, config.LLMProviderConfig{Model: "gpt-test"})

	resp, err := c.Complete(context.Background(), Request{System: "sys", Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Text)
	assert.Equal(t, 7, resp.Usage.InputTokens)

	require.Len(t, fake.gotRequest.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, fake.gotRequest.Messages[0].Role)
	assert.Equal(t, "gpt-test", fake.gotRequest.Model)
}

func TestOpenAI_RateLimitedMapsToSentinel(t *testing.T) {
	fake := &fakeChat{err: &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}}
	c := newOpenAI(fake, config.LLMProviderConfig{})

	_, err := c.Complete(context.Background(), Request{Prompt: "hello"})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestOpenAI_ProviderErrorMapsToSentinel(t *testing.T) {
	fake := &fakeChat{err: &openai.APIError{HTTPStatusCode: 500, Message: "boom"}}
	c := newOpenAI(fake, config.LLMProviderConfig{})

	_, err := c.Complete(context.Background(), Request{Prompt: "hello"})
	assert.ErrorIs(t, err, ErrProvider)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

func TestScripted_MatchOrderAndFallthrough(t *testing.T) {
	s := NewScripted().
		Reply("decompose", `{"title":"t"}`).
		Fail("explode", errors.New("scripted failure"))
	s.Default = "default text"

	resp, err := s.Complete(context.Background(), Request{Prompt: "please decompose this"})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"t"}`, resp.Text)

	_, err = s.Complete(context.Background(), Request{Prompt: "explode now"})
	assert.EqualError(t, err, "scripted failure")

	resp, err = s.Complete(context.Background(), Request{Prompt: "anything else"})
	require.NoError(t, err)
	assert.Equal(t, "default text", resp.Text)

	assert.Len(t, s.Calls(), 3)
}

func TestNewFromConfig_MissingKeyEnv(t *testing.T) {
	_, err := NewFromConfig(config.LLMProviderConfig{
		Type:      config.LLMProviderAnthropic,
		APIKeyEnv: "NEXUS_TEST_UNSET_KEY",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NEXUS_TEST_UNSET_KEY")
}
