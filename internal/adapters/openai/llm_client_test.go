package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCompleter struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (f *fakeCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

func reply(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		ID: "chatcmpl-1",
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
		},
	}
}

func newTestClient(fake *fakeCompleter) *OpenAIClient {
	return &OpenAIClient{
		client:      fake,
		modelName:   "gpt-test",
		maxTokens:   500,
		temperature: 0.1,
		topP:        0.9,
		logger:      zap.NewNop(),
	}
}

func TestAnalyzeEmail_BuildsRequest(t *testing.T) {
	fake := &fakeCompleter{resp: reply(`{"phishing_score": 12, "classification": "legit", "reasoning": "newsletter"}`)}
	client := newTestClient(fake)

	subject := "Weekly digest"
	result, err := client.AnalyzeEmail(context.Background(), &core.EmailRecord{Subject: &subject, Links: []string{}})
	require.NoError(t, err)

	assert.Equal(t, "gpt-test", fake.req.Model)
	assert.Equal(t, 500, fake.req.MaxTokens)
	require.Len(t, fake.req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, fake.req.Messages[0].Role)
	assert.Contains(t, fake.req.Messages[1].Content, `"subject": "Weekly digest"`)
	require.NotNil(t, fake.req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, fake.req.ResponseFormat.Type)

	require.True(t, result.IsStructured())
	assert.Equal(t, 12, result.Verdict.Score)
	assert.Equal(t, core.ClassificationLegit, result.Verdict.Classification)
	assert.Equal(t, "gpt-test", result.ModelUsed)
}

func TestAnalyzeEmail_FencedResponseIsUpgraded(t *testing.T) {
	fake := &fakeCompleter{resp: reply("Here you go:\n```json\n{\"phishing_score\": 75, \"classification\": \"phishing\", \"reasoning\": \"urgent\"}\n```")}

	result, err := newTestClient(fake).AnalyzeEmail(context.Background(), &core.EmailRecord{})
	require.NoError(t, err)
	require.True(t, result.IsStructured())
	assert.Equal(t, 75, result.Verdict.Score)
}

func TestAnalyzeEmail_Errors(t *testing.T) {
	boom := errors.New("rate limited")
	_, err := newTestClient(&fakeCompleter{err: boom}).AnalyzeEmail(context.Background(), &core.EmailRecord{})
	assert.ErrorIs(t, err, boom)

	_, err = newTestClient(&fakeCompleter{}).AnalyzeEmail(context.Background(), &core.EmailRecord{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient("", "gpt-test", 100, 0.1, 0.9, 0, nil)
	assert.Error(t, err)
}
