package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoker struct {
	input *bedrockruntime.InvokeModelInput
	body  string
	err   error
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func TestAnalyzeEmail_Anthropic(t *testing.T) {
	fake := &fakeInvoker{body: `{"content":[{"type":"text","text":"{\"phishing_score\": 64, \"classification\": \"uncertain\", \"reasoning\": \"odd link\"}"}]}`}
	client := newClient(fake, "anthropic.claude-3-haiku-20240307-v1:0", 800, 0.1, 0.9, 0, nil, nil)

	result, err := client.AnalyzeEmail(context.Background(), &core.EmailRecord{Body: "hello", Links: []string{}})
	require.NoError(t, err)

	require.True(t, result.IsStructured())
	assert.Equal(t, 64, result.Verdict.Score)
	assert.Equal(t, core.ClassificationUncertain, result.Verdict.Classification)
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", result.ModelUsed)

	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", aws.ToString(fake.input.ModelId))
	var req anthropicRequest
	require.NoError(t, json.Unmarshal(fake.input.Body, &req))
	assert.Equal(t, anthropicVersion, req.AnthropicVersion)
	assert.Equal(t, 800, req.MaxTokens)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, `"body": "hello"`)
}

func TestAnalyzeEmail_Titan(t *testing.T) {
	fake := &fakeInvoker{body: `{"results":[{"outputText":"Probably fine."}]}`}
	client := newClient(fake, "amazon.titan-text-express-v1", 300, 0.1, 0.9, 0, nil, nil)

	result, err := client.AnalyzeEmail(context.Background(), &core.EmailRecord{})
	require.NoError(t, err)
	assert.False(t, result.IsStructured())
	assert.Equal(t, "Probably fine.", result.RawText)

	var req map[string]interface{}
	require.NoError(t, json.Unmarshal(fake.input.Body, &req))
	assert.Contains(t, req, "inputText")
	assert.Contains(t, req, "textGenerationConfig")
}

func TestAnalyzeEmail_GenericFallsBackToRawBody(t *testing.T) {
	fake := &fakeInvoker{body: `{"phishing_score": 5, "classification": "legit", "reasoning": "ok"}`}
	client := newClient(fake, "meta.llama3", 300, 0.1, 0.9, 0, nil, nil)

	result, err := client.AnalyzeEmail(context.Background(), &core.EmailRecord{})
	require.NoError(t, err)
	require.True(t, result.IsStructured())
	assert.Equal(t, 5, result.Verdict.Score)
}

func TestAnalyzeEmail_Errors(t *testing.T) {
	boom := errors.New("throttled")
	client := newClient(&fakeInvoker{err: boom}, "anthropic.claude-v2", 100, 0, 0, 0, nil, nil)
	_, err := client.AnalyzeEmail(context.Background(), &core.EmailRecord{})
	assert.ErrorIs(t, err, boom)

	client = newClient(&fakeInvoker{body: `{"results":[]}`}, "amazon.titan-text-lite-v1", 100, 0, 0, 0, nil, nil)
	_, err = client.AnalyzeEmail(context.Background(), &core.EmailRecord{})
	assert.ErrorIs(t, err, ErrEmptyResponse)

	client = newClient(&fakeInvoker{body: `not json`}, "anthropic.claude-v2", 100, 0, 0, 0, nil, nil)
	_, err = client.AnalyzeEmail(context.Background(), &core.EmailRecord{})
	assert.Error(t, err)
}
