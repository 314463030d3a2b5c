package ai

import (
	"context"
	"errors"
	"testing"

	"learnapp/config"
	"learnapp/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	resp     *genai.GenerateContentResponse
	err      error
	calls    int
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func textResponse(text string, finish genai.FinishReason) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: text}}},
			FinishReason: finish,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     1000,
			CandidatesTokenCount: 500,
			TotalTokenCount:      1500,
		},
	}
}

func newTestGemini(f *fakeModels) *GeminiClient {
	return &GeminiClient{models: f, model: "gemini-test", logger: zerolog.Nop()}
}

func TestGemini_MissingCredentialMakesNoCall(t *testing.T) {
	c, err := NewGeminiClient(context.Background(), &configGemini, zerolog.Nop())
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), Request{BasePrompt: "x"}, nil)
	assert.True(t, IsKind(err, KindMissingCredential))
	assert.Contains(t, err.Error(), "API key")
}

func TestGemini_Success(t *testing.T) {
	f := &fakeModels{resp: textResponse(`{"spec":"S"}`, genai.FinishReasonStop)}
	c := newTestGemini(f)

	res, err := c.Generate(context.Background(), Request{
		BasePrompt:       "Build it",
		UserGuidance:     "  for kids ",
		SafetySettings:   DefaultSafetySettings(),
		ResponseMIMEType: JSONMIMEType,
		Temperature:      0.75,
	}, &models.NormalizedContent{Source: models.SourceTopic, Text: "Tides"})
	require.NoError(t, err)

	assert.Equal(t, `{"spec":"S"}`, res.RawText)
	require.NotNil(t, res.Usage)
	assert.Equal(t, models.TokenUsage{PromptTokens: 1000, OutputTokens: 500, TotalTokens: 1500}, *res.Usage)

	assert.Equal(t, "gemini-test", f.model)
	require.Len(t, f.contents, 1)
	require.Len(t, f.contents[0].Parts, 1)
	assert.Equal(t, "Build it\n\nUser Guidance: for kids", f.contents[0].Parts[0].Text)
	assert.Equal(t, JSONMIMEType, f.config.ResponseMIMEType)
	require.NotNil(t, f.config.Temperature)
	assert.InDelta(t, 0.75, *f.config.Temperature, 1e-6)
	assert.Len(t, f.config.SafetySettings, 4)
}

func TestGemini_AttachesMedia(t *testing.T) {
	f := &fakeModels{resp: textResponse("ok", genai.FinishReasonStop)}
	c := newTestGemini(f)

	_, err := c.Generate(context.Background(), Request{BasePrompt: "p", ModelName: "other"},
		&models.NormalizedContent{Source: models.SourceYouTube, URL: "https://youtu.be/abc"})
	require.NoError(t, err)
	assert.Equal(t, "other", f.model)
	require.Len(t, f.contents[0].Parts, 2)
	assert.Equal(t, "https://youtu.be/abc", f.contents[0].Parts[1].FileData.FileURI)
	assert.Equal(t, "video/mp4", f.contents[0].Parts[1].FileData.MIMEType)

	_, err = c.Generate(context.Background(), Request{BasePrompt: "p"},
		&models.NormalizedContent{Source: models.SourceAudio, MIMEType: "audio/wav", Data: []byte{1, 2}})
	require.NoError(t, err)
	require.Len(t, f.contents[0].Parts, 2)
	assert.Equal(t, "audio/wav", f.contents[0].Parts[1].InlineData.MIMEType)
	assert.Equal(t, []byte{1, 2}, f.contents[0].Parts[1].InlineData.Data)
}

func TestGemini_ResponseValidation(t *testing.T) {
	tests := []struct {
		name   string
		resp   *genai.GenerateContentResponse
		err    error
		kind   ErrorKind
		reason string
	}{
		{
			name: "prompt blocked",
			resp: &genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
			},
			kind:   KindPromptBlocked,
			reason: "SAFETY",
		},
		{
			name: "no candidates",
			resp: &genai.GenerateContentResponse{},
			kind: KindNoCandidates,
		},
		{
			name: "safety finish",
			resp: textResponse("", genai.FinishReasonSafety),
			kind: KindSafetyBlocked,
		},
		{
			name:   "max tokens",
			resp:   textResponse("partial", genai.FinishReasonMaxTokens),
			kind:   KindAbnormalStop,
			reason: "MAX_TOKENS",
		},
		{
			name: "no text",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonStop}}},
			kind: KindMalformedResponse,
		},
		{
			name: "transport",
			err:  errors.New("connection reset"),
			kind: KindTransportError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestGemini(&fakeModels{resp: tt.resp, err: tt.err})
			_, err := c.Generate(context.Background(), Request{BasePrompt: "p"}, nil)
			require.Error(t, err)

			var ge *GenerationError
			require.ErrorAs(t, err, &ge)
			assert.Equal(t, tt.kind, ge.Kind)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, ge.Reason)
				assert.Contains(t, err.Error(), tt.reason)
			}
		})
	}
}

func TestGemini_MissingUsage(t *testing.T) {
	resp := textResponse("hello", genai.FinishReasonStop)
	resp.UsageMetadata = nil
	c := newTestGemini(&fakeModels{resp: resp})

	res, err := c.Generate(context.Background(), Request{BasePrompt: "p"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", res.RawText)
	assert.Nil(t, res.Usage)
}

var configGemini = config.GeminiConfig{Model: "gemini-test"}
