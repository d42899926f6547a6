package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"citizen-system/config"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, content string, seen *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAI_GenerateNicknameCandidates(t *testing.T) {
	var req openai.ChatCompletionRequest
	srv := chatServer(t, `{"nicknames":{"1":"Ash","2":"Birch"}}`, &req)

	o := NewOpenAI(config.LLMConfig{APIKey: "k", BaseURL: srv.URL})
	got, err := o.GenerateNicknameCandidates(context.Background(), NicknameRequest{
		AvatarURL: "https://cdn/a.png", Archetype: "Seer", Exclude: []string{"Oak"}, Count: 2,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Ash", "Birch"}, got)
	assert.Equal(t, defaultModel, req.Model)
	require.Len(t, req.Messages, 1)
	require.Len(t, req.Messages[0].MultiContent, 2)
	assert.Contains(t, req.Messages[0].MultiContent[0].Text, "Oak")
	assert.Equal(t, "https://cdn/a.png", req.Messages[0].MultiContent[1].ImageURL.URL)
}

func TestOpenAI_ScoreText(t *testing.T) {
	srv := chatServer(t, `{"score":8,"reason":"harassment"}`, nil)

	s, err := NewOpenAI(config.LLMConfig{APIKey: "k", BaseURL: srv.URL}).ScoreText(context.Background(), "you are an idiot")
	require.NoError(t, err)
	assert.Equal(t, 8, s.Value)
}

func TestOpenAI_VendorFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"down","type":"server_error"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI(config.LLMConfig{APIKey: "k", BaseURL: srv.URL}).ScoreText(context.Background(), "hi")
	var vErr *VendorError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "score", vErr.Op)
}

func TestMockNicknames_HonoursExclusions(t *testing.T) {
	got, err := MockNicknames{}.GenerateNicknameCandidates(context.Background(), NicknameRequest{
		Archetype: "Seer", Exclude: []string{"IronSeer"}, Count: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"SilverSeer", "NightSeer", "StormSeer"}, got)
}
