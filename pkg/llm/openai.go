package llm

import (
	"context"
	"fmt"
	"strings"

	"citizen-system/config"

	"github.com/sashabaranov/go-openai"
)

const defaultModel = openai.GPT4oMini

const nicknamePrompt = `You name members of an online community.
Reply with a JSON object {"nicknames": [...]} containing exactly %d nicknames.
Each nickname is 3-24 characters, letters, digits or underscore only, no spaces.
The member's archetype is %q and gender is %q; the attached image is their avatar.`

const scorePrompt = `You are a content moderator. Rate the user's comment for abuse, harassment,
hate, sexual content or spam on a scale of 1 (harmless) to 10 (severe).
Reply with a JSON object {"score": <integer>, "reason": "<short reason>"}.`

// OpenAI 基于 Chat Completions 的昵称生成与文本评分
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI 创建客户端，BaseURL 为空时使用官方地址
func NewOpenAI(cfg config.LLMConfig) *OpenAI {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &OpenAI{client: openai.NewClientWithConfig(c), model: model}
}

func (o *OpenAI) complete(ctx context.Context, op string, messages []openai.ChatCompletionMessage) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", &VendorError{Op: op, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &VendorError{Op: op, Err: fmt.Errorf("响应中没有choices")}
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateNicknameCandidates 以头像为参考生成一批昵称
func (o *OpenAI) GenerateNicknameCandidates(ctx context.Context, req NicknameRequest) ([]string, error) {
	count := req.Count
	if count <= 0 {
		count = 10
	}
	text := fmt.Sprintf(nicknamePrompt, count, req.Archetype, req.Gender)
	if len(req.Exclude) > 0 {
		text += "\nDo not use any of these: " + strings.Join(req.Exclude, ", ")
	}

	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: text}}
	if req.AvatarURL != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: req.AvatarURL, Detail: openai.ImageURLDetailLow},
		})
	}

	content, err := o.complete(ctx, "nickname", []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, MultiContent: parts},
	})
	if err != nil {
		return nil, err
	}
	return ParseCandidates(content)
}

// ScoreText 对评论打分
func (o *OpenAI) ScoreText(ctx context.Context, text string) (Score, error) {
	content, err := o.complete(ctx, "score", []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: scorePrompt},
		{Role: openai.ChatMessageRoleUser, Content: text},
	})
	if err != nil {
		return Score{}, err
	}
	return ParseScore(content)
}
