package llm

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

var mockEpithets = []string{
	"Iron", "Silver", "Night", "Storm", "Ember", "Frost", "Quiet", "Bright",
	"Wild", "Ashen", "Golden", "Hollow", "Swift", "Lone", "True", "Grey",
}

// MockNicknames 本地开发用：用原型名拼出昵称，并跳过排除集
type MockNicknames struct{}

func (MockNicknames) GenerateNicknameCandidates(_ context.Context, req NicknameRequest) ([]string, error) {
	count := req.Count
	if count <= 0 {
		count = 10
	}
	base := req.Archetype
	if base == "" {
		base = "Citizen"
	}
	out := make([]string, 0, count)
	for i := 0; len(out) < count && i < len(mockEpithets)*4; i++ {
		name := mockEpithets[i%len(mockEpithets)] + base
		if i >= len(mockEpithets) {
			name = fmt.Sprintf("%s%d", name, i/len(mockEpithets))
		}
		if slices.Contains(req.Exclude, name) {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// MockScorer 本地开发用：命中词表判为严重违规，否则无害
type MockScorer struct {
	Blocklist []string
}

// NewMockScorer 创建带默认词表的模拟评分器
func NewMockScorer() *MockScorer {
	return &MockScorer{Blocklist: []string{"idiot", "scam", "kill yourself", "spam"}}
}

func (m *MockScorer) ScoreText(_ context.Context, text string) (Score, error) {
	lower := strings.ToLower(text)
	for _, w := range m.Blocklist {
		if strings.Contains(lower, w) {
			raw := fmt.Sprintf(`{"score":9,"reason":"contains %q"}`, w)
			return Score{Value: 9, Reason: "contains " + w, Raw: raw}, nil
		}
	}
	return Score{Value: 1, Reason: "clean", Raw: `{"score":1,"reason":"clean"}`}, nil
}
