package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// candidateKeys 模型常用的字段名
var candidateKeys = []string{"nicknames", "names", "candidates", "options"}

// ParseCandidates 把模型返回的各种形状统一为字符串列表：
// 裸数组、数字键对象 {"1": "a", "2": "b"}、命名字段 {"nicknames": [...]}，
// 以及再包一层的同类结构。
func ParseCandidates(raw string) ([]string, error) {
	var v any
	if err := json.Unmarshal([]byte(stripFence(raw)), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	out, ok := candidatesFrom(v, 2)
	if !ok {
		return nil, fmt.Errorf("%w: 不支持的结构", ErrMalformedResponse)
	}
	return out, nil
}

func candidatesFrom(v any, depth int) ([]string, bool) {
	switch t := v.(type) {
	case []any:
		return stringsOf(t), true
	case map[string]any:
		for _, k := range candidateKeys {
			if inner, ok := t[k]; ok {
				if depth == 0 {
					return nil, false
				}
				return candidatesFrom(inner, depth-1)
			}
		}
		if keys, ok := numericKeys(t); ok {
			out := make([]string, 0, len(keys))
			for _, k := range keys {
				if s, ok := t[k].(string); ok {
					out = append(out, s)
				}
			}
			return out, true
		}
		// {"result": {...}} 这类单字段包装
		if len(t) == 1 && depth > 0 {
			for _, inner := range t {
				return candidatesFrom(inner, depth-1)
			}
		}
	}
	return nil, false
}

func stringsOf(items []any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch s := it.(type) {
		case string:
			out = append(out, s)
		case map[string]any:
			// [{"name": "x"}] 形式
			for _, k := range []string{"nickname", "name", "value"} {
				if str, ok := s[k].(string); ok {
					out = append(out, str)
					break
				}
			}
		}
	}
	return out
}

func numericKeys(m map[string]any) ([]string, bool) {
	if len(m) == 0 {
		return nil, false
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		if _, err := strconv.Atoi(k); err != nil {
			return nil, false
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
	return keys, true
}

// ParseScore 解析 {"score": n, "reason": "..."}，score 允许是数字或数字字符串，结果限制在 1–10
func ParseScore(raw string) (Score, error) {
	var body struct {
		Score  json.RawMessage `json:"score"`
		Reason string          `json:"reason"`
	}
	if err := json.Unmarshal([]byte(stripFence(raw)), &body); err != nil {
		return Score{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(body.Score) == 0 {
		return Score{}, fmt.Errorf("%w: 缺少score字段", ErrMalformedResponse)
	}

	var f float64
	if err := json.Unmarshal(body.Score, &f); err != nil {
		var s string
		if err := json.Unmarshal(body.Score, &s); err != nil {
			return Score{}, fmt.Errorf("%w: score=%s", ErrMalformedResponse, body.Score)
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return Score{}, fmt.Errorf("%w: score=%q", ErrMalformedResponse, s)
		}
	}

	value := int(math.Round(f))
	value = min(max(value, 1), 10)
	return Score{Value: value, Reason: body.Reason, Raw: raw}, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
