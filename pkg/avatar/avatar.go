// Package avatar 头像生成服务客户端
package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"citizen-system/config"
)

// Generator 根据人脸照片与风格参考图生成头像候选
type Generator interface {
	GenerateAvatar(ctx context.Context, req Request) ([]string, error)
}

// Request 生成请求
type Request struct {
	SubjectID    string `json:"subjectId"`
	FaceURL      string `json:"faceUrl"`
	ReferenceURL string `json:"referenceUrl"`
	Gender       string `json:"gender"`
	Archetype    string `json:"archetype"`
}

// ErrNoCandidates 服务返回了空的候选集
var ErrNoCandidates = errors.New("avatar: 未返回任何候选头像")

// VendorError 头像服务调用失败
type VendorError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *VendorError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("avatar: 服务错误 (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("avatar: 请求失败: %v", e.Err)
}

func (e *VendorError) Unwrap() error { return e.Err }

type generateResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPGenerator 通过 HTTP 调用外部头像生成服务
type HTTPGenerator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPGenerator 创建头像生成客户端
func NewHTTPGenerator(cfg config.AvatarConfig, timeout time.Duration) *HTTPGenerator {
	return &HTTPGenerator{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// GenerateAvatar 单次调用，不在客户端内部重试
func (g *HTTPGenerator) GenerateAvatar(ctx context.Context, req Request) ([]string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("avatar: 序列化请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &VendorError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &VendorError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &VendorError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		msg := string(respBody)
		if json.Unmarshal(respBody, &e) == nil && e.Error.Message != "" {
			msg = e.Error.Message
		}
		return nil, &VendorError{StatusCode: resp.StatusCode, Message: msg}
	}

	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, &VendorError{Err: fmt.Errorf("解析响应失败: %w", err)}
	}
	urls := make([]string, 0, len(out.Images))
	for _, img := range out.Images {
		if img.URL != "" {
			urls = append(urls, img.URL)
		}
	}
	if len(urls) == 0 {
		return nil, ErrNoCandidates
	}
	return urls, nil
}
