package jwt

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

const (
	// SignatureHeader 队列推送请求携带签名的请求头
	SignatureHeader = "X-Queue-Signature"

	queueIssuer    = "citizen-queue"
	signatureValid = 5 * time.Minute
)

var ErrBodyMismatch = errors.New("请求体与签名不匹配")

// QueueClaims 推送签名声明，body 为请求体 SHA-256 的 base64url 编码
type QueueClaims struct {
	Body string `json:"body"`
	jwtv5.RegisteredClaims
}

// QueueSigner 队列推送签名：签名绑定到请求体哈希，防止伪造或篡改任务
type QueueSigner struct {
	key []byte
}

// NewQueueSigner 创建签名器
func NewQueueSigner(key string) *QueueSigner {
	return &QueueSigner{key: []byte(key)}
}

func bodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Sign 为请求体签名
func (s *QueueSigner) Sign(body []byte) (string, error) {
	now := time.Now()
	claims := &QueueClaims{
		Body: bodyHash(body),
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    queueIssuer,
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(signatureValid)),
		},
	}
	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign queue message failed: %w", err)
	}
	return signed, nil
}

// Verify 校验签名及请求体哈希
func (s *QueueSigner) Verify(token string, body []byte) error {
	if token == "" {
		return errors.New("signature is empty")
	}
	claims := &QueueClaims{}
	_, err := jwtv5.ParseWithClaims(token, claims,
		func(*jwtv5.Token) (interface{}, error) { return s.key, nil },
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithIssuer(queueIssuer),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("parse signature failed: %w", err)
	}
	if claims.Body != bodyHash(body) {
		return ErrBodyMismatch
	}
	return nil
}
