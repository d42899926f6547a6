package jwt

import (
	"errors"
	"fmt"
	"time"

	"citizen-system/config"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// clockSkew 与签发方之间允许的时钟偏差
const clockSkew = 30 * time.Second

var (
	ErrTokenEmpty = errors.New("token is empty")
	ErrNoSubject  = errors.New("token has no subject")
)

// JWTService 会话令牌校验。
// 令牌由外部身份服务以 HS256 签发，Subject 为档案ID，必须带过期时间。
// 本服务不签发会话令牌，IssueToken 只在测试中构造令牌。
type JWTService struct {
	secretKey   []byte
	issuer      string
	expireAfter time.Duration
}

// SessionClaims 会话令牌声明
type SessionClaims struct {
	jwtv5.RegisteredClaims
}

// NewJWTService 创建 JWT 服务
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secretKey:   []byte(cfg.Secret),
		issuer:      cfg.Issuer,
		expireAfter: cfg.ExpireTime,
	}
}

// IssueToken 按身份服务的格式签发令牌
func (s *JWTService) IssueToken(profileID string) (string, error) {
	if profileID == "" {
		return "", ErrNoSubject
	}
	now := time.Now()
	claims := &SessionClaims{
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   profileID,
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(s.expireAfter)),
		},
	}
	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token failed: %w", err)
	}
	return signed, nil
}

// ValidateToken 校验签名、签发者与有效期，返回带档案ID的声明
func (s *JWTService) ValidateToken(tokenString string) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenEmpty
	}
	claims := &SessionClaims{}
	_, err := jwtv5.ParseWithClaims(tokenString, claims,
		func(*jwtv5.Token) (interface{}, error) { return s.secretKey, nil },
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithIssuer(s.issuer),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token failed: %w", err)
	}
	if claims.Subject == "" {
		return nil, ErrNoSubject
	}
	return claims, nil
}
