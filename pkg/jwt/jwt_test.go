package jwt

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"citizen-system/config"

	"github.com/gin-gonic/gin"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newService() *JWTService {
	return NewJWTService(config.JWTConfig{Secret: "test-secret-0123456789", Issuer: "citizen", ExpireTime: time.Hour})
}

func TestValidateToken(t *testing.T) {
	s := newService()
	token, err := s.IssueToken("profile-1")
	require.NoError(t, err)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "profile-1", claims.Subject)

	other := NewJWTService(config.JWTConfig{Secret: "another-secret", Issuer: "citizen", ExpireTime: time.Hour})
	_, err = other.ValidateToken(token)
	assert.Error(t, err)

	_, err = s.ValidateToken("")
	assert.ErrorIs(t, err, ErrTokenEmpty)
	_, err = s.IssueToken("")
	assert.ErrorIs(t, err, ErrNoSubject)
}

func TestValidateToken_RejectsExpiredAndSubjectless(t *testing.T) {
	s := newService()

	expired := NewJWTService(config.JWTConfig{Secret: "test-secret-0123456789", Issuer: "citizen", ExpireTime: -time.Hour})
	token, err := expired.IssueToken("profile-1")
	require.NoError(t, err)
	_, err = s.ValidateToken(token)
	assert.ErrorIs(t, err, jwtv5.ErrTokenExpired)

	// 没有 exp 的令牌
	noExp, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.RegisteredClaims{Issuer: "citizen", Subject: "profile-1"}).
		SignedString([]byte("test-secret-0123456789"))
	require.NoError(t, err)
	_, err = s.ValidateToken(noExp)
	assert.Error(t, err)

	anonymous, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.RegisteredClaims{
		Issuer:    "citizen",
		ExpiresAt: jwtv5.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret-0123456789"))
	require.NoError(t, err)
	_, err = s.ValidateToken(anonymous)
	assert.ErrorIs(t, err, ErrNoSubject)
}

func TestAuthMiddleware(t *testing.T) {
	s := newService()
	r := gin.New()
	r.GET("/me", s.AuthMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, GetUserID(c))
	})

	token, _ := s.IssueToken("profile-1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, "profile-1", w.Body.String())

	// 短令牌不能导致 panic
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer abc")
	r.ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), `"code":401`)
}

func TestQueueSigner(t *testing.T) {
	signer := NewQueueSigner("queue-key")
	body := []byte(`{"profileId":"p1"}`)

	sig, err := signer.Sign(body)
	require.NoError(t, err)

	assert.NoError(t, signer.Verify(sig, body))
	assert.ErrorIs(t, signer.Verify(sig, []byte(`{"profileId":"p2"}`)), ErrBodyMismatch)
	assert.Error(t, NewQueueSigner("wrong").Verify(sig, body))
	assert.Error(t, signer.Verify("", body))
}

func TestSignatureMiddleware_RestoresBody(t *testing.T) {
	signer := NewQueueSigner("queue-key")
	r := gin.New()
	r.POST("/jobs", SignatureMiddleware(signer), func(c *gin.Context) {
		var in struct {
			ProfileID string `json:"profileId"`
		}
		require.NoError(t, c.ShouldBindJSON(&in))
		c.String(http.StatusAccepted, in.ProfileID)
	})

	body := `{"profileId":"p1"}`
	sig, _ := signer.Sign([]byte(body))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
	req.Header.Set(SignatureHeader, sig)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "p1", w.Body.String())

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{"profileId":"p2"}`))
	req.Header.Set(SignatureHeader, sig)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
