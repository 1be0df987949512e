package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"alpha-chat-go/internal/config"
	"alpha-chat-go/internal/model"
	"alpha-chat-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubUserService implements the parts of service.UserService the middleware touches.
type stubUserService struct {
	user    *model.User
	revoked bool
}

func (s *stubUserService) Register(ctx context.Context, username, password string) (*model.User, string, error) {
	panic("not used")
}

func (s *stubUserService) Login(ctx context.Context, username, password string) (*model.User, string, error) {
	panic("not used")
}

func (s *stubUserService) GetByID(ctx context.Context, userID uint) (*model.User, error) {
	return s.user, nil
}

func (s *stubUserService) Logout(ctx context.Context, tokenString string) error {
	return nil
}

func (s *stubUserService) IsTokenRevoked(ctx context.Context, tokenString string) (bool, error) {
	return s.revoked, nil
}

func newAuthRouter(jwtManager *token.JWTManager, users *stubUserService) *gin.Engine {
	r := gin.New()
	r.GET("/protected", AuthMiddleware(jwtManager, users), func(c *gin.Context) {
		user := c.MustGet(ContextUserKey).(*model.User)
		c.JSON(http.StatusOK, gin.H{"id": user.ID})
	})
	return r
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	jwtManager := token.NewJWTManager("test-secret", 7)
	tokenString, err := jwtManager.GenerateToken(1, "alice")
	assert.NoError(t, err)

	r := newAuthRouter(jwtManager, &stubUserService{user: &model.User{ID: 1}})
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	r := newAuthRouter(token.NewJWTManager("test-secret", 7), &stubUserService{})
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	r := newAuthRouter(token.NewJWTManager("test-secret", 7), &stubUserService{})
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_RevokedToken(t *testing.T) {
	jwtManager := token.NewJWTManager("test-secret", 7)
	tokenString, err := jwtManager.GenerateToken(1, "alice")
	assert.NoError(t, err)

	r := newAuthRouter(jwtManager, &stubUserService{user: &model.User{ID: 1}, revoked: true})
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit_BurstExceeded(t *testing.T) {
	r := gin.New()
	r.GET("/ping", RateLimit(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 2}), func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
