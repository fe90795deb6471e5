package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"ledger-api/internal/models"
)

type MockRoleRepository struct {
	mock.Mock
}

func (m *MockRoleRepository) HasRole(ctx context.Context, userID int64, role string) (bool, error) {
	args := m.Called(ctx, userID, role)
	return args.Bool(0), args.Error(1)
}

func (m *MockRoleRepository) AssignRole(ctx context.Context, userID int64, role string) error {
	args := m.Called(ctx, userID, role)
	return args.Error(0)
}

func (m *MockRoleRepository) CreateIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

const testSecret = "test-secret"

func protectedRouter(auth *AuthMiddleware, admin bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/", auth.JWTAuth())
	if admin {
		group = group.Group("/", auth.RequireAdmin())
	}
	group.GET("/whoami", func(c *gin.Context) {
		userID, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	return router
}

func TestAuthMiddleware_JWTAuth(t *testing.T) {
	auth := NewAuthMiddleware(testSecret, "ledger-api", new(MockRoleRepository))

	t.Run("valid token passes and exposes the user id", func(t *testing.T) {
		token, err := auth.GenerateJWT(7, "joao", time.Minute)
		assert.NoError(t, err)

		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		request.Header.Set("Authorization", "Bearer "+token)
		protectedRouter(auth, false).ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Contains(t, recorder.Body.String(), `"user_id":7`)
	})

	t.Run("missing header is unauthorized", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		protectedRouter(auth, false).ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("token signed with another secret is rejected", func(t *testing.T) {
		other := NewAuthMiddleware("other-secret", "ledger-api", new(MockRoleRepository))
		token, err := other.GenerateJWT(7, "joao", time.Minute)
		assert.NoError(t, err)

		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		request.Header.Set("Authorization", "Bearer "+token)
		protectedRouter(auth, false).ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		token, err := auth.GenerateJWT(7, "joao", -time.Minute)
		assert.NoError(t, err)

		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		request.Header.Set("Authorization", "Bearer "+token)
		protectedRouter(auth, false).ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})
}

func TestAuthMiddleware_RequireAdmin(t *testing.T) {
	t.Run("admin role passes", func(t *testing.T) {
		roles := new(MockRoleRepository)
		roles.On("HasRole", mock.Anything, int64(7), models.RoleAdmin).Return(true, nil)
		auth := NewAuthMiddleware(testSecret, "ledger-api", roles)
		token, _ := auth.GenerateJWT(7, "admin", time.Minute)

		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		request.Header.Set("Authorization", "Bearer "+token)
		protectedRouter(auth, true).ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("regular user is forbidden", func(t *testing.T) {
		roles := new(MockRoleRepository)
		roles.On("HasRole", mock.Anything, int64(7), models.RoleAdmin).Return(false, nil)
		auth := NewAuthMiddleware(testSecret, "ledger-api", roles)
		token, _ := auth.GenerateJWT(7, "user", time.Minute)

		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		request.Header.Set("Authorization", "Bearer "+token)
		protectedRouter(auth, true).ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("role lookup failure denies instead of allowing", func(t *testing.T) {
		roles := new(MockRoleRepository)
		roles.On("HasRole", mock.Anything, int64(7), models.RoleAdmin).Return(false, errors.New("mongo down"))
		auth := NewAuthMiddleware(testSecret, "ledger-api", roles)
		token, _ := auth.GenerateJWT(7, "user", time.Minute)

		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		request.Header.Set("Authorization", "Bearer "+token)
		protectedRouter(auth, true).ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})
}
