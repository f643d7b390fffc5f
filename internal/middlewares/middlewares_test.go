package middlewares

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"fitpass/internal/models"
	"fitpass/internal/ratelimit"
	"fitpass/internal/repositories"
	"fitpass/internal/utils"
)

var secret = []byte("middleware-secret")

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func newUser(t *testing.T, repo repositories.UserRepository, role models.Role) *models.User {
	t.Helper()
	u, err := repo.Create(context.Background(), &models.User{
		Username: "member",
		Email:    role.String() + "@example.com",
		Role:     role,
		Active:   true,
	})
	require.NoError(t, err)
	return u
}

func bearer(t *testing.T, u *models.User) string {
	t.Helper()
	token, err := utils.GenerateJWT(secret, u, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAuthMiddleware(t *testing.T) {
	repo := repositories.NewMemoryUserRepository()
	user := newUser(t, repo, models.RoleTrainer)
	auth := NewAuthenticator(secret, repo)

	var seen identity
	h := auth.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := UserIDFromContext(r.Context())
		role, _ := RoleFromContext(r.Context())
		seen = identity{id: id.Hex(), role: role}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Token abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"valid", bearer(t, user), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
		})
	}
	assert.Equal(t, user.ID.Hex(), seen.id)
	assert.Equal(t, models.RoleTrainer, seen.role)
}

type identity struct {
	id   string
	role models.Role
}

func TestAuthMiddleware_StaleSessionVersion(t *testing.T) {
	repo := repositories.NewMemoryUserRepository()
	user := newUser(t, repo, models.RoleClient)
	header := bearer(t, user)
	h := NewAuthenticator(secret, repo).AuthMiddleware(http.HandlerFunc(okHandler))

	require.NoError(t, repo.UpdatePassword(context.Background(), user.ID, "new-hash"))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", header)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthMiddleware_DisabledAccount(t *testing.T) {
	repo := repositories.NewMemoryUserRepository()
	user := newUser(t, repo, models.RoleClient)
	header := bearer(t, user)
	require.NoError(t, repo.Update(context.Background(), user.ID, bson.M{"active": false}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", header)
	rr := httptest.NewRecorder()
	NewAuthenticator(secret, repo).AuthMiddleware(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequirePermission(t *testing.T) {
	h := RequirePermission(models.Role.CanManageAccounts)(http.HandlerFunc(okHandler))

	for role, want := range map[models.Role]int{
		models.RoleAdmin:   http.StatusOK,
		models.RoleTrainer: http.StatusForbidden,
		models.RoleClient:  http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/password-resets/purge", nil)
		req = req.WithContext(WithUser(req.Context(), primitive.NewObjectID(), role))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, want, rr.Code, role.String())
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(ratelimit.New(1, 2))(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCorsMiddleware(t *testing.T) {
	h := CorsMiddleware([]string{"https://app.fitpass.example"})(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodOptions, "/password/send-otp", nil)
	req.Header.Set("Origin", "https://app.fitpass.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://app.fitpass.example", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestInstrument(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Instrument)
	r.HandleFunc("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users/42", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hello", rr.Body.String())
}
