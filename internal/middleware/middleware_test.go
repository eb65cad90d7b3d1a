package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-orderflow/internal/auth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *auth.Manager {
	t.Helper()
	m, err := auth.NewManager("test-secret", time.Hour)
	require.NoError(t, err)
	return m
}

func TestAuth(t *testing.T) {
	m := newManager(t)

	t.Run("Missing Token", func(t *testing.T) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := auth.SessionFrom(r.Context())
			assert.False(t, ok, "context should not contain a session")
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/order/1", nil)
		w := httptest.NewRecorder()

		Auth(m)(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Invalid Token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/order/1", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		w := httptest.NewRecorder()

		Auth(m)(http.NotFoundHandler()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"unauthorized"`)
	})

	t.Run("Valid Token", func(t *testing.T) {
		s, err := m.Issue("user-1", auth.RoleCustomer)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/order/1", nil)
		req.Header.Set("Authorization", "Bearer "+s.Token)
		w := httptest.NewRecorder()

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := auth.SessionFrom(r.Context())
			require.True(t, ok)
			assert.Equal(t, "user-1", got.UserID)
			assert.Equal(t, auth.RoleCustomer, got.Role)
			w.WriteHeader(http.StatusOK)
		})

		Auth(m)(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Expired Token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
			UserID: "user-1",
			Role:   auth.RoleCustomer,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		})
		tokenString, err := token.SignedString([]byte("test-secret"))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/order/1", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		w := httptest.NewRecorder()

		Auth(m)(http.NotFoundHandler()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"session_expired"`)
	})

	t.Run("Malformed Header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/order/1", nil)
		req.Header.Set("Authorization", "Basic user:pass")
		w := httptest.NewRecorder()

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := auth.SessionFrom(r.Context())
			assert.False(t, ok)
			w.WriteHeader(http.StatusOK)
		})

		Auth(m)(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRequireSession(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	adminOnly := RequireSession(auth.RoleAdmin)(ok)

	tests := []struct {
		name    string
		session *auth.Session
		want    int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"customer", &auth.Session{UserID: "u1", Role: auth.RoleCustomer}, http.StatusForbidden},
		{"admin", &auth.Session{UserID: "a1", Role: auth.RoleAdmin}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/order/update-status/1", nil)
			if tt.session != nil {
				req = req.WithContext(auth.WithSession(req.Context(), tt.session))
			}
			w := httptest.NewRecorder()

			adminOnly.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}

	t.Run("any role", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		req = req.WithContext(auth.WithSession(req.Context(), &auth.Session{UserID: "u1", Role: auth.RoleCustomer}))
		w := httptest.NewRecorder()

		RequireSession()(ok).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLimiter(ctx, "/webhook/payment")
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	hit := func(path, ip string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	t.Run("strict tier exhausts after burst", func(t *testing.T) {
		for i := 0; i < burstStrict; i++ {
			assert.Equal(t, http.StatusOK, hit("/webhook/payment", "10.0.0.1"))
		}
		assert.Equal(t, http.StatusTooManyRequests, hit("/webhook/payment", "10.0.0.1"))
	})

	t.Run("buckets are per caller and tier", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, hit("/webhook/payment", "10.0.0.2"))
		assert.Equal(t, http.StatusOK, hit("/order/create", "10.0.0.1"))
	})

	t.Run("evict drops idle buckets", func(t *testing.T) {
		l.evict(time.Now().Add(time.Minute))
		assert.Equal(t, http.StatusOK, hit("/webhook/payment", "10.0.0.1"))
	})
}

func TestIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:5555"
	assert.Equal(t, "ip:192.168.1.5", identity(req))

	req.Header.Set("X-Device-ID", "dev-9")
	assert.Equal(t, "device:dev-9", identity(req))

	req = req.WithContext(auth.WithSession(req.Context(), &auth.Session{UserID: "u1"}))
	assert.Equal(t, "user:u1", identity(req))
}
