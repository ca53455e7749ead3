package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/flock/internal/model"
)

func TestParsePrincipal(t *testing.T) {
	t.Parallel()

	sign := func(secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		token   string
		want    model.Principal
		wantErr bool
	}{
		{
			name:  "manager",
			token: sign(testSecret, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "m1", "user_type": "manager", "exp": future}),
			want:  model.Principal{ID: "m1", Type: model.PrincipalManager},
		},
		{
			name:  "attendee without type",
			token: sign(testSecret, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "a1", "exp": future}),
			want:  model.Principal{ID: "a1"},
		},
		{
			name:    "wrong secret",
			token:   sign("other-secret", jwt.SigningMethodHS256, jwt.MapClaims{"sub": "m1", "exp": future}),
			wantErr: true,
		},
		{
			name:    "wrong algorithm",
			token:   sign(testSecret, jwt.SigningMethodHS512, jwt.MapClaims{"sub": "m1", "exp": future}),
			wantErr: true,
		},
		{
			name:    "expired",
			token:   sign(testSecret, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "m1", "exp": time.Now().Add(-time.Hour).Unix()}),
			wantErr: true,
		},
		{
			name:    "no subject",
			token:   sign(testSecret, jwt.SigningMethodHS256, jwt.MapClaims{"exp": future}),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parsePrincipal(tt.token, []byte(testSecret))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthenticate_AnonymousPassesThrough(t *testing.T) {
	var seen bool
	h := Authenticate([]byte(testSecret))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, seen = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, seen)
}

func TestAuthenticate_RejectsNonBearer(t *testing.T) {
	h := Authenticate([]byte(testSecret))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimiter_PerClientIsolation(t *testing.T) {
	h := RateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:2000"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1000"), "other clients keep their own bucket")
}

func TestClientIP(t *testing.T) {
	tests := map[string]string{
		"192.168.1.1:12345": "192.168.1.1",
		"[::1]:12345":       "::1",
		"203.0.113.50":      "203.0.113.50",
	}
	for addr, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		assert.Equal(t, want, clientIP(req))
	}
}
