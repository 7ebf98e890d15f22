package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/helpdesk/internal/domain"
)

type staticAuth struct{}

func (staticAuth) Authenticate(token string) (*domain.Principal, error) {
	if token != "t1" {
		return nil, domain.ErrUnauthorized
	}
	return &domain.Principal{Username: "op"}, nil
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(3, nil)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "buckets are per client")
}

func TestRateLimiterStopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(0, nil)
	rl.Stop()
	rl.Stop()
	assert.True(t, rl.Allow("x"))
}

func TestAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/who", Auth(staticAuth{}), func(c *gin.Context) {
		c.String(http.StatusOK, Principal(c).Username)
	})

	tests := []struct {
		name   string
		path   string
		header string
		code   int
	}{
		{"no token", "/who", "", http.StatusUnauthorized},
		{"bad token", "/who", "Bearer nope", http.StatusUnauthorized},
		{"bearer", "/who", "Bearer t1", http.StatusOK},
		{"query", "/who?token=t1", "", http.StatusOK},
		{"wrong scheme", "/who", "Basic t1", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, "op", w.Body.String())
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(CORSConfig{
		AllowOrigins: []string{"https://shop.example", "https://*.partner.example"},
		MaxAge:       time.Hour,
	}))
	r.POST("/api/chat", func(c *gin.Context) { c.Status(http.StatusOK) })

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := preflight("https://shop.example")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "3600", w.Header().Get("Access-Control-Max-Age"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))

	w = preflight("https://eu.partner.example")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://eu.partner.example", w.Header().Get("Access-Control-Allow-Origin"))

	for _, origin := range []string{"https://evil.example", "https://partner.example", "http://eu.partner.example", "https://evilpartner.example"} {
		w = preflight(origin)
		assert.Equal(t, http.StatusForbidden, w.Code, origin)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"), origin)
	}

	// simple requests pass through; the browser enforces the missing header
	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
