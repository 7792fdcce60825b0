package middlewares_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/dinutri/internal/actorctx"
	"github.com/geocoder89/dinutri/internal/auth"
	"github.com/geocoder89/dinutri/internal/domain/user"
	"github.com/geocoder89/dinutri/internal/http/middlewares"
	"github.com/geocoder89/dinutri/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuthn struct {
	actors map[string]auth.Actor
}

func (f fakeAuthn) Authenticate(_ context.Context, token string) (auth.Actor, error) {
	if token == "down" {
		return auth.Actor{}, errors.New("resolve token subject: connection refused")
	}
	a, ok := f.actors[token]
	if !ok {
		return auth.Actor{}, &service.Error{Kind: service.ErrUnauthorized, Msg: "Invalid access token"}
	}
	return a, nil
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuthAndRole(t *testing.T) {
	m := middlewares.NewAuthMiddleware(fakeAuthn{actors: map[string]auth.Actor{
		"pro": {ID: "n1", Role: user.RoleNutritionist},
		"pat": {ID: "u2", Role: user.RolePatient, PatientID: "p1"},
	}})

	r := gin.New()
	r.Use(middlewares.RequestID())
	r.GET("/me", m.RequireAuth(), func(c *gin.Context) {
		actor, ok := middlewares.ActorFromContext(c)
		require.True(t, ok)

		fromCtx, ok := actorctx.From(c.Request.Context())
		require.True(t, ok)
		assert.Equal(t, actor.ID, fromCtx.ID)

		c.String(http.StatusOK, actor.ID)
	})
	r.POST("/patients", m.RequireAuth(), m.RequireRole(user.RoleNutritionist), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	tests := []struct {
		name       string
		method     string
		path       string
		header     string
		wantStatus int
	}{
		{"no header", http.MethodGet, "/me", "", http.StatusUnauthorized},
		{"wrong scheme", http.MethodGet, "/me", "Basic pro", http.StatusUnauthorized},
		{"empty token", http.MethodGet, "/me", "Bearer  ", http.StatusUnauthorized},
		{"unknown token", http.MethodGet, "/me", "Bearer nope", http.StatusUnauthorized},
		{"store failure is not a bad token", http.MethodGet, "/me", "Bearer down", http.StatusInternalServerError},
		{"valid", http.MethodGet, "/me", "Bearer pro", http.StatusOK},
		{"lowercase scheme", http.MethodGet, "/me", "bearer pat", http.StatusOK},
		{"nutritionist only as nutritionist", http.MethodPost, "/patients", "Bearer pro", http.StatusCreated},
		{"nutritionist only as patient", http.MethodPost, "/patients", "Bearer pat", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			w := serve(r, req)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if w.Code >= 400 {
				assert.Contains(t, w.Body.String(), `"requestId"`)
			}
		})
	}
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := middlewares.NewRateLimiter(2, time.Minute).WithClock(func() time.Time { return now })

	r := gin.New()
	r.GET("/api", rl.RateLimiterMiddleware(middlewares.KeyByIP), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	hit := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api", nil)
		req.RemoteAddr = ip + ":1234"
		return serve(r, req)
	}

	require.Equal(t, http.StatusOK, hit("10.0.0.1").Code)
	require.Equal(t, http.StatusOK, hit("10.0.0.1").Code)

	w := hit("10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	// other clients keep their own budget
	require.Equal(t, http.StatusOK, hit("10.0.0.2").Code)

	now = now.Add(61 * time.Second)
	require.Equal(t, http.StatusOK, hit("10.0.0.1").Code)
}

type fakeCounter struct {
	counts map[string]int64
	err    error
}

func (f *fakeCounter) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	f.counts[key]++
	return f.counts[key], window, nil
}

func TestRedisRateLimiter(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int64{}}
	rl := middlewares.NewRedisRateLimiter(counter, 1, 30*time.Second, nil)

	r := gin.New()
	r.GET("/api", rl.RateLimiterMiddleware(middlewares.KeyByIP), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := func() *http.Request { return httptest.NewRequest(http.MethodGet, "/api", nil) }

	require.Equal(t, http.StatusOK, serve(r, req()).Code)

	w := serve(r, req())
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	for k := range counter.counts {
		assert.True(t, strings.HasPrefix(k, "dinutri:ratelimit:"), k)
	}

	// redis down: requests pass
	counter.err = errors.New("connection refused")
	assert.Equal(t, http.StatusOK, serve(r, req()).Code)
}

func TestRequireJSON(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.RequireJSON("/login"))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "text/plain")
	assert.Equal(t, http.StatusUnsupportedMediaType, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	assert.Equal(t, http.StatusOK, serve(r, req).Code)

	// bodyless action posts
	req = httptest.NewRequest(http.MethodPost, "/x", nil)
	assert.Equal(t, http.StatusOK, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=a&password=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusOK, serve(r, req).Code)
}

func TestMaxBodyBytes(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.MaxBodyBytes(8))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(strings.Repeat("a", 9)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("small"))
	assert.Equal(t, http.StatusOK, serve(r, req).Code)
}

func TestRequestIDAndSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.RequestID(), middlewares.SecurityHeaders("prod"))
	r.GET("/api", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/docs", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	w := serve(r, req)

	assert.Equal(t, "abc-123", w.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "default-src 'none'", w.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))

	w = serve(r, httptest.NewRequest(http.MethodGet, "/docs", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "unpkg.com")
}

func TestCORS_AllowList(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.CORS([]string{"http://localhost:3000"}))
	r.GET("/api", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := serve(r, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = serve(r, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
