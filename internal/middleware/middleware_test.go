package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/config"
)

func ok(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func serve(e *echo.Echo, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func sign(t *testing.T, secret string, claims jwt.MapClaims, method jwt.SigningMethod) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		id, err := UserID(c)
		if err != nil {
			return c.String(http.StatusUnauthorized, "no id")
		}
		return c.JSON(http.StatusOK, echo.Map{"id": id, "role": c.Get(ctxRole)})
	}, JWTAuth("k"), RequireRole("CUSTOMER"))

	exp := time.Now().Add(time.Hour).Unix()
	good := sign(t, "k", jwt.MapClaims{"sub": 42, "role": "CUSTOMER", "exp": exp}, jwt.SigningMethodHS256)
	rec := serve(e, http.MethodGet, "/me", "Bearer "+good)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":42,"role":"CUSTOMER"}`, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", "Token "+good).Code)

	wrongKey := sign(t, "other", jwt.MapClaims{"sub": 42, "role": "CUSTOMER", "exp": exp}, jwt.SigningMethodHS256)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", "Bearer "+wrongKey).Code)

	noExp := sign(t, "k", jwt.MapClaims{"sub": 42, "role": "CUSTOMER"}, jwt.SigningMethodHS256)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", "Bearer "+noExp).Code)

	hs512 := sign(t, "k", jwt.MapClaims{"sub": 42, "role": "CUSTOMER", "exp": exp}, jwt.SigningMethodHS512)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", "Bearer "+hs512).Code)

	owner := sign(t, "k", jwt.MapClaims{"sub": 42, "role": "OWNER", "exp": exp}, jwt.SigningMethodHS256)
	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/me", "Bearer "+owner).Code)
}

func TestUserID(t *testing.T) {
	e := echo.New()
	cases := []struct {
		in   any
		want uint64
		ok   bool
	}{
		{uint64(7), 7, true},
		{float64(7), 7, true},
		{"7", 7, true},
		{7, 7, true},
		{float64(7.5), 0, false},
		{"x", 0, false},
		{"0", 0, false},
		{nil, 0, false},
	}
	for _, tc := range cases {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		c.Set(ctxUserID, tc.in)
		got, err := UserID(c)
		if tc.ok {
			require.NoError(t, err, "%v", tc.in)
			assert.Equal(t, tc.want, got)
		} else {
			assert.ErrorIs(t, err, ErrNoIdentity, "%v", tc.in)
		}
	}
}

func TestTokenBucket_InProcessFallback(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}
	e := echo.New()
	e.GET("/x", ok, NewTokenBucket(cfg, nil))

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/x", "").Code)
	rec := serve(e, http.MethodGet, "/x", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))

	rec = serve(e, http.MethodGet, "/x", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestTokenBucket_Disabled(t *testing.T) {
	e := echo.New()
	e.GET("/x", ok, NewTokenBucket(config.RateLimitConfig{Enabled: false, Capacity: 1}, nil))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/x", "").Code)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/3/hold", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/sessions/:id/hold")
	c.Set(ctxUserID, float64(9))

	cfg := config.RateLimitConfig{Prefix: "rl:hold", KeyStrategy: "user_route"}
	assert.Equal(t, "rl:hold:user:9:route:POST /v1/sessions/:id/hold", buildRateKey(cfg, c))
	cfg.KeyStrategy = ""
	assert.Equal(t, "rl:hold:ip:10.0.0.1:user:9:route:POST /v1/sessions/:id/hold", buildRateKey(cfg, c))
}

func TestCacheKeyUsesConcretePath(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "p", KeyStrategy: "path_query"}
	key := func(path string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), httptest.NewRecorder())
		c.SetPath("/v1/sessions/:id")
		return CacheKey(cfg, c)
	}
	assert.NotEqual(t, key("/v1/sessions/1"), key("/v1/sessions/2"))
	assert.Equal(t, key("/v1/sessions/1"), key("/v1/sessions/1"))
	assert.NotEqual(t, key("/v1/sessions/1"), key("/v1/sessions/1?x=1"))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)
	status, gotHdr, body, okDecode := decodePayload(bs)
	require.True(t, okDecode)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", gotHdr.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, okDecode = decodePayload([]byte{0, 1})
	assert.False(t, okDecode)
}

func TestRedisCache_DisabledPassesThrough(t *testing.T) {
	e := echo.New()
	e.GET("/s", ok, NewRedisCache(config.CacheConfig{Enabled: true}, nil))
	rec := serve(e, http.MethodGet, "/s", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}
