package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/you/go-flights-aggregator/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{JWTSecret: "test-secret", JWTUser: "demo", JWTPassword: "demo123"}
}

func testRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	public := http.NewServeMux()
	public.HandleFunc("/auth/login", LoginHandler(cfg))
	public.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	protected := http.NewServeMux()
	protected.HandleFunc("/flights/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(Subject(r.Context())))
	})
	return JWTMiddleware(public, protected, cfg, zaptest.NewLogger(t))
}

func login(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
	return rec
}

func TestLoginAndAccess(t *testing.T) {
	h := testRouter(t, testConfig())

	rec := login(t, h, `{"username":"demo","password":"demo123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	require.Equal(t, 3600, resp.ExpiresIn)

	req := httptest.NewRequest(http.MethodGet, "/flights/search", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "demo", rec.Body.String())

	// query token for EventSource clients
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/flights/search?token="+resp.Token, nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginRejected(t *testing.T) {
	h := testRouter(t, testConfig())

	require.Equal(t, http.StatusUnauthorized, login(t, h, `{"username":"demo","password":"nope"}`).Code)
	require.Equal(t, http.StatusBadRequest, login(t, h, `{`).Code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	cfg := testConfig()
	h := testRouter(t, cfg)

	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
		require.NoError(t, err)
		return s
	}
	expired := sign(jwt.MapClaims{"iss": issuer, "sub": "demo", "exp": time.Now().Add(-time.Minute).Unix()})
	noExp := sign(jwt.MapClaims{"iss": issuer, "sub": "demo"})
	foreign := sign(jwt.MapClaims{"iss": "someone-else", "sub": "demo", "exp": time.Now().Add(time.Hour).Unix()})
	otherKey, err := IssueToken(&config.Config{JWTSecret: "other"}, "demo")
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing":    "",
		"not bearer": "Basic abc",
		"garbage":    "Bearer not-a-jwt",
		"expired":    "Bearer " + expired,
		"no exp":     "Bearer " + noExp,
		"wrong key":  "Bearer " + otherKey,
		"issuer":     "Bearer " + foreign,
		"empty":      "Bearer ",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/flights/search", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestHealthIsPublic(t *testing.T) {
	h := testRouter(t, testConfig())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
