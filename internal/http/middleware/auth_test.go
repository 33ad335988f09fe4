package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func signHS256(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func authRouter(opts AuthOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Auth(opts))
	r.GET("/whoami", func(c *gin.Context) { c.String(http.StatusOK, UserID(c)) })
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestAuth_DevMode_TrustsHeader(t *testing.T) {
	r := authRouter(AuthOptions{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderUserID, "  u1 ")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "u1" {
		t.Fatalf("want 200 u1, got %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: want 401, got %d", w.Code)
	}
}

func TestAuth_JWT(t *testing.T) {
	const secret = "s3cret"
	r := authRouter(AuthOptions{Secret: secret, Issuer: "reflect", Skip: []string{"/health"}})
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	cases := []struct {
		name   string
		header string
		want   int
		body   string
	}{
		{"valid", "Bearer " + signHS256(t, secret, jwt.RegisteredClaims{Subject: "u7", Issuer: "reflect", ExpiresAt: future}), http.StatusOK, "u7"},
		{"lowercase scheme", "bearer " + signHS256(t, secret, jwt.RegisteredClaims{Subject: "u7", Issuer: "reflect"}), http.StatusOK, "u7"},
		{"wrong secret", "Bearer " + signHS256(t, "other", jwt.RegisteredClaims{Subject: "u7", Issuer: "reflect"}), http.StatusUnauthorized, ""},
		{"wrong issuer", "Bearer " + signHS256(t, secret, jwt.RegisteredClaims{Subject: "u7", Issuer: "x"}), http.StatusUnauthorized, ""},
		{"expired", "Bearer " + signHS256(t, secret, jwt.RegisteredClaims{Subject: "u7", Issuer: "reflect", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}), http.StatusUnauthorized, ""},
		{"no subject", "Bearer " + signHS256(t, secret, jwt.RegisteredClaims{Issuer: "reflect"}), http.StatusUnauthorized, ""},
		{"missing", "", http.StatusUnauthorized, ""},
		{"basic scheme", "Basic dTpw", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("want %d, got %d (%s)", tc.want, w.Code, w.Body.String())
			}
			if tc.body != "" && w.Body.String() != tc.body {
				t.Fatalf("want body %q, got %q", tc.body, w.Body.String())
			}
			if tc.want == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Fatalf("401 must carry WWW-Authenticate")
			}
		})
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("skipped path should pass without token, got %d", w.Code)
	}
}

func TestAuth_DevHeaderIgnoredWhenSecretSet(t *testing.T) {
	r := authRouter(AuthOptions{Secret: "k"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderUserID, "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("X-User-ID must not authenticate when a secret is set, got %d", w.Code)
	}
}

func TestUserID_WrongTypeIsAnonymous(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if UserID(c) != "" {
		t.Fatalf("unset user must be empty")
	}
	c.Set(ctxKeyUserID, 42)
	if UserID(c) != "" {
		t.Fatalf("non-string user id must be empty")
	}
}
