// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements caller authentication. A bearer JWT (HS256) is
// verified and its "sub" claim becomes the user identity stored under
// "userID" in the Gin context. When no secret is configured the middleware
// runs in development mode and trusts the X-User-ID header instead.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// HeaderUserID carries the caller identity in development mode.
const HeaderUserID = "X-User-ID"

const ctxKeyUserID = "userID"

// AuthOptions configures Auth.
type AuthOptions struct {
	// Secret is the HMAC key. Empty enables development mode.
	Secret string
	// Issuer, when set, must match the token's "iss" claim.
	Issuer string
	// Skip lists exact paths that do not require identity (health, metrics).
	Skip []string
}

// Auth resolves the caller identity and aborts with 401 when it cannot.
func Auth(opts AuthOptions) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(opts.Skip))
	for _, p := range opts.Skip {
		skip[p] = struct{}{}
	}
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	parser := jwt.NewParser(parserOpts...)
	secret := []byte(opts.Secret)

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		if len(secret) == 0 {
			if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" {
				c.Set(ctxKeyUserID, uid)
				c.Next()
				return
			}
			unauthorized(c, "missing "+HeaderUserID+" header")
			return
		}

		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			unauthorized(c, "missing bearer token")
			return
		}
		claims := jwt.RegisteredClaims{}
		tok, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil || !tok.Valid || strings.TrimSpace(claims.Subject) == "" {
			unauthorized(c, "invalid token")
			return
		}
		c.Set(ctxKeyUserID, claims.Subject)
		c.Next()
	}
}

// UserID returns the authenticated caller, or "" when Auth did not run.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func bearerToken(h string) string {
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="reflect"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.GetString(requestIDKey),
		"code":       "unauthorized",
		"message":    msg,
	})
}
