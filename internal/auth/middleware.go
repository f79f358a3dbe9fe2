package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKey is the gin context key type used by the middleware.
type ContextKey string

// AuthenticatedKey is set to true on requests that passed authentication.
const AuthenticatedKey ContextKey = "authenticated"

// Middleware checks the Authorization bearer token of API requests against
// the agent token. It is disabled when the token is empty.
type Middleware struct {
	token   []byte
	enabled bool
}

func NewMiddleware(token string) *Middleware {
	return &Middleware{token: []byte(token), enabled: token != ""}
}

// Enabled reports whether requests are checked.
func (m *Middleware) Enabled() bool { return m != nil && m.enabled }

// GinAuth returns a Gin middleware that rejects requests without a valid
// bearer token.
func (m *Middleware) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			c.Next()
			return
		}
		if !m.authenticate(c.Request) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_failed",
				"message": "Authentication required",
			})
			c.Abort()
			return
		}
		c.Set(string(AuthenticatedKey), true)
		c.Next()
	}
}

func (m *Middleware) authenticate(r *http.Request) bool {
	h := r.Header.Get("Authorization")
	if h == "" {
		return false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return false
	}
	token := strings.TrimSpace(parts[1])
	return subtle.ConstantTimeCompare([]byte(token), m.token) == 1
}
