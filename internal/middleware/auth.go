package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medicore/opd-api/internal/handler"
	"github.com/medicore/opd-api/internal/model"
	"github.com/medicore/opd-api/pkg/auth"
	"github.com/medicore/opd-api/pkg/errors"
)

const contextSession = "session"

type AuthMiddleware struct {
	verifier *auth.Verifier
}

func NewAuthMiddleware(verifier *auth.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Authenticate verifies the bearer token and stores the session context for
// downstream handlers. Authorization decisions happen in the services; this
// layer only establishes who is calling.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse(errors.ErrPermissionDenied, "missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse(errors.ErrPermissionDenied, "invalid authorization format"))
			c.Abort()
			return
		}

		sess, err := m.verifier.Verify(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse(errors.ErrPermissionDenied, "invalid token"))
			c.Abort()
			return
		}

		c.Set(contextSession, sess)
		c.Next()
	}
}

// Session returns the authenticated session context, nil if Authenticate did
// not run on this route.
func Session(c *gin.Context) *model.SessionContext {
	v, ok := c.Get(contextSession)
	if !ok {
		return nil
	}
	sess, _ := v.(*model.SessionContext)
	return sess
}
