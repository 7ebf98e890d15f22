package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/liliang-cn/helpdesk/internal/api/apierr"
	"github.com/liliang-cn/helpdesk/internal/domain"
)

const principalKey = "operator"

// Authenticator resolves a bearer token to an operator.
type Authenticator interface {
	Authenticate(token string) (*domain.Principal, error)
}

// Auth returns an operator token authentication middleware. The token is
// read from the Authorization header, or from the token query parameter
// for clients that cannot set headers (EventSource).
func Auth(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			apierr.Write(c, nil, domain.ErrUnauthorized)
			return
		}

		principal, err := authn.Authenticate(token)
		if err != nil {
			apierr.Write(c, nil, domain.ErrUnauthorized)
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// Principal returns the operator set by Auth, or nil.
func Principal(c *gin.Context) *domain.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*domain.Principal)
	return p
}
