package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CORSConfig controls which pages may call the API from a browser
type CORSConfig struct {
	// AllowOrigins lists exact origins, "*" for any, or "https://*.example.com"
	// for every subdomain of example.com
	AllowOrigins []string
	// MaxAge is how long a browser may cache a preflight answer
	MaxAge time.Duration
}

// CORS answers cross-origin requests from the chat widget and the operator
// panel. The API only serves GET and POST; the operator token travels in the
// Authorization header.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	maxAge := strconv.Itoa(int(cfg.MaxAge / time.Second))

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		c.Header("Vary", "Origin")

		allowed := originAllowed(cfg.AllowOrigins, origin)
		if allowed {
			if origin != "" {
				c.Header("Access-Control-Allow-Origin", origin)
			} else {
				c.Header("Access-Control-Allow-Origin", "*")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if cfg.MaxAge > 0 {
				c.Header("Access-Control-Max-Age", maxAge)
			}
		}

		if c.Request.Method == http.MethodOptions {
			if !allowed && c.GetHeader("Access-Control-Request-Method") != "" {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func originAllowed(allowOrigins []string, origin string) bool {
	for _, o := range allowOrigins {
		if o == "*" || o == origin {
			return true
		}
		scheme, host, ok := strings.Cut(o, "://*.")
		if !ok || origin == "" {
			continue
		}
		rest, found := strings.CutPrefix(origin, scheme+"://")
		if found && strings.HasSuffix(rest, "."+host) {
			return true
		}
	}
	return false
}
