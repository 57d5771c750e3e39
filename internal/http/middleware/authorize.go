package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/majidsafwaan2/gymguard/internal/authz"
)

const authzContextKey = "authzContext"

// Authorizer runs the authorization gate for protected routes.
type Authorizer struct {
	Gate *authz.Gate
}

// Require returns middleware enforcing the given sensitivity. The resulting
// authorized context is attached for handlers; a denial short-circuits with
// its mapped status and collapsed public message.
func (m *Authorizer) Require(sensitivity authz.Sensitivity) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
			return
		}

		authzCtx, denial := m.Gate.Authorize(c.Request.Context(), raw, sensitivity)
		if denial != nil && denial.Reason == authz.ReasonProviderUnavailable {
			// Provider outage: fall back to the client's registered session
			// so federated users holding a live session stay signed in.
			if token := c.GetHeader("X-Session-Token"); token != "" {
				if degraded, degradedDenial := m.Gate.AuthorizeDegraded(c.Request.Context(), token, sensitivity); degradedDenial == nil {
					authzCtx, denial = degraded, nil
				}
			}
		}
		if denial != nil {
			code, desc := denial.Public()
			c.AbortWithStatusJSON(denial.Status(), gin.H{"error": code, "error_description": desc})
			return
		}

		c.Set(authzContextKey, authzCtx)
		c.Next()
	}
}

// GetAuthzContext exposes the authorized context to handlers.
func GetAuthzContext(c *gin.Context) (*authz.Context, bool) {
	value, ok := c.Get(authzContextKey)
	if !ok {
		return nil, false
	}
	authzCtx, ok := value.(*authz.Context)
	return authzCtx, ok
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), parts[1] != ""
}
