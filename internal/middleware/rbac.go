package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/scholaris/records-api/internal/models"
	appErrors "github.com/scholaris/records-api/pkg/errors"
	"github.com/scholaris/records-api/pkg/response"
)

// RBAC enforces role-based access control. A caller passes when any of
// their normalized roles is in the allowed set. The pseudo-role "SELF"
// additionally admits a caller whose id matches the :id path parameter.
func RBAC(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		allowSelf := false
		allowedRoles := make(map[string]struct{})

		for _, a := range allowed {
			if a == "SELF" {
				allowSelf = true
				continue
			}
			allowedRoles[a] = struct{}{}
		}

		for _, role := range claims.Roles {
			if _, ok := allowedRoles[role]; ok {
				c.Next()
				return
			}
		}

		if allowSelf {
			if targetID := c.Param("id"); targetID != "" && targetID == claims.UserID {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
