package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/campusexchange/points/internal/apperr"
	"github.com/campusexchange/points/internal/authz"
	"github.com/campusexchange/points/internal/domain"
)

// CtxPrincipal is the gin.Context key the resolved principal is stored
// under by Auth.
const CtxPrincipal = "principal"

// Auth validates the Authorization: Bearer <jwt> header via authz.Resolver
// and stores the resolved domain.Principal in the gin context. It must run
// ahead of every authenticated route.
func Auth(resolver *authz.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			abortError(c, domain.ErrUnauthenticated)
			return
		}

		principal, err := resolver.Resolve(c.Request.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			abortError(c, err)
			return
		}

		c.Set(CtxPrincipal, principal)
		c.Next()
	}
}

// RequirePermission aborts with 403 unless the resolved principal carries
// perm. Must run after Auth.
func RequirePermission(perm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)
		if p == nil || !p.Has(perm) {
			abortError(c, domain.ErrForbidden)
			return
		}
		c.Next()
	}
}

// GetPrincipal returns the authenticated caller's principal, or nil if Auth
// was never run for this request.
func GetPrincipal(c *gin.Context) *domain.Principal {
	v, ok := c.Get(CtxPrincipal)
	if !ok {
		return nil
	}
	p, _ := v.(*domain.Principal)
	return p
}

// GetUserID is a convenience accessor returning uuid.Nil if no principal is set.
func GetUserID(c *gin.Context) uuid.UUID {
	p := GetPrincipal(c)
	if p == nil {
		return uuid.Nil
	}
	return p.UserID
}

// abortError writes the {ok:false,code,message[,issues]} envelope for err
// and aborts the chain (§7): every middleware and handler share this shape.
func abortError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(apperr.KindOf(err))
	body := gin.H{"ok": false, "code": apperr.CodeOf(err), "message": err.Error()}
	if issues := apperr.IssuesOf(err); len(issues) > 0 {
		body["issues"] = issues
	}
	c.AbortWithStatusJSON(status, body)
}
