package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"predex.com/pkg/auth"
	"predex.com/pkg/common"
	"predex.com/pkg/xerr"
)

const ctxKeyIdentity = "identity"

// Authenticate Authorization: Bearer 优先，其次 session cookie
func Authenticate(v auth.Verifier, cookie string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := ""
		if h := c.GetHeader("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			tok = strings.TrimSpace(h[7:])
		} else if cookie != "" {
			tok, _ = c.Cookie(cookie)
		}
		if tok == "" || v == nil {
			common.Fail(c, http.StatusUnauthorized, xerr.Unauthorized, xerr.MapErrMsg(xerr.Unauthorized))
			c.Abort()
			return
		}
		id, err := v.Verify(tok)
		if err != nil {
			common.FailErr(c, err)
			c.Abort()
			return
		}
		c.Set(ctxKeyIdentity, id)
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, ok := identity(c); !ok || !id.IsAdmin() {
			common.Fail(c, http.StatusForbidden, xerr.Forbidden, xerr.MapErrMsg(xerr.Forbidden))
			c.Abort()
			return
		}
		c.Next()
	}
}

func identity(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(ctxKeyIdentity)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}
