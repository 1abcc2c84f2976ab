package middleware

import (
	"net/http"
	"strings"

	"raffle-ledger/internal/util"

	"github.com/gin-gonic/gin"
)

// ActorKey 是 context 中当前操作者的键
const ActorKey = "actor"

// TokenFromRequest 依次从 Authorization 头、?token= 和 cookie 中取 JWT。
func TokenFromRequest(c *gin.Context, cookieName string) string {
	// 1) Header: Authorization: Bearer xxx
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// 2) URL 查询参数 ?token=xxx（用于下载等无法自定义 Header 的场景）
	if tokenStr := c.Query("token"); tokenStr != "" {
		return tokenStr
	}

	// 3) Cookie
	if cookie, err := c.Cookie(cookieName); err == nil {
		return cookie
	}
	return ""
}

// AuthMiddleware 校验管理员 JWT，并在 context 里放入操作者。
func AuthMiddleware(jwtSecret, issuer, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := TokenFromRequest(c, cookieName)
		if tokenStr == "" {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "未登录")
			c.Abort()
			return
		}

		claims, err := util.ParseToken(jwtSecret, issuer, tokenStr)
		if err != nil {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "登录已失效，请重新登录")
			c.Abort()
			return
		}
		if claims.Role != util.RoleAdmin {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "需要管理员权限")
			c.Abort()
			return
		}

		c.Set(ActorKey, claims.Role)
		c.Next()
	}
}
