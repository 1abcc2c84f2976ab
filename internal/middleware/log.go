package middleware

import (
	"bytes"
	"io"
	"net/http"

	"raffle-ledger/internal/models"
	"raffle-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"gorm.io/gorm"
)

// 请求体超过该长度时不记入审计日志
const maxAuditBody = 2000

// AuditMiddleware 记录管理员的写操作（GET/HEAD 不记录），path 和 action 加密保存。
func AuditMiddleware(db *gorm.DB, encryptKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		// 读取请求体
		var bodyBytes []byte
		if c.Request.Body != nil {
			bodyBytes, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}

		// 执行请求
		c.Next()

		actor := c.GetString(ActorKey)
		if actor == "" {
			return
		}

		// 构造 action
		path := c.Request.URL.Path
		action := c.Request.Method + " " + path
		if len(bodyBytes) > 0 && len(bodyBytes) < maxAuditBody {
			action += " " + string(bodyBytes)
		}

		encPath, err := util.SealField(encryptKey, path)
		if err != nil {
			logger.Warningf("audit: encrypt path: %v", err)
			return
		}
		encAction, err := util.SealField(encryptKey, action)
		if err != nil {
			logger.Warningf("audit: encrypt action: %v", err)
			return
		}

		log := models.AuditLog{
			Actor:     actor,
			Method:    c.Request.Method,
			PathEnc:   encPath,
			ActionEnc: encAction,
			Status:    c.Writer.Status(),
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		if err := db.Create(&log).Error; err != nil {
			logger.Warningf("audit: save log: %v", err)
		}
	}
}
