package router

import (
	"raffle-ledger/internal/backup"
	"raffle-ledger/internal/config"
	"raffle-ledger/internal/handler"
	"raffle-ledger/internal/middleware"
	"raffle-ledger/internal/raffle"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Deps 是路由需要的已初始化组件
type Deps struct {
	DB        *gorm.DB
	Service   *raffle.Service
	Backups   *backup.Manager
	AdminHash string
}

// SetupRouter configures the Gin engine and the JSON API.
func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ====== API ======
	api := r.Group("/api")

	jwtSecret := cfg.JWT.Secret
	// 登录/登出接口（不需要鉴权）
	authHandler := handler.NewAuthHandler(deps.AdminHash, jwtSecret, cfg.JWT.Issuer, cfg.JWT.ExpireHours)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/logout", authHandler.Logout)
	api.GET("/me", authHandler.GetMe)

	// 需要管理员登录才能访问的接口
	protected := api.Group("")
	protected.Use(
		middleware.AuthMiddleware(jwtSecret, cfg.JWT.Issuer, handler.TokenCookie),
		middleware.AuditMiddleware(deps.DB, cfg.Security.EncryptionKey),
	)

	entryHandler := handler.NewEntryHandler(deps.Service)
	protected.POST("/entries", entryHandler.Register)
	protected.GET("/entries/summary", entryHandler.Summary)
	protected.DELETE("/entries/by-id/:id/one", entryHandler.RemoveOne)
	protected.DELETE("/entries/by-id/:id", entryHandler.RemoveAll)
	protected.DELETE("/entries", entryHandler.Clear)
	protected.POST("/draw", entryHandler.Draw)

	backupHandler := handler.NewBackupHandler(deps.Backups)
	protected.POST("/backups", backupHandler.CreateBackup)
	protected.GET("/backups", backupHandler.ListBackups)
	protected.GET("/backups/:id/download", backupHandler.DownloadBackup)
	protected.POST("/backups/:id/restore", backupHandler.RestoreBackup)
	protected.DELETE("/backups/:id", backupHandler.DeleteBackup)

	logHandler := handler.NewLogHandler(deps.DB, cfg.Security.EncryptionKey)
	protected.GET("/logs", logHandler.ListLogs)

	exportHandler := handler.NewExportHandler(deps.Service)
	protected.GET("/export/csv", exportHandler.ExportCSV)
	protected.GET("/export/xlsx", exportHandler.ExportXLSX)

	return r
}
