package handler

import (
	"net/http"
	"sync"
	"time"

	"raffle-ledger/internal/middleware"
	"raffle-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
)

// TokenCookie 保存管理员 JWT 的 cookie 名称
const TokenCookie = "raffle_token"

const (
	maxLoginFailures = 5
	lockoutDuration  = 10 * time.Minute
)

// AuthHandler 负责管理员登录/登出
type AuthHandler struct {
	AdminHash string
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration

	mu          sync.Mutex
	failures    int
	lockedUntil time.Time
	now         func() time.Time
}

// NewAuthHandler 构造函数，adminHash 为 bcrypt 哈希
func NewAuthHandler(adminHash, jwtSecret, issuer string, ttlHours int) *AuthHandler {
	if ttlHours <= 0 {
		ttlHours = 12
	}
	return &AuthHandler{
		AdminHash: adminHash,
		JWTSecret: jwtSecret,
		Issuer:    issuer,
		TokenTTL:  time.Duration(ttlHours) * time.Hour,
		now:       time.Now,
	}
}

type loginReq struct {
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "参数错误")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	// 检查是否被锁定
	if now.Before(h.lockedUntil) {
		util.Error(c, http.StatusTooManyRequests, util.CodeTooMany, "登录已锁定，请稍后再试")
		return
	}

	if !util.CheckPassword(req.Password, h.AdminHash) {
		// 口令错误：递增失败次数，达到5次则锁定10分钟
		h.failures++
		if h.failures >= maxLoginFailures {
			h.lockedUntil = now.Add(lockoutDuration)
			h.failures = 0
			logger.Warningf("auth: admin login locked until %s (ip %s)", h.lockedUntil.Format(time.RFC3339), c.ClientIP())
		}
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "口令错误")
		return
	}
	h.failures = 0
	h.lockedUntil = time.Time{}

	token, err := util.GenerateToken(h.JWTSecret, h.Issuer, util.RoleAdmin, h.TokenTTL)
	if err != nil {
		logger.Errorf("auth: sign token: %v", err)
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "生成 token 失败")
		return
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(TokenCookie, token, int(h.TokenTTL.Seconds()), "/", "", false, true)

	logger.Infof("auth: admin login from %s", c.ClientIP())
	util.Success(c, util.Response{
		"token":      token,
		"expires_in": int(h.TokenTTL.Seconds()),
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(TokenCookie, "", -1, "/", "", false, true)
	util.Success(c, util.Response{"message": "已退出"})
}

// GetMe 返回当前会话是否为管理员，未登录时 is_admin=false
func (h *AuthHandler) GetMe(c *gin.Context) {
	isAdmin := false
	if tokenStr := middleware.TokenFromRequest(c, TokenCookie); tokenStr != "" {
		if claims, err := util.ParseToken(h.JWTSecret, h.Issuer, tokenStr); err == nil && claims.Role == util.RoleAdmin {
			isAdmin = true
		}
	}
	util.Success(c, util.Response{"is_admin": isAdmin})
}
