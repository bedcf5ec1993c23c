package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/storefront/internal/domain"
	"github.com/MorseWayne/storefront/internal/resp"
	"github.com/MorseWayne/storefront/internal/service"
)

// AuthHandler 管理员登录和令牌刷新
type AuthHandler struct {
	auth   service.AuthService
	logger *zap.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(auth service.AuthService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{auth: auth, logger: logger}
}

// Login 管理员登录
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req domain.LoginRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		fail(c, resp.CodeInvalidParam, "username and password are required")
		return
	}

	result, err := h.auth.Login(c.Request.Context(), &req)
	if err != nil {
		h.logger.Warn("login failed",
			zap.String("request_id", requestID(c)),
			zap.String("username", req.Username),
			zap.Error(err))
		writeError(c, h.logger, "login", err)
		return
	}
	ok(c, result)
}

// RefreshToken 刷新令牌对
// POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req domain.RefreshTokenRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	if req.RefreshToken == "" {
		fail(c, resp.CodeInvalidParam, "refresh_token is required")
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, h.logger, "refresh token", err)
		return
	}
	ok(c, pair)
}
