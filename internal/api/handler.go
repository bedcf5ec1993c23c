// Package api 提供商品列表、后台管理和认证的 HTTP 处理器。
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/storefront/internal/domain"
	"github.com/MorseWayne/storefront/internal/middleware"
	"github.com/MorseWayne/storefront/internal/resp"
)

func requestID(c *gin.Context) string {
	return middleware.RequestIDFromContext(c.Request.Context())
}

func ok(c *gin.Context, data any) {
	resp.OK(c.Writer, data, requestID(c), "")
}

func fail(c *gin.Context, code int, message string) {
	resp.Error(c.Writer, resp.HTTPStatusFromCode(code), code, message, requestID(c), "")
}

// writeError 按领域错误映射响应码，未知错误记录日志并隐藏细节
func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		fail(c, resp.CodeInvalidParam, err.Error())
	case errors.Is(err, domain.ErrProductNotFound), errors.Is(err, domain.ErrNotFound):
		fail(c, resp.CodeNotFound, "product not found")
	case errors.Is(err, domain.ErrConflict):
		fail(c, resp.CodeConflict, "product already exists")
	case errors.Is(err, domain.ErrUnauthorized):
		fail(c, resp.CodeUnauthorized, "unauthorized")
	case errors.Is(err, context.DeadlineExceeded):
		fail(c, resp.CodeTimeout, "request timeout")
	default:
		logger.Error(op+" failed", zap.String("request_id", requestID(c)), zap.Error(err))
		fail(c, resp.CodeInternalError, op+" failed")
	}
}

// bindJSON 解析请求体，失败时写入 400
func bindJSON(c *gin.Context, logger *zap.Logger, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		logger.Warn("invalid request body", zap.String("request_id", requestID(c)), zap.Error(err))
		resp.Error(c.Writer, http.StatusBadRequest, resp.CodeInvalidParam, "invalid request body", requestID(c), "")
		return false
	}
	return true
}

// queryFloat 读取可选的浮点查询参数
func queryFloat(c *gin.Context, key string) (float64, bool, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// queryBool 读取可选的布尔查询参数
func queryBool(c *gin.Context, key string) (bool, bool, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return false, false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, err
	}
	return v, true, nil
}

// queryInt 读取可选的整数查询参数
func queryInt(c *gin.Context, key string) (int, bool, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
