package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/MorseWayne/storefront/internal/resp"
)

// Timeout 为请求上下文设置截止时间，超时后返回统一的超时响应体。
// 存储操作通过 r.Context() 感知截止时间并提前返回。
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	body := fmt.Sprintf(`{"code":%d,"message":"request timeout"}`, resp.CodeTimeout)
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.TimeoutHandler(next, d, body)
	}
}
