package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/smosvm/response"
)

// Recovery 捕获处理链中的 panic，记录堆栈后返回 500。
// 响应已开始写出时只记录日志.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.ErrorContext(c.Request.Context(), "panic recovered",
				"error", rec,
				"request_id", GetRequestID(c),
				"method", c.Request.Method,
				"route", c.FullPath(),
				"stack", string(debug.Stack()),
			)
			if !c.Writer.Written() {
				response.ErrorWithStatus(c, http.StatusInternalServerError, "internal server error", "an unexpected error occurred")
			}
			c.Abort()
		}()
		c.Next()
	}
}
