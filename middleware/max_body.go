package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/smosvm/response"
	"github.com/wyfcoding/smosvm/xerrors"
)

// MaxBodyBytes 限制请求体大小，limit <= 0 时返回空操作中间件。
// 声明了 Content-Length 的请求直接拒绝；分块上传由 http.MaxBytesReader 在读取时截断，
// 处理函数需把 *http.MaxBytesError 映射为 ErrBodyTooLarge.
func MaxBodyBytes(limit int64) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if n := c.Request.ContentLength; n > limit {
			response.Error(c, xerrors.Detailf(xerrors.ErrBodyTooLarge, "content length %d exceeds %d bytes", n, limit))
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
