package middleware

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const (
	HeaderXRequestID = "X-Request-ID"
	requestIDKey     = "request_id"
)

// RequestID 透传客户端给出的请求 ID，没有时用雪花算法生成。
func RequestID(node *snowflake.Node) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderXRequestID)
		if requestID == "" {
			requestID = node.Generate().String()
		}

		c.Set(requestIDKey, requestID)
		c.Header(HeaderXRequestID, requestID)

		c.Next()
	}
}

// GetRequestID 当前请求的 ID，未经过 RequestID 中间件时为空.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
