// Package response 提供统一的 HTTP 响应封装，业务错误自动映射为 HTTP 状态码.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"

	"github.com/wyfcoding/smosvm/tracing"
	"github.com/wyfcoding/smosvm/xerrors"
)

// Body 统一响应体，code 为 0 表示成功。status 为错误对应的规范状态名，
// trace_id 在请求被追踪时出现在错误响应中.
type Body struct {
	Data    any    `json:"data,omitempty"`
	Msg     string `json:"msg"`
	Detail  string `json:"detail,omitempty"`
	Status  string `json:"status,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
	Code    int    `json:"code"`
}

// Success 发送一个标准的成功响应。
// 默认：HTTP 200，业务码 0，消息 "success"。
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Body{Code: 0, Msg: "success", Data: data})
}

// SuccessWithRawData 发送原始数据的成功响应 (不包装 code 和 msg)。
// 用于健康检查等系统接口。
func SuccessWithRawData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Error 发送错误响应。*xerrors.Error 使用其 HTTP 映射与业务码，其余错误返回 500.
func Error(c *gin.Context, err error) {
	if err == nil {
		Success(c, nil)
		return
	}

	e, ok := xerrors.FromError(err)
	if !ok {
		ErrorWithStatus(c, http.StatusInternalServerError, "internal server error", err.Error())
		return
	}
	c.JSON(e.HTTPStatus(), Body{
		Code:    e.Code,
		Msg:     e.Message,
		Detail:  e.Detail,
		Status:  e.GRPCCode().String(),
		TraceID: traceID(c),
	})
}

// ErrorWithStatus 发送一个带有指定 HTTP 状态码、消息和详情的错误响应。
func ErrorWithStatus(c *gin.Context, status int, msg string, detail string) {
	c.JSON(status, Body{
		Code:    status,
		Msg:     msg,
		Detail:  detail,
		Status:  codes.Internal.String(),
		TraceID: traceID(c),
	})
}

func traceID(c *gin.Context) string {
	if c.Request == nil {
		return ""
	}
	return tracing.GetTraceID(c.Request.Context())
}
