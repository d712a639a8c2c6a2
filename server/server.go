// Package server 提供 HTTP 预测服务：模型热加载、批量推理与服务生命周期管理.
package server

import "context"

// Server 定义了可被统一管理生命周期的服务。
type Server interface {
	// Start 阻塞运行，直到 ctx 取消或启动失败。
	Start(ctx context.Context) error
	// Stop 优雅关闭，等待处理中的请求完成。
	Stop(ctx context.Context) error
}
