package service

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 90 * time.Second
)

// Server 监控服务的 HTTP 外壳
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer 流式响应按视频时长持续输出，因此只限制请求头读取与空闲连接，不设置 WriteTimeout
func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
			IdleTimeout:       idleTimeout,
			ErrorLog:          zap.NewStdLog(logger.Named("http")),
		},
		logger: logger,
	}
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start 阻塞直到服务关闭；正常关闭时返回 http.ErrServerClosed
func (s *Server) Start() error {
	s.logger.Info("posture-monitor listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Stop 停止接收新连接，等待进行中的会话在 ctx 截止前结束
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("posture-monitor shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		// 仍有流式会话未结束，强制关闭连接使会话因写失败退出
		s.logger.Warn("graceful shutdown timed out, closing connections", zap.Error(err))
		_ = s.httpServer.Close()
		return err
	}
	return nil
}
