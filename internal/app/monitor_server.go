package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"orderflow/internal/config"
	"orderflow/internal/generator"
)

const (
	defaultPushInterval = time.Second
	streamWriteWait     = 5 * time.Second
)

type statsProvider interface {
	Stats() []generator.Stats
}

// filterStats 按 ?name= 过滤实例，未指定时原样返回。
func filterStats(stats []generator.Stats, r *http.Request) []generator.Stats {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		return stats
	}
	filtered := make([]generator.Stats, 0, 1)
	for _, s := range stats {
		if s.Name == name {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

func newMonitorHandler(provider statsProvider, push time.Duration, logger *zap.Logger) http.Handler {
	if push <= 0 {
		push = defaultPushInterval
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /instances", func(w http.ResponseWriter, r *http.Request) {
		stats := filterStats(provider.Stats(), r)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			logger.Warn("写入监控响应失败", zap.Error(err))
		}
	})
	// 每个 push 周期推送一次状态数组，直到客户端断开或服务关闭。
	mux.HandleFunc("GET /instances/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("监控订阅升级失败", zap.Error(err))
			return
		}
		defer conn.Close()
		streamStats(r.Context(), conn, func() []generator.Stats { return filterStats(provider.Stats(), r) }, push, logger)
	})
	return mux
}

func streamStats(ctx context.Context, conn *websocket.Conn, stats func() []generator.Stats, push time.Duration, logger *zap.Logger) {
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(push)
	defer ticker.Stop()
	for {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(stats()); err != nil {
			logger.Debug("监控订阅已断开", zap.Error(err))
			return
		}
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second),
			)
			return
		case <-gone:
			return
		case <-ticker.C:
		}
	}
}

// startMonitorServer 在 cfg.Port 上提供实例状态查询与推送，ctx 结束时关闭。
func startMonitorServer(ctx context.Context, provider statsProvider, cfg config.MonitorConfig, logger *zap.Logger) error {
	addr := fmt.Sprintf(":%d", cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: 监听监控端口 %s 失败: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           newMonitorHandler(provider, cfg.PushInterval, logger),
		ReadHeaderTimeout: 5 * time.Second,
		// 订阅连接被接管后不受 Shutdown 约束，随 ctx 一并结束。
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("关闭监控服务失败", zap.Error(err))
		}
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("监控服务异常", zap.Error(err))
		}
	}()

	logger.Info("监控接口已启动", zap.String("addr", ln.Addr().String()))
	return nil
}
