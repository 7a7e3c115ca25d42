package venue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"

	"orderflow/internal/order"
	"orderflow/internal/wire"
)

const (
	defaultSubmitTimeout = 2 * time.Second
	defaultDialTimeout   = 2 * time.Second
	maxRedialDelay       = 30 * time.Second
)

// Client 维护到单个撮合场所的持久 gRPC 连接，逐笔调用 HandleOrder。
// 连接断开后由 gRPC 按 RedialInterval 起步的退避自动重连，重连期间的提交快速失败。
type Client struct {
	cfg    Config
	method string
	conn   *grpc.ClientConn
	logger *zap.Logger

	closed atomic.Bool
	stop   context.CancelFunc
}

// NewClient 创建场所客户端，连接在首次提交时建立。
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("venue: address 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = defaultSubmitTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}

	bo := backoff.DefaultConfig
	if cfg.RedialInterval > 0 {
		bo.BaseDelay = cfg.RedialInterval
		bo.MaxDelay = max(cfg.RedialInterval, maxRedialDelay)
	}

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithConnectParams(grpc.ConnectParams{Backoff: bo, MinConnectTimeout: cfg.DialTimeout}),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(wire.Codec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("venue: 创建 %s 连接失败: %w", cfg.Address, err)
	}

	ctx, stop := context.WithCancel(context.Background())
	c := &Client{
		cfg:    cfg,
		method: cfg.method("HandleOrder"),
		conn:   conn,
		logger: logger,
		stop:   stop,
	}
	go c.watchState(ctx)
	return c, nil
}

// Connected 报告连接当前是否就绪。
func (c *Client) Connected() bool {
	return c.conn.GetState() == connectivity.Ready
}

// Submit 发送一笔订单并等待场所返回状态，单笔耗时不超过 SubmitTimeout。
// ctx 取消时中断进行中的调用并返回 ctx.Err()。
func (c *Client) Submit(ctx context.Context, o order.Order) (Outcome, error) {
	if c.closed.Load() {
		return Outcome{}, &TransportError{Op: OpClosed, Addr: c.cfg.Address, Err: ErrClosed}
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	defer cancel()

	start := time.Now()
	var reply wire.Raw
	if err := c.conn.Invoke(callCtx, c.method, o, &reply); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, ctxErr
		}
		op, code := classify(err)
		return Outcome{}, &TransportError{Op: op, Code: code, Addr: c.cfg.Address, Err: err}
	}
	latency := time.Since(start)

	// 每次调用独占一个 HTTP/2 流，解码失败不影响后续订单的应答配对。
	var resp orderResponse
	if err := resp.UnmarshalWire(reply); err != nil {
		return Outcome{}, &TransportError{Op: OpDecode, Addr: c.cfg.Address, Err: err}
	}

	return Outcome{Status: resp.ExchangeStatus, Latency: latency}, nil
}

// Close 释放连接，可重复调用。
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.stop()
	if err := c.conn.Close(); err != nil {
		return &TransportError{Op: OpClosed, Addr: c.cfg.Address, Err: err}
	}
	c.logger.Debug("场所连接已关闭")
	return nil
}

func (c *Client) watchState(ctx context.Context) {
	state := c.conn.GetState()
	for c.conn.WaitForStateChange(ctx, state) {
		state = c.conn.GetState()
		switch state {
		case connectivity.Ready:
			c.logger.Info("已连接撮合场所", zap.String("method", c.method))
		case connectivity.TransientFailure:
			c.logger.Warn("撮合场所连接中断，等待重连")
		}
	}
}
