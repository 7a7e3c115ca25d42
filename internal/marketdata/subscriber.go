package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"orderflow/internal/wire"
)

const (
	defaultBufferSize = 16
	defaultService    = "exchange.ExchangeService"
)

// Subscriber 持续接收盘口快照。
type Subscriber interface {
	// Snapshots 在订阅结束时关闭。
	Snapshots() <-chan Snapshot
	// Err 返回导致订阅结束的错误，主动取消或服务端正常结束时为 nil。
	Err() error
	Close() error
}

// FeedConfig 描述快照源。
type FeedConfig struct {
	Address  string
	Service  string
	SymbolID uint64
}

// FeedSubscriber 通过 SubscribeToOrderBook 服务端流订阅快照。
// 消费端处理不及时时丢弃最旧的快照，只保留最新状态。
type FeedSubscriber struct {
	conn   *grpc.ClientConn
	stream grpc.ClientStream
	cancel context.CancelFunc
	out    chan Snapshot
	logger *zap.Logger

	closeOnce sync.Once
	done      chan struct{}

	mu      sync.Mutex
	err     error
	dropped uint64
}

var _ Subscriber = (*FeedSubscriber)(nil)

// DialFeed 连接快照源并发起订阅，ctx 取消时关闭订阅。
func DialFeed(ctx context.Context, cfg FeedConfig, logger *zap.Logger) (*FeedSubscriber, error) {
	if cfg.Address == "" {
		return nil, errors.New("marketdata: address 不能为空")
	}
	if cfg.Service == "" {
		cfg.Service = defaultService
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(wire.Codec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("marketdata: 创建 %s 连接失败: %w", cfg.Address, err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := subscribe(streamCtx, conn, cfg)
	if err != nil {
		cancel()
		_ = conn.Close()
		return nil, fmt.Errorf("marketdata: 订阅 %s 失败: %w", cfg.Address, err)
	}

	s := &FeedSubscriber{
		conn:   conn,
		stream: stream,
		cancel: cancel,
		out:    make(chan Snapshot, defaultBufferSize),
		logger: logger.With(zap.String("feed", cfg.Address), zap.Uint64("symbol_id", cfg.SymbolID)),
		done:   make(chan struct{}),
	}
	go s.readLoop(streamCtx)

	return s, nil
}

func subscribe(ctx context.Context, conn *grpc.ClientConn, cfg FeedConfig) (grpc.ClientStream, error) {
	desc := &grpc.StreamDesc{StreamName: "SubscribeToOrderBook", ServerStreams: true}
	stream, err := conn.NewStream(ctx, desc, "/"+cfg.Service+"/SubscribeToOrderBook")
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&subscribeRequest{SymbolID: cfg.SymbolID}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return stream, nil
}

func (s *FeedSubscriber) Snapshots() <-chan Snapshot {
	return s.out
}

func (s *FeedSubscriber) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Dropped 返回因消费过慢被丢弃的快照数量。
func (s *FeedSubscriber) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *FeedSubscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
		err = s.conn.Close()
	})
	return err
}

func (s *FeedSubscriber) readLoop(ctx context.Context) {
	defer close(s.out)
	defer func() { _ = s.Close() }()

	for {
		var snapshot Snapshot
		err := s.stream.RecvMsg(&snapshot)
		if err == nil {
			s.deliver(snapshot)
			continue
		}

		select {
		case <-s.done:
		default:
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.setErr(fmt.Errorf("marketdata: 读取行情失败: %w", err))
			}
		}
		s.logger.Debug("行情订阅结束", zap.Error(err))
		return
	}
}

func (s *FeedSubscriber) deliver(snapshot Snapshot) {
	for {
		select {
		case s.out <- snapshot:
			return
		default:
		}
		select {
		case <-s.out:
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
		default:
		}
	}
}

func (s *FeedSubscriber) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
