package venue

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protowire"

	"orderflow/internal/config"
	"orderflow/internal/wire"
)

// DefaultService 为撮合场所注册的 gRPC 服务全名。
const DefaultService = "exchange.ExchangeService"

// ErrClosed 表示客户端已关闭。
var ErrClosed = errors.New("venue: client closed")

// 传输失败的分类。
const (
	OpUnavailable = "unavailable"
	OpTimeout     = "timeout"
	OpRejected    = "rejected"
	OpDecode      = "decode"
	OpClosed      = "closed"
)

// TransportError 表示单笔订单未能送达或未得到场所确认。
type TransportError struct {
	Op   string
	Code codes.Code
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("venue: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout 报告失败是否由提交超时引起。
func (e *TransportError) Timeout() bool {
	return e.Op == OpTimeout
}

// Outcome 为场所返回的提交结果。
type Outcome struct {
	Status  string
	Latency time.Duration
}

// orderResponse 对应 OrderResponseMessage。
type orderResponse struct {
	ExchangeStatus string
}

func (r *orderResponse) AppendWire(b []byte) []byte {
	return wire.AppendString(b, 1, r.ExchangeStatus)
}

func (r *orderResponse) UnmarshalWire(b []byte) error {
	*r = orderResponse{}
	return wire.Walk(b, func(f wire.Field) error {
		if f.Num == 1 && f.Type == protowire.BytesType {
			r.ExchangeStatus = string(f.Bytes)
		}
		return nil
	})
}

// Config 描述单个场所连接。
type Config struct {
	Address        string
	Service        string
	SubmitTimeout  time.Duration
	DialTimeout    time.Duration
	RedialInterval time.Duration
}

// ConfigFrom 将全局场所配置绑定到具体地址。
func ConfigFrom(address string, cfg config.VenueConfig) Config {
	return Config{
		Address:        address,
		Service:        cfg.Service,
		SubmitTimeout:  cfg.SubmitTimeout,
		DialTimeout:    cfg.DialTimeout,
		RedialInterval: cfg.RedialInterval,
	}
}

func (c Config) method(name string) string {
	service := c.Service
	if service == "" {
		service = DefaultService
	}
	return "/" + service + "/" + name
}

// classify 将 gRPC 状态码映射为失败分类。
func classify(err error) (string, codes.Code) {
	code := status.Code(err)
	switch code {
	case codes.DeadlineExceeded:
		return OpTimeout, code
	case codes.Unavailable:
		return OpUnavailable, code
	case codes.Canceled:
		return OpClosed, code
	default:
		return OpRejected, code
	}
}
