// Package marketdata 描述撮合引擎发布的盘口快照格式及其订阅端。
// 订单流生成器本身不依赖此包。
package marketdata

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"orderflow/internal/wire"
)

// Level 为单个价位，价格以分为单位。对应 LevelState。
type Level struct {
	Price    uint64
	Quantity uint64
}

func (l Level) AppendWire(b []byte) []byte {
	b = wire.AppendVarint(b, 1, l.Price)
	return wire.AppendVarint(b, 2, l.Quantity)
}

func (l *Level) UnmarshalWire(b []byte) error {
	*l = Level{}
	return wire.Walk(b, func(f wire.Field) error {
		if f.Type != protowire.VarintType {
			return nil
		}
		switch f.Num {
		case 1:
			l.Price = f.Value
		case 2:
			l.Quantity = f.Value
		}
		return nil
	})
}

// Snapshot 为某一时刻的盘口状态，对应 OrderBookState。Bids 按价格降序，Asks 按价格升序。
type Snapshot struct {
	Bids              []Level
	Asks              []Level
	LastExecutedPrice uint64
	BestBid           uint64
	BestAsk           uint64
	Spread            uint64
	Timestamp         int64 // unix 纳秒
}

// NewSnapshot 由价位梯度构建快照并计算最优价与价差。
func NewSnapshot(bids, asks []Level, lastExecuted uint64, timestamp int64) Snapshot {
	s := Snapshot{
		Bids:              bids,
		Asks:              asks,
		LastExecutedPrice: lastExecuted,
		Timestamp:         timestamp,
	}
	if len(bids) > 0 {
		s.BestBid = bids[0].Price
	}
	if len(asks) > 0 {
		s.BestAsk = asks[0].Price
	}
	if len(bids) > 0 && len(asks) > 0 && s.BestAsk > s.BestBid {
		s.Spread = s.BestAsk - s.BestBid
	}
	return s
}

func (s Snapshot) AppendWire(b []byte) []byte {
	for _, l := range s.Bids {
		b = wire.AppendMessage(b, 1, l)
	}
	for _, l := range s.Asks {
		b = wire.AppendMessage(b, 2, l)
	}
	b = wire.AppendVarint(b, 3, s.LastExecutedPrice)
	b = wire.AppendVarint(b, 4, s.BestBid)
	b = wire.AppendVarint(b, 5, s.BestAsk)
	b = wire.AppendVarint(b, 6, s.Spread)
	return wire.AppendVarint(b, 7, uint64(s.Timestamp))
}

func (s *Snapshot) UnmarshalWire(b []byte) error {
	*s = Snapshot{}
	return wire.Walk(b, func(f wire.Field) error {
		if f.Type == protowire.BytesType {
			if f.Num != 1 && f.Num != 2 {
				return nil
			}
			var l Level
			if err := l.UnmarshalWire(f.Bytes); err != nil {
				return fmt.Errorf("价位字段 %d: %w", f.Num, err)
			}
			if f.Num == 1 {
				s.Bids = append(s.Bids, l)
			} else {
				s.Asks = append(s.Asks, l)
			}
			return nil
		}
		switch f.Num {
		case 3:
			s.LastExecutedPrice = f.Value
		case 4:
			s.BestBid = f.Value
		case 5:
			s.BestAsk = f.Value
		case 6:
			s.Spread = f.Value
		case 7:
			s.Timestamp = int64(f.Value)
		}
		return nil
	})
}

// subscribeRequest 对应 SubscribeRequest。
type subscribeRequest struct {
	SymbolID uint64
}

func (r *subscribeRequest) AppendWire(b []byte) []byte {
	return wire.AppendVarint(b, 1, r.SymbolID)
}

func (r *subscribeRequest) UnmarshalWire(b []byte) error {
	*r = subscribeRequest{}
	return wire.Walk(b, func(f wire.Field) error {
		if f.Num == 1 && f.Type == protowire.VarintType {
			r.SymbolID = f.Value
		}
		return nil
	})
}
