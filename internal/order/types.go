package order

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"orderflow/internal/wire"
)

// Command 为撮合场所的订单指令。
type Command int

const (
	CommandAdd Command = iota
	CommandDelete
	CommandCancel
	CommandReplace
)

func (c Command) String() string {
	switch c {
	case CommandAdd:
		return "ADD"
	case CommandDelete:
		return "DELETE"
	case CommandCancel:
		return "CANCEL"
	case CommandReplace:
		return "REPLACE"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

// Type 为订单类型。
type Type int

const (
	TypeLimit Type = iota
	TypeMarket
	TypeStop
	TypeStopLimit
	TypeTrailingStop
	TypeTrailingStopLimit
)

func (t Type) String() string {
	switch t {
	case TypeLimit:
		return "LIMIT"
	case TypeMarket:
		return "MARKET"
	case TypeStop:
		return "STOP"
	case TypeStopLimit:
		return "STOP_LIMIT"
	case TypeTrailingStop:
		return "TRAILING_STOP"
	case TypeTrailingStopLimit:
		return "TRAILING_STOP_LIMIT"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// TimeInForce 为订单有效期。
type TimeInForce int

const (
	GoodTillCancel TimeInForce = iota
	ImmediateOrCancel
	FillOrKill
)

func (tif TimeInForce) String() string {
	switch tif {
	case GoodTillCancel:
		return "GTC"
	case ImmediateOrCancel:
		return "IOC"
	case FillOrKill:
		return "FOK"
	default:
		return fmt.Sprintf("TimeInForce(%d)", int(tif))
	}
}

// Side 为买卖方向。
type Side int

const (
	SideBid Side = iota
	SideAsk
)

func (s Side) String() string {
	switch s {
	case SideBid:
		return "BID"
	case SideAsk:
		return "ASK"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// Order 为提交给撮合场所的合成限价单，价格以分为单位。
// 对应场所协议的 OrderMessage，字段顺序与编号一致。
type Order struct {
	Command              Command
	Type                 Type
	TimeInForce          TimeInForce
	Side                 Side
	ID                   uint64
	SymbolID             uint64
	Price                uint64
	StopPrice            uint64
	TrailingAmount       uint64
	LastExecutedPrice    uint64
	Quantity             uint64
	OpenQuantity         uint64
	LastExecutedQuantity uint64
}

// AppendWire 追加订单的 protobuf 编码。
func (o Order) AppendWire(b []byte) []byte {
	b = wire.AppendVarint(b, 1, uint64(o.Command))
	b = wire.AppendVarint(b, 2, uint64(o.Type))
	b = wire.AppendVarint(b, 3, uint64(o.TimeInForce))
	b = wire.AppendVarint(b, 4, uint64(o.Side))
	for i, v := range o.quantities() {
		b = wire.AppendVarint(b, protowire.Number(5+i), *v)
	}
	return b
}

// UnmarshalWire 从 protobuf 编码还原订单，未知字段被忽略。
func (o *Order) UnmarshalWire(b []byte) error {
	*o = Order{}
	fields := o.quantities()
	err := wire.Walk(b, func(f wire.Field) error {
		if f.Type != protowire.VarintType {
			return nil
		}
		switch {
		case f.Num == 1:
			o.Command = Command(f.Value)
		case f.Num == 2:
			o.Type = Type(f.Value)
		case f.Num == 3:
			o.TimeInForce = TimeInForce(f.Value)
		case f.Num == 4:
			o.Side = Side(f.Value)
		case f.Num >= 5 && int(f.Num) < 5+len(fields):
			*fields[f.Num-5] = f.Value
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("order: 解码订单失败: %w", err)
	}
	return nil
}

// quantities 按字段编号 5 起的顺序返回整数字段。
func (o *Order) quantities() [9]*uint64 {
	return [9]*uint64{
		&o.ID, &o.SymbolID, &o.Price, &o.StopPrice, &o.TrailingAmount,
		&o.LastExecutedPrice, &o.Quantity, &o.OpenQuantity, &o.LastExecutedQuantity,
	}
}
