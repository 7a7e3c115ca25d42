// Package wire 提供场所协议消息的 protobuf 线格式编解码。
// 字段编号见 api/exchange.proto。
package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshaler 由可追加自身 protobuf 编码的消息实现。
type Marshaler interface {
	AppendWire(b []byte) []byte
}

// Unmarshaler 由可从 protobuf 编码还原的消息实现。
type Unmarshaler interface {
	UnmarshalWire(b []byte) error
}

// Raw 原样保存一条尚未解码的消息。
type Raw []byte

func (r Raw) AppendWire(b []byte) []byte {
	return append(b, r...)
}

func (r *Raw) UnmarshalWire(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}

// ErrMalformed 表示字节流不是合法的 protobuf 编码。
var ErrMalformed = errors.New("wire: malformed message")

// Codec 为 gRPC 编解码器，名称与 protobuf 默认编解码器一致，
// 因此可与任何按 proto 描述生成的服务端互通。
type Codec struct{}

func (Codec) Name() string {
	return "proto"
}

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Marshaler)
	if !ok {
		return nil, fmt.Errorf("wire: %T 不支持编码", v)
	}
	return m.AppendWire(nil), nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Unmarshaler)
	if !ok {
		return fmt.Errorf("wire: %T 不支持解码", v)
	}
	return m.UnmarshalWire(data)
}

// AppendVarint 追加一个 varint 字段，零值按 proto3 省略。
func AppendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// AppendString 追加一个字符串字段，空串省略。
func AppendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// AppendMessage 追加一个嵌套消息字段。空消息仍然写出，保证 repeated 元素个数不变。
func AppendMessage(b []byte, num protowire.Number, m Marshaler) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.AppendWire(nil))
}

// Field 为 Walk 遍历到的一个字段。Varint 类型只填 Value，Bytes 类型只填 Bytes。
type Field struct {
	Num   protowire.Number
	Type  protowire.Type
	Value uint64
	Bytes []byte
}

// Walk 依次回调 b 中的每个字段；未知的定长字段被跳过。
func Walk(b []byte, fn func(Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			f.Value, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: 字段 %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.VarintType && typ != protowire.BytesType {
			continue
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}
