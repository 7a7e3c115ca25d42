package marketdata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// HeaderSize 为帧头长度：4 字节小端序负载长度，其后为 OrderBookState 的 protobuf 编码。
const HeaderSize = 4

var (
	// ErrFrameTooLarge 表示编码后的快照超出目标区域。
	ErrFrameTooLarge = errors.New("marketdata: frame exceeds region size")
	// ErrShortFrame 表示区域长度不足以容纳帧头声明的负载。
	ErrShortFrame = errors.New("marketdata: short frame")
	// ErrEmptyFrame 表示区域尚未写入任何快照。
	ErrEmptyFrame = errors.New("marketdata: empty frame")
)

// EncodeFrame 将快照写入固定大小的区域 dst，返回写入的总字节数。
func EncodeFrame(dst []byte, s Snapshot) (int, error) {
	payload := s.AppendWire(nil)
	if uint64(len(payload)) > math.MaxUint32 || HeaderSize+len(payload) > len(dst) {
		return 0, fmt.Errorf("%w: need %d bytes, region %d", ErrFrameTooLarge, HeaderSize+len(payload), len(dst))
	}

	binary.LittleEndian.PutUint32(dst[:HeaderSize], uint32(len(payload)))
	copy(dst[HeaderSize:], payload)
	return HeaderSize + len(payload), nil
}

// DecodeFrame 从区域 src 读取帧头声明长度的负载并解码。
func DecodeFrame(src []byte) (Snapshot, error) {
	if len(src) < HeaderSize {
		return Snapshot{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(src))
	}

	size := binary.LittleEndian.Uint32(src[:HeaderSize])
	if size == 0 {
		return Snapshot{}, ErrEmptyFrame
	}
	if uint64(size) > uint64(len(src)-HeaderSize) {
		return Snapshot{}, fmt.Errorf("%w: header declares %d bytes, %d available", ErrShortFrame, size, len(src)-HeaderSize)
	}

	var s Snapshot
	if err := s.UnmarshalWire(src[HeaderSize : HeaderSize+int(size)]); err != nil {
		return Snapshot{}, fmt.Errorf("marketdata: 解码快照失败: %w", err)
	}
	return s, nil
}
