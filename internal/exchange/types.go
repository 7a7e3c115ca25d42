package exchange

import "time"

// Candle 为校准所需的K线字段：收盘时间与收盘价。
type Candle struct {
	Timestamp time.Time
	Close     float64
}
