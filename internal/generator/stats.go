package generator

import (
	"math"
	"sync/atomic"

	"orderflow/internal/pricing"
)

// State 为实例生命周期状态。
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText 使状态以字符串形式出现在 JSON 中。
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Stats 为实例运行状态快照。
type Stats struct {
	Name      string  `json:"name"`
	Venue     string  `json:"venue"`
	RunID     string  `json:"runId"`
	State     State   `json:"state"`
	Day       int64   `json:"day"`
	Minute    int64   `json:"minute"`
	FairPrice float64 `json:"fairPrice"`
	Generated uint64  `json:"generated"`
	Submitted uint64  `json:"submitted"`
	Failed    uint64  `json:"failed"`
	LastID    uint64  `json:"lastId"`

	Calibration pricing.Params `json:"calibration"`
}

type counters struct {
	state     atomic.Int32
	day       atomic.Int64
	minute    atomic.Int64
	fairPrice atomic.Uint64
	generated atomic.Uint64
	submitted atomic.Uint64
	failed    atomic.Uint64
	lastID    atomic.Uint64
}

func (c *counters) setState(s State) {
	c.state.Store(int32(s))
}

func (c *counters) setStep(day, minute int, fair float64) {
	c.day.Store(int64(day))
	c.minute.Store(int64(minute))
	c.fairPrice.Store(math.Float64bits(fair))
}

func (c *counters) snapshot() Stats {
	return Stats{
		State:     State(c.state.Load()),
		Day:       c.day.Load(),
		Minute:    c.minute.Load(),
		FairPrice: math.Float64frombits(c.fairPrice.Load()),
		Generated: c.generated.Load(),
		Submitted: c.submitted.Load(),
		Failed:    c.failed.Load(),
		LastID:    c.lastID.Load(),
	}
}
