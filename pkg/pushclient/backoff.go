package pushclient

import (
	"math"
	"time"
)

// Backoff grows the delay between reconnect attempts geometrically
type Backoff struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

// DefaultBackoff starts at 500ms, grows by 10% per failure and caps at 5s
func DefaultBackoff() Backoff {
	return Backoff{Base: 500 * time.Millisecond, Factor: 1.1, Max: 5 * time.Second}
}

// Delay returns the wait before retry n, counting from zero
func (b Backoff) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := float64(b.Base) * math.Pow(b.Factor, float64(n))
	if b.Max > 0 && (d > float64(b.Max) || math.IsInf(d, 0)) {
		return b.Max
	}
	return time.Duration(d)
}

func (b Backoff) withDefaults() Backoff {
	def := DefaultBackoff()
	if b.Base <= 0 {
		b.Base = def.Base
	}
	if b.Factor < 1 {
		b.Factor = def.Factor
	}
	if b.Max <= 0 {
		b.Max = def.Max
	}
	return b
}

// Timer is a pending scheduled call
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. Tests substitute one that records delays.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
