// Package clock provides an injectable monotonic-millisecond time source,
// so the reactor's timer wheel and the legacy /time handler can be tested
// deterministically instead of depending on the wall clock directly.
package clock

import "time"

// Clock returns the current time in milliseconds, on a monotonic or
// monotonic-equivalent scale suitable for computing timer deadlines.
type Clock interface {
	NowMS() int64
}

// Real is the production Clock, backed by time.Now().
type Real struct{}

// wallStart anchors Real's readings to Unix-epoch milliseconds; the time
// elapsed since it is measured on the monotonic clock.
var wallStart = time.Now()

// NowMS implements Clock using the wall clock's monotonic reading: the
// Unix-epoch milliseconds at wallStart plus the monotonic time elapsed
// since, so readings never go backwards when the wall clock is adjusted.
func (Real) NowMS() int64 {
	return wallStart.UnixMilli() + time.Since(wallStart).Milliseconds()
}

// Fake is a test Clock with a manually advanced value.
type Fake struct {
	ms int64
}

// NewFake returns a Fake starting at the given millisecond value.
func NewFake(startMS int64) *Fake {
	return &Fake{ms: startMS}
}

// NowMS implements Clock.
func (f *Fake) NowMS() int64 {
	return f.ms
}

// Advance moves the fake clock forward by delta milliseconds.
func (f *Fake) Advance(delta int64) {
	f.ms += delta
}
