// Package reactor implements a single-threaded, readiness-based event loop:
// a portable multiplexer over file descriptors plus an internal timer set,
// translated from the epoll/kqueue EventLoop of the source material into
// Go closures in place of the original's (callback, user_data) C pairs, per
// that design's recommendation to replace the opaque pointer pattern with
// a capability-holding handle.
package reactor

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/giterlab/teleserver/internal/clock"
)

// EventMask is a bitmask of readiness conditions.
type EventMask uint8

// Readiness bits.
const (
	EventRead EventMask = 1 << iota
	EventWrite
	EventError
)

// MaxFDs bounds the number of file descriptors the loop can track.
const MaxFDs = 1024

// MaxTimers bounds the number of timers the loop can track.
const MaxTimers = 64

// maxPollEvents bounds how many ready events a single wait can report.
const maxPollEvents = 64

// defaultWaitMS is the poll wait used when running indefinitely with no
// armed timers, so Stop becomes observable within a bounded time.
const defaultWaitMS = 1000

// FDHandler is invoked when fd becomes ready for the given events. It may
// freely add/remove/modify other FDs and timers; Loop.Run tolerates such
// mutation mid-iteration without revisiting the same readiness twice.
type FDHandler func(fd int, events EventMask)

// TimerCallback is invoked when a timer fires.
type TimerCallback func()

// Errors returned by Loop's registration methods.
var (
	ErrInvalidFD    = errors.New("reactor: invalid file descriptor")
	ErrFDTableFull  = fmt.Errorf("reactor: fd table full (max %d)", MaxFDs)
	ErrTimersFull   = fmt.Errorf("reactor: timer table full (max %d)", MaxTimers)
	ErrFDNotTracked = errors.New("reactor: fd not registered")
)

type fdEntry struct {
	active  bool
	events  EventMask
	handler FDHandler
}

type timerEntry struct {
	active   bool
	id       int
	periodMS int64
	periodic bool
	nextFire int64
	callback TimerCallback
}

// Loop is a single-threaded event loop: a poller-backed FD multiplexer plus
// a timer wheel. The zero value is not usable; construct with New.
type Loop struct {
	poller       poller
	clock        clock.Clock
	fds          [MaxFDs]fdEntry
	timers       [MaxTimers]timerEntry
	nextTimerID  int
	running      bool
	stopReq      atomic.Bool
}

// New creates a Loop using the platform's native poller (epoll on Linux,
// poll(2) elsewhere) and the real wall clock.
func New() (*Loop, error) {
	return NewWithClock(clock.Real{})
}

// NewWithClock creates a Loop with an injectable Clock, for deterministic
// timer tests.
func NewWithClock(c clock.Clock) (*Loop, error) {
	p, err := newPoller()
	if err != nil {
		return nil, fmt.Errorf("reactor: create poller: %w", err)
	}
	return &Loop{poller: p, clock: c, nextTimerID: 1}, nil
}

// Close releases the loop's native poller resources.
func (l *Loop) Close() error {
	return l.poller.close()
}

// AddFD registers fd for the given events, invoking handler whenever it
// becomes ready.
func (l *Loop) AddFD(fd int, events EventMask, handler FDHandler) error {
	if fd < 0 || fd >= MaxFDs || handler == nil {
		return ErrInvalidFD
	}
	if l.fds[fd].active {
		return fmt.Errorf("reactor: fd %d already registered", fd)
	}
	if err := l.poller.add(fd, events); err != nil {
		return fmt.Errorf("reactor: add fd %d: %w", fd, err)
	}
	l.fds[fd] = fdEntry{active: true, events: events, handler: handler}
	return nil
}

// ModifyFD changes the readiness interest for an already-registered fd.
func (l *Loop) ModifyFD(fd int, events EventMask) error {
	if fd < 0 || fd >= MaxFDs {
		return ErrInvalidFD
	}
	if !l.fds[fd].active {
		return ErrFDNotTracked
	}
	if err := l.poller.modify(fd, events); err != nil {
		return fmt.Errorf("reactor: modify fd %d: %w", fd, err)
	}
	l.fds[fd].events = events
	return nil
}

// RemoveFD deregisters fd. Removing an fd that isn't registered is a no-op.
func (l *Loop) RemoveFD(fd int) error {
	if fd < 0 || fd >= MaxFDs {
		return ErrInvalidFD
	}
	if !l.fds[fd].active {
		return nil
	}
	_ = l.poller.remove(fd)
	l.fds[fd] = fdEntry{}
	return nil
}

// AddTimer arms a timer that fires callback after timeoutMS milliseconds,
// repeating every timeoutMS if periodic. Returns a timer ID (>0) usable
// with RemoveTimer, or an error if the timer table is full.
func (l *Loop) AddTimer(timeoutMS int64, periodic bool, callback TimerCallback) (int, error) {
	if callback == nil {
		return 0, errors.New("reactor: nil timer callback")
	}
	for i := range l.timers {
		if !l.timers[i].active {
			id := l.nextTimerID
			l.nextTimerID++
			l.timers[i] = timerEntry{
				active:   true,
				id:       id,
				periodMS: timeoutMS,
				periodic: periodic,
				nextFire: l.clock.NowMS() + timeoutMS,
				callback: callback,
			}
			return id, nil
		}
	}
	return 0, ErrTimersFull
}

// RemoveTimer disarms a timer by ID. Removing an unknown or already-fired
// one-shot timer is a no-op.
func (l *Loop) RemoveTimer(id int) {
	for i := range l.timers {
		if l.timers[i].active && l.timers[i].id == id {
			l.timers[i].active = false
			return
		}
	}
}

// IsRunning reports whether Run is currently looping.
func (l *Loop) IsRunning() bool { return l.running }

// Stop requests that Run return at its next opportunity. Safe to call from
// within an FD or timer callback, or from another goroutine such as a
// signal handler.
func (l *Loop) Stop() { l.stopReq.Store(true) }

func (l *Loop) computeWaitMS(runTimeoutMS int) int {
	now := l.clock.NowMS()
	nextTimer := int64(-1)
	for i := range l.timers {
		if !l.timers[i].active {
			continue
		}
		delta := l.timers[i].nextFire - now
		if delta < 0 {
			delta = 0
		}
		if nextTimer < 0 || delta < nextTimer {
			nextTimer = delta
		}
	}
	switch {
	case runTimeoutMS >= 0 && nextTimer >= 0:
		if int64(runTimeoutMS) < nextTimer {
			return runTimeoutMS
		}
		return int(nextTimer)
	case runTimeoutMS >= 0:
		return runTimeoutMS
	case nextTimer >= 0:
		return int(nextTimer)
	default:
		return defaultWaitMS
	}
}

// fireDueTimers invokes every timer whose deadline has passed, rearming
// periodic ones. A timer armed or fired during this pass is not re-fired
// within the same pass, since it's evaluated against a snapshot of "now"
// taken before any callback runs.
func (l *Loop) fireDueTimers() {
	now := l.clock.NowMS()
	for i := range l.timers {
		t := &l.timers[i]
		if !t.active || t.nextFire > now {
			continue
		}
		cb := t.callback
		if t.periodic {
			t.nextFire = now + t.periodMS
		} else {
			t.active = false
		}
		cb()
	}
}

// Run executes the loop. If runTimeoutMS is negative, Run blocks until
// Stop is called; otherwise it performs exactly one poll+dispatch
// iteration bounded by runTimeoutMS and returns.
func (l *Loop) Run(runTimeoutMS int) error {
	l.running = true
	l.stopReq.Store(false)
	defer func() { l.running = false }()

	for {
		waitMS := l.computeWaitMS(runTimeoutMS)
		events, err := l.poller.wait(waitMS)
		if err != nil {
			if errors.Is(err, errInterrupted) {
				l.fireDueTimers()
				if runTimeoutMS >= 0 || l.stopReq.Load() {
					return nil
				}
				continue
			}
			return fmt.Errorf("reactor: poll wait: %w", err)
		}

		for _, ev := range events {
			entry := &l.fds[ev.fd]
			if !entry.active {
				continue
			}
			entry.handler(ev.fd, ev.events)
		}

		l.fireDueTimers()

		if runTimeoutMS >= 0 || l.stopReq.Load() {
			return nil
		}
	}
}
