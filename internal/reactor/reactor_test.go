package reactor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/giterlab/teleserver/internal/clock"
)

func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestLoopFiresFDHandlerOnReadable(t *testing.T) {
	a, b := socketpair(t)

	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	fired := false
	require.NoError(t, l.AddFD(a, EventRead, func(fd int, events EventMask) {
		fired = true
		require.Equal(t, a, fd)
		require.NotZero(t, events&EventRead)
	}))

	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)

	require.NoError(t, l.Run(1000))
	require.True(t, fired)
}

func TestLoopModifyAndRemoveFD(t *testing.T) {
	a, b := socketpair(t)

	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.AddFD(a, EventRead, func(int, EventMask) {}))
	require.NoError(t, l.ModifyFD(a, EventRead|EventWrite))
	require.NoError(t, l.RemoveFD(a))
	require.NoError(t, l.RemoveFD(a)) // second remove is a no-op

	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)

	// No handler registered anymore; Run should simply time out quietly.
	require.NoError(t, l.Run(10))
}

func TestLoopAddFDRejectsInvalid(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	require.Error(t, l.AddFD(-1, EventRead, func(int, EventMask) {}))
	require.Error(t, l.AddFD(0, EventRead, nil))
}

func TestLoopTimerFiresAfterDeadline(t *testing.T) {
	fc := clock.NewFake(1000)
	l, err := NewWithClock(fc)
	require.NoError(t, err)
	defer l.Close()

	fired := 0
	_, err = l.AddTimer(50, false, func() { fired++ })
	require.NoError(t, err)

	// Before the deadline: a zero-wait run should not fire it.
	require.NoError(t, l.Run(0))
	require.Equal(t, 0, fired)

	fc.Advance(50)
	require.NoError(t, l.Run(0))
	require.Equal(t, 1, fired)

	// One-shot timers do not refire.
	fc.Advance(1000)
	require.NoError(t, l.Run(0))
	require.Equal(t, 1, fired)
}

func TestLoopPeriodicTimerRearms(t *testing.T) {
	fc := clock.NewFake(0)
	l, err := NewWithClock(fc)
	require.NoError(t, err)
	defer l.Close()

	fired := 0
	id, err := l.AddTimer(10, true, func() { fired++ })
	require.NoError(t, err)

	fc.Advance(10)
	require.NoError(t, l.Run(0))
	fc.Advance(10)
	require.NoError(t, l.Run(0))
	require.Equal(t, 2, fired)

	l.RemoveTimer(id)
	fc.Advance(10)
	require.NoError(t, l.Run(0))
	require.Equal(t, 2, fired)
}

func TestLoopAddTimerTableFull(t *testing.T) {
	fc := clock.NewFake(0)
	l, err := NewWithClock(fc)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < MaxTimers; i++ {
		_, err := l.AddTimer(1000, false, func() {})
		require.NoError(t, err)
	}
	_, err = l.AddTimer(1000, false, func() {})
	require.ErrorIs(t, err, ErrTimersFull)
}

func TestLoopStopEndsIndefiniteRun(t *testing.T) {
	fc := clock.NewFake(0)
	l, err := NewWithClock(fc)
	require.NoError(t, err)
	defer l.Close()

	_, err = l.AddTimer(5, false, func() { l.Stop() })
	require.NoError(t, err)
	fc.Advance(5)

	require.NoError(t, l.Run(-1))
	require.False(t, l.IsRunning())
}
