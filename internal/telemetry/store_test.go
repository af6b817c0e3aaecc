package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giterlab/teleserver/internal/clock"
)

func TestStoreAddRejectsEmpty(t *testing.T) {
	s := New(clock.NewFake(0))
	err := s.Add(nil)
	require.ErrorIs(t, err, ErrEmptyPayload)
}

func TestStoreAddRejectsOversized(t *testing.T) {
	s := New(clock.NewFake(0))
	err := s.Add(make([]byte, MaxEntrySize+1))
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestStoreAddAcceptsAtMaxSize(t *testing.T) {
	s := New(clock.NewFake(0))
	require.NoError(t, s.Add(make([]byte, MaxEntrySize)))
}

func TestStoreAllChronologicalBeforeFull(t *testing.T) {
	fc := clock.NewFake(100)
	s := New(fc)

	require.NoError(t, s.Add([]byte(`{"a":1}`)))
	fc.Advance(1)
	require.NoError(t, s.Add([]byte(`{"a":2}`)))
	fc.Advance(1)
	require.NoError(t, s.Add([]byte(`{"a":3}`)))

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, `{"a":1}`, string(all[0].JSON))
	assert.Equal(t, `{"a":2}`, string(all[1].JSON))
	assert.Equal(t, `{"a":3}`, string(all[2].JSON))
	assert.Equal(t, int64(100), all[0].TimestampMS)
	assert.Equal(t, int64(102), all[2].TimestampMS)
}

func TestStoreWrapsAtCapacity(t *testing.T) {
	fc := clock.NewFake(0)
	s := New(fc)

	for i := 0; i < Capacity+5; i++ {
		require.NoError(t, s.Add([]byte{byte(i)}))
	}

	all := s.All()
	require.Len(t, all, Capacity)
	// The oldest surviving entry is #5 (0..4 were overwritten).
	assert.Equal(t, byte(5), all[0].JSON[0])
	assert.Equal(t, byte(Capacity+4), all[len(all)-1].JSON[0])
}

func TestStoreStats(t *testing.T) {
	fc := clock.NewFake(500)
	s := New(fc)

	stats := s.Stats()
	assert.Equal(t, uint64(0), stats.TotalReceived)
	assert.Equal(t, Capacity, stats.Capacity)

	require.NoError(t, s.Add([]byte("x")))
	stats = s.Stats()
	assert.Equal(t, uint64(1), stats.TotalReceived)
	assert.Equal(t, 1, stats.CurrentCount)
	assert.Equal(t, int64(500), stats.LastReceivedMS)
}

func TestStoreClear(t *testing.T) {
	s := New(clock.NewFake(0))
	require.NoError(t, s.Add([]byte("x")))
	s.Clear()

	assert.Empty(t, s.All())
	stats := s.Stats()
	assert.Equal(t, uint64(0), stats.TotalReceived)
	assert.Equal(t, 0, stats.CurrentCount)
}

func TestStoreAddCopiesPayload(t *testing.T) {
	s := New(clock.NewFake(0))
	payload := []byte("original")
	require.NoError(t, s.Add(payload))
	payload[0] = 'X'

	all := s.All()
	assert.Equal(t, "original", string(all[0].JSON))
}
