package coap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddOptionKeepsAscendingOrder(t *testing.T) {
	m := NewMessage()
	require.NoError(t, m.AddOption(URIPath, []byte("b")))
	require.NoError(t, m.AddOption(IfMatch, []byte("a")))
	require.NoError(t, m.AddOption(ContentFormat, []byte("c")))

	require.Len(t, m.Options, 3)
	assert.Equal(t, IfMatch, m.Options[0].Number)
	assert.Equal(t, ContentFormat, m.Options[1].Number)
	assert.Equal(t, URIPath, m.Options[2].Number)
}

func TestAddOptionStableForEqualNumbers(t *testing.T) {
	m := NewMessage()
	require.NoError(t, m.AddOption(URIPath, []byte("a")))
	require.NoError(t, m.AddOption(URIPath, []byte("b")))
	require.NoError(t, m.AddOption(URIPath, []byte("c")))

	assert.Equal(t, "a/b/c", m.URIPath())
}

func TestAddOptionRejectsCapacityExceeded(t *testing.T) {
	m := NewMessage()
	for i := 0; i < MaxOptions; i++ {
		require.NoError(t, m.AddOption(OptionNumber(i), nil))
	}
	err := m.AddOption(OptionNumber(MaxOptions), nil)
	require.Error(t, err)
}

func TestAddOptionRejectsOversizedValue(t *testing.T) {
	m := NewMessage()
	err := m.AddOption(URIQuery, make([]byte, MaxOptionValueLength+1))
	require.Error(t, err)
}

func TestSetURIPathSplitsSegments(t *testing.T) {
	m := NewMessage()
	require.NoError(t, m.SetURIPath("/api/v1/telemetry"))
	assert.Equal(t, "api/v1/telemetry", m.URIPath())
	require.Len(t, m.Options, 3)
}

func TestSetURIPathEmpty(t *testing.T) {
	m := NewMessage()
	require.NoError(t, m.SetURIPath(""))
	assert.Empty(t, m.Options)
	assert.Equal(t, "", m.URIPath())
}

func TestCodeClassDetail(t *testing.T) {
	assert.Equal(t, uint8(2), Content.Class())
	assert.Equal(t, uint8(5), Content.Detail())
	assert.Equal(t, Content, MakeCode(2, 5))
	assert.Equal(t, "2.05", Content.String())
}

func TestCodeIsRequestIsResponse(t *testing.T) {
	assert.True(t, GET.IsRequest())
	assert.False(t, GET.IsResponse())
	assert.True(t, Content.IsResponse())
	assert.False(t, Content.IsRequest())
	assert.False(t, Empty.IsRequest())
}
