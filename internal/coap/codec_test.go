package coap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRejectsShortDatagram(t *testing.T) {
	_, err := Decode([]byte{0x40, 0x01, 0x12})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestDecodeRejectsTokenLengthNine(t *testing.T) {
	// version=1, type=CON(0), tkl=9, code=GET
	_, err := Decode([]byte{0x49, 0x01, 0x12, 0x34})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x01, 0x00, 0x00})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestDecodeRejectsReservedNibble(t *testing.T) {
	// header: ver=1,type=CON,tkl=0 ; code=GET ; mid=0 ; option byte delta=15
	_, err := Decode([]byte{0x40, 0x01, 0x00, 0x00, 0xF0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestDecodeRejectsBareTrailingPayloadMarker(t *testing.T) {
	_, err := Decode([]byte{0x40, 0x01, 0x00, 0x00, 0xFF})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestDecodeRejectsOversizedOptionValue(t *testing.T) {
	// option byte: delta=0, length nibble 14 with extension 0x0002 -> 269+2 = 271 bytes
	data := []byte{0x40, 0x01, 0x00, 0x00, 0x0E, 0x00, 0x02}
	_, err := Decode(data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOptions))
}

func TestEncodeRejectsUnsortedOptions(t *testing.T) {
	m := NewMessage()
	m.Code = GET
	m.Options = []Option{{Number: 15, Value: []byte("b")}, {Number: 11, Value: []byte("a")}}
	buf := make([]byte, MaxMessageSize)
	_, err := Encode(m, buf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestEncodeRejectsTooManyOptions(t *testing.T) {
	m := NewMessage()
	m.Code = GET
	for i := 0; i < MaxOptions+1; i++ {
		m.Options = append(m.Options, Option{Number: OptionNumber(i), Value: nil})
	}
	buf := make([]byte, MaxMessageSize)
	_, err := Encode(m, buf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestEncodeRejectsOversizedOptionValue(t *testing.T) {
	m := NewMessage()
	m.Code = GET
	m.Options = []Option{{Number: URIQuery, Value: make([]byte, MaxOptionValueLength+1)}}
	buf := make([]byte, MaxMessageSize)
	_, err := Encode(m, buf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestEncodeRejectsTooSmallBuffer(t *testing.T) {
	m := NewMessage()
	m.Code = GET
	m.Payload = []byte("hello world")
	buf := make([]byte, 2)
	_, err := Encode(m, buf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooSmall))
}

func TestRoundTripSimpleRequest(t *testing.T) {
	m := NewMessage()
	m.Type = Confirmable
	m.Code = GET
	m.MessageID = 0x1111
	m.Token = []byte{0xA1}
	require.NoError(t, m.SetURIPath("hello"))

	buf := make([]byte, MaxMessageSize)
	n, err := Encode(m, buf)
	require.NoError(t, err)

	decoded, err := Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, m.Type, decoded.Type)
	assert.Equal(t, m.Code, decoded.Code)
	assert.Equal(t, m.MessageID, decoded.MessageID)
	assert.Equal(t, m.Token, decoded.Token)
	assert.Equal(t, "hello", decoded.URIPath())
}

func TestRoundTripOneByteExtendedOption(t *testing.T) {
	// If-Match (1) length 1, then Max-Age (14) length 1: delta from 1 to 14
	// is 13, which needs the one-byte extension form.
	m := NewMessage()
	m.Code = GET
	require.NoError(t, m.AddOption(IfMatch, []byte{0x01}))
	require.NoError(t, m.AddOption(MaxAge, []byte{0x02}))

	buf := make([]byte, MaxMessageSize)
	n, err := Encode(m, buf)
	require.NoError(t, err)
	// option header byte for first option: delta=1 (nibble 1), length=1 (nibble1) -> 0x11
	assert.Equal(t, byte(0x11), buf[4])
	// second option header: delta=13 -> extended byte form (nibble 13), length=1
	assert.Equal(t, byte(0xD1), buf[6])

	decoded, err := Decode(buf[:n])
	require.NoError(t, err)
	require.Len(t, decoded.Options, 2)
	assert.Equal(t, IfMatch, decoded.Options[0].Number)
	assert.Equal(t, MaxAge, decoded.Options[1].Number)
}

func TestRoundTripTwoByteExtendedOptionValue(t *testing.T) {
	m := NewMessage()
	m.Code = GET
	value := make([]byte, 270)
	for i := range value {
		value[i] = byte(i)
	}
	require.NoError(t, m.AddOption(URIQuery, value))

	buf := make([]byte, MaxMessageSize)
	n, err := Encode(m, buf)
	require.NoError(t, err)

	decoded, err := Decode(buf[:n])
	require.NoError(t, err)
	require.Len(t, decoded.Options, 1)
	assert.Equal(t, value, decoded.Options[0].Value)
}

func TestRoundTripEmptyPayloadOmitsMarker(t *testing.T) {
	m := NewMessage()
	m.Code = GET
	buf := make([]byte, MaxMessageSize)
	n, err := Encode(m, buf)
	require.NoError(t, err)
	assert.NotContains(t, buf[:n], byte(0xFF))

	decoded, err := Decode(buf[:n])
	require.NoError(t, err)
	assert.Empty(t, decoded.Payload)
}
