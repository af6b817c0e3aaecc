package coap

import (
	"encoding/binary"
	"fmt"
)

// option-header extension nibbles (RFC 7252 §3.1).
const (
	extByteCode   = 13
	extByteAddend = 13
	extWordCode   = 14
	extWordAddend = 269
	extReserved   = 15
)

// Decode parses data as a CoAP message, following RFC 7252 §3 restricted to
// this profile's bounds (§3/§4.1 of the specification this package
// implements).
func Decode(data []byte) (*Message, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: short datagram (%d bytes)", ErrMalformed, len(data))
	}

	version := data[0] >> 6
	typ := Type((data[0] >> 4) & 0x3)
	tkl := int(data[0] & 0x0F)
	if version != 1 {
		return nil, fmt.Errorf("%w: version %d", ErrInvalid, version)
	}
	if tkl > MaxTokenLength {
		return nil, fmt.Errorf("%w: token length %d", ErrInvalid, tkl)
	}

	m := &Message{Version: version, Type: typ}
	m.Code = Code(data[1])
	m.MessageID = binary.BigEndian.Uint16(data[2:4])

	if 4+tkl > len(data) {
		return nil, fmt.Errorf("%w: truncated token", ErrMalformed)
	}
	if tkl > 0 {
		m.Token = append([]byte(nil), data[4:4+tkl]...)
	}

	b := data[4+tkl:]
	prev := OptionNumber(0)

	readExt := func(nibble int) (int, error) {
		switch nibble {
		case extByteCode:
			if len(b) < 1 {
				return 0, fmt.Errorf("%w: truncated option extension", ErrMalformed)
			}
			v := int(b[0]) + extByteAddend
			b = b[1:]
			return v, nil
		case extWordCode:
			if len(b) < 2 {
				return 0, fmt.Errorf("%w: truncated option extension", ErrMalformed)
			}
			v := int(binary.BigEndian.Uint16(b[:2])) + extWordAddend
			b = b[2:]
			return v, nil
		default:
			return nibble, nil
		}
	}

	for len(b) > 0 {
		if b[0] == 0xFF {
			b = b[1:]
			if len(b) == 0 {
				return nil, fmt.Errorf("%w: payload marker with no payload", ErrMalformed)
			}
			m.Payload = append([]byte(nil), b...)
			b = nil
			break
		}

		deltaNibble := int(b[0] >> 4)
		lengthNibble := int(b[0] & 0x0F)
		if deltaNibble == extReserved || lengthNibble == extReserved {
			return nil, fmt.Errorf("%w: reserved nibble 15", ErrMalformed)
		}
		b = b[1:]

		delta, err := readExt(deltaNibble)
		if err != nil {
			return nil, err
		}
		length, err := readExt(lengthNibble)
		if err != nil {
			return nil, err
		}

		number := int(prev) + delta
		if number > 0xFFFF {
			return nil, fmt.Errorf("%w: option number overflow", ErrOptions)
		}
		if length > MaxOptionValueLength {
			return nil, fmt.Errorf("%w: option value too long (%d)", ErrOptions, length)
		}
		if length > len(b) {
			return nil, fmt.Errorf("%w: truncated option value", ErrMalformed)
		}
		if len(m.Options) >= MaxOptions {
			return nil, fmt.Errorf("%w: too many options (max %d)", ErrOptions, MaxOptions)
		}

		value := append([]byte(nil), b[:length]...)
		b = b[length:]
		m.Options = append(m.Options, Option{Number: OptionNumber(number), Value: value})
		prev = OptionNumber(number)
	}

	return m, nil
}

// writer accumulates encoded bytes into a caller-supplied buffer, failing
// fast with ErrTooSmall the moment a write would overflow it.
type writer struct {
	buf []byte
	n   int
}

func (w *writer) write(p []byte) error {
	if w.n+len(p) > len(w.buf) {
		return ErrTooSmall
	}
	copy(w.buf[w.n:], p)
	w.n += len(p)
	return nil
}

func (w *writer) writeByte(b byte) error {
	if w.n+1 > len(w.buf) {
		return ErrTooSmall
	}
	w.buf[w.n] = b
	w.n++
	return nil
}

// Encode serializes m into out, returning the number of bytes written.
// Encode validates m's invariants first (§4.1 Encoder pre-checks) and
// returns ErrInvalid without writing anything if they fail.
func Encode(m *Message, out []byte) (int, error) {
	if m.Version != 1 {
		return 0, fmt.Errorf("%w: version %d", ErrInvalid, m.Version)
	}
	if m.Type > Reset {
		return 0, fmt.Errorf("%w: type %d", ErrInvalid, m.Type)
	}
	if len(m.Token) > MaxTokenLength {
		return 0, fmt.Errorf("%w: token length %d", ErrInvalid, len(m.Token))
	}
	if len(m.Options) > MaxOptions {
		return 0, fmt.Errorf("%w: %d options (max %d)", ErrInvalid, len(m.Options), MaxOptions)
	}
	if !m.optionsSorted() {
		return 0, fmt.Errorf("%w: options not sorted", ErrInvalid)
	}
	for _, o := range m.Options {
		if len(o.Value) > MaxOptionValueLength {
			return 0, fmt.Errorf("%w: option %d value too long (%d)", ErrInvalid, o.Number, len(o.Value))
		}
	}

	w := &writer{buf: out}

	header := (uint8(1) << 6) | (uint8(m.Type) << 4) | uint8(len(m.Token))
	if err := w.writeByte(header); err != nil {
		return 0, err
	}
	if err := w.writeByte(uint8(m.Code)); err != nil {
		return 0, err
	}
	var idBuf [2]byte
	binary.BigEndian.PutUint16(idBuf[:], m.MessageID)
	if err := w.write(idBuf[:]); err != nil {
		return 0, err
	}
	if err := w.write(m.Token); err != nil {
		return 0, err
	}

	writeExt := func(code, ext int) error {
		switch code {
		case extByteCode:
			return w.writeByte(byte(ext))
		case extWordCode:
			var b [2]byte
			binary.BigEndian.PutUint16(b[:], uint16(ext))
			return w.write(b[:])
		}
		return nil
	}
	splitExt := func(v int) (int, int) {
		switch {
		case v >= extWordAddend:
			return extWordCode, v - extWordAddend
		case v >= extByteAddend:
			return extByteCode, v - extByteAddend
		default:
			return v, 0
		}
	}

	prev := 0
	for _, o := range m.Options {
		delta := int(o.Number) - prev
		if delta < 0 {
			return 0, fmt.Errorf("%w: options not sorted", ErrOptions)
		}
		length := len(o.Value)

		dCode, dExt := splitExt(delta)
		lCode, lExt := splitExt(length)
		if err := w.writeByte(byte(dCode<<4) | byte(lCode)); err != nil {
			return 0, err
		}
		if err := writeExt(dCode, dExt); err != nil {
			return 0, err
		}
		if err := writeExt(lCode, lExt); err != nil {
			return 0, err
		}
		if err := w.write(o.Value); err != nil {
			return 0, err
		}
		prev = int(o.Number)
	}

	if len(m.Payload) > 0 {
		if err := w.writeByte(0xFF); err != nil {
			return 0, err
		}
		if err := w.write(m.Payload); err != nil {
			return 0, err
		}
	}

	return w.n, nil
}
