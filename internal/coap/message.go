// Package coap implements the wire model for a constrained profile of the
// Constrained Application Protocol (RFC 7252) carried over UDP: message
// types and codes, the option sequence, and the binary codec.
package coap

import "fmt"

// Type is the CoAP message type (RFC 7252 §3).
type Type uint8

const (
	// Confirmable messages require an acknowledgement.
	Confirmable Type = 0
	// NonConfirmable messages do not require an acknowledgement.
	NonConfirmable Type = 1
	// Acknowledgement responds to a Confirmable message.
	Acknowledgement Type = 2
	// Reset indicates a permanent negative acknowledgement.
	Reset Type = 3
)

var typeNames = [...]string{
	Confirmable:     "CON",
	NonConfirmable:  "NON",
	Acknowledgement: "ACK",
	Reset:           "RST",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Unknown (0x%x)", uint8(t))
}

// Code is a request or response code, packed as class (bits 7..5) and
// detail (bits 4..0).
type Code uint8

// Request codes (class 0).
const (
	GET    Code = 1
	POST   Code = 2
	PUT    Code = 3
	DELETE Code = 4
)

// Response codes.
const (
	Created  Code = 65  // 2.01
	Deleted  Code = 66  // 2.02
	Valid    Code = 67  // 2.03
	Changed  Code = 68  // 2.04
	Content  Code = 69  // 2.05
	Empty    Code = 0   // 0.00, reserved empty message
)

// Client/server error codes.
const (
	BadRequest          Code = 128 // 4.00
	Unauthorized        Code = 129 // 4.01
	BadOption           Code = 130 // 4.02
	Forbidden           Code = 131 // 4.03
	NotFound            Code = 132 // 4.04
	MethodNotAllowed    Code = 133 // 4.05
	NotAcceptable       Code = 134 // 4.06
	InternalServerError Code = 160 // 5.00
	NotImplemented      Code = 161 // 5.01
	BadGateway          Code = 162 // 5.02
	ServiceUnavailable  Code = 163 // 5.03
	GatewayTimeout      Code = 164 // 5.04
)

// Class returns the class portion (bits 7..5) of a code.
func (c Code) Class() uint8 { return uint8(c) >> 5 }

// Detail returns the detail portion (bits 4..0) of a code.
func (c Code) Detail() uint8 { return uint8(c) & 0x1F }

// MakeCode packs a class and detail into a Code, mirroring the C-side
// coap_make_code helper.
func MakeCode(class, detail uint8) Code {
	return Code((class << 5) | (detail & 0x1F))
}

func (c Code) String() string {
	return fmt.Sprintf("%d.%02d", c.Class(), c.Detail())
}

// IsRequest reports whether c is a method code (class 0, detail != 0).
func (c Code) IsRequest() bool {
	return c.Class() == 0 && c != Empty
}

// IsResponse reports whether c is a response code (class 2..5).
func (c Code) IsResponse() bool {
	class := c.Class()
	return class >= 2 && class <= 5
}

// OptionNumber identifies a CoAP option (RFC 7252 §5.10).
type OptionNumber uint16

// Option numbers used by this server.
const (
	IfMatch       OptionNumber = 1
	URIHost       OptionNumber = 3
	ETag          OptionNumber = 4
	IfNoneMatch   OptionNumber = 5
	URIPort       OptionNumber = 7
	LocationPath  OptionNumber = 8
	URIPath       OptionNumber = 11
	ContentFormat OptionNumber = 12
	MaxAge        OptionNumber = 14
	URIQuery      OptionNumber = 15
	Accept        OptionNumber = 17
	LocationQuery OptionNumber = 20
	ProxyURI      OptionNumber = 35
	ProxyScheme   OptionNumber = 39
	Size1         OptionNumber = 60
)

// ContentFormatValue is a registered Content-Format option value.
type ContentFormatValue uint16

// Content formats used by this server.
const (
	FormatTextPlain ContentFormatValue = 0
	FormatJSON      ContentFormatValue = 50
)

// MaxOptionValueLength is the largest permitted option value, in bytes
// (RFC 7252 §3.1).
const MaxOptionValueLength = 270

// MaxOptions bounds the number of options carried by a single message in
// this profile.
const MaxOptions = 16

// MaxTokenLength is the largest permitted token, in bytes.
const MaxTokenLength = 8

// MaxMessageSize is the largest encodable message, in bytes (MTU minus
// framing headroom).
const MaxMessageSize = 1472

// Option is a single (number, value) pair carried by a Message.
type Option struct {
	Number OptionNumber
	Value  []byte
}

// Message is a decoded or to-be-encoded CoAP message. AddOption (and
// SetURIPath, which inserts through it) keeps Options sorted by ascending
// Number on insert, per the container-level ordering contract recommended
// in the source material's design notes. Options is an exported field, so
// a direct assignment can break the order; Encode rejects unsorted options
// with ErrInvalid.
type Message struct {
	Version   uint8
	Type      Type
	Code      Code
	MessageID uint16
	Token     []byte
	Options   []Option
	Payload   []byte
}

// NewMessage returns a zero-initialized message: version 1, type
// Confirmable, no options, no payload.
func NewMessage() *Message {
	return &Message{Version: 1, Type: Confirmable}
}

// IsRequest reports whether m carries a request code.
func (m *Message) IsRequest() bool { return m.Code.IsRequest() }

// IsResponse reports whether m carries a response code.
func (m *Message) IsResponse() bool { return m.Code.IsResponse() }

// AddOption appends an option, inserting it at the position that keeps
// Options sorted by ascending Number. Equal-numbered options are appended
// after any existing ones with the same number (stable), matching
// URI-Path's repeated-segment usage. Returns an error if the option table
// is full or the value exceeds MaxOptionValueLength.
func (m *Message) AddOption(number OptionNumber, value []byte) error {
	if len(m.Options) >= MaxOptions {
		return fmt.Errorf("coap: option table full (max %d)", MaxOptions)
	}
	if len(value) > MaxOptionValueLength {
		return fmt.Errorf("coap: option %d value too long (%d > %d)", number, len(value), MaxOptionValueLength)
	}
	pos := len(m.Options)
	for i, o := range m.Options {
		if o.Number > number {
			pos = i
			break
		}
	}
	m.Options = append(m.Options, Option{})
	copy(m.Options[pos+1:], m.Options[pos:])
	m.Options[pos] = Option{Number: number, Value: value}
	return nil
}

// FindOption returns the first option with the given number, if any.
func (m *Message) FindOption(number OptionNumber) (Option, bool) {
	for _, o := range m.Options {
		if o.Number == number {
			return o, true
		}
	}
	return Option{}, false
}

// AllOptions returns every option with the given number, in order.
func (m *Message) AllOptions(number OptionNumber) []Option {
	var out []Option
	for _, o := range m.Options {
		if o.Number == number {
			out = append(out, o)
		}
	}
	return out
}

// URIPath concatenates every Uri-Path option's value with "/", producing a
// path without a leading slash.
func (m *Message) URIPath() string {
	segs := m.AllOptions(URIPath)
	if len(segs) == 0 {
		return ""
	}
	path := make([]byte, 0, 64)
	for i, o := range segs {
		if i > 0 {
			path = append(path, '/')
		}
		path = append(path, o.Value...)
	}
	return string(path)
}

// SetURIPath replaces any existing Uri-Path options with one option per
// "/"-separated segment of path.
func (m *Message) SetURIPath(path string) error {
	kept := m.Options[:0:0]
	for _, o := range m.Options {
		if o.Number != URIPath {
			kept = append(kept, o)
		}
	}
	m.Options = kept
	start := 0
	for start < len(path) && path[start] == '/' {
		start++
	}
	path = path[start:]
	if path == "" {
		return nil
	}
	seg := make([]byte, 0, 16)
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if err := m.AddOption(URIPath, append([]byte(nil), seg...)); err != nil {
				return err
			}
			seg = seg[:0]
			continue
		}
		seg = append(seg, path[i])
	}
	return nil
}

// optionsSorted reports whether Options is non-decreasing by Number, as
// required before Encode.
func (m *Message) optionsSorted() bool {
	for i := 1; i < len(m.Options); i++ {
		if m.Options[i].Number < m.Options[i-1].Number {
			return false
		}
	}
	return true
}
