package coap

import "errors"

// Codec errors, returned (optionally wrapped with fmt.Errorf's %w) by
// Decode and Encode. Callers match them with errors.Is.
var (
	// ErrInvalid covers a bad version, token length, or message type on
	// decode, and any pre-check failure on encode.
	ErrInvalid = errors.New("coap: invalid message")
	// ErrMalformed covers truncated input (not enough bytes for the
	// header, token, an option's extension bytes, or its value), a
	// reserved option nibble of 15, and a payload marker with no payload
	// bytes after it.
	ErrMalformed = errors.New("coap: malformed message")
	// ErrOptions covers a bad option sequence: out-of-range delta, an
	// option value over 270 bytes, or more than MaxOptions options.
	ErrOptions = errors.New("coap: invalid option sequence")
	// ErrTooSmall is returned by Encode when the destination buffer
	// cannot hold the encoded message.
	ErrTooSmall = errors.New("coap: destination buffer too small")
)
