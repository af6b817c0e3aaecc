// Package handlers implements the application-level CoAP endpoints:
// telemetry ingestion/retrieval, health/status, and a handful of
// connectivity-test and legacy endpoints, translated from handlers.c and
// (for telemetry/health/status, absent from the filtered C sources)
// authored fresh against the route table in dispatcher.c and the ring
// buffer API in telemetry_storage.c.
package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/giterlab/teleserver/internal/clock"
	"github.com/giterlab/teleserver/internal/coap"
	"github.com/giterlab/teleserver/internal/telemetry"
)

func setContentFormat(resp *coap.Message, format coap.ContentFormatValue) {
	var v []byte
	if format != 0 {
		v = encodeUint(uint32(format))
	}
	_ = resp.AddOption(coap.ContentFormat, v)
}

// encodeUint encodes v as the shortest big-endian byte sequence, the same
// "value 0 is zero-length" convention RFC 7252 uses for integer options.
func encodeUint(v uint32) []byte {
	switch {
	case v == 0:
		return nil
	case v < 1<<8:
		return []byte{byte(v)}
	case v < 1<<16:
		return []byte{byte(v >> 8), byte(v)}
	case v < 1<<24:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

// Hello serves GET /hello: a fixed connectivity-check string, unchanged
// from the legacy handle_hello.
func Hello(req, resp *coap.Message) {
	resp.Payload = []byte("hello")
	setContentFormat(resp, coap.FormatTextPlain)
	resp.Code = coap.Content
}

// Time serves GET /time: the current time in milliseconds since epoch, via
// an injectable Clock in place of time_source_now_ms.
func Time(c clock.Clock) coapHandlerFunc {
	return func(req, resp *coap.Message) {
		resp.Payload = []byte(fmt.Sprintf("%d", c.NowMS()))
		setContentFormat(resp, coap.FormatTextPlain)
		resp.Code = coap.Content
	}
}

// Echo serves POST /echo and POST /test/echo: returns the request payload
// unchanged.
func Echo(req, resp *coap.Message) {
	if len(req.Payload) > 0 {
		resp.Payload = append([]byte(nil), req.Payload...)
	}
	setContentFormat(resp, coap.FormatTextPlain)
	resp.Code = coap.Content
}

// coapHandlerFunc matches dispatcher.Handler without importing it, so this
// package stays free of a dispatcher dependency; cmd/teleserver wires the
// two together.
type coapHandlerFunc = func(req, resp *coap.Message)

// Telemetry bundles the handlers that need the ring buffer store.
type Telemetry struct {
	store *telemetry.Store
	clock clock.Clock
	start int64
	port  uint16
}

// NewTelemetry returns a Telemetry handler set backed by store, with start
// recording the server's boot time (for Status's uptime) and port its
// bound UDP port.
func NewTelemetry(store *telemetry.Store, c clock.Clock, port uint16) *Telemetry {
	return &Telemetry{store: store, clock: c, start: c.NowMS(), port: port}
}

// Post serves POST api/v1/telemetry: stores the request payload as a raw
// JSON entry. 2.04 Changed on success; 4.00 Bad Request if the payload is
// empty or exceeds telemetry.MaxEntrySize.
func (t *Telemetry) Post(req, resp *coap.Message) {
	if err := t.store.Add(req.Payload); err != nil {
		resp.Code = coap.BadRequest
		resp.Payload = []byte(err.Error())
		setContentFormat(resp, coap.FormatTextPlain)
		return
	}
	resp.Code = coap.Changed
}

type telemetryEntryJSON struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Get serves GET api/v1/telemetry: every stored entry as a JSON array,
// oldest first, mirroring telemetry_storage_serialize_json's
// {"data":...,"timestamp":...} shape.
func (t *Telemetry) Get(req, resp *coap.Message) {
	entries := t.store.All()
	out := make([]telemetryEntryJSON, len(entries))
	for i, e := range entries {
		out[i] = telemetryEntryJSON{Data: json.RawMessage(e.JSON), Timestamp: e.TimestampMS}
	}
	body, err := json.Marshal(out)
	if err != nil {
		resp.Code = coap.InternalServerError
		return
	}
	resp.Payload = body
	setContentFormat(resp, coap.FormatJSON)
	resp.Code = coap.Content
}

// Health serves GET api/v1/health: a minimal liveness probe.
func (t *Telemetry) Health(req, resp *coap.Message) {
	resp.Payload = []byte("ok")
	setContentFormat(resp, coap.FormatTextPlain)
	resp.Code = coap.Content
}

type statusJSON struct {
	TotalReceived  uint64 `json:"total_received"`
	CurrentCount   int    `json:"current_count"`
	Capacity       int    `json:"capacity"`
	LastReceivedMS int64  `json:"last_received_ms"`
	UptimeMS       int64  `json:"uptime_ms"`
	Port           uint16 `json:"port"`
}

// Status serves GET api/v1/status: store counters plus server uptime and
// bound port, wiring telemetry_storage_get_stats (otherwise uncalled in
// the original) into a real endpoint.
func (t *Telemetry) Status(req, resp *coap.Message) {
	stats := t.store.Stats()
	body, err := json.Marshal(statusJSON{
		TotalReceived:  stats.TotalReceived,
		CurrentCount:   stats.CurrentCount,
		Capacity:       stats.Capacity,
		LastReceivedMS: stats.LastReceivedMS,
		UptimeMS:       t.clock.NowMS() - t.start,
		Port:           t.port,
	})
	if err != nil {
		resp.Code = coap.InternalServerError
		return
	}
	resp.Payload = body
	setContentFormat(resp, coap.FormatJSON)
	resp.Code = coap.Content
}
