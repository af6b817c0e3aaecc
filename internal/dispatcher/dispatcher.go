// Package dispatcher routes decoded CoAP requests to application handlers
// by Uri-Path and method, translated from dispatcher.c: it builds the
// response envelope (mirrored token/message ID, piggyback ACK/NON type),
// resolves the route table, and fills in 4.00/4.04/4.05 when routing
// itself fails, leaving only genuine handler errors to the caller.
package dispatcher

import (
	"github.com/giterlab/teleserver/internal/coap"
)

// Handler produces a response body for a matched, valid request. resp
// arrives pre-populated with the mirrored envelope (Version, MessageID,
// Token, Type); the handler sets Code, Payload, and any response options.
type Handler func(req, resp *coap.Message)

type route struct {
	path     string
	handlers map[coap.Code]Handler
}

// Dispatcher holds the route table and dispatches one request at a time;
// the reactor's single-threaded model means no locking is required.
type Dispatcher struct {
	routes []route
}

// New returns an empty Dispatcher; call Handle to register routes.
func New() *Dispatcher {
	return &Dispatcher{}
}

// Handle registers handler to serve method on path. path must not have a
// leading slash, matching Message.URIPath's convention. Re-registering the
// same (path, method) pair replaces the previous handler.
func (d *Dispatcher) Handle(path string, method coap.Code, handler Handler) {
	for i := range d.routes {
		if d.routes[i].path == path {
			d.routes[i].handlers[method] = handler
			return
		}
	}
	d.routes = append(d.routes, route{
		path:     path,
		handlers: map[coap.Code]Handler{method: handler},
	})
}

// Dispatch resolves req's path and method against the route table and
// returns the response to send. It returns (nil, false) only for a
// malformed routing input (nil req, or req not a valid method-class
// request); those cases are not encodable responses and the caller should
// simply drop the datagram, matching §7's "sender errors... dropped".
func (d *Dispatcher) Dispatch(req *coap.Message) (*coap.Message, bool) {
	if req == nil || !req.IsRequest() {
		return nil, false
	}

	resp := initResponse(req)
	if req.Code > coap.DELETE {
		// Class 0 but not GET/POST/PUT/DELETE: no method to route on.
		resp.Code = coap.BadRequest
		return resp, true
	}
	path := req.URIPath()

	for _, r := range d.routes {
		if r.path != path {
			continue
		}
		h, ok := r.handlers[req.Code]
		if !ok {
			resp.Code = coap.MethodNotAllowed
			return resp, true
		}
		h(req, resp)
		return resp, true
	}

	resp.Code = coap.NotFound
	return resp, true
}

// initResponse builds the response envelope from req: version, mirrored
// message ID and token, and piggyback ACK (for Confirmable requests) or
// NON (for Non-confirmable requests) type.
func initResponse(req *coap.Message) *coap.Message {
	resp := coap.NewMessage()
	resp.Version = req.Version
	resp.MessageID = req.MessageID
	if len(req.Token) > 0 {
		resp.Token = append([]byte(nil), req.Token...)
	}
	switch req.Type {
	case coap.NonConfirmable:
		resp.Type = coap.NonConfirmable
	default:
		resp.Type = coap.Acknowledgement
	}
	return resp
}
