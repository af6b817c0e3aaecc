// Package server wires the transport, reactor, codec, and dispatcher
// together into a running CoAP server, translated from server.c's Server
// struct and its process_datagram/on_readable pair.
package server

import (
	"fmt"
	"net"

	"github.com/giterlab/teleserver/internal/clock"
	"github.com/giterlab/teleserver/internal/coap"
	"github.com/giterlab/teleserver/internal/dispatcher"
	"github.com/giterlab/teleserver/internal/logx"
	"github.com/giterlab/teleserver/internal/reactor"
	"github.com/giterlab/teleserver/internal/transport"
)

// peerAddr adapts a transport.Peer to net.Addr, for logx's RX/TX trace
// helpers which are typed against the standard interface.
type peerAddr struct{ transport.Peer }

func (p peerAddr) Network() string { return "udp" }

func (p peerAddr) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", p.IP[0], p.IP[1], p.IP[2], p.IP[3], p.Port)
}

var _ net.Addr = peerAddr{}

const recvBufferSize = coap.MaxMessageSize

// Server binds a UDP socket, registers it with a reactor, and routes
// decoded requests through a Dispatcher. The zero value is not usable;
// construct with Create.
type Server struct {
	loop  *reactor.Loop
	sock  *transport.Socket
	disp  *dispatcher.Dispatcher
	log   *logx.Logger
	clock clock.Clock
	port  uint16
}

// Create binds a non-blocking UDP socket on port (0 for an OS-assigned
// ephemeral port) and registers it for read-readiness with a fresh
// reactor. log and c may be nil-safe zero values: a nil *logx.Logger logs
// nothing, and c defaults to clock.Real{} when nil.
func Create(port uint16, disp *dispatcher.Dispatcher, log *logx.Logger, c clock.Clock) (*Server, error) {
	if c == nil {
		c = clock.Real{}
	}

	loop, err := reactor.New()
	if err != nil {
		return nil, fmt.Errorf("server: create reactor: %w", err)
	}

	sock, err := transport.CreateUDP()
	if err != nil {
		loop.Close()
		return nil, fmt.Errorf("server: create socket: %w", err)
	}
	if err := sock.SetReuseAddr(); err != nil {
		sock.Close()
		loop.Close()
		return nil, err
	}
	if err := sock.SetNonblocking(); err != nil {
		sock.Close()
		loop.Close()
		return nil, err
	}
	if err := sock.Bind(port); err != nil {
		sock.Close()
		loop.Close()
		return nil, err
	}

	boundPort, err := sock.Port()
	if err != nil {
		sock.Close()
		loop.Close()
		return nil, err
	}

	srv := &Server{loop: loop, sock: sock, disp: disp, log: log, clock: c, port: boundPort}

	if err := loop.AddFD(sock.FD(), reactor.EventRead, srv.onReadable); err != nil {
		sock.Close()
		loop.Close()
		return nil, fmt.Errorf("server: register socket: %w", err)
	}

	srv.log.Info("server: listening udp/%d", srv.port)
	return srv, nil
}

// Port returns the UDP port the server is bound to.
func (s *Server) Port() uint16 { return s.port }

// Run drives the event loop. A negative timeoutMS runs indefinitely until
// Stop is called; a non-negative one bounds a single iteration.
func (s *Server) Run(timeoutMS int) error {
	return s.loop.Run(timeoutMS)
}

// Stop requests that Run return at its next opportunity.
func (s *Server) Stop() { s.loop.Stop() }

// Close deregisters and closes the socket and releases the reactor.
func (s *Server) Close() error {
	_ = s.loop.RemoveFD(s.sock.FD())
	sockErr := s.sock.Close()
	loopErr := s.loop.Close()
	if sockErr != nil {
		return sockErr
	}
	return loopErr
}

// onReadable drains every pending datagram on the socket, processing each
// in turn, matching on_readable's "loop until EAGAIN" behavior.
func (s *Server) onReadable(fd int, events reactor.EventMask) {
	buf := make([]byte, recvBufferSize)
	for {
		n, peer, err := s.sock.RecvFrom(buf)
		if err != nil {
			if err != transport.ErrWouldBlock {
				s.log.Warn("server: recvfrom: %v", err)
			}
			return
		}
		s.processDatagram(buf[:n], peer)
	}
}

// processDatagram decodes one datagram as CoAP, routes it through the
// dispatcher, and sends the response to the same peer. Malformed
// datagrams are dropped silently, to avoid amplification.
func (s *Server) processDatagram(data []byte, peer transport.Peer) {
	req, err := coap.Decode(data)
	if err != nil {
		s.log.Warn("server: coap decode: %v", err)
		return
	}
	s.log.RX(req, peerAddr{peer})

	resp, ok := s.disp.Dispatch(req)
	if !ok {
		s.log.Warn("server: dispatcher rejected request")
		return
	}

	out := make([]byte, recvBufferSize)
	n, err := coap.Encode(resp, out)
	if err != nil {
		s.log.Warn("server: coap encode: %v", err)
		return
	}
	s.log.TX(resp, peerAddr{peer})

	if err := s.sock.SendTo(out[:n], peer); err != nil && err != transport.ErrWouldBlock {
		s.log.Warn("server: sendto: %v", err)
	}
}
