// Package transport is a thin, uniform wrapper over a non-blocking IPv4 UDP
// datagram socket, built directly on golang.org/x/sys/unix rather than
// net.UDPConn so the reactor can register the raw file descriptor with
// epoll/poll (RFC 7252's transport is UDP; the framing above it is the
// coap package's job, not this one's).
package transport

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by RecvFrom/SendTo when the socket has no
// datagram available (RecvFrom) or the send buffer is momentarily full
// (SendTo). Callers must treat it as non-fatal, per §4.3/§7.
var ErrWouldBlock = errors.New("transport: operation would block")

// Socket is a non-blocking IPv4 UDP datagram socket.
type Socket struct {
	fd int
}

// CreateUDP allocates a new IPv4 UDP socket. The returned Socket is not yet
// bound or non-blocking; call SetReuseAddr, SetNonblocking, and Bind in
// that order, as the server glue layer does.
func CreateUDP() (*Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("transport: socket: %w", err)
	}
	return &Socket{fd: fd}, nil
}

// FD returns the underlying file descriptor, for registration with a
// reactor.
func (s *Socket) FD() int { return s.fd }

// SetReuseAddr sets SO_REUSEADDR, allowing quick rebinding after restart.
func (s *Socket) SetReuseAddr() error {
	if err := unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("transport: SO_REUSEADDR: %w", err)
	}
	return nil
}

// SetNonblocking puts the socket into non-blocking mode, so RecvFrom and
// SendTo return ErrWouldBlock instead of blocking the reactor thread.
func (s *Socket) SetNonblocking() error {
	if err := unix.SetNonblock(s.fd, true); err != nil {
		return fmt.Errorf("transport: set nonblocking: %w", err)
	}
	return nil
}

// Bind binds the socket to the IPv4 wildcard address on the given port.
// port 0 requests an OS-assigned ephemeral port; use Port after Bind to
// discover it.
func (s *Socket) Bind(port uint16) error {
	addr := &unix.SockaddrInet4{Port: int(port)}
	if err := unix.Bind(s.fd, addr); err != nil {
		return fmt.Errorf("transport: bind :%d: %w", port, err)
	}
	return nil
}

// Port returns the effective local port the socket is bound to.
func (s *Socket) Port() (uint16, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return 0, fmt.Errorf("transport: getsockname: %w", err)
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return 0, fmt.Errorf("transport: unexpected sockaddr type %T", sa)
	}
	return uint16(in4.Port), nil
}

// Close closes the socket.
func (s *Socket) Close() error {
	return unix.Close(s.fd)
}

// Peer is a datagram's IPv4 source or destination address.
type Peer struct {
	IP   [4]byte
	Port int
}

func (p Peer) sockaddr() *unix.SockaddrInet4 {
	return &unix.SockaddrInet4{Addr: p.IP, Port: p.Port}
}

func peerFrom(sa unix.Sockaddr) (Peer, error) {
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return Peer{}, fmt.Errorf("transport: unexpected peer sockaddr type %T", sa)
	}
	return Peer{IP: in4.Addr, Port: in4.Port}, nil
}

// RecvFrom reads one datagram into buf. It returns ErrWouldBlock when no
// datagram is currently available; callers must drain in a loop until they
// see it, per §4.3.
func (s *Socket) RecvFrom(buf []byte) (int, Peer, error) {
	n, from, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		if isWouldBlock(err) {
			return 0, Peer{}, ErrWouldBlock
		}
		return 0, Peer{}, fmt.Errorf("transport: recvfrom: %w", err)
	}
	peer, perr := peerFrom(from)
	if perr != nil {
		return n, Peer{}, perr
	}
	return n, peer, nil
}

// SendTo writes buf as a single datagram to peer. A partial send is not
// possible for UDP; SendTo either writes the whole datagram or fails.
func (s *Socket) SendTo(buf []byte, peer Peer) error {
	err := unix.Sendto(s.fd, buf, 0, peer.sockaddr())
	if err != nil {
		if isWouldBlock(err) {
			return ErrWouldBlock
		}
		return fmt.Errorf("transport: sendto: %w", err)
	}
	return nil
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}
