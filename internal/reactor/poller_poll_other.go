//go:build !linux

package reactor

import (
	"errors"

	"golang.org/x/sys/unix"
)

// pollPoller is the portable fallback backend for platforms without epoll,
// built on poll(2): the interest set is rebuilt into a fresh pollfd slice
// on every wait, trading epoll's O(1) readiness delivery for portability.
type pollPoller struct {
	interest map[int]EventMask
}

func newPoller() (poller, error) {
	return &pollPoller{interest: make(map[int]EventMask)}, nil
}

func toPollEvents(m EventMask) int16 {
	var e int16
	if m&EventRead != 0 {
		e |= unix.POLLIN
	}
	if m&EventWrite != 0 {
		e |= unix.POLLOUT
	}
	return e
}

func fromPollEvents(e int16) EventMask {
	var m EventMask
	if e&(unix.POLLIN|unix.POLLHUP) != 0 {
		m |= EventRead
	}
	if e&unix.POLLOUT != 0 {
		m |= EventWrite
	}
	if e&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		m |= EventError
	}
	return m
}

func (p *pollPoller) add(fd int, events EventMask) error {
	p.interest[fd] = events
	return nil
}

func (p *pollPoller) modify(fd int, events EventMask) error {
	p.interest[fd] = events
	return nil
}

func (p *pollPoller) remove(fd int) error {
	delete(p.interest, fd)
	return nil
}

func (p *pollPoller) wait(timeoutMS int) ([]readyEvent, error) {
	if len(p.interest) == 0 {
		return nil, nil
	}
	fds := make([]unix.PollFd, 0, len(p.interest))
	for fd, events := range p.interest {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: toPollEvents(events)})
	}
	n, err := unix.Poll(fds, timeoutMS)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, errInterrupted
		}
		return nil, err
	}
	out := make([]readyEvent, 0, n)
	for _, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		out = append(out, readyEvent{fd: int(pfd.Fd), events: fromPollEvents(pfd.Revents)})
	}
	return out, nil
}

func (p *pollPoller) close() error {
	p.interest = nil
	return nil
}
