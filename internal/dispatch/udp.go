package dispatch

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// Sender delivers one framed chunk outside the bus.
type Sender interface {
	Send(frame []byte) error
}

// UDPSender writes each frame as a single datagram to a fixed destination.
// The socket is unconnected, so an unreachable peer never surfaces as a send
// error on a later datagram.
type UDPSender struct {
	conn *net.UDPConn
	dst  *net.UDPAddr

	closeOnce sync.Once
	closeErr  error
}

// NewUDPSender resolves addr (host:port) and opens a local socket on an
// ephemeral port.
func NewUDPSender(addr string) (*UDPSender, error) {
	dst, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dispatch: resolve udp destination: %w", err)
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("dispatch: open udp socket: %w", err)
	}
	slog.Debug("udp socket open", "destination", dst.String(), "local", conn.LocalAddr().String())
	return &UDPSender{conn: conn, dst: dst}, nil
}

// Send writes frame as one datagram.
func (s *UDPSender) Send(frame []byte) error {
	if _, err := s.conn.WriteToUDP(frame, s.dst); err != nil {
		return fmt.Errorf("dispatch: udp send to %s: %w", s.dst, err)
	}
	return nil
}

// Destination returns the configured peer address.
func (s *UDPSender) Destination() string { return s.dst.String() }

// Close releases the socket. Calling Close more than once is safe.
func (s *UDPSender) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.conn.Close() })
	return s.closeErr
}

var _ Sender = (*UDPSender)(nil)
