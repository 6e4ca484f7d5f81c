package servo

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ErrChannelClosed is returned by Send after Close.
var ErrChannelClosed = errors.New("command channel closed")

// CommandChannel is a best-effort outbound link to the vehicle. Send must
// not block the control tick; a failed send is reported and forgotten.
type CommandChannel interface {
	Send(msg []byte) error
	Close() error
}

// UDPChannel sends each command as one datagram to a fixed endpoint.
type UDPChannel struct {
	conn    *net.UDPConn
	address string
	closed  atomic.Bool
	sent    atomic.Uint64
}

// NewUDPChannel resolves addr (host:port) and connects a UDP socket to it.
func NewUDPChannel(addr string) (*UDPChannel, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vehicle address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create vehicle connection: %w", err)
	}
	return &UDPChannel{conn: conn, address: udpAddr.String()}, nil
}

// Send writes msg as a single datagram. The write deadline keeps a full
// socket buffer from stalling the tick.
func (c *UDPChannel) Send(msg []byte) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Millisecond))
	if _, err := c.conn.Write(msg); err != nil {
		return fmt.Errorf("send to %s: %w", c.address, err)
	}
	c.sent.Add(1)
	return nil
}

// Sent returns the number of datagrams written.
func (c *UDPChannel) Sent() uint64 { return c.sent.Load() }

// Close releases the socket. Further sends fail with ErrChannelClosed.
func (c *UDPChannel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

func (c *UDPChannel) String() string { return "udp://" + c.address }

// MockChannel records every message for tests.
type MockChannel struct {
	mu       sync.Mutex
	messages [][]byte
	closed   bool
	// SendError, when set, is returned by every Send.
	SendError error
	// OnSend, when set, is called with each message before it is recorded.
	OnSend func(msg []byte)
}

// NewMockChannel returns an empty MockChannel.
func NewMockChannel() *MockChannel {
	return &MockChannel{}
}

// Send records msg.
func (m *MockChannel) Send(msg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrChannelClosed
	}
	if m.OnSend != nil {
		m.OnSend(msg)
	}
	if m.SendError != nil {
		return m.SendError
	}
	m.messages = append(m.messages, append([]byte(nil), msg...))
	return nil
}

// Close marks the channel closed.
func (m *MockChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockChannel) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Messages returns a copy of all recorded messages.
func (m *MockChannel) Messages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.messages))
	copy(out, m.messages)
	return out
}

// Commands decodes the recorded messages.
func (m *MockChannel) Commands() ([]ActuationCommand, error) {
	var cmds []ActuationCommand
	for _, msg := range m.Messages() {
		c, err := DecodeCommand(msg)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}
