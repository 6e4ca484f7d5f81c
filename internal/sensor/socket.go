package sensor

import (
	"net"
	"time"
)

// UDPSocket is the subset of *net.UDPConn used by UDPSource.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// ListenFunc opens a UDP socket bound to laddr.
type ListenFunc func(laddr *net.UDPAddr) (UDPSocket, error)

// ListenUDP binds a real UDP socket.
func ListenUDP(laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MockUDPSocket replays a fixed list of datagrams. It is not safe for
// concurrent use; inspect it only after Run has returned.
type MockUDPSocket struct {
	// Packets are returned by successive ReadFromUDP calls.
	Packets [][]byte
	// ReadIndex is the position of the next packet.
	ReadIndex int
	// ReadError is returned once by the next read if set.
	ReadError error
	// OnDrained is called each time a read finds no packet left.
	OnDrained func()

	Closed         bool
	ReadBufferSize int
	ReadDeadline   time.Time
	LocalAddress   *net.UDPAddr
}

// NewMockUDPSocket returns a socket that yields packets in order.
func NewMockUDPSocket(packets ...[]byte) *MockUDPSocket {
	return &MockUDPSocket{
		Packets:      packets,
		LocalAddress: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5600},
	}
}

// ReadFromUDP returns the next packet, or a timeout once drained.
func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	if m.Closed {
		return 0, nil, net.ErrClosed
	}
	if m.ReadError != nil {
		err := m.ReadError
		m.ReadError = nil
		return 0, nil, err
	}
	if m.ReadIndex >= len(m.Packets) {
		if m.OnDrained != nil {
			m.OnDrained()
		}
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
	pkt := m.Packets[m.ReadIndex]
	m.ReadIndex++
	return copy(b, pkt), &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}, nil
}

// SetReadBuffer records the buffer size.
func (m *MockUDPSocket) SetReadBuffer(bytes int) error {
	m.ReadBufferSize = bytes
	return nil
}

// SetReadDeadline records the deadline.
func (m *MockUDPSocket) SetReadDeadline(t time.Time) error {
	m.ReadDeadline = t
	return nil
}

// Close marks the socket closed.
func (m *MockUDPSocket) Close() error {
	m.Closed = true
	return nil
}

// LocalAddr returns LocalAddress.
func (m *MockUDPSocket) LocalAddr() net.Addr { return m.LocalAddress }

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
