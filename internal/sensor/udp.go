package sensor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/banshee-data/depth-servo/internal/depth"
	"github.com/banshee-data/depth-servo/internal/monitoring"
)

// maxDatagram bounds a single chunk datagram.
const maxDatagram = 65535

// UDPSource receives chunked depth frames on a UDP port.
type UDPSource struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	listen      ListenFunc

	frames     atomic.Uint64
	packets    atomic.Uint64
	bytes      atomic.Uint64
	incomplete atomic.Uint64
	malformed  atomic.Uint64
}

// UDPSourceConfig configures a UDPSource.
type UDPSourceConfig struct {
	Address     string // host:port to bind, e.g. ":5600"
	RcvBuf      int    // socket receive buffer; 0 keeps the OS default
	LogInterval time.Duration
	Listen      ListenFunc // defaults to ListenUDP
}

// NewUDPSource creates a UDPSource.
func NewUDPSource(cfg UDPSourceConfig) *UDPSource {
	listen := cfg.Listen
	if listen == nil {
		listen = ListenUDP
	}
	logInterval := cfg.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	return &UDPSource{
		address:     cfg.Address,
		rcvBuf:      cfg.RcvBuf,
		logInterval: logInterval,
		listen:      listen,
	}
}

// Run receives datagrams until ctx is cancelled, delivering each frame as
// soon as its last chunk arrives.
func (s *UDPSource) Run(ctx context.Context, handle FrameHandler) error {
	addr, err := net.ResolveUDPAddr("udp", s.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := s.listen(addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	if s.rcvBuf > 0 {
		if err := conn.SetReadBuffer(s.rcvBuf); err != nil {
			monitoring.Opsf("warning: failed to set UDP receive buffer to %d: %v", s.rcvBuf, err)
		}
	}
	monitoring.Opsf("depth stream listening on %s", conn.LocalAddr())

	var asm assembler
	buf := make([]byte, maxDatagram)
	lastLog := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Since(lastLog) >= s.logInterval {
			st := s.Stats()
			monitoring.Diagf("depth stream: frames=%d packets=%d incomplete=%d malformed=%d",
				st.Frames, st.Packets, st.Incomplete, st.Malformed)
			lastLog = time.Now()
		}

		// Short deadline so cancellation is noticed promptly.
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			monitoring.Opsf("depth stream read error: %v", err)
			continue
		}
		s.packets.Add(1)
		s.bytes.Add(uint64(n))

		hdr, payload, err := ParseChunk(buf[:n])
		if err != nil {
			s.malformed.Add(1)
			monitoring.Tracef("depth stream: %v from %v", err, from)
			continue
		}
		data, fh, dropped := asm.add(hdr, payload)
		if dropped {
			s.incomplete.Add(1)
		}
		if data == nil {
			continue
		}
		s.frames.Add(1)
		handle(depth.DepthFrame{
			Width:         int(fh.Width),
			Height:        int(fh.Height),
			BytesPerPixel: depth.BytesPerSample,
			Data:          data,
		})
	}
}

// Stats returns a snapshot of the receive counters.
func (s *UDPSource) Stats() Stats {
	return Stats{
		Frames:     s.frames.Load(),
		Packets:    s.packets.Load(),
		Bytes:      s.bytes.Load(),
		Incomplete: s.incomplete.Load(),
		Malformed:  s.malformed.Load(),
	}
}
