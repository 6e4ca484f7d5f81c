package servo

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

// PortOptions describes the serial link to a telemetry radio that relays
// commands to the vehicle.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and fills in defaults (57600 8N1).
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o
	if opts.BaudRate <= 0 {
		opts.BaudRate = 57600
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}
	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	return opts, nil
}

// SerialMode converts the options into a go.bug.st/serial mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{BaudRate: opts.BaudRate, DataBits: opts.DataBits}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	} else {
		mode.StopBits = serial.OneStopBit
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// PortOpener opens a serial device. Tests substitute a fake.
type PortOpener func(path string, mode *serial.Mode) (io.WriteCloser, error)

// OpenSerialPort opens a real serial device.
func OpenSerialPort(path string, mode *serial.Mode) (io.WriteCloser, error) {
	return serial.Open(path, mode)
}

// serialDrainTimeout bounds how long Close waits for the last queued
// command to reach the port.
const serialDrainTimeout = 250 * time.Millisecond

// SerialChannel writes command lines to a serial port. Lines already carry
// their terminator, so the radio can frame them without extra bytes.
//
// Writes happen on a separate goroutine behind a single-slot queue, so a
// stalled radio never blocks Send. A command still waiting in the slot is
// replaced by a newer one. A write failure is returned by the next Send.
type SerialChannel struct {
	port io.WriteCloser
	path string

	mu       sync.Mutex
	closed   bool
	writeErr error

	queue   chan []byte
	done    chan struct{}
	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// SerialStats counts serial channel activity.
type SerialStats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"superseded"`
	Failed  uint64 `json:"failed"`
}

// NewSerialChannel opens path with opts. A nil opener uses OpenSerialPort.
func NewSerialChannel(path string, opts PortOptions, open PortOpener) (*SerialChannel, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	if open == nil {
		open = OpenSerialPort
	}
	port, err := open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	c := &SerialChannel{
		port:  port,
		path:  path,
		queue: make(chan []byte, 1),
		done:  make(chan struct{}),
	}
	go c.writeLoop()
	return c, nil
}

// Send queues msg for the writer and returns without waiting for the port.
func (c *SerialChannel) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	m := append([]byte(nil), msg...)
	select {
	case c.queue <- m:
	default:
		// Only Send fills the slot and it holds mu, so once the stale
		// command is gone the slot stays free.
		select {
		case <-c.queue:
			c.dropped.Add(1)
		default:
		}
		c.queue <- m
	}
	if err := c.writeErr; err != nil {
		c.writeErr = nil
		return err
	}
	return nil
}

func (c *SerialChannel) writeLoop() {
	defer close(c.done)
	for msg := range c.queue {
		n, err := c.port.Write(msg)
		if err == nil && n != len(msg) {
			err = fmt.Errorf("short write %d of %d bytes", n, len(msg))
		}
		if err != nil {
			c.failed.Add(1)
			c.mu.Lock()
			c.writeErr = fmt.Errorf("write to %s: %w", c.path, err)
			c.mu.Unlock()
			continue
		}
		c.written.Add(1)
	}
}

// Stats returns the channel counters.
func (c *SerialChannel) Stats() SerialStats {
	return SerialStats{
		Written: c.written.Load(),
		Dropped: c.dropped.Load(),
		Failed:  c.failed.Load(),
	}
}

// Close stops accepting commands, waits up to serialDrainTimeout for the
// queued one to be written and then closes the port.
func (c *SerialChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	var drainErr error
	select {
	case <-c.done:
	case <-time.After(serialDrainTimeout):
		drainErr = fmt.Errorf("serial %s: last command still pending after %s", c.path, serialDrainTimeout)
	}
	c.mu.Lock()
	writeErr := c.writeErr
	c.writeErr = nil
	c.mu.Unlock()

	if err := c.port.Close(); err != nil {
		return err
	}
	if drainErr != nil {
		return drainErr
	}
	return writeErr
}

func (c *SerialChannel) String() string { return "serial://" + c.path }
