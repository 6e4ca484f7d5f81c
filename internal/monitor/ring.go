package monitor

import (
	"sync"

	"github.com/banshee-data/depth-servo/internal/servo"
)

// StatusRing keeps the most recent tick statuses for the HTTP API.
type StatusRing struct {
	mu    sync.Mutex
	buf   []servo.Status
	next  int
	count int
}

// NewStatusRing returns a ring holding up to size statuses.
func NewStatusRing(size int) *StatusRing {
	if size <= 0 {
		size = 1
	}
	return &StatusRing{buf: make([]servo.Status, size)}
}

// Publish implements servo.StatusSink.
func (r *StatusRing) Publish(s servo.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = s
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Latest returns the newest status, if any.
func (r *StatusRing) Latest() (servo.Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return servo.Status{}, false
	}
	return r.buf[(r.next-1+len(r.buf))%len(r.buf)], true
}

// Snapshot returns the retained statuses, oldest first.
func (r *StatusRing) Snapshot() []servo.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]servo.Status, 0, r.count)
	start := (r.next - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
