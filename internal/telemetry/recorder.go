package telemetry

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/depth-servo/internal/monitoring"
	"github.com/banshee-data/depth-servo/internal/servo"
)

// DefaultQueueSize bounds the statuses waiting to be written.
const DefaultQueueSize = 1024

type recordItem struct {
	status  servo.Status
	flushed chan struct{} // non-nil for a flush marker
}

// Recorder is a servo.StatusSink that writes ticks to a Store from a
// background goroutine. Publish never blocks: when the queue is full the
// status is dropped and counted.
type Recorder struct {
	store   *Store
	session string

	mu      sync.RWMutex // guards queue against Publish after Close
	closed  bool
	queue   chan recordItem
	done    chan struct{}
	dropped atomic.Uint64
	written atomic.Uint64
	failed  atomic.Uint64
}

// NewRecorder starts a recorder for session.
func NewRecorder(store *Store, session string, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	r := &Recorder{
		store:   store,
		session: session,
		queue:   make(chan recordItem, queueSize),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Session returns the session being recorded.
func (r *Recorder) Session() string { return r.session }

// Publish queues s for writing.
func (r *Recorder) Publish(s servo.Status) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- recordItem{status: s}:
	default:
		r.dropped.Add(1)
	}
}

// Flush blocks until everything queued before the call has been written.
func (r *Recorder) Flush() {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return
	}
	ch := make(chan struct{})
	r.queue <- recordItem{flushed: ch}
	r.mu.RUnlock()
	<-ch
}

// Close writes the remaining queue and stops the writer. The store stays
// open.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done

	if d := r.dropped.Load(); d > 0 {
		monitoring.Opsf("telemetry: %d statuses dropped (queue full)", d)
	}
	monitoring.Diagf("telemetry: session %s closed, %d ticks written", r.session, r.written.Load())
	return nil
}

// RecorderStats counts recorder outcomes.
type RecorderStats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// Stats returns a snapshot of the recorder counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{Written: r.written.Load(), Dropped: r.dropped.Load(), Failed: r.failed.Load()}
}

// maxBatch bounds one write transaction.
const maxBatch = 256

func (r *Recorder) run() {
	defer close(r.done)
	batch := make([]servo.Status, 0, maxBatch)
	var waiters []chan struct{}

	for item := range r.queue {
		batch, waiters = r.collect(batch[:0], waiters[:0], item)
	drain:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-r.queue:
				if !ok {
					break drain
				}
				batch, waiters = r.collect(batch, waiters, next)
			default:
				break drain
			}
		}
		r.write(batch)
		for _, w := range waiters {
			close(w)
		}
	}
}

func (r *Recorder) collect(batch []servo.Status, waiters []chan struct{}, item recordItem) ([]servo.Status, []chan struct{}) {
	if item.flushed != nil {
		return batch, append(waiters, item.flushed)
	}
	return append(batch, item.status), waiters
}

func (r *Recorder) write(batch []servo.Status) {
	if len(batch) == 0 {
		return
	}
	if err := r.store.InsertTicks(context.Background(), r.session, batch); err != nil {
		r.failed.Add(uint64(len(batch)))
		monitoring.Opsf("telemetry: failed to write %d ticks: %v", len(batch), err)
		return
	}
	r.written.Add(uint64(len(batch)))
}
