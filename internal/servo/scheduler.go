package servo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/depth-servo/internal/monitoring"
	"github.com/banshee-data/depth-servo/internal/timeutil"
)

// ErrStopped is returned by Run on a scheduler that has already stopped.
var ErrStopped = errors.New("scheduler stopped")

// State is the lifecycle state of a Scheduler.
type State int32

const (
	// Armed: the ticker is running and every period produces a command.
	Armed State = iota
	// Stopped: no further ticks; the disarm command has been sent.
	Stopped
)

func (s State) String() string {
	switch s {
	case Armed:
		return "ARMED"
	case Stopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Scheduler drives a Controller at a fixed period, independently of the
// frame rate. Its lifecycle is one-shot: Armed until Stop, then Stopped
// for good.
type Scheduler struct {
	ctrl   *Controller
	clock  timeutil.Clock
	period time.Duration

	mu        sync.Mutex // serializes ticks with the final disarm
	state     atomic.Int32
	stopOnce  sync.Once
	stopErr   error
	done      chan struct{}
	observers []func(State)
}

// NewScheduler returns an Armed scheduler. Period must be positive.
func NewScheduler(ctrl *Controller, clock timeutil.Clock, period time.Duration) (*Scheduler, error) {
	if period <= 0 {
		return nil, fmt.Errorf("scheduler: %w (got %s)", ErrInvalidPeriod, period)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Scheduler{
		ctrl:   ctrl,
		clock:  clock,
		period: period,
		done:   make(chan struct{}),
	}, nil
}

// OnStateChange registers fn to be called after each state transition.
// Register observers before calling Run.
func (s *Scheduler) OnStateChange(fn func(State)) {
	s.observers = append(s.observers, fn)
}

// State returns the current state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Run ticks the controller every period until ctx is cancelled or Stop is
// called. Cancelling ctx performs the full Stop sequence before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.State() == Stopped {
		return ErrStopped
	}
	ticker := s.clock.NewTicker(s.period)
	defer ticker.Stop()

	monitoring.Opsf("control loop armed, period %s", s.period)
	for _, fn := range s.observers {
		fn(Armed)
	}

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return ctx.Err()
		case <-s.done:
			return nil
		case <-ticker.C():
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != Armed {
		return
	}
	s.ctrl.Tick()
}

// Stop halts the loop, sends exactly one zero-thrust command and then
// closes the command channel, in that order. Only the first call has any
// effect; later calls return the first call's error.
func (s *Scheduler) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.state.Store(int32(Stopped))
		close(s.done)
		disarmErr := s.ctrl.Disarm()
		closeErr := s.ctrl.Close()
		s.mu.Unlock()

		s.stopErr = errors.Join(disarmErr, closeErr)
		monitoring.Opsf("control loop stopped after %d ticks", s.ctrl.Stats().Ticks)
		for _, fn := range s.observers {
			fn(Stopped)
		}
	})
	return s.stopErr
}
