package page

import (
	"context"
	"sync"
	"time"

	"log/slog"
)

// ProbeState is the availability verdict for the storage bridge.
type ProbeState int

const (
	// StateUnknown means the probe has not finished.
	StateUnknown ProbeState = iota
	// StateAvailable is terminal: a ping answered within its deadline.
	StateAvailable
	// StateUnavailable is terminal: every attempt timed out or failed. The
	// page never probes again for the rest of its lifetime.
	StateUnavailable
)

func (s ProbeState) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Pinger answers availability probes. Implementations report false for both
// timeouts and failures; the probe does not care which.
type Pinger interface {
	Ping(ctx context.Context) bool
}

const (
	defaultFirstDeadline = time.Second
	defaultPollInterval  = 100 * time.Millisecond
	defaultMaxAttempts   = 10
)

// Probe decides, once per page lifetime, whether a storage bridge is
// reachable. The first ping gets a generous deadline; after it fails the
// probe polls on a short interval until one ping answers or the attempt
// budget runs out. Both outcomes are terminal.
type Probe struct {
	pinger Pinger
	logger *slog.Logger

	// FirstDeadline, PollInterval and MaxAttempts default to 1s, 100ms and
	// 10. Tests compress them.
	FirstDeadline time.Duration
	PollInterval  time.Duration
	MaxAttempts   int

	mu       sync.Mutex
	state    ProbeState
	attempts int
}

// NewProbe constructs a Probe with default timing.
func NewProbe(pinger Pinger, logger *slog.Logger) *Probe {
	return &Probe{
		pinger:        pinger,
		logger:        logger,
		FirstDeadline: defaultFirstDeadline,
		PollInterval:  defaultPollInterval,
		MaxAttempts:   defaultMaxAttempts,
	}
}

// State returns the current probe state.
func (p *Probe) State() ProbeState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Attempts returns how many pings have been issued.
func (p *Probe) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// Run drives the probe to a terminal state and returns it. Once a terminal
// state is reached, Run returns it immediately without pinging again; a
// response arriving after the verdict cannot reopen it. Cancelling ctx
// abandons an unfinished probe at StateUnknown.
func (p *Probe) Run(ctx context.Context) ProbeState {
	if s := p.State(); s != StateUnknown {
		return s
	}

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		deadline := p.FirstDeadline
		if attempt > 1 {
			deadline = p.PollInterval
		}
		started := time.Now()

		attemptCtx, cancel := context.WithTimeout(ctx, deadline)
		ok := p.pinger.Ping(attemptCtx)
		cancel()

		p.mu.Lock()
		p.attempts++
		p.mu.Unlock()

		if ok {
			p.settle(StateAvailable, attempt)
			return StateAvailable
		}
		if ctx.Err() != nil {
			return StateUnknown
		}
		// A ping that failed fast still holds the polling cadence: the next
		// attempt starts one full interval after this one began.
		if attempt > 1 && attempt < p.MaxAttempts {
			if remaining := p.PollInterval - time.Since(started); remaining > 0 {
				select {
				case <-time.After(remaining):
				case <-ctx.Done():
					return StateUnknown
				}
			}
		}
	}

	p.settle(StateUnavailable, p.MaxAttempts)
	return StateUnavailable
}

func (p *Probe) settle(state ProbeState, attempt int) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
	if p.logger != nil {
		p.logger.Info("bridge probe settled", "state", state.String(), "attempts", attempt)
	}
}
