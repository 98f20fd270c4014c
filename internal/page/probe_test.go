package page

import (
	"context"
	"io"
	"testing"
	"time"

	"log/slog"
)

// scriptedPinger answers from a fixed script and keeps answering the last
// value when the script runs out.
type scriptedPinger struct {
	script []bool
	calls  int
}

func (s *scriptedPinger) Ping(ctx context.Context) bool {
	i := s.calls
	s.calls++
	if i >= len(s.script) {
		if len(s.script) == 0 {
			return false
		}
		return s.script[len(s.script)-1]
	}
	return s.script[i]
}

// blockingPinger never answers; it waits for its context.
type blockingPinger struct{}

func (blockingPinger) Ping(ctx context.Context) bool {
	<-ctx.Done()
	return false
}

func newTestProbe(p Pinger) *Probe {
	probe := NewProbe(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	probe.FirstDeadline = 20 * time.Millisecond
	probe.PollInterval = 5 * time.Millisecond
	return probe
}

func TestProbeSettlesAvailableOnFirstPing(t *testing.T) {
	pinger := &scriptedPinger{script: []bool{true}}
	probe := newTestProbe(pinger)

	if got := probe.Run(context.Background()); got != StateAvailable {
		t.Fatalf("expected StateAvailable, got %v", got)
	}
	if probe.Attempts() != 1 {
		t.Fatalf("expected 1 attempt, got %d", probe.Attempts())
	}
}

func TestProbeSettlesAvailableAfterPolling(t *testing.T) {
	pinger := &scriptedPinger{script: []bool{false, false, true}}
	probe := newTestProbe(pinger)

	if got := probe.Run(context.Background()); got != StateAvailable {
		t.Fatalf("expected StateAvailable, got %v", got)
	}
	if probe.Attempts() != 3 {
		t.Fatalf("expected 3 attempts, got %d", probe.Attempts())
	}
}

func TestProbeSettlesUnavailableAfterBudget(t *testing.T) {
	pinger := &scriptedPinger{script: []bool{false}}
	probe := newTestProbe(pinger)

	if got := probe.Run(context.Background()); got != StateUnavailable {
		t.Fatalf("expected StateUnavailable, got %v", got)
	}
	if probe.Attempts() != probe.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", probe.MaxAttempts, probe.Attempts())
	}
}

func TestProbeVerdictIsTerminal(t *testing.T) {
	pinger := &scriptedPinger{script: []bool{false}}
	probe := newTestProbe(pinger)

	probe.Run(context.Background())
	pings := pinger.calls

	// A second run must not ping again, even though the pinger would now
	// answer positively.
	pinger.script = []bool{true}
	if got := probe.Run(context.Background()); got != StateUnavailable {
		t.Fatalf("verdict reopened: %v", got)
	}
	if pinger.calls != pings {
		t.Fatalf("expected no further pings, got %d more", pinger.calls-pings)
	}
}

func TestProbeCancellationLeavesUnknown(t *testing.T) {
	probe := newTestProbe(blockingPinger{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if got := probe.Run(ctx); got != StateUnknown {
		t.Fatalf("expected StateUnknown after cancellation, got %v", got)
	}
	if probe.State() != StateUnknown {
		t.Fatalf("cancelled probe must stay unknown, got %v", probe.State())
	}
}
