package worker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bellcorp/eventboard/internal/notifications"
	"github.com/bellcorp/eventboard/internal/queue"
	"github.com/bellcorp/eventboard/internal/queue/worker"
)

// scripted source replays a fixed sequence of dequeue results.

type scriptedSource struct {
	mu      sync.Mutex
	script  []scriptStep
	pos     int
	drained chan struct{}
}

type scriptStep struct {
	c   queue.Confirmation
	err error
}

func newScriptedSource(steps ...scriptStep) *scriptedSource {
	return &scriptedSource{script: steps, drained: make(chan struct{})}
}

func (s *scriptedSource) Dequeue(ctx context.Context, timeout time.Duration) (queue.Confirmation, error) {
	s.mu.Lock()

	if s.pos >= len(s.script) {
		if s.pos == len(s.script) {
			s.pos++
			close(s.drained)
		}
		s.mu.Unlock()

		// past the script: behave like an idle queue until shutdown
		select {
		case <-ctx.Done():
			return queue.Confirmation{}, ctx.Err()
		case <-time.After(5 * time.Millisecond):
			return queue.Confirmation{}, queue.ErrEmpty
		}
	}

	step := s.script[s.pos]
	s.pos++
	s.mu.Unlock()

	return step.c, step.err
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []notifications.SendRegistrationConfirmationInput
	fails int
}

func (n *recordingNotifier) SendRegistrationConfirmation(ctx context.Context, in notifications.SendRegistrationConfirmationInput) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.fails > 0 {
		n.fails--
		return errors.New("smtp down")
	}

	n.sent = append(n.sent, in)
	return nil
}

func (n *recordingNotifier) delivered() []notifications.SendRegistrationConfirmationInput {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]notifications.SendRegistrationConfirmationInput, len(n.sent))
	copy(out, n.sent)
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func confirmation(regID string) queue.Confirmation {
	return queue.Confirmation{
		RegistrationID: regID,
		EventID:        "event-1",
		EventName:      "Go Meetup",
		UserID:         "user-1",
		Email:          "user@example.com",
		RequestedAt:    time.Now().UTC(),
	}
}

func runUntilDrained(t *testing.T, w *worker.Worker, src *scriptedSource) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- w.Run(ctx) }()

	select {
	case <-src.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not drain the script in time")
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("worker returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorker_DeliversConfirmations(t *testing.T) {
	src := newScriptedSource(
		scriptStep{c: confirmation("r1")},
		scriptStep{c: confirmation("r2")},
	)
	n := &recordingNotifier{}

	w := worker.New(worker.Config{BlockTimeout: 10 * time.Millisecond}, src, n, nil, discardLogger())
	runUntilDrained(t, w, src)

	sent := n.delivered()
	if len(sent) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(sent))
	}
	if sent[0].RegistrationID != "r1" || sent[1].RegistrationID != "r2" {
		t.Fatalf("deliveries out of order: %+v", sent)
	}
	if sent[0].EventName != "Go Meetup" || sent[0].Email != "user@example.com" {
		t.Fatalf("payload fields not forwarded: %+v", sent[0])
	}
}

func TestWorker_DropsUndecodablePayloads(t *testing.T) {
	src := newScriptedSource(
		scriptStep{err: queue.ErrInvalidPayload},
		scriptStep{c: confirmation("r1")},
	)
	n := &recordingNotifier{}

	w := worker.New(worker.Config{BlockTimeout: 10 * time.Millisecond}, src, n, nil, discardLogger())
	runUntilDrained(t, w, src)

	if got := len(n.delivered()); got != 1 {
		t.Fatalf("expected the bad payload dropped and the good one delivered, got %d deliveries", got)
	}
}

func TestWorker_NotifyFailureDoesNotStopLoop(t *testing.T) {
	src := newScriptedSource(
		scriptStep{c: confirmation("r1")},
		scriptStep{c: confirmation("r2")},
	)
	n := &recordingNotifier{fails: 1}

	w := worker.New(worker.Config{BlockTimeout: 10 * time.Millisecond}, src, n, nil, discardLogger())
	runUntilDrained(t, w, src)

	sent := n.delivered()
	if len(sent) != 1 {
		t.Fatalf("expected exactly the second confirmation to deliver, got %d", len(sent))
	}
	if sent[0].RegistrationID != "r2" {
		t.Fatalf("expected r2 delivered after r1 failed, got %+v", sent[0])
	}
}

func TestExponentialBackoff_GrowsAndCaps(t *testing.T) {
	d0 := worker.ExponentialBackoff(0)
	if d0 < 2*time.Second || d0 > 2*time.Second+time.Second {
		t.Fatalf("attempt 0 out of range: %s", d0)
	}

	d3 := worker.ExponentialBackoff(3)
	if d3 < 16*time.Second {
		t.Fatalf("attempt 3 should be at least 16s, got %s", d3)
	}

	d20 := worker.ExponentialBackoff(20)
	if d20 > 5*time.Minute+time.Second {
		t.Fatalf("backoff should cap near 5m, got %s", d20)
	}
}
