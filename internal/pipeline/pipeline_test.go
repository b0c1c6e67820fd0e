package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/good-yellow-bee/logtrap/internal/models"
)

// fakeEvaluator records evaluated entries and serves canned results.
type fakeEvaluator struct {
	mu      sync.Mutex
	fired   []string
	err     error
	panics  bool
	entries []*models.LogEntry
}

func (f *fakeEvaluator) EvaluateEntry(ctx context.Context, entry *models.LogEntry) ([]string, error) {
	if f.panics {
		panic("evaluator exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return f.fired, f.err
}

func (f *fakeEvaluator) seen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// fakeFirer records FireAlerts calls.
type fakeFirer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeFirer) FireAlerts(ctx context.Context, teamID, trapID, message string) ([]*models.AlertHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, trapID)
	return nil, f.err
}

func (f *fakeFirer) trapIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func testEntry(id string) *models.LogEntry {
	return &models.LogEntry{
		ID: id, TeamID: "team-1", Timestamp: time.Now().UTC(),
		Level: models.LevelError, Message: "boom",
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestPipelineEvaluatesAndFires(t *testing.T) {
	eval := &fakeEvaluator{fired: []string{"trap-1", "trap-2"}}
	firer := &fakeFirer{}
	p := New(eval, firer, Config{QueueSize: 16, Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	if err := p.Publish(testEntry("e1")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(firer.trapIDs()) == 2 })
	p.Stop()

	ids := firer.trapIDs()
	if len(ids) != 2 || ids[0] != "trap-1" || ids[1] != "trap-2" {
		t.Errorf("fired traps = %v", ids)
	}
}

func TestPublishRejectsWhenQueueFull(t *testing.T) {
	// No workers started: the queue fills and rejects.
	p := New(&fakeEvaluator{}, &fakeFirer{}, Config{QueueSize: 2, Workers: 1})

	if err := p.Publish(testEntry("e1")); err != nil {
		t.Fatalf("publish 1: %v", err)
	}
	if err := p.Publish(testEntry("e2")); err != nil {
		t.Fatalf("publish 2: %v", err)
	}
	if err := p.Publish(testEntry("e3")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("publish 3 = %v, want ErrQueueFull", err)
	}
	if got := p.QueueDepth(); got != 2 {
		t.Errorf("queue depth = %d, want 2", got)
	}
}

func TestEvaluationErrorDoesNotStopWorkers(t *testing.T) {
	eval := &fakeEvaluator{err: errors.New("storage down")}
	firer := &fakeFirer{}
	p := New(eval, firer, Config{QueueSize: 16, Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	p.Publish(testEntry("e1"))
	p.Publish(testEntry("e2"))

	waitFor(t, time.Second, func() bool { return eval.seen() == 2 })
	p.Stop()

	if len(firer.trapIDs()) != 0 {
		t.Error("no alerts should fire when evaluation fails")
	}
}

func TestAlertFiringErrorIsIsolatedPerTrap(t *testing.T) {
	eval := &fakeEvaluator{fired: []string{"trap-1", "trap-2"}}
	firer := &fakeFirer{err: errors.New("channel lookup failed")}
	p := New(eval, firer, Config{QueueSize: 16, Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	p.Publish(testEntry("e1"))

	// Both traps get a firing attempt despite the first one failing.
	waitFor(t, time.Second, func() bool { return len(firer.trapIDs()) == 2 })
	p.Stop()
}

func TestWorkerRecoversFromPanic(t *testing.T) {
	eval := &fakeEvaluator{panics: true}
	p := New(eval, &fakeFirer{}, Config{QueueSize: 16, Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	p.Publish(testEntry("e1"))
	p.Publish(testEntry("e2"))

	// Stop drains the queue; workers survive the panics and exit cleanly.
	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after worker panics")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	p := New(&fakeEvaluator{}, &fakeFirer{}, Config{QueueSize: 4, Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	p.Stop()
	p.Stop()
}
