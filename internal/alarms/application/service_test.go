package application

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	alarms "coatline/internal/alarms/domain"
	"coatline/internal/alarms/infrastructure/memory"
	telemetry "coatline/internal/telemetry/domain"
)

type flakyStateStore struct {
	*memory.StateStore
	mu  sync.Mutex
	err error
}

func (s *flakyStateStore) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *flakyStateStore) Get(ctx context.Context, key alarms.Key) (alarms.Status, error) {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return alarms.StatusNone, err
	}
	return s.StateStore.Get(ctx, key)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []AlarmEvent
}

func (n *recordingNotifier) Notify(_ context.Context, event AlarmEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func signal(status, message string) telemetry.AlarmSignal {
	return telemetry.AlarmSignal{
		Line:      "CL01",
		Machine:   "CM-01",
		Status:    status,
		Message:   message,
		Timestamp: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
	}
}

func newTestTracker(t *testing.T, states alarms.StateStore, opts ...TrackerOption) (*DedupTracker, *memory.EventRepository) {
	t.Helper()
	events := memory.NewEventRepository()
	opts = append(opts, WithLogger(log.New(io.Discard, "", 0)))
	tracker, err := NewDedupTracker(events, states, opts...)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	return tracker, events
}

func TestDedupTrackerInsertsOncePerIncident(t *testing.T) {
	notifier := &recordingNotifier{}
	tracker, events := newTestTracker(t, memory.NewStateStore(), WithNotifier(notifier))
	ctx := context.Background()

	steps := []struct {
		status string
		insert bool
	}{
		{"triggered", true},
		{"triggered", false},
		{"TRIGGERED", false},
		{"recovered", false},
		{"recovered", false},
		{"triggered", true},
	}
	for i, step := range steps {
		inserted, err := tracker.Handle(ctx, signal(step.status, "Oven temperature high"))
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if inserted != step.insert {
			t.Fatalf("step %d: expected insert=%v, got %v", i, step.insert, inserted)
		}
	}
	if events.Len() != 2 {
		t.Fatalf("expected 2 alarm rows, got %d", events.Len())
	}
	if len(notifier.events) != 3 {
		t.Fatalf("expected triggered, recovered, triggered notifications, got %d", len(notifier.events))
	}
	if notifier.events[1].Type != "recovered" {
		t.Fatalf("expected recovered notification, got %s", notifier.events[1].Type)
	}
}

func TestDedupTrackerKeysAreIndependent(t *testing.T) {
	tracker, events := newTestTracker(t, memory.NewStateStore())
	ctx := context.Background()

	_, _ = tracker.Handle(ctx, signal("triggered", "Oven temperature high"))
	_, _ = tracker.Handle(ctx, signal("triggered", "oven   temperature HIGH"))
	_, _ = tracker.Handle(ctx, signal("triggered", "Conveyor jam"))
	other := signal("triggered", "Conveyor jam")
	other.Line = "CL02"
	_, _ = tracker.Handle(ctx, other)

	if events.Len() != 3 {
		t.Fatalf("expected 3 alarm rows, got %d", events.Len())
	}
}

func TestDedupTrackerIgnoresUnknownStatus(t *testing.T) {
	tracker, events := newTestTracker(t, memory.NewStateStore())
	inserted, err := tracker.Handle(context.Background(), signal("acknowledged", "Conveyor jam"))
	if err != nil || inserted {
		t.Fatalf("expected ignore, got inserted=%v err=%v", inserted, err)
	}
	if events.Len() != 0 {
		t.Fatalf("expected no rows, got %d", events.Len())
	}
}

func TestDedupTrackerConcurrentTriggers(t *testing.T) {
	tracker, events := newTestTracker(t, memory.NewStateStore())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = tracker.Handle(context.Background(), signal("triggered", "Conveyor jam"))
		}()
	}
	wg.Wait()
	if events.Len() != 1 {
		t.Fatalf("expected 1 alarm row, got %d", events.Len())
	}
}

func TestDedupTrackerCacheOutageUsesLocalState(t *testing.T) {
	states := &flakyStateStore{StateStore: memory.NewStateStore()}
	tracker, events := newTestTracker(t, states)
	ctx := context.Background()

	_, _ = tracker.Handle(ctx, signal("triggered", "Conveyor jam"))
	states.setErr(errors.New("connection refused"))
	inserted, err := tracker.Handle(ctx, signal("triggered", "Conveyor jam"))
	if err != nil || inserted {
		t.Fatalf("expected duplicate skipped during outage, got inserted=%v err=%v", inserted, err)
	}
	if events.Len() != 1 {
		t.Fatalf("expected 1 alarm row, got %d", events.Len())
	}

	recent, err := tracker.Recent(ctx, "CL01", 10)
	if err != nil || len(recent) != 1 || recent[0].Message != "Conveyor jam" {
		t.Fatalf("unexpected recent alarms: %+v err=%v", recent, err)
	}
}

func TestDedupTrackerForgetsRecoveredIncidents(t *testing.T) {
	tracker, events := newTestTracker(t, memory.NewStateStore())
	ctx := context.Background()

	messages := []string{"Conveyor jam", "Oven overtemp", "Coater web break"}
	for _, message := range messages {
		_, _ = tracker.Handle(ctx, signal("triggered", message))
	}
	if got := tracker.mirroredIncidents(); got != len(messages) {
		t.Fatalf("expected %d mirrored incidents, got %d", len(messages), got)
	}
	for _, message := range messages {
		_, _ = tracker.Handle(ctx, signal("recovered", message))
	}
	if got := tracker.mirroredIncidents(); got != 0 {
		t.Fatalf("expected recovered incidents forgotten, got %d", got)
	}

	inserted, err := tracker.Handle(ctx, signal("triggered", "Conveyor jam"))
	if err != nil || !inserted {
		t.Fatalf("expected retrigger insert, got inserted=%v err=%v", inserted, err)
	}
	if events.Len() != len(messages)+1 {
		t.Fatalf("expected %d alarm rows, got %d", len(messages)+1, events.Len())
	}
}

func TestDedupTrackerRecoveryDuringOutageStaysRecovered(t *testing.T) {
	states := &flakyStateStore{StateStore: memory.NewStateStore()}
	tracker, events := newTestTracker(t, states)
	ctx := context.Background()

	_, _ = tracker.Handle(ctx, signal("triggered", "Conveyor jam"))
	states.setErr(errors.New("connection refused"))
	_, _ = tracker.Handle(ctx, signal("recovered", "Conveyor jam"))
	inserted, err := tracker.Handle(ctx, signal("triggered", "Conveyor jam"))
	if err != nil || !inserted {
		t.Fatalf("expected new incident after recovery, got inserted=%v err=%v", inserted, err)
	}
	if events.Len() != 2 {
		t.Fatalf("expected 2 alarm rows, got %d", events.Len())
	}
}

func (t *DedupTracker) mirroredIncidents() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.mirror)
}
