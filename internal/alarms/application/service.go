package application

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"strings"
	"sync"
	"time"

	alarms "coatline/internal/alarms/domain"
	"coatline/internal/observability/metrics"
	telemetry "coatline/internal/telemetry/domain"
)

// AlarmNotifier publishes alarm lifecycle events.
type AlarmNotifier interface {
	Notify(ctx context.Context, event AlarmEvent)
}

// AlarmEvent represents a lifecycle update.
type AlarmEvent struct {
	Type  string       `json:"type"`
	Alarm alarms.Event `json:"alarm"`
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// DedupTracker inserts at most one alarm row per incident.
type DedupTracker struct {
	events    alarms.EventRepository
	states    alarms.StateStore
	notifier  AlarmNotifier
	clock     Clock
	logger    *log.Logger
	opTimeout time.Duration

	locks  [keyStripes]sync.Mutex
	mu     sync.Mutex
	mirror map[alarms.Key]alarms.Status
}

// keyStripes bounds the per-incident locks; keys sharing a stripe serialize.
const keyStripes = 64

// TrackerOption customizes the tracker.
type TrackerOption func(*DedupTracker)

// WithNotifier assigns a notifier.
func WithNotifier(notifier AlarmNotifier) TrackerOption {
	return func(t *DedupTracker) {
		t.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) TrackerOption {
	return func(t *DedupTracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) TrackerOption {
	return func(t *DedupTracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithOperationTimeout bounds every cache and database call.
func WithOperationTimeout(timeout time.Duration) TrackerOption {
	return func(t *DedupTracker) {
		if timeout > 0 {
			t.opTimeout = timeout
		}
	}
}

// NewDedupTracker constructs an alarm dedup tracker.
func NewDedupTracker(events alarms.EventRepository, states alarms.StateStore, opts ...TrackerOption) (*DedupTracker, error) {
	if events == nil || states == nil {
		return nil, errors.New("alarms: nil repository")
	}
	tracker := &DedupTracker{
		events:    events,
		states:    states,
		clock:     systemClock{},
		logger:    log.Default(),
		opTimeout: 5 * time.Second,
		mirror:    make(map[alarms.Key]alarms.Status),
	}
	for _, opt := range opts {
		opt(tracker)
	}
	return tracker, nil
}

// Handle applies an alarm signal and reports whether a row was inserted.
// Unknown statuses are logged and ignored.
func (t *DedupTracker) Handle(ctx context.Context, signal telemetry.AlarmSignal) (bool, error) {
	if t == nil {
		return false, errors.New("alarms: nil tracker")
	}
	incoming, err := alarms.ParseStatus(signal.Status)
	if err != nil {
		metrics.IncAlarmEvent("ignored")
		t.logger.Printf("alarms: ignore signal: line=%s machine=%s err=%v", signal.Line, signal.Machine, err)
		return false, nil
	}
	if strings.TrimSpace(signal.Message) == "" {
		return false, alarms.ErrEmptyMessage
	}
	key := alarms.NewKey(signal.Machine, signal.Line, signal.Message)

	lock := t.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	current := t.currentStatus(ctx, key)
	next, insert := alarms.Transition(current, incoming)
	if insert {
		event := &alarms.Event{
			Machine:   signal.Machine,
			LineNo:    signal.Line,
			Message:   strings.TrimSpace(signal.Message),
			Timestamp: signal.Timestamp,
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = t.clock.Now()
		}
		opCtx, cancel := context.WithTimeout(ctx, t.opTimeout)
		err := t.events.Insert(opCtx, event)
		cancel()
		if err != nil {
			metrics.IncAlarmEvent("error")
			return false, fmt.Errorf("alarms: insert line=%s machine=%s: %w", signal.Line, signal.Machine, err)
		}
		metrics.IncAlarmEvent("inserted")
		t.notify(ctx, "triggered", *event)
	} else {
		metrics.IncAlarmEvent("skipped")
		if incoming == alarms.StatusRecovered && current == alarms.StatusTriggered {
			t.notify(ctx, "recovered", alarms.Event{
				Machine:   signal.Machine,
				LineNo:    signal.Line,
				Message:   strings.TrimSpace(signal.Message),
				Timestamp: signal.Timestamp,
			})
		}
	}

	t.storeStatus(ctx, key, next)
	return insert, nil
}

func (t *DedupTracker) keyLock(key alarms.Key) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.Machine + "|" + key.LineNo + "|" + key.Message))
	return &t.locks[h.Sum32()%keyStripes]
}

// currentStatus reads the cached status, falling back to the last status seen
// by this process while the cache is unreachable.
func (t *DedupTracker) currentStatus(ctx context.Context, key alarms.Key) alarms.Status {
	opCtx, cancel := context.WithTimeout(ctx, t.opTimeout)
	defer cancel()
	status, err := t.states.Get(opCtx, key)
	if err == nil {
		return status
	}
	metrics.IncCacheError("alarm_load")
	t.logger.Printf("alarms: state load failed, using local state: line=%s machine=%s err=%v", key.LineNo, key.Machine, err)
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mirror[key]
}

func (t *DedupTracker) storeStatus(ctx context.Context, key alarms.Key, status alarms.Status) {
	t.mu.Lock()
	// A recovered incident behaves like an unseen one, so only open ones are mirrored.
	if status == alarms.StatusTriggered {
		t.mirror[key] = status
	} else {
		delete(t.mirror, key)
	}
	t.mu.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, t.opTimeout)
	defer cancel()
	if err := t.states.Set(opCtx, key, status); err != nil {
		metrics.IncCacheError("alarm_save")
		t.logger.Printf("alarms: state save failed: line=%s machine=%s err=%v", key.LineNo, key.Machine, err)
	}
}

func (t *DedupTracker) notify(ctx context.Context, eventType string, event alarms.Event) {
	if t.notifier == nil {
		return
	}
	t.notifier.Notify(ctx, AlarmEvent{Type: eventType, Alarm: event})
}

// Recent lists the newest alarm rows of a line.
func (t *DedupTracker) Recent(ctx context.Context, lineNo string, limit int) ([]alarms.Event, error) {
	if t == nil {
		return nil, errors.New("alarms: nil tracker")
	}
	return t.events.ListRecent(ctx, lineNo, limit)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
