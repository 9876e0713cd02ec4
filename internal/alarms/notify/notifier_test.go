package notify

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	alarmapp "coatline/internal/alarms/application"
	alarms "coatline/internal/alarms/domain"
)

type recordingChannel struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (c *recordingChannel) Send(_ context.Context, line, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.messages = append(c.messages, line+":"+content)
	return nil
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestNotifierRendersTemplate(t *testing.T) {
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	notifier.Notify(context.Background(), alarmapp.AlarmEvent{
		Type: "triggered",
		Alarm: alarms.Event{
			Machine:   "CM-01",
			LineNo:    "CL01",
			Message:   "Oven temperature high",
			Timestamp: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
		},
	})
	if channel.count() != 1 {
		t.Fatalf("expected 1 message, got %d", channel.count())
	}
	msg := channel.messages[0]
	for _, want := range []string{"CL01:", "[Alarm Triggered]", "Machine: CM-01", "Oven temperature high", "2026-10-15T09:00:00Z"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
}

func TestNotifierDedupeWindow(t *testing.T) {
	channel := &recordingChannel{}
	clock := &fakeClock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	notifier, _ := NewNotifier(channel, nil, WithClock(clock), WithDedupeWindow(time.Minute))
	event := alarmapp.AlarmEvent{Type: "triggered", Alarm: alarms.Event{LineNo: "CL01", Machine: "CM-01", Message: "jam", Timestamp: clock.now}}

	notifier.Notify(context.Background(), event)
	notifier.Notify(context.Background(), event)
	if channel.count() != 1 {
		t.Fatalf("expected duplicate suppressed, got %d", channel.count())
	}
	clock.now = clock.now.Add(2 * time.Minute)
	notifier.Notify(context.Background(), event)
	if channel.count() != 2 {
		t.Fatalf("expected resend after window, got %d", channel.count())
	}
}

func TestNotifierSendFailureIsNotRecorded(t *testing.T) {
	channel := &recordingChannel{err: errors.New("offline")}
	notifier, _ := NewNotifier(channel, nil, WithDedupeWindow(time.Hour))
	event := alarmapp.AlarmEvent{Type: "recovered", Alarm: alarms.Event{LineNo: "CL01", Message: "jam"}}

	notifier.Notify(context.Background(), event)
	channel.err = nil
	notifier.Notify(context.Background(), event)
	if channel.count() != 1 {
		t.Fatalf("expected retry after failure, got %d", channel.count())
	}
}

func TestMultiNotifierFansOut(t *testing.T) {
	first, second := &recordingChannel{}, &recordingChannel{}
	n1, _ := NewNotifier(first, nil)
	n2, _ := NewNotifier(second, nil)
	multi := NewMultiNotifier(log.New(io.Discard, "", 0), n1, nil, n2)

	multi.Notify(context.Background(), alarmapp.AlarmEvent{Type: "triggered", Alarm: alarms.Event{LineNo: "CL02", Message: "jam"}})
	if first.count() != 1 || second.count() != 1 {
		t.Fatalf("expected both notifiers called, got %d and %d", first.count(), second.count())
	}
}

type panickingNotifier struct{}

func (panickingNotifier) Notify(context.Context, alarmapp.AlarmEvent) {
	panic("channel closed")
}

func TestMultiNotifierSurvivesPanickingChannel(t *testing.T) {
	channel := &recordingChannel{}
	n, _ := NewNotifier(channel, nil)
	var logs strings.Builder
	multi := NewMultiNotifier(log.New(&logs, "", 0), panickingNotifier{}, n)

	multi.Notify(context.Background(), alarmapp.AlarmEvent{Type: "triggered", Alarm: alarms.Event{LineNo: "CL01", Message: "jam"}})
	if channel.count() != 1 {
		t.Fatalf("expected later channel to receive the event, got %d", channel.count())
	}
	if !strings.Contains(logs.String(), "channel 0 panicked: line=CL01") {
		t.Fatalf("expected panic logged, got %q", logs.String())
	}
}
