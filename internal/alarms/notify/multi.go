package notify

import (
	"context"
	"log"

	alarmapp "coatline/internal/alarms/application"
)

// MultiNotifier delivers each alarm event to every configured channel. A
// channel that panics is logged and skipped so the rest still receive it.
type MultiNotifier struct {
	notifiers []alarmapp.AlarmNotifier
	logger    *log.Logger
}

// NewMultiNotifier constructs a MultiNotifier, dropping nil notifiers.
func NewMultiNotifier(logger *log.Logger, notifiers ...alarmapp.AlarmNotifier) *MultiNotifier {
	if logger == nil {
		logger = log.Default()
	}
	kept := make([]alarmapp.AlarmNotifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			kept = append(kept, notifier)
		}
	}
	return &MultiNotifier{notifiers: kept, logger: logger}
}

// Notify forwards the event to all notifiers in order.
func (m *MultiNotifier) Notify(ctx context.Context, event alarmapp.AlarmEvent) {
	if m == nil {
		return
	}
	for i, notifier := range m.notifiers {
		m.deliver(ctx, i, notifier, event)
	}
}

func (m *MultiNotifier) deliver(ctx context.Context, index int, notifier alarmapp.AlarmNotifier, event alarmapp.AlarmEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Printf("alarm notify: channel %d panicked: line=%s type=%s err=%v", index, event.Alarm.LineNo, event.Type, r)
		}
	}()
	notifier.Notify(ctx, event)
}
