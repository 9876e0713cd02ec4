package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log"
	"sync"
	"time"

	alarmapp "coatline/internal/alarms/application"
)

// Channel delivers rendered notifications of a line.
type Channel interface {
	Send(ctx context.Context, line, content string) error
}

// Clock provides time for dedupe windows.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders alarm lifecycle events and sends them over a channel.
type Notifier struct {
	channel        Channel
	template       *Template
	clock          Clock
	logger         *log.Logger
	mu             sync.Mutex
	sent           map[string]sendRecord
	dedupeWindow   time.Duration
	requestTimeout time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithRequestTimeout overrides the default send timeout.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// NewNotifier constructs an alarm notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("alarm notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:        channel,
		template:       template,
		clock:          systemClock{},
		logger:         log.Default(),
		sent:           make(map[string]sendRecord),
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements AlarmNotifier.
func (n *Notifier) Notify(ctx context.Context, event alarmapp.AlarmEvent) {
	if n == nil || n.channel == nil {
		return
	}
	alarm := event.Alarm
	at := alarm.Timestamp
	if at.IsZero() {
		at = n.clock.Now()
	}
	content, err := n.template.Render(TemplateData{
		Line:       alarm.LineNo,
		Machine:    alarm.Machine,
		Message:    alarm.Message,
		Time:       at.UTC().Format(time.RFC3339),
		Event:      event.Type,
		EventLabel: eventLabel(event.Type),
	})
	if err != nil {
		n.logger.Printf("alarm notifier: render error: %v", err)
		return
	}
	key := alarm.LineNo + "|" + alarm.Machine + "|" + event.Type
	if !n.shouldSend(key, content) {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.requestTimeout)
	defer cancel()
	if err := n.channel.Send(sendCtx, alarm.LineNo, content); err != nil {
		n.logger.Printf("alarm notifier: send error: line=%s err=%v", alarm.LineNo, err)
		return
	}
	n.markSent(key, content)
}

func eventLabel(event string) string {
	switch event {
	case "triggered":
		return "Triggered"
	case "recovered":
		return "Recovered"
	default:
		return event
	}
}

func (n *Notifier) shouldSend(key, content string) bool {
	if n.dedupeWindow <= 0 {
		return true
	}
	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	return record.hash != hashContent(content) || n.clock.Now().UTC().Sub(record.at) >= n.dedupeWindow
}

func (n *Notifier) markSent(key, content string) {
	n.mu.Lock()
	n.sent[key] = sendRecord{at: n.clock.Now().UTC(), hash: hashContent(content)}
	n.mu.Unlock()
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

// LogChannel writes notifications to a logger.
type LogChannel struct {
	Logger *log.Logger
}

// Send implements Channel.
func (c LogChannel) Send(ctx context.Context, line, content string) error {
	_ = ctx
	logger := c.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("alarm notification: line=%s\n%s", line, content)
	return nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
