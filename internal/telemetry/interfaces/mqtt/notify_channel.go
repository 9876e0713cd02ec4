package mqtt

import (
	"context"
	"errors"
	"strings"
)

// NotifyChannel publishes rendered alarm notifications to a per-line topic.
type NotifyChannel struct {
	client Client
	qos    byte
	topic  string
}

// NewNotifyChannel builds a channel. pattern must contain "{line}"; an empty
// pattern uses coatline/{line}/notify.
func NewNotifyChannel(client Client, qos byte, pattern string) (*NotifyChannel, error) {
	if client == nil {
		return nil, errors.New("mqtt notify: nil client")
	}
	if pattern == "" {
		pattern = "coatline/{line}/notify"
	}
	if !strings.Contains(pattern, "{line}") {
		return nil, errors.New("mqtt notify: topic pattern needs {line}")
	}
	return &NotifyChannel{client: client, qos: qos, topic: pattern}, nil
}

// Send implements the alarm notification channel.
func (c *NotifyChannel) Send(ctx context.Context, line, content string) error {
	if line == "" {
		return errors.New("mqtt notify: empty line")
	}
	topic := strings.ReplaceAll(c.topic, "{line}", line)
	return c.client.Publish(ctx, topic, c.qos, false, []byte(content))
}
