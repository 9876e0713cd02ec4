package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	linestate "coatline/internal/linestate/domain"
	telemetryapp "coatline/internal/telemetry/application"
	telemetry "coatline/internal/telemetry/domain"
)

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mu        sync.Mutex
	handlers  map[string]func(string, []byte)
	published []published
	reconnect []func()
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]func(string, []byte))}
}

func (c *fakeClient) Subscribe(topic string, _ byte, handler func(string, []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	return nil
}

func (c *fakeClient) Publish(_ context.Context, topic string, _ byte, _ bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic: topic, payload: payload})
	return nil
}

func (c *fakeClient) OnReconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnect = append(c.reconnect, fn)
}

func (c *fakeClient) deliver(topic string, payload []byte) bool {
	c.mu.Lock()
	handler, ok := c.handlers[topic]
	c.mu.Unlock()
	if ok {
		handler(topic, payload)
	}
	return ok
}

func (c *fakeClient) subscribed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

func (c *fakeClient) publishedTo(topic string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.published {
		if p.topic == topic {
			n++
		}
	}
	return n
}

type fakeProcessor struct {
	mu      sync.Mutex
	samples []telemetry.Sample
	err     error
}

func (p *fakeProcessor) Process(_ context.Context, sample telemetry.Sample) (*telemetry.Aggregate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.samples = append(p.samples, sample)
	return &telemetry.Aggregate{Line: sample.Line, RawCounter: sample.Counter, DailyActual: sample.Counter}, nil
}

func (p *fakeProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.samples)
}

type fakeAlarms struct {
	mu      sync.Mutex
	signals []telemetry.AlarmSignal
}

func (a *fakeAlarms) Handle(_ context.Context, signal telemetry.AlarmSignal) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.signals = append(a.signals, signal)
	return true, nil
}

func (a *fakeAlarms) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.signals)
}

func newTestGateway(t *testing.T, client Client, samples SampleProcessor, alarms AlarmHandler, registry *telemetryapp.Registry, lines ...string) *Gateway {
	t.Helper()
	decoder, err := NewDecoder()
	require.NoError(t, err)
	topics := make([]LineTopics, 0, len(lines))
	for _, line := range lines {
		topics = append(topics, LineTopics{Line: line})
	}
	g, err := NewGateway(client, decoder, samples, alarms, registry, topics,
		WithLogger(log.New(io.Discard, "", 0)), WithPublishInterval(time.Hour))
	require.NoError(t, err)
	return g
}

func runGateway(t *testing.T, g *Gateway, client *fakeClient, topics int) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()
	require.Eventually(t, func() bool { return client.subscribed() == topics }, time.Second, 5*time.Millisecond)
	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func TestGatewayRoutesByTopic(t *testing.T) {
	client := newFakeClient()
	samples := &fakeProcessor{}
	alarms := &fakeAlarms{}
	registry := telemetryapp.NewRegistry()
	g := newTestGateway(t, client, samples, alarms, registry, "CL01", "CL02")
	assert.ElementsMatch(t, []string{
		"coatline/CL01/telemetry", "coatline/CL01/alarm",
		"coatline/CL02/telemetry", "coatline/CL02/alarm",
	}, g.Topics())

	stop := runGateway(t, g, client, 4)
	defer stop()

	payload := []byte(`{"identity":{"line":"WRONG","product":"BLUE"},"machine":{"status":1,"counter":42}}`)
	require.True(t, client.deliver("coatline/CL02/telemetry", payload))
	require.True(t, client.deliver("coatline/CL01/alarm", []byte(`{"status":"triggered","message":"jam"}`)))
	require.True(t, client.deliver("coatline/CL01/telemetry", []byte(`{"identity":`)))

	require.Eventually(t, func() bool { return samples.count() == 1 && alarms.count() == 1 }, time.Second, 5*time.Millisecond)
	agg, ok := registry.Get("CL02")
	require.True(t, ok)
	assert.Equal(t, int64(42), agg.DailyActual)
	_, ok = registry.Get("WRONG")
	assert.False(t, ok)
	assert.Equal(t, "CL01", alarms.signals[0].Line)
}

func TestGatewayBusyLineLeavesSnapshot(t *testing.T) {
	client := newFakeClient()
	samples := &fakeProcessor{err: linestate.ErrLockTimeout}
	registry := telemetryapp.NewRegistry()
	g := newTestGateway(t, client, samples, &fakeAlarms{}, registry, "CL01")

	g.handleTelemetry(context.Background(), "CL01", []byte(`{"identity":{"product":"BLUE"},"machine":{"status":1,"counter":1}}`))
	_, ok := registry.Get("CL01")
	assert.False(t, ok)
}

func TestGatewayPublishesSnapshotsToAckTopics(t *testing.T) {
	client := newFakeClient()
	registry := telemetryapp.NewRegistry()
	g := newTestGateway(t, client, &fakeProcessor{}, &fakeAlarms{}, registry, "CL01", "CL02")

	registry.Put(telemetry.Aggregate{Line: "CL01", DailyActual: 77})
	assert.Equal(t, 1, g.PublishSnapshots(context.Background()))
	require.Equal(t, 1, client.publishedTo("coatline/CL01/ack"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(client.published[0].payload, &decoded))
	assert.Equal(t, float64(77), decoded["daily_actual"])
	assert.Equal(t, 0, client.publishedTo("coatline/CL02/ack"))
}

func TestGatewayRepublishesOnReconnect(t *testing.T) {
	client := newFakeClient()
	registry := telemetryapp.NewRegistry()
	registry.Put(telemetry.Aggregate{Line: "CL01"})
	g := newTestGateway(t, client, &fakeProcessor{}, &fakeAlarms{}, registry, "CL01")

	stop := runGateway(t, g, client, 2)
	defer stop()

	client.mu.Lock()
	hooks := append([]func(){}, client.reconnect...)
	client.mu.Unlock()
	require.Len(t, hooks, 1)
	hooks[0]()

	require.Eventually(t, func() bool { return client.publishedTo("coatline/CL01/ack") == 1 }, time.Second, 5*time.Millisecond)
}

func TestNewGatewayRejectsDuplicateTopics(t *testing.T) {
	decoder, err := NewDecoder()
	require.NoError(t, err)
	lines := []LineTopics{
		{Line: "CL01", Telemetry: "shared/telemetry"},
		{Line: "CL02", Telemetry: "shared/telemetry"},
	}
	_, err = NewGateway(newFakeClient(), decoder, &fakeProcessor{}, &fakeAlarms{}, telemetryapp.NewRegistry(), lines)
	require.Error(t, err)

	_, err = NewGateway(newFakeClient(), decoder, &fakeProcessor{}, &fakeAlarms{}, telemetryapp.NewRegistry(), nil)
	require.Error(t, err)
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	client := newFakeClient()
	g := newTestGateway(t, client, &fakeProcessor{}, &fakeAlarms{}, telemetryapp.NewRegistry(), "CL01")
	r := route{line: "CL01", kind: kindTelemetry, handle: func(context.Context, string, []byte) {
		panic(errors.New("boom"))
	}}
	assert.NotPanics(t, func() { g.dispatch(context.Background(), "coatline/CL01/telemetry", r, nil) })
}
