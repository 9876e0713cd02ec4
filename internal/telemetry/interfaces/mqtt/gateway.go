package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	linestate "coatline/internal/linestate/domain"
	"coatline/internal/observability/metrics"
	telemetryapp "coatline/internal/telemetry/application"
	telemetry "coatline/internal/telemetry/domain"
)

const (
	kindTelemetry = "telemetry"
	kindAlarm     = "alarm"
)

// Client is the broker surface the gateway needs.
type Client interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
}

// ReconnectNotifier is implemented by clients that report re-established sessions.
type ReconnectNotifier interface {
	OnReconnect(fn func())
}

// SampleProcessor runs the per-line state engine.
type SampleProcessor interface {
	Process(ctx context.Context, sample telemetry.Sample) (*telemetry.Aggregate, error)
}

// AlarmHandler runs the alarm dedup tracker.
type AlarmHandler interface {
	Handle(ctx context.Context, signal telemetry.AlarmSignal) (bool, error)
}

// LineTopics names the topics of one line.
type LineTopics struct {
	Line      string
	Telemetry string
	Alarm     string
	Ack       string
}

// DefaultLineTopics returns the conventional topics of a line.
func DefaultLineTopics(line string) LineTopics {
	return LineTopics{
		Line:      line,
		Telemetry: "coatline/" + line + "/telemetry",
		Alarm:     "coatline/" + line + "/alarm",
		Ack:       "coatline/" + line + "/ack",
	}
}

type handlerFunc func(ctx context.Context, line string, payload []byte)

type route struct {
	line   string
	kind   string
	handle handlerFunc
}

// Gateway subscribes to line topics, dispatches decoded messages and
// republishes line snapshots.
type Gateway struct {
	client          Client
	decoder         *Decoder
	samples         SampleProcessor
	alarms          AlarmHandler
	registry        *telemetryapp.Registry
	lines           []LineTopics
	routes          map[string]route
	queues          map[string]chan []byte
	qos             byte
	queueSize       int
	publishInterval time.Duration
	publishTimeout  time.Duration
	logger          *log.Logger
	kick            chan struct{}
	started         sync.Once
}

// Option customizes the gateway.
type Option func(*Gateway)

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithPublishInterval sets the snapshot republish cadence.
func WithPublishInterval(interval time.Duration) Option {
	return func(g *Gateway) {
		if interval > 0 {
			g.publishInterval = interval
		}
	}
}

// WithPublishTimeout bounds each publish call.
func WithPublishTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		if timeout > 0 {
			g.publishTimeout = timeout
		}
	}
}

// WithQueueSize sets the per-topic buffer; a full buffer drops new messages.
func WithQueueSize(size int) Option {
	return func(g *Gateway) {
		if size > 0 {
			g.queueSize = size
		}
	}
}

// WithQoS sets the subscribe and publish quality of service.
func WithQoS(qos byte) Option {
	return func(g *Gateway) {
		if qos <= 2 {
			g.qos = qos
		}
	}
}

// NewGateway builds the topic routing table once for all lines.
func NewGateway(client Client, decoder *Decoder, samples SampleProcessor, alarms AlarmHandler, registry *telemetryapp.Registry, lines []LineTopics, opts ...Option) (*Gateway, error) {
	if client == nil {
		return nil, errors.New("telemetry gateway: nil client")
	}
	if decoder == nil {
		return nil, errors.New("telemetry gateway: nil decoder")
	}
	if samples == nil || alarms == nil {
		return nil, errors.New("telemetry gateway: nil handler")
	}
	if registry == nil {
		return nil, errors.New("telemetry gateway: nil registry")
	}
	if len(lines) == 0 {
		return nil, errors.New("telemetry gateway: no lines configured")
	}
	g := &Gateway{
		client:          client,
		decoder:         decoder,
		samples:         samples,
		alarms:          alarms,
		registry:        registry,
		routes:          make(map[string]route),
		qos:             1,
		queueSize:       256,
		publishInterval: time.Second,
		publishTimeout:  5 * time.Second,
		logger:          log.Default(),
		kick:            make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(g)
	}

	for _, lt := range lines {
		if lt.Line == "" {
			return nil, errors.New("telemetry gateway: empty line")
		}
		defaults := DefaultLineTopics(lt.Line)
		if lt.Telemetry == "" {
			lt.Telemetry = defaults.Telemetry
		}
		if lt.Alarm == "" {
			lt.Alarm = defaults.Alarm
		}
		if lt.Ack == "" {
			lt.Ack = defaults.Ack
		}
		if err := g.addRoute(lt.Telemetry, route{line: lt.Line, kind: kindTelemetry, handle: g.handleTelemetry}); err != nil {
			return nil, err
		}
		if err := g.addRoute(lt.Alarm, route{line: lt.Line, kind: kindAlarm, handle: g.handleAlarm}); err != nil {
			return nil, err
		}
		g.lines = append(g.lines, lt)
	}
	return g, nil
}

func (g *Gateway) addRoute(topic string, r route) error {
	if _, exists := g.routes[topic]; exists {
		return fmt.Errorf("telemetry gateway: topic %s configured twice", topic)
	}
	g.routes[topic] = r
	return nil
}

// Topics returns the subscribed topics.
func (g *Gateway) Topics() []string {
	topics := make([]string, 0, len(g.routes))
	for topic := range g.routes {
		topics = append(topics, topic)
	}
	return topics
}

// Run starts one worker per topic and the publisher loop, then blocks until
// ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	if g == nil {
		return errors.New("telemetry gateway: nil gateway")
	}
	g.queues = make(map[string]chan []byte, len(g.routes))
	for topic := range g.routes {
		g.queues[topic] = make(chan []byte, g.queueSize)
	}
	if notifier, ok := g.client.(ReconnectNotifier); ok {
		g.started.Do(func() {
			notifier.OnReconnect(g.requestPublish)
		})
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for topic, r := range g.routes {
		queue := g.queues[topic]
		group.Go(func() error {
			g.worker(groupCtx, topic, r, queue)
			return nil
		})
	}
	for topic := range g.routes {
		if err := g.client.Subscribe(topic, g.qos, g.receive); err != nil {
			g.logger.Printf("telemetry gateway: subscribe failed: topic=%s err=%v", topic, err)
		}
	}
	group.Go(func() error {
		g.publishLoop(groupCtx)
		return nil
	})
	return group.Wait()
}

// receive is the broker callback. It never blocks: a full queue drops the message.
func (g *Gateway) receive(topic string, payload []byte) {
	r, ok := g.routes[topic]
	if !ok {
		metrics.IncMessage("unknown", "dropped")
		g.logger.Printf("telemetry gateway: %v: %s", telemetry.ErrUnknownTopic, topic)
		return
	}
	queue := g.queues[topic]
	select {
	case queue <- payload:
	default:
		metrics.IncMessage(r.kind, "dropped")
		g.logger.Printf("telemetry gateway: queue full, drop message: topic=%s", topic)
	}
}

func (g *Gateway) worker(ctx context.Context, topic string, r route, queue <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-queue:
			g.dispatch(ctx, topic, r, payload)
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, topic string, r route, payload []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.IncMessage(r.kind, "error")
			g.logger.Printf("telemetry gateway: handler panic: topic=%s err=%v", topic, rec)
		}
	}()
	r.handle(ctx, r.line, payload)
}

func (g *Gateway) handleTelemetry(ctx context.Context, line string, payload []byte) {
	sample, err := g.decoder.DecodeTelemetry(payload)
	if err != nil {
		metrics.IncDecodeError(kindTelemetry)
		g.logger.Printf("telemetry gateway: drop malformed telemetry: line=%s err=%v", line, err)
		return
	}
	if sample.Line != "" && sample.Line != line {
		g.logger.Printf("telemetry gateway: payload line %s differs from topic line %s", sample.Line, line)
	}
	sample.Line = line

	agg, err := g.samples.Process(ctx, sample)
	if err != nil {
		if errors.Is(err, linestate.ErrLockTimeout) {
			metrics.IncMessage(kindTelemetry, "busy")
			return
		}
		metrics.IncMessage(kindTelemetry, "error")
		g.logger.Printf("telemetry gateway: process failed: line=%s model=%s err=%v", line, sample.Product, err)
		return
	}
	metrics.IncMessage(kindTelemetry, "success")
	if agg != nil {
		g.registry.Put(*agg)
	}
}

func (g *Gateway) handleAlarm(ctx context.Context, line string, payload []byte) {
	signal, err := g.decoder.DecodeAlarm(payload)
	if err != nil {
		metrics.IncDecodeError(kindAlarm)
		g.logger.Printf("telemetry gateway: drop malformed alarm: line=%s err=%v", line, err)
		return
	}
	signal.Line = line
	if _, err := g.alarms.Handle(ctx, signal); err != nil {
		metrics.IncMessage(kindAlarm, "error")
		g.logger.Printf("telemetry gateway: alarm failed: line=%s machine=%s err=%v", line, signal.Machine, err)
		return
	}
	metrics.IncMessage(kindAlarm, "success")
}

func (g *Gateway) requestPublish() {
	select {
	case g.kick <- struct{}{}:
	default:
	}
}

func (g *Gateway) publishLoop(ctx context.Context) {
	ticker := time.NewTicker(g.publishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.PublishSnapshots(ctx)
		case <-g.kick:
			g.PublishSnapshots(ctx)
		}
	}
}

// PublishSnapshots republishes the latest aggregate of every line to its ack topic.
func (g *Gateway) PublishSnapshots(ctx context.Context) int {
	published := 0
	for _, lt := range g.lines {
		agg, ok := g.registry.Get(lt.Line)
		if !ok {
			continue
		}
		payload, err := json.Marshal(agg)
		if err != nil {
			g.logger.Printf("telemetry gateway: encode snapshot: line=%s err=%v", lt.Line, err)
			continue
		}
		pubCtx, cancel := context.WithTimeout(ctx, g.publishTimeout)
		err = g.client.Publish(pubCtx, lt.Ack, g.qos, false, payload)
		cancel()
		if err != nil {
			metrics.IncPublish("error")
			g.logger.Printf("telemetry gateway: publish failed: topic=%s err=%v", lt.Ack, err)
			continue
		}
		metrics.IncPublish("success")
		published++
	}
	return published
}
