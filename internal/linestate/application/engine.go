package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	linestate "coatline/internal/linestate/domain"
	"coatline/internal/observability/metrics"
	planapp "coatline/internal/planning/application"
	planning "coatline/internal/planning/domain"
	runhistory "coatline/internal/runhistory/domain"
	shift "coatline/internal/shift/domain"
	telemetry "coatline/internal/telemetry/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Calendar answers shift and production-day questions.
type Calendar interface {
	Resolve(now time.Time) (shift.Resolution, error)
	DayStart(t time.Time) time.Time
	BreakMinutes(from, to time.Time) float64
}

// RunTracker records machine status and summarizes runtime.
type RunTracker interface {
	RecordStatus(ctx context.Context, lineID string, status runhistory.Status, at time.Time) error
	SummarizeRuntime(ctx context.Context, lineID string, windowStart, windowEnd time.Time) (runhistory.Summary, error)
}

// PlanResolver binds a sample to its production plan.
type PlanResolver interface {
	Resolve(ctx context.Context, lineName, productName string, at time.Time) (*planapp.Binding, error)
}

// HistoryRecorder overwrites the actual quantity of a plan.
type HistoryRecorder interface {
	Record(ctx context.Context, planID, qty int64, at time.Time) (bool, error)
}

// Engine turns raw telemetry of a line into corrected counters and an aggregate snapshot.
type Engine struct {
	store     linestate.Store
	locker    *Locker
	calendar  Calendar
	tracker   RunTracker
	plans     PlanResolver
	history   HistoryRecorder
	targets   planning.TargetRepository
	clock     Clock
	logger    *log.Logger
	opTimeout time.Duration

	mirrorMu sync.Mutex
	mirror   map[string]linestate.State
}

// Option customizes the engine.
type Option func(*Engine)

// WithTargets enables target-to-now on snapshots.
func WithTargets(targets planning.TargetRepository) Option {
	return func(e *Engine) {
		e.targets = targets
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLocker replaces the default per-line locker.
func WithLocker(locker *Locker) Option {
	return func(e *Engine) {
		if locker != nil {
			e.locker = locker
		}
	}
}

// WithOperationTimeout bounds every cache and database call.
func WithOperationTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.opTimeout = timeout
		}
	}
}

// NewEngine constructs a line state engine.
func NewEngine(store linestate.Store, calendar Calendar, tracker RunTracker, plans PlanResolver, history HistoryRecorder, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("linestate: nil store")
	}
	if calendar == nil {
		return nil, errors.New("linestate: nil calendar")
	}
	if tracker == nil || plans == nil || history == nil {
		return nil, errors.New("linestate: nil collaborator")
	}
	engine := &Engine{
		store:     store,
		locker:    NewLocker(0),
		calendar:  calendar,
		tracker:   tracker,
		plans:     plans,
		history:   history,
		clock:     systemClock{},
		logger:    log.Default(),
		opTimeout: 5 * time.Second,
		mirror:    make(map[string]linestate.State),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Process handles one sample under the line lock. A busy line returns
// ErrLockTimeout and the sample is skipped. Failures of individual writes are
// logged and do not stop the snapshot from being produced.
func (e *Engine) Process(ctx context.Context, sample telemetry.Sample) (agg *telemetry.Aggregate, err error) {
	if sample.Line == "" {
		return nil, linestate.ErrEmptyLine
	}
	started := time.Now()
	defer func() {
		result := "success"
		if err != nil {
			result = "error"
		}
		metrics.ObserveEngine(result, time.Since(started))
	}()

	release, err := e.locker.Acquire(ctx, sample.Line)
	if err != nil {
		if errors.Is(err, linestate.ErrLockTimeout) {
			metrics.IncLockTimeout(sample.Line)
			e.logger.Printf("linestate: skip sample, line busy: line=%s model=%s", sample.Line, sample.Product)
		}
		return nil, err
	}
	defer release()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("linestate: panic processing sample: %v", r)
			e.logger.Printf("linestate: drop sample: line=%s model=%s err=%v", sample.Line, sample.Product, err)
			agg = nil
		}
	}()

	status, err := runhistory.StatusFromCode(sample.StatusCode)
	if err != nil {
		e.logger.Printf("linestate: drop sample: line=%s model=%s err=%v", sample.Line, sample.Product, err)
		return nil, err
	}
	now := sample.ObservedAt()
	if now.IsZero() {
		now = e.clock.Now()
	}
	raw := sample.Counter

	state := e.loadState(ctx, sample.Line, raw, now)
	dayStart := e.calendar.DayStart(now)
	if state.ResetDay(dayStart, now) {
		e.logger.Printf("linestate: daily reset: line=%s day_start=%s", sample.Line, dayStart.Format(time.RFC3339))
	}
	state.Apply(raw)
	if state.UpdateBaseline(status == runhistory.StatusRunning, sample.Product, raw, now) {
		e.logger.Printf("linestate: model baseline: line=%s model=%s counter=%d", sample.Line, sample.Product, raw)
	}
	e.saveState(ctx, state)

	if err := e.call(ctx, func(ctx context.Context) error {
		return e.tracker.RecordStatus(ctx, sample.Line, status, now)
	}); err != nil {
		e.logger.Printf("linestate: record status failed: line=%s status=%s err=%v", sample.Line, status, err)
	}

	agg = &telemetry.Aggregate{
		ID:             uuid.NewString(),
		Line:           sample.Line,
		Machine:        sample.Machine,
		Model:          sample.Product,
		Status:         string(status),
		StatusCode:     sample.StatusCode,
		CycleActual:    sample.CycleActual,
		CycleStandard:  sample.CycleStandard,
		RuntimeSeconds: sample.RuntimeSeconds,
		RawCounter:     raw,
		DailyActual:    state.DailyAccumulated,
		GatewayTime:    sample.GatewayTime,
		SystemTime:     sample.SystemTime,
		ProcessedAt:    e.clock.Now(),
	}
	e.fillRuntime(ctx, agg, state, raw, dayStart, now)
	e.fillShift(agg, now)
	e.fillPlan(ctx, agg, sample, state, dayStart, now)
	return agg, nil
}

// loadState reads the cached state. When the cache is unreachable the last
// state this process saw is used; without one, the current raw value becomes
// the baseline so no increment is invented.
func (e *Engine) loadState(ctx context.Context, lineID string, raw int64, now time.Time) linestate.State {
	var (
		state linestate.State
		found bool
	)
	err := e.call(ctx, func(ctx context.Context) error {
		var loadErr error
		state, found, loadErr = e.store.Load(ctx, lineID)
		return loadErr
	})
	if err == nil {
		if !found {
			state = linestate.New(lineID)
		}
		return state
	}

	metrics.IncCacheError("load")
	e.mirrorMu.Lock()
	mirrored, ok := e.mirror[lineID]
	e.mirrorMu.Unlock()
	if ok {
		e.logger.Printf("linestate: cache load failed, using local state: line=%s err=%v", lineID, err)
		return mirrored
	}
	e.logger.Printf("linestate: cache load failed, no local state: line=%s err=%v", lineID, err)
	state = linestate.New(lineID)
	state.LastRawCounter = raw
	state.LastReset = now
	return state
}

func (e *Engine) saveState(ctx context.Context, state linestate.State) {
	e.mirrorMu.Lock()
	e.mirror[state.LineID] = state
	e.mirrorMu.Unlock()

	if err := e.call(ctx, func(ctx context.Context) error {
		return e.store.Save(ctx, state)
	}); err != nil {
		metrics.IncCacheError("save")
		e.logger.Printf("linestate: cache save failed: line=%s model=%s err=%v", state.LineID, state.Model, err)
	}
}

func (e *Engine) fillRuntime(ctx context.Context, agg *telemetry.Aggregate, state linestate.State, raw int64, dayStart, now time.Time) {
	var daySummary runhistory.Summary
	if err := e.call(ctx, func(ctx context.Context) error {
		var sumErr error
		daySummary, sumErr = e.tracker.SummarizeRuntime(ctx, state.LineID, dayStart, now)
		return sumErr
	}); err != nil {
		e.logger.Printf("linestate: summarize day runtime failed: line=%s err=%v", state.LineID, err)
	} else {
		agg.OA = runhistory.OA(daySummary, e.calendar.BreakMinutes(dayStart, now))
	}

	if !state.HasBaseline() {
		return
	}
	count := state.ModelRunCount(raw)
	var modelSummary runhistory.Summary
	if err := e.call(ctx, func(ctx context.Context) error {
		var sumErr error
		modelSummary, sumErr = e.tracker.SummarizeRuntime(ctx, state.LineID, state.BaselineInstant, now)
		return sumErr
	}); err != nil {
		e.logger.Printf("linestate: summarize model runtime failed: line=%s model=%s err=%v", state.LineID, state.Model, err)
		return
	}
	agg.HourlyThroughput = linestate.HourlyThroughput(count, modelSummary.Running())
}

func (e *Engine) fillShift(agg *telemetry.Aggregate, now time.Time) {
	resolution, err := e.calendar.Resolve(now)
	if err != nil {
		e.logger.Printf("linestate: shift resolve failed: line=%s err=%v", agg.Line, err)
		return
	}
	agg.ShiftMode = string(resolution.Mode)
	if resolution.Inside() {
		agg.ShiftCode = resolution.Code
		agg.SecondsToShiftEnd = resolution.SecondsToEnd
		return
	}
	agg.ShiftCode = resolution.NextCode
	agg.GapSeconds = resolution.GapSeconds
}

// fillPlan binds the sample to its plan and writes the daily quantity. An
// unresolved plan leaves the plan fields zeroed.
func (e *Engine) fillPlan(ctx context.Context, agg *telemetry.Aggregate, sample telemetry.Sample, state linestate.State, dayStart, now time.Time) {
	var binding *planapp.Binding
	if err := e.call(ctx, func(ctx context.Context) error {
		var resolveErr error
		binding, resolveErr = e.plans.Resolve(ctx, sample.Line, sample.Product, now)
		return resolveErr
	}); err != nil {
		e.logger.Printf("linestate: plan unresolved: line=%s model=%s err=%v", sample.Line, sample.Product, err)
		return
	}

	agg.PlanID = binding.Plan.ID
	agg.PlanQty = binding.Plan.PlanQty
	agg.Progress = planning.Progress(state.DailyAccumulated, binding.Plan.PlanQty)

	if err := e.call(ctx, func(ctx context.Context) error {
		_, recordErr := e.history.Record(ctx, binding.Plan.ID, state.DailyAccumulated, now)
		return recordErr
	}); err != nil {
		e.logger.Printf("linestate: history write failed: line=%s plan=%d qty=%d err=%v",
			sample.Line, binding.Plan.ID, state.DailyAccumulated, err)
	}

	if e.targets == nil {
		return
	}
	var hourly map[int]int64
	if err := e.call(ctx, func(ctx context.Context) error {
		var targetErr error
		hourly, targetErr = e.targets.HourlyTargets(ctx, binding.Line.ID)
		return targetErr
	}); err != nil {
		e.logger.Printf("linestate: target lookup failed: line=%s err=%v", sample.Line, err)
		return
	}
	agg.Target = planning.TargetToNow(hourly, dayStart, now)
}

// call runs fn with the operation timeout applied.
func (e *Engine) call(ctx context.Context, fn func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	return fn(opCtx)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
