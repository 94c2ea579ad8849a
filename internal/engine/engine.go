package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"marketwatch/internal/config"
	"marketwatch/internal/dispatch"
	"marketwatch/internal/enrich"
	"marketwatch/internal/logging"
	"marketwatch/internal/market"
	"marketwatch/internal/models"
	"marketwatch/internal/registry"
)

// Options tune the scheduler's failure handling and notification policy.
type Options struct {
	// MaxConsecutiveFailures is the number of fetch failures in a row
	// after which a task goes terminal ERROR.
	MaxConsecutiveFailures int

	// FailureBackoff is the retry delay after a failed fetch. It is used
	// instead of the task's own interval so a long-interval task recovers
	// quickly from a transient outage.
	FailureBackoff time.Duration

	// NotifyPolicy is config.NotifyEveryTick or config.NotifyRisingEdge.
	NotifyPolicy string

	FetchTimeout  time.Duration
	EnrichTimeout time.Duration

	// ReapInterval controls how often expired tasks are removed from the
	// registry.
	ReapInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxConsecutiveFailures <= 0 {
		o.MaxConsecutiveFailures = 3
	}
	if o.FailureBackoff <= 0 {
		o.FailureBackoff = 10 * time.Minute
	}
	if o.NotifyPolicy == "" {
		o.NotifyPolicy = config.NotifyEveryTick
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 10 * time.Second
	}
	if o.EnrichTimeout <= 0 {
		o.EnrichTimeout = 30 * time.Second
	}
	if o.ReapInterval <= 0 {
		o.ReapInterval = time.Minute
	}
}

// ErrEngineStopped is returned by CreateTask after Stop has begun.
var ErrEngineStopped = errors.New("engine is stopped")

// Engine is the condition-monitoring core: it owns the task registry,
// runs one polling loop per active task, and pushes satisfied conditions
// through the enrich/dispatch pipeline.
type Engine struct {
	registry   *registry.Registry
	market     market.Client
	enricher   enrich.Enricher
	dispatcher *dispatch.Dispatcher
	logger     *logging.Logger
	opts       Options

	// mu serializes loop launches against Stop so wg.Add never races
	// wg.Wait.
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Engine. enricher may be nil, in which case alerts are
// dispatched with their raw default message.
func New(reg *registry.Registry, mkt market.Client, enricher enrich.Enricher, dispatcher *dispatch.Dispatcher, logger *logging.Logger, opts Options) *Engine {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		registry:   reg,
		market:     mkt,
		enricher:   enricher,
		dispatcher: dispatcher,
		logger:     logger,
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the background reaper. Task loops start individually as
// tasks are created.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctx.Err() != nil {
		return
	}
	e.wg.Add(1)
	go e.reapLoop()
}

// Stop cancels every task loop and waits for them to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.cancel()
	e.mu.Unlock()
	e.wg.Wait()
	e.logger.Infof("Engine stopped")
}

// CreateTask validates the config, registers the task, and starts its
// polling loop. It returns the new task id, or an error wrapping
// registry.ErrInvalidConfig; creating against a stopped engine returns
// ErrEngineStopped.
func (e *Engine) CreateTask(cfg models.TaskConfig) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctx.Err() != nil {
		return "", ErrEngineStopped
	}

	id, err := e.registry.Create(cfg)
	if err != nil {
		return "", err
	}

	e.wg.Add(1)
	go e.runTask(id)

	e.logger.Infof("Created monitoring task %s: %s %s %s %.4f every %s",
		id, cfg.Symbol, cfg.Metric, cfg.Comparator, cfg.Threshold, cfg.CheckInterval)
	return id, nil
}

// GetTask returns a snapshot of one task.
func (e *Engine) GetTask(id string) (models.MonitoringTask, bool) {
	return e.registry.Get(id)
}

// ListTasks returns a snapshot of all tasks keyed by id.
func (e *Engine) ListTasks() map[string]models.MonitoringTask {
	return e.registry.List()
}

// DeleteTask marks the task DELETED. Its loop observes the status on its
// next tick at the latest and stops. Returns whether a task was actually
// transitioned.
func (e *Engine) DeleteTask(id string) bool {
	deleted := e.registry.Delete(id)
	if deleted {
		e.logger.Infof("Deleted monitoring task %s", id)
	}
	return deleted
}

// reapLoop periodically removes expired tasks from the registry.
func (e *Engine) reapLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.opts.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case now := <-ticker.C:
			for _, id := range e.registry.Reap(now) {
				e.logger.Infof("Reaped expired task %s", id)
			}
		}
	}
}
