package registry

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketwatch/internal/models"
)

// ErrInvalidConfig is returned by Create when a task config violates an
// invariant. The registry is left unchanged.
var ErrInvalidConfig = errors.New("invalid task config")

// Registry is the in-memory store of monitoring tasks. It is the only
// state shared between the administrative surface and the scheduler
// loops, so every access goes through the mutex.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]models.MonitoringTask
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		tasks: make(map[string]models.MonitoringTask),
	}
}

// Validate checks the config invariants without touching the registry.
func Validate(cfg models.TaskConfig) error {
	if cfg.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidConfig)
	}
	if !cfg.Metric.Valid() {
		return fmt.Errorf("%w: unknown metric %q", ErrInvalidConfig, cfg.Metric)
	}
	if !cfg.Comparator.Valid() {
		return fmt.Errorf("%w: unknown comparator %q", ErrInvalidConfig, cfg.Comparator)
	}
	if math.IsNaN(cfg.Threshold) || math.IsInf(cfg.Threshold, 0) {
		return fmt.Errorf("%w: threshold must be finite", ErrInvalidConfig)
	}
	if cfg.CheckInterval <= 0 {
		return fmt.Errorf("%w: check interval must be positive", ErrInvalidConfig)
	}
	if len(cfg.NotificationChannels) == 0 {
		return fmt.Errorf("%w: at least one notification channel is required", ErrInvalidConfig)
	}
	return nil
}

// Create validates cfg and inserts a new ACTIVE task, returning its id.
// The channel slice and params maps are copied so later mutation of the
// caller's config cannot tear a stored task.
func (r *Registry) Create(cfg models.TaskConfig) (string, error) {
	if err := Validate(cfg); err != nil {
		return "", err
	}

	channels := make([]string, len(cfg.NotificationChannels))
	copy(channels, cfg.NotificationChannels)

	var params map[string]models.ChannelParams
	if cfg.NotificationParams != nil {
		params = make(map[string]models.ChannelParams, len(cfg.NotificationParams))
		for ch, p := range cfg.NotificationParams {
			cp := make(models.ChannelParams, len(p))
			for k, v := range p {
				cp[k] = v
			}
			params[ch] = cp
		}
	}

	task := models.MonitoringTask{
		ID:                   uuid.NewString(),
		Name:                 cfg.Name,
		Market:               cfg.Market,
		Provider:             cfg.Provider,
		Symbol:               cfg.Symbol,
		Metric:               cfg.Metric,
		Comparator:           cfg.Comparator,
		Threshold:            cfg.Threshold,
		CheckInterval:        cfg.CheckInterval,
		ExpiresAt:            cfg.ExpiresAt,
		NotificationChannels: channels,
		NotificationParams:   params,
		Status:               models.StatusActive,
		CreatedAt:            time.Now(),
	}

	r.mu.Lock()
	r.tasks[task.ID] = task
	r.mu.Unlock()

	return task.ID, nil
}

// Get returns a snapshot of the task with the given id.
func (r *Registry) Get(id string) (models.MonitoringTask, bool) {
	r.mu.RLock()
	task, ok := r.tasks[id]
	r.mu.RUnlock()
	return task, ok
}

// List returns a snapshot of all tasks keyed by id.
func (r *Registry) List() map[string]models.MonitoringTask {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]models.MonitoringTask, len(r.tasks))
	for id, t := range r.tasks {
		out[id] = t
	}
	return out
}

// Delete marks the task DELETED. It returns true only when a task was
// actually transitioned; deleting an unknown or already-terminal id
// returns false and never errors.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok || task.Status.Terminal() {
		return false
	}
	task.Status = models.StatusDeleted
	r.tasks[id] = task
	return true
}

// SetStatus transitions an ACTIVE task to the given terminal status.
// Transitions out of terminal states are ignored.
func (r *Registry) SetStatus(id string, status models.TaskStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok || task.Status != models.StatusActive {
		return
	}
	task.Status = status
	r.tasks[id] = task
}

// RecordCheck stores the latest reading for a task. Called only by the
// scheduler iteration that owns the task's current poll.
func (r *Registry) RecordCheck(id string, value float64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return
	}
	v := value
	t := at
	task.LastValue = &v
	task.LastCheckedAt = &t
	r.tasks[id] = task
}

// IncrementTrigger bumps a task's trigger count.
func (r *Registry) IncrementTrigger(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return
	}
	task.TriggerCount++
	r.tasks[id] = task
}

// Reap removes EXPIRED tasks whose deadline has passed and returns the
// removed ids.
func (r *Registry) Reap(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, t := range r.tasks {
		if t.Status == models.StatusExpired && t.ExpiresAt != nil && now.After(*t.ExpiresAt) {
			delete(r.tasks, id)
			removed = append(removed, id)
		}
	}
	return removed
}
