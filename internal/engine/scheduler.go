package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"marketwatch/internal/config"
	"marketwatch/internal/models"
)

// runTask is the polling loop for one task. It is the sole writer of the
// task's runtime fields, which makes each iteration single-flight by
// construction. The first check runs immediately; afterwards each tick is
// scheduled check_interval from the start of the previous tick, or
// FailureBackoff after a failed fetch.
func (e *Engine) runTask(taskID string) {
	defer e.wg.Done()

	var (
		delay    time.Duration
		failures int
		armed    = true
	)

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-time.After(delay):
		}

		tickStart := time.Now()

		task, ok := e.registry.Get(taskID)
		if !ok {
			return
		}
		if task.ExpiresAt != nil && tickStart.After(*task.ExpiresAt) {
			e.registry.SetStatus(taskID, models.StatusExpired)
			e.logger.Infof("Task %s expired, stopping loop", taskID)
			return
		}
		if task.Status != models.StatusActive {
			e.logger.Infof("Task %s is %s, stopping loop", taskID, task.Status)
			return
		}

		value, err := e.fetch(task)
		if err != nil {
			failures++
			e.logger.Errorf("Fetch failed for task %s (%d/%d consecutive): %v",
				taskID, failures, e.opts.MaxConsecutiveFailures, err)
			if failures >= e.opts.MaxConsecutiveFailures {
				e.registry.SetStatus(taskID, models.StatusError)
				e.logger.Errorf("Task %s exceeded failure bound, marked ERROR", taskID)
				return
			}
			delay = e.opts.FailureBackoff
			continue
		}
		failures = 0
		e.registry.RecordCheck(taskID, value, tickStart)

		satisfied := Evaluate(value, task.Comparator, task.Threshold)
		if e.shouldNotify(satisfied, &armed) {
			e.fire(task, value, tickStart)
		}

		delay = task.CheckInterval - time.Since(tickStart)
		if delay < 0 {
			delay = 0
		}
	}
}

// shouldNotify applies the configured re-trigger policy. Under every-tick
// a satisfied condition always notifies; under rising-edge it notifies
// once and re-arms only after the condition clears.
func (e *Engine) shouldNotify(satisfied bool, armed *bool) bool {
	if e.opts.NotifyPolicy == config.NotifyRisingEdge {
		if !satisfied {
			*armed = true
			return false
		}
		if !*armed {
			return false
		}
		*armed = false
		return true
	}
	return satisfied
}

func (e *Engine) fetch(task models.MonitoringTask) (float64, error) {
	ctx, cancel := context.WithTimeout(e.ctx, e.opts.FetchTimeout)
	defer cancel()
	return e.market.GetReading(ctx, task.Market, task.Provider, task.Symbol, task.Metric)
}

// fire builds the alert event, enriches it best-effort, dispatches it,
// and bumps the trigger count. Delivery failures are logged per channel
// and never fail the tick.
func (e *Engine) fire(task models.MonitoringTask, value float64, at time.Time) {
	event := models.AlertEvent{
		ID:           uuid.NewString(),
		TaskID:       task.ID,
		TaskName:     task.Name,
		Symbol:       task.Symbol,
		Metric:       task.Metric,
		CurrentValue: value,
		Threshold:    task.Threshold,
		Comparator:   task.Comparator,
		Timestamp:    at,
	}

	message := e.buildMessage(event)
	results := e.dispatcher.Dispatch(e.ctx, task, message, event)

	delivered := 0
	for _, r := range results {
		if r.Ok() {
			delivered++
		}
	}
	e.logger.Infof("Alert %s for task %s delivered to %d/%d channels",
		event.ID, task.ID, delivered, len(results))

	e.registry.IncrementTrigger(task.ID)
}

// buildMessage runs the enrichment hook. Enrichment is strictly
// best-effort: any failure or timeout degrades to the raw alert text.
func (e *Engine) buildMessage(event models.AlertEvent) string {
	if e.enricher == nil {
		return event.DefaultMessage()
	}

	ctx, cancel := context.WithTimeout(e.ctx, e.opts.EnrichTimeout)
	defer cancel()

	text, err := e.enricher.Enrich(ctx, event)
	if err != nil {
		e.logger.Warnf("Enrichment failed for alert %s, sending raw alert: %v", event.ID, err)
		return event.DefaultMessage()
	}
	return text
}
