package dispatch

import (
	"context"
	"fmt"
	"time"

	"marketwatch/internal/logging"
	"marketwatch/internal/models"
)

// SendFunc delivers one alert message over one channel. params carries the
// task's channel-specific settings and may be nil.
type SendFunc func(ctx context.Context, event models.AlertEvent, message string, params models.ChannelParams) error

// Dispatcher fans an alert out to a task's configured channels. Channel
// failures are isolated: every channel gets its own attempt and its own
// entry in the aggregate result.
type Dispatcher struct {
	logger      *logging.Logger
	sendTimeout time.Duration
	providers   map[string]SendFunc
}

// New constructs a Dispatcher with no channels registered.
func New(logger *logging.Logger, sendTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		logger:      logger,
		sendTimeout: sendTimeout,
		providers:   make(map[string]SendFunc),
	}
}

// Register wires a channel name to its provider.
func (d *Dispatcher) Register(channel string, fn SendFunc) {
	d.providers[channel] = fn
}

// Dispatch sends message to every channel the task is configured with and
// returns one result per channel. It never aborts early: a failed channel
// does not prevent delivery to the rest.
func (d *Dispatcher) Dispatch(ctx context.Context, task models.MonitoringTask, message string, event models.AlertEvent) []models.ChannelResult {
	results := make([]models.ChannelResult, 0, len(task.NotificationChannels))

	for _, channel := range task.NotificationChannels {
		err := d.send(ctx, channel, task.Params(channel), message, event)
		if err != nil {
			d.logger.Errorf("Dispatch via %s failed for task %s: %v", channel, task.ID, err)
		} else {
			d.logger.Infof("Dispatched alert %s via %s for task %s", event.ID, channel, task.ID)
		}
		results = append(results, models.ChannelResult{Channel: channel, Err: err})
	}

	return results
}

func (d *Dispatcher) send(ctx context.Context, channel string, params models.ChannelParams, message string, event models.AlertEvent) error {
	fn, ok := d.providers[channel]
	if !ok {
		return fmt.Errorf("no provider registered for channel %q", channel)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	return fn(sendCtx, event, message, params)
}
