package models

import (
	"fmt"
	"time"
)

// AlertEvent is emitted by the scheduler when a task's condition is
// satisfied. It carries everything a channel needs to render the alert.
type AlertEvent struct {
	ID           string     `json:"id"`
	TaskID       string     `json:"task_id"`
	TaskName     string     `json:"task_name,omitempty"`
	Symbol       string     `json:"symbol"`
	Metric       Metric     `json:"metric"`
	CurrentValue float64    `json:"current_value"`
	Threshold    float64    `json:"threshold"`
	Comparator   Comparator `json:"comparator"`
	Timestamp    time.Time  `json:"timestamp"`
}

// Subject is the short headline used by channels that separate subject
// from body.
func (e AlertEvent) Subject() string {
	if e.TaskName != "" {
		return fmt.Sprintf("Alert: %s", e.TaskName)
	}
	return fmt.Sprintf("Alert: %s %s", e.Symbol, e.Metric)
}

// DefaultMessage renders the raw, unenriched alert text. This is what gets
// delivered when the enrichment call fails or is not configured.
func (e AlertEvent) DefaultMessage() string {
	return fmt.Sprintf(
		"Market alert triggered\nSymbol: %s\nMetric: %s\nCurrent value: %.4f\nCondition: %s %.4f\nTime: %s",
		e.Symbol,
		e.Metric,
		e.CurrentValue,
		e.Comparator,
		e.Threshold,
		e.Timestamp.Format("2006-01-02 15:04:05"),
	)
}

// ChannelResult is the outcome of delivering one alert to one channel.
type ChannelResult struct {
	Channel string `json:"channel"`
	Err     error  `json:"-"`
}

// Ok reports whether delivery to the channel succeeded.
func (r ChannelResult) Ok() bool {
	return r.Err == nil
}
