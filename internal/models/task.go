package models

import (
	"time"
)

// Metric is the numeric market quantity a monitoring task watches.
type Metric string

const (
	MetricPrice              Metric = "PRICE"
	MetricPriceChangePercent Metric = "PRICE_CHANGE_PERCENT"
	MetricVolume             Metric = "VOLUME"
	MetricHigh24h            Metric = "HIGH_24H"
	MetricLow24h             Metric = "LOW_24H"
)

// Valid reports whether the metric is one of the supported quantities.
func (m Metric) Valid() bool {
	switch m {
	case MetricPrice, MetricPriceChangePercent, MetricVolume, MetricHigh24h, MetricLow24h:
		return true
	}
	return false
}

// Comparator is the relation tested between a live reading and a threshold.
type Comparator string

const (
	GreaterThan Comparator = "GREATER_THAN"
	LessThan    Comparator = "LESS_THAN"
	Equal       Comparator = "EQUAL"
)

// Valid reports whether the comparator is supported.
func (c Comparator) Valid() bool {
	switch c {
	case GreaterThan, LessThan, Equal:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state of a monitoring task. A task starts
// ACTIVE and moves to exactly one of the terminal states.
type TaskStatus string

const (
	StatusActive  TaskStatus = "ACTIVE"
	StatusExpired TaskStatus = "EXPIRED"
	StatusDeleted TaskStatus = "DELETED"
	StatusError   TaskStatus = "ERROR"
)

// Terminal reports whether the status is an end state.
func (s TaskStatus) Terminal() bool {
	return s == StatusExpired || s == StatusDeleted || s == StatusError
}

// ChannelParams holds channel-specific delivery settings, e.g. a telegram
// chat_id or a recipient email address.
type ChannelParams map[string]interface{}

// TaskConfig is the request to create a monitoring task.
type TaskConfig struct {
	Name                 string                   `json:"name"`
	Market               string                   `json:"market"`
	Provider             string                   `json:"provider"`
	Symbol               string                   `json:"symbol"`
	Metric               Metric                   `json:"metric"`
	Comparator           Comparator               `json:"comparator"`
	Threshold            float64                  `json:"threshold"`
	CheckInterval        time.Duration            `json:"check_interval"`
	ExpiresAt            *time.Time               `json:"expires_at,omitempty"`
	NotificationChannels []string                 `json:"notification_channels"`
	NotificationParams   map[string]ChannelParams `json:"notification_params,omitempty"`
}

// MonitoringTask is a registered task plus its runtime bookkeeping. The
// bookkeeping fields (Status, LastCheckedAt, LastValue, TriggerCount) are
// written only by the scheduler loop that owns the task.
type MonitoringTask struct {
	ID                   string                   `json:"id"`
	Name                 string                   `json:"name"`
	Market               string                   `json:"market"`
	Provider             string                   `json:"provider"`
	Symbol               string                   `json:"symbol"`
	Metric               Metric                   `json:"metric"`
	Comparator           Comparator               `json:"comparator"`
	Threshold            float64                  `json:"threshold"`
	CheckInterval        time.Duration            `json:"check_interval"`
	ExpiresAt            *time.Time               `json:"expires_at,omitempty"`
	NotificationChannels []string                 `json:"notification_channels"`
	NotificationParams   map[string]ChannelParams `json:"notification_params,omitempty"`
	Status               TaskStatus               `json:"status"`
	CreatedAt            time.Time                `json:"created_at"`
	LastCheckedAt        *time.Time               `json:"last_checked_at,omitempty"`
	LastValue            *float64                 `json:"last_value,omitempty"`
	TriggerCount         int                      `json:"trigger_count"`
}

// Params returns the per-channel parameters for the given channel, which
// may be nil when none were configured.
func (t MonitoringTask) Params(channel string) ChannelParams {
	if t.NotificationParams == nil {
		return nil
	}
	return t.NotificationParams[channel]
}
