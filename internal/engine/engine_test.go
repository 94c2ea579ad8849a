package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketwatch/internal/config"
	"marketwatch/internal/dispatch"
	"marketwatch/internal/enrich"
	"marketwatch/internal/logging"
	"marketwatch/internal/market"
	"marketwatch/internal/models"
	"marketwatch/internal/registry"
)

// fakeMarket returns readings from fn, keyed by 1-based call number.
type fakeMarket struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) (float64, error)
}

func (f *fakeMarket) GetReading(ctx context.Context, mkt, provider, symbol string, metric models.Metric) (float64, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	return f.fn(n)
}

func (f *fakeMarket) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEnricher struct {
	text string
	err  error
}

func (f *fakeEnricher) Enrich(ctx context.Context, event models.AlertEvent) (string, error) {
	return f.text, f.err
}

// capture records everything dispatched to it and can be told to fail.
type capture struct {
	mu       sync.Mutex
	events   []models.AlertEvent
	messages []string
	err      error
}

func (c *capture) send(ctx context.Context, event models.AlertEvent, message string, params models.ChannelParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	c.messages = append(c.messages, message)
	return c.err
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *capture) first() (models.AlertEvent, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[0], c.messages[0]
}

func newTestEngine(t *testing.T, mkt market.Client, enricher *fakeEnricher, opts Options) (*Engine, *capture) {
	t.Helper()

	logger := logging.NewNop()
	cap := &capture{}
	dispatcher := dispatch.New(logger, time.Second)
	dispatcher.Register("capture", cap.send)

	if opts.FailureBackoff == 0 {
		opts.FailureBackoff = 5 * time.Millisecond
	}

	// a typed nil pointer must not become a non-nil interface
	var enr enrich.Enricher
	if enricher != nil {
		enr = enricher
	}

	eng := New(registry.New(), mkt, enr, dispatcher, logger, opts)
	t.Cleanup(eng.Stop)
	return eng, cap
}

func testConfig(interval time.Duration) models.TaskConfig {
	return models.TaskConfig{
		Name:                 "BTC price monitor",
		Market:               "cex",
		Provider:             "binance",
		Symbol:               "BTCUSDT",
		Metric:               models.MetricPrice,
		Comparator:           models.GreaterThan,
		Threshold:            70000,
		CheckInterval:        interval,
		NotificationChannels: []string{"capture"},
	}
}

func TestTriggerDispatchesOneAlert(t *testing.T) {
	mkt := &fakeMarket{fn: func(int) (float64, error) { return 71000, nil }}
	eng, cap := newTestEngine(t, mkt, nil, Options{})

	// long interval: only the immediate first tick runs during the test
	id, err := eng.CreateTask(testConfig(time.Hour))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return cap.count() == 1 }, time.Second, 5*time.Millisecond)

	event, message := cap.first()
	assert.Equal(t, id, event.TaskID)
	assert.Equal(t, "BTCUSDT", event.Symbol)
	assert.Equal(t, models.MetricPrice, event.Metric)
	assert.Equal(t, 71000.0, event.CurrentValue)
	assert.Equal(t, 70000.0, event.Threshold)
	assert.Equal(t, models.GreaterThan, event.Comparator)
	assert.Equal(t, event.DefaultMessage(), message)

	require.Eventually(t, func() bool {
		task, _ := eng.GetTask(id)
		return task.TriggerCount == 1
	}, time.Second, 5*time.Millisecond)
}

func TestNoTriggerBelowThreshold(t *testing.T) {
	mkt := &fakeMarket{fn: func(int) (float64, error) { return 69000, nil }}
	eng, cap := newTestEngine(t, mkt, nil, Options{})

	id, err := eng.CreateTask(testConfig(time.Hour))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, _ := eng.GetTask(id)
		return task.LastValue != nil
	}, time.Second, 5*time.Millisecond)

	task, _ := eng.GetTask(id)
	assert.Equal(t, 69000.0, *task.LastValue)
	assert.Equal(t, 0, task.TriggerCount)
	assert.Equal(t, 0, cap.count())
	assert.Equal(t, models.StatusActive, task.Status)
}

func TestConsecutiveFailuresMarkError(t *testing.T) {
	fetchErr := &market.FetchError{Symbol: "BTCUSDT", Metric: models.MetricPrice, Err: errors.New("503")}
	mkt := &fakeMarket{fn: func(int) (float64, error) { return 0, fetchErr }}
	eng, cap := newTestEngine(t, mkt, nil, Options{MaxConsecutiveFailures: 3})

	id, err := eng.CreateTask(testConfig(time.Hour))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, _ := eng.GetTask(id)
		return task.Status == models.StatusError
	}, time.Second, 5*time.Millisecond)

	// terminal: no further polling attempts
	calls := mkt.callCount()
	assert.Equal(t, 3, calls)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, mkt.callCount())
	assert.Equal(t, 0, cap.count())
}

func TestFailureCounterResetsOnSuccess(t *testing.T) {
	mkt := &fakeMarket{fn: func(call int) (float64, error) {
		if call <= 2 {
			return 0, errors.New("transient")
		}
		return 69000, nil
	}}
	eng, _ := newTestEngine(t, mkt, nil, Options{MaxConsecutiveFailures: 3})

	id, err := eng.CreateTask(testConfig(time.Hour))
	require.NoError(t, err)

	// two failures stay under the bound; the third attempt succeeds and
	// resets the counter without a status change
	require.Eventually(t, func() bool {
		task, _ := eng.GetTask(id)
		return task.LastValue != nil
	}, time.Second, 5*time.Millisecond)

	task, _ := eng.GetTask(id)
	assert.Equal(t, models.StatusActive, task.Status)
	assert.Equal(t, 69000.0, *task.LastValue)
	assert.Equal(t, 3, mkt.callCount())
}

func TestDeleteStopsPolling(t *testing.T) {
	mkt := &fakeMarket{fn: func(int) (float64, error) { return 69000, nil }}
	eng, _ := newTestEngine(t, mkt, nil, Options{})

	id, err := eng.CreateTask(testConfig(20 * time.Millisecond))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return mkt.callCount() > 0 }, time.Second, 5*time.Millisecond)

	assert.True(t, eng.DeleteTask(id))
	task, _ := eng.GetTask(id)
	assert.Equal(t, models.StatusDeleted, task.Status)

	// the loop observes DELETED within one tick and stops fetching
	time.Sleep(60 * time.Millisecond)
	calls := mkt.callCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, calls, mkt.callCount())

	// deleting again is a no-op
	assert.False(t, eng.DeleteTask(id))
}

func TestExpiredTaskNeverEvaluated(t *testing.T) {
	mkt := &fakeMarket{fn: func(int) (float64, error) { return 71000, nil }}
	eng, cap := newTestEngine(t, mkt, nil, Options{})

	past := time.Now().Add(-time.Minute)
	cfg := testConfig(20 * time.Millisecond)
	cfg.ExpiresAt = &past

	id, err := eng.CreateTask(cfg)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, _ := eng.GetTask(id)
		return task.Status == models.StatusExpired
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, mkt.callCount(), "an expired task must never be evaluated")
	assert.Equal(t, 0, cap.count(), "expiration itself must not notify")
}

func TestRisingEdgeNotifiesOncePerEdge(t *testing.T) {
	// above, above, below, above: two rising edges
	mkt := &fakeMarket{fn: func(call int) (float64, error) {
		switch {
		case call <= 2:
			return 71000, nil
		case call == 3:
			return 69000, nil
		default:
			return 71000, nil
		}
	}}
	eng, cap := newTestEngine(t, mkt, nil, Options{NotifyPolicy: config.NotifyRisingEdge})

	_, err := eng.CreateTask(testConfig(10 * time.Millisecond))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return cap.count() >= 2 }, time.Second, 5*time.Millisecond)

	// condition stays true from call 4 on; no further alerts
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, cap.count())
}

func TestEveryTickRenotifiesWhileSatisfied(t *testing.T) {
	mkt := &fakeMarket{fn: func(int) (float64, error) { return 71000, nil }}
	eng, cap := newTestEngine(t, mkt, nil, Options{NotifyPolicy: config.NotifyEveryTick})

	_, err := eng.CreateTask(testConfig(10 * time.Millisecond))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return cap.count() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestEnrichmentFailureFallsBackToRawAlert(t *testing.T) {
	mkt := &fakeMarket{fn: func(int) (float64, error) { return 71000, nil }}
	enricher := &fakeEnricher{err: errors.New("llm timeout")}
	eng, cap := newTestEngine(t, mkt, enricher, Options{})

	_, err := eng.CreateTask(testConfig(time.Hour))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return cap.count() == 1 }, time.Second, 5*time.Millisecond)

	event, message := cap.first()
	assert.Equal(t, event.DefaultMessage(), message)
	assert.Contains(t, message, "BTCUSDT")
	assert.Contains(t, message, "71000")
}

func TestEnrichmentNarrativeIsDispatched(t *testing.T) {
	mkt := &fakeMarket{fn: func(int) (float64, error) { return 71000, nil }}
	enricher := &fakeEnricher{text: "BTC broke resistance at 70k; short-term trend bullish."}
	eng, cap := newTestEngine(t, mkt, enricher, Options{})

	_, err := eng.CreateTask(testConfig(time.Hour))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return cap.count() == 1 }, time.Second, 5*time.Millisecond)

	_, message := cap.first()
	assert.Equal(t, enricher.text, message)
}

func TestDispatchFailureStillCountsTrigger(t *testing.T) {
	mkt := &fakeMarket{fn: func(int) (float64, error) { return 71000, nil }}
	eng, cap := newTestEngine(t, mkt, nil, Options{})
	cap.err = errors.New("channel down")

	id, err := eng.CreateTask(testConfig(time.Hour))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, _ := eng.GetTask(id)
		return task.TriggerCount == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCreateTaskRejectsInvalidConfig(t *testing.T) {
	mkt := &fakeMarket{fn: func(int) (float64, error) { return 0, nil }}
	eng, _ := newTestEngine(t, mkt, nil, Options{})

	cfg := testConfig(time.Hour)
	cfg.NotificationChannels = nil

	_, err := eng.CreateTask(cfg)
	require.ErrorIs(t, err, registry.ErrInvalidConfig)
	assert.Empty(t, eng.ListTasks())
}

func TestReaperRemovesExpiredTasks(t *testing.T) {
	mkt := &fakeMarket{fn: func(int) (float64, error) { return 69000, nil }}
	eng, _ := newTestEngine(t, mkt, nil, Options{ReapInterval: 10 * time.Millisecond})
	eng.Start()

	past := time.Now().Add(-time.Minute)
	cfg := testConfig(10 * time.Millisecond)
	cfg.ExpiresAt = &past

	id, err := eng.CreateTask(cfg)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := eng.GetTask(id)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestCreateTaskAfterStop(t *testing.T) {
	mkt := &fakeMarket{fn: func(int) (float64, error) { return 69000, nil }}
	eng, _ := newTestEngine(t, mkt, nil, Options{})

	eng.Stop()

	_, err := eng.CreateTask(testConfig(time.Hour))
	require.ErrorIs(t, err, ErrEngineStopped)
	assert.Empty(t, eng.ListTasks())
	assert.Equal(t, 0, mkt.callCount())
}
