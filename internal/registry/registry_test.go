package registry

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketwatch/internal/models"
)

func validConfig() models.TaskConfig {
	return models.TaskConfig{
		Name:                 "BTC price monitor",
		Market:               "cex",
		Provider:             "binance",
		Symbol:               "BTCUSDT",
		Metric:               models.MetricPrice,
		Comparator:           models.GreaterThan,
		Threshold:            70000,
		CheckInterval:        5 * time.Minute,
		NotificationChannels: []string{"telegram"},
	}
}

func TestCreateValid(t *testing.T) {
	r := New()

	id, err := r.Create(validConfig())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	task, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, models.StatusActive, task.Status)
	assert.Equal(t, 0, task.TriggerCount)
	assert.Equal(t, "BTCUSDT", task.Symbol)
	assert.Nil(t, task.LastValue)
	assert.Nil(t, task.LastCheckedAt)
	assert.False(t, task.CreatedAt.IsZero())
}

func TestCreateAssignsUniqueIDs(t *testing.T) {
	r := New()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := r.Create(validConfig())
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, r.List(), 100)
}

func TestCreateInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.TaskConfig)
	}{
		{"zero interval", func(c *models.TaskConfig) { c.CheckInterval = 0 }},
		{"negative interval", func(c *models.TaskConfig) { c.CheckInterval = -time.Second }},
		{"empty channels", func(c *models.TaskConfig) { c.NotificationChannels = nil }},
		{"nan threshold", func(c *models.TaskConfig) { c.Threshold = math.NaN() }},
		{"inf threshold", func(c *models.TaskConfig) { c.Threshold = math.Inf(1) }},
		{"unknown metric", func(c *models.TaskConfig) { c.Metric = "MOMENTUM" }},
		{"unknown comparator", func(c *models.TaskConfig) { c.Comparator = "BETWEEN" }},
		{"empty symbol", func(c *models.TaskConfig) { c.Symbol = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			cfg := validConfig()
			tt.mutate(&cfg)

			_, err := r.Create(cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Empty(t, r.List(), "registry must be unchanged after rejected create")
		})
	}
}

func TestDeleteIdempotent(t *testing.T) {
	r := New()

	assert.False(t, r.Delete("no-such-id"))

	id, err := r.Create(validConfig())
	require.NoError(t, err)

	assert.True(t, r.Delete(id))
	task, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, models.StatusDeleted, task.Status)

	// second delete of the same id is a no-op
	assert.False(t, r.Delete(id))
}

func TestSetStatusOnlyFromActive(t *testing.T) {
	r := New()
	id, err := r.Create(validConfig())
	require.NoError(t, err)

	r.SetStatus(id, models.StatusError)
	task, _ := r.Get(id)
	assert.Equal(t, models.StatusError, task.Status)

	// terminal states never transition again
	r.SetStatus(id, models.StatusExpired)
	task, _ = r.Get(id)
	assert.Equal(t, models.StatusError, task.Status)
}

func TestRecordCheckAndTrigger(t *testing.T) {
	r := New()
	id, err := r.Create(validConfig())
	require.NoError(t, err)

	at := time.Now()
	r.RecordCheck(id, 71000, at)
	r.IncrementTrigger(id)
	r.IncrementTrigger(id)

	task, _ := r.Get(id)
	require.NotNil(t, task.LastValue)
	assert.Equal(t, 71000.0, *task.LastValue)
	require.NotNil(t, task.LastCheckedAt)
	assert.Equal(t, at, *task.LastCheckedAt)
	assert.Equal(t, 2, task.TriggerCount)
}

func TestReapRemovesExpired(t *testing.T) {
	r := New()

	past := time.Now().Add(-time.Hour)
	cfg := validConfig()
	cfg.ExpiresAt = &past
	expiredID, err := r.Create(cfg)
	require.NoError(t, err)
	r.SetStatus(expiredID, models.StatusExpired)

	activeID, err := r.Create(validConfig())
	require.NoError(t, err)

	removed := r.Reap(time.Now())
	assert.Equal(t, []string{expiredID}, removed)

	_, ok := r.Get(expiredID)
	assert.False(t, ok)
	_, ok = r.Get(activeID)
	assert.True(t, ok)
}

func TestListReturnsSnapshot(t *testing.T) {
	r := New()
	id, err := r.Create(validConfig())
	require.NoError(t, err)

	snapshot := r.List()
	snapshot[id] = models.MonitoringTask{ID: id, Status: models.StatusError}

	task, _ := r.Get(id)
	assert.Equal(t, models.StatusActive, task.Status, "mutating the snapshot must not affect the registry")
}

func TestCreateCopiesChannelsAndParams(t *testing.T) {
	r := New()

	cfg := validConfig()
	cfg.NotificationParams = map[string]models.ChannelParams{
		"telegram": {"chat_id": float64(12345)},
	}

	id, err := r.Create(cfg)
	require.NoError(t, err)

	// mutating the caller's config after create must not reach the store
	cfg.NotificationChannels[0] = "mutated"
	cfg.NotificationParams["telegram"]["chat_id"] = float64(999)

	task, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, []string{"telegram"}, task.NotificationChannels)
	assert.Equal(t, float64(12345), task.NotificationParams["telegram"]["chat_id"])
}
