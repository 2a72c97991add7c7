package notification

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-service/internal/events"
	"fleet-service/internal/logging"
	"fleet-service/internal/models"
)

type chanSender struct {
	got chan models.Alert
	err error
}

func (c chanSender) Send(_ context.Context, a models.Alert) error {
	c.got <- a
	return c.err
}

func alertEvent(level models.AlertLevel, id string) events.Event {
	return events.Event{
		Kind:     events.KindAlert,
		DeviceID: "dev-1",
		Data:     models.Alert{ID: id, Level: level, DeviceID: "dev-1", Message: "m"},
	}
}

func TestForwardsOnlyAtMinLevel(t *testing.T) {
	svc := New(logging.NewTest(io.Discard), Config{QueueSize: 4, MaxWorkers: 1})
	tg := chanSender{got: make(chan models.Alert, 4)}
	mail := chanSender{got: make(chan models.Alert, 4), err: errors.New("smtp down")}
	svc.Register("telegram", tg)
	svc.Register("email", mail)
	assert.Equal(t, []string{"email", "telegram"}, svc.Providers())

	var wg sync.WaitGroup
	svc.Start(&wg)
	defer func() {
		svc.Stop()
		wg.Wait()
	}()

	ctx := context.Background()
	require.NoError(t, svc.Publish(ctx, alertEvent(models.AlertWarning, "a-1")))
	require.NoError(t, svc.Publish(ctx, events.Event{Kind: events.KindCollision, DeviceID: "dev-1"}))
	require.NoError(t, svc.Publish(ctx, alertEvent(models.AlertCritical, "a-2")))

	for _, ch := range []chan models.Alert{mail.got, tg.got} {
		select {
		case a := <-ch:
			assert.Equal(t, "a-2", a.ID)
		case <-time.After(2 * time.Second):
			t.Fatal("alert not forwarded")
		}
	}
	assert.Empty(t, tg.got)
}

func TestQueueTaskDropsWhenFull(t *testing.T) {
	svc := New(logging.NewTest(io.Discard), Config{QueueSize: 1, MaxWorkers: 1})
	assert.True(t, svc.QueueTask(models.Alert{ID: "a-1"}))
	assert.False(t, svc.QueueTask(models.Alert{ID: "a-2"}))
}

func TestPublishWithoutProvidersIsNoop(t *testing.T) {
	svc := New(logging.NewTest(io.Discard), Config{QueueSize: 1})
	require.NoError(t, svc.Publish(context.Background(), alertEvent(models.AlertCritical, "a-1")))
	assert.Len(t, svc.tasks, 0)
}
