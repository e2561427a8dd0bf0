package fanout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"possync/backend/internal/domain"
	"possync/backend/internal/logging"
	"possync/backend/internal/metrics"
)

func TestLocalBroker_DeliversPerTenant(t *testing.T) {
	broker := NewLocalBroker(4)
	ctx := context.Background()

	demo, cancelDemo, err := broker.Subscribe(ctx, "tenant-demo")
	require.NoError(t, err)
	defer cancelDemo()
	other, cancelOther, err := broker.Subscribe(ctx, "tenant-other")
	require.NoError(t, err)
	defer cancelOther()

	require.NoError(t, broker.Publish(ctx, domain.Event{Type: domain.EventSaleCreated, TenantID: "tenant-demo"}))

	select {
	case ev := <-demo:
		assert.Equal(t, domain.EventSaleCreated, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("tenant-demo subscriber got nothing")
	}
	select {
	case ev := <-other:
		t.Fatalf("tenant-other received %+v", ev)
	default:
	}
}

func TestLocalBroker_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	broker := NewLocalBroker(1)
	ctx := context.Background()

	ch, cancel, err := broker.Subscribe(ctx, "tenant-demo")
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, broker.Publish(ctx, domain.Event{Type: domain.EventStockChanged, TenantID: "tenant-demo"}))
	}
	assert.Len(t, ch, 1)
}

func TestLocalBroker_CancelClosesChannel(t *testing.T) {
	broker := NewLocalBroker(1)
	ctx, stop := context.WithCancel(context.Background())

	ch, _, err := broker.Subscribe(ctx, "tenant-demo")
	require.NoError(t, err)
	stop()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	assert.NoError(t, broker.Publish(context.Background(), domain.Event{TenantID: "tenant-demo"}))
}

func TestNotifier_PublishesAsynchronously(t *testing.T) {
	rec := &Recorder{}
	notifier := NewNotifier(rec, time.Second, logging.Discard(), nil)

	notifier.Notify(domain.Event{Type: domain.EventSaleCreated, TenantID: "tenant-demo"})
	notifier.Notify(domain.Event{Type: domain.EventStockChanged, TenantID: "tenant-demo"})
	notifier.Wait()

	events := rec.Events()
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.False(t, ev.At.IsZero())
	}
	assert.Len(t, rec.OfType(domain.EventStockChanged), 1)
}

func TestNotifier_SwallowsPublishErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := &Recorder{Err: errors.New("redis down")}
	notifier := NewNotifier(rec, time.Second, logging.Discard(), metrics.New(reg))

	assert.NotPanics(t, func() {
		notifier.Notify(domain.Event{Type: domain.EventSaleCreated, TenantID: "tenant-demo"})
		notifier.Wait()
	})
	assert.Empty(t, rec.Events())

	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() == "possync_fanout_events_total" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "possync:tenant:tenant-demo:events", Channel("tenant-demo"))
}
