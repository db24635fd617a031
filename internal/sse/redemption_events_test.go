package sse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/checkin"
)

func TestEmitReachesEventSubscribers(t *testing.T) {
	emitter := NewRedemptionEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := emitter.SubscribeToEvent(ctx, "ev1")
	emitter.Emit(checkin.RedemptionEvent{EventID: "ev1", ParticipantID: "p1"})

	select {
	case event := <-ch:
		assert.Equal(t, "p1", event.ParticipantID)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}
}

func TestEmitFiltersByEventAndStation(t *testing.T) {
	emitter := NewRedemptionEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	other := emitter.SubscribeToEvent(ctx, "other-event")
	station := emitter.SubscribeToStation(ctx, "s1")

	emitter.Emit(checkin.RedemptionEvent{EventID: "ev1", StationID: "s1"})

	select {
	case <-other:
		t.Fatal("event subscriber received a foreign event")
	default:
	}

	select {
	case event := <-station:
		assert.Equal(t, "ev1", event.EventID)
	case <-time.After(time.Second):
		t.Fatal("station subscriber never received the event")
	}
}

func TestUnsubscribeOnContextCancel(t *testing.T) {
	emitter := NewRedemptionEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())

	ch := emitter.SubscribeToEvent(ctx, "ev1")
	cancel()

	// The channel is closed once the cancellation is observed.
	require.Eventually(t, func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	// Emitting afterwards must not panic.
	emitter.Emit(checkin.RedemptionEvent{EventID: "ev1"})
}
