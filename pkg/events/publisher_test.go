package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
		return Event{}
	}
}

func TestPublishReachesTypedAndWildcardHandlers(t *testing.T) {
	p := NewPublisher()

	won := make(chan Event, 4)
	all := make(chan Event, 4)
	p.Subscribe(EventGameWon, func(e Event) { won <- e })
	p.SubscribeAll(func(e Event) { all <- e })

	p.Publish(Event{Type: EventGameWon, SessionID: "a"})
	assert.Equal(t, "a", receive(t, won).SessionID)
	assert.Equal(t, EventGameWon, receive(t, all).Type)

	p.Publish(Event{Type: EventGameLost, SessionID: "b"})
	e := receive(t, all)
	assert.Equal(t, EventGameLost, e.Type)

	select {
	case e := <-won:
		require.Failf(t, "unexpected delivery", "%v", e)
	case <-time.After(50 * time.Millisecond):
	}
}
