package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDelivers(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(4)
	defer sub.Cancel()

	bus.Publish(Event{Type: TypeInstalled, AppID: "clock"})

	evt := <-sub.C
	assert.Equal(t, TypeInstalled, evt.Type)
	assert.Equal(t, "clock", evt.AppID)
	assert.NotEmpty(t, evt.ID)
	assert.False(t, evt.Time.IsZero())
}

func TestPublishDropsWhenFull(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(1)
	defer sub.Cancel()

	bus.Publish(Event{Type: TypePhase})
	bus.Publish(Event{Type: TypePhase})
	bus.Publish(Event{Type: TypePhase})

	assert.Equal(t, uint64(2), sub.Dropped())
}

func TestCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(1)
	sub.Cancel()
	sub.Cancel()

	_, open := <-sub.C
	assert.False(t, open)

	bus.Publish(Event{Type: TypeFailed})
}

func TestCloseDetachesAll(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe(1)
	b := bus.Subscribe(1)
	bus.Close()

	_, open := <-a.C
	require.False(t, open)
	_, open = <-b.C
	require.False(t, open)

	late := bus.Subscribe(1)
	_, open = <-late.C
	assert.False(t, open)
	a.Cancel()
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var bus *Bus
	bus.Publish(Event{Type: TypeInstalled})
}
