package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSync(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var got []Event
	b.Subscribe(SessionCreated, func(ev Event) {
		got = append(got, ev)
	})

	b.PublishSync(Event{Type: SessionCreated, Data: SessionData{SessionID: "sess-001"}})
	b.PublishSync(Event{Type: ToolDenied, Data: ToolDeniedData{Tool: "Bash"}})

	require.Len(t, got, 1)
	assert.Equal(t, SessionCreated, got[0].Type)

	data, ok := got[0].Data.(SessionData)
	require.True(t, ok)
	assert.Equal(t, "sess-001", data.SessionID)
}

func TestBus_SubscribeAll(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var count int
	b.SubscribeAll(func(ev Event) { count++ })

	b.PublishSync(Event{Type: SessionCreated})
	b.PublishSync(Event{Type: ToolDenied})
	b.PublishSync(Event{Type: AuditDegraded})

	assert.Equal(t, 3, count)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var count int
	unsub := b.Subscribe(SessionCreated, func(ev Event) { count++ })

	b.PublishSync(Event{Type: SessionCreated})
	unsub()
	b.PublishSync(Event{Type: SessionCreated})

	assert.Equal(t, 1, count)
}

func TestBus_PublishAsync(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	b.Subscribe(SessionResumed, func(ev Event) { wg.Done() })
	b.Subscribe(SessionResumed, func(ev Event) { wg.Done() })

	b.Publish(Event{Type: SessionResumed})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscribers not called")
	}
}

func TestBus_ClosedDropsPublishes(t *testing.T) {
	b := NewBus()

	var count int
	b.Subscribe(SessionCreated, func(ev Event) { count++ })
	require.NoError(t, b.Close())

	b.PublishSync(Event{Type: SessionCreated})
	assert.Equal(t, 0, count)

	// Subscribing after close is a no-op.
	unsub := b.Subscribe(SessionCreated, func(ev Event) {})
	unsub()
}
