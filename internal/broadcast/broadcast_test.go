package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/backutil/backutil/internal/types"
)

func TestBus_PublishDeliversToAllSubscribers(t *testing.T) {
	b := New()
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	defer b.Unsubscribe(s1)
	defer b.Unsubscribe(s2)

	ev := types.Event{Type: types.EventBackupComplete, Set: "docs"}
	b.Publish(ev)

	select {
	case got := <-s1.Events:
		assert.Equal(t, ev, got)
	case <-time.After(time.Second):
		t.Fatal("s1 did not receive event")
	}
	select {
	case got := <-s2.Events:
		assert.Equal(t, ev, got)
	case <-time.After(time.Second):
		t.Fatal("s2 did not receive event")
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	b.Unsubscribe(sub)

	_, ok := <-sub.Events
	assert.False(t, ok)
}

func TestBus_SlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(types.Event{Type: types.EventBackupComplete, Set: "docs"})
	}

	assert.LessOrEqual(t, len(sub.Events), subscriberBuffer)
}

func TestBus_CountTracksSubscribers(t *testing.T) {
	b := New()
	assert.Equal(t, 0, b.Count())

	sub := b.Subscribe()
	assert.Equal(t, 1, b.Count())

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.Count())
}

func TestBus_CloseAllClosesEverySubscriber(t *testing.T) {
	b := New()
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	b.CloseAll()

	_, ok1 := <-s1.Events
	_, ok2 := <-s2.Events
	assert.False(t, ok1)
	assert.False(t, ok2)
	assert.Equal(t, 0, b.Count())
}

func TestBus_PublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	b := New()
	done := make(chan struct{})
	go func() {
		b.Publish(types.Event{Type: types.EventBackupStarted, Set: "docs"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}
