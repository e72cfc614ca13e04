package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesMatchingTopic(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe(TopicTaskCompleted)
	defer sub.Close()

	b.Publish(Event{Topic: TopicTaskStarted, Data: "ignored"})
	b.Publish(Event{Topic: TopicTaskCompleted, Data: "done"})

	select {
	case ev := <-sub.Events():
		assert.Equal(t, TopicTaskCompleted, ev.Topic)
		assert.Equal(t, "done", ev.Data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeAllTopicsWithNoFilter(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(Event{Topic: TopicFolderState})
	select {
	case ev := <-sub.Events():
		assert.Equal(t, TopicFolderState, ev.Topic)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSlowSubscriberDropsOldestInsteadOfBlocking(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe(TopicTaskProgress)
	defer sub.Close()

	for i := 0; i < defaultBuffer+10; i++ {
		b.Publish(Event{Topic: TopicTaskProgress, Data: i})
	}

	// Publisher never blocked; the channel holds at most defaultBuffer
	// events, with the newest ones retained.
	assert.LessOrEqual(t, len(sub.Events()), defaultBuffer)
}

func TestCloseUnregistersSubscriber(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())
	sub.Close()
	assert.Equal(t, 0, b.SubscriberCount())
}
