// Package events implements the EventBus (spec §4.8): in-process
// pub/sub with per-subscriber backpressure, adapted from the
// runtime.EventsEmit(...) fan-out calls scattered through the
// teacher's engine/*.go, collapsed into one publish method now that
// there is no Wails frontend to address.
package events

import (
	"log/slog"
	"sync"
)

// Topic names an event kind. The scheduler publishes one when a task is
// added, started, paused, completed, failed or deleted, plus progress
// snapshots and folder deactivation; StartTask, Retry and MoveToFolder
// publish nothing.
type Topic string

const (
	TopicTaskAdded     Topic = "task_added"
	TopicTaskStarted   Topic = "task_started"
	TopicTaskProgress  Topic = "task_progress"
	TopicTaskPaused    Topic = "task_paused"
	TopicTaskCompleted Topic = "task_completed"
	TopicTaskFailed    Topic = "task_failed"
	TopicTaskDeleted   Topic = "task_deleted"
	TopicFolderState   Topic = "folder_state"
)

// Event is one published message.
type Event struct {
	Topic Topic
	Data  any
}

const defaultBuffer = 64

// Bus fans out published events to every active subscriber. A slow
// subscriber cannot block a publisher or other subscribers: once its
// channel is full, the oldest queued event is dropped to make room and
// a high-water warning is logged.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int
	logger      *slog.Logger
}

type subscriber struct {
	ch     chan Event
	topics map[Topic]bool // nil = all topics
}

// New creates an empty Bus. logger may be nil.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{subscribers: make(map[int]*subscriber), logger: logger}
}

// Subscription is a handle returned by Subscribe; read Events and call
// Close when done listening.
type Subscription struct {
	bus *Bus
	id  int
	ch  chan Event
}

// Events returns the channel events for this subscription arrive on.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subscribers[s.id]; ok {
		delete(s.bus.subscribers, s.id)
		close(s.ch)
	}
}

// Subscribe registers a new subscriber. An empty topics list receives
// every published event.
func (b *Bus) Subscribe(topics ...Topic) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	var want map[Topic]bool
	if len(topics) > 0 {
		want = make(map[Topic]bool, len(topics))
		for _, t := range topics {
			want[t] = true
		}
	}

	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Event, defaultBuffer), topics: want}
	b.subscribers[id] = sub
	return &Subscription{bus: b, id: id, ch: sub.ch}
}

// Publish fans out ev to every matching subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.topics != nil && !sub.topics[ev.Topic] {
			continue
		}
		select {
		case sub.ch <- ev:
			continue
		default:
		}
		// Drop-oldest to make room for the newest event.
		select {
		case <-sub.ch:
			b.logger.Warn("event subscriber backpressure, dropping oldest", "topic", string(ev.Topic))
		default:
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports the number of active subscriptions, for
// diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
