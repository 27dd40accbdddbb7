package cdp

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/eapache/queue"
)

// DefaultEventLogSize is the number of events kept when no size is given.
const DefaultEventLogSize = 256

// RecordedEvent is an event captured by an EventLog.
type RecordedEvent struct {
	Method string
	Params json.RawMessage
	Time   time.Time
}

// EventLog keeps the most recent events received by a client. Once full,
// recording a new event drops the oldest one.
type EventLog struct {
	mu       sync.Mutex
	q        *queue.Queue
	capacity int
	dropped  int
	now      func() time.Time
}

// NewEventLog creates an event log holding at most capacity events.
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultEventLogSize
	}
	return &EventLog{
		q:        queue.New(),
		capacity: capacity,
		now:      time.Now,
	}
}

// Record appends an event, evicting the oldest one when full.
func (l *EventLog) Record(method string, params json.RawMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for l.q.Length() >= l.capacity {
		l.q.Remove()
		l.dropped++
	}
	l.q.Add(RecordedEvent{Method: method, Params: params, Time: l.now()})
}

// Recent returns up to n of the newest events, oldest first. n <= 0 returns all.
func (l *EventLog) Recent(n int) []RecordedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := l.q.Length()
	if n <= 0 || n > total {
		n = total
	}

	out := make([]RecordedEvent, 0, n)
	for i := total - n; i < total; i++ {
		out = append(out, l.q.Get(i).(RecordedEvent))
	}
	return out
}

// Len returns the number of events held.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.q.Length()
}

// Dropped returns how many events were evicted so far.
func (l *EventLog) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Reset removes every event.
func (l *EventLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.q = queue.New()
	l.dropped = 0
}
