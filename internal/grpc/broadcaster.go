package grpc

import (
	"sync"
	"sync/atomic"

	"github.com/mr1hm/go-hazard-mapper/internal/models"
)

// subscriberBuffer is how many reports a subscriber can fall behind before
// new ones are dropped for it.
const subscriberBuffer = 16

// Broadcaster fans completed reports out to stream subscribers.
type Broadcaster struct {
	subscribers map[uint64]chan *models.Report
	nextID      atomic.Uint64
	mu          sync.RWMutex
	onChange    func(count int)
}

// NewBroadcaster takes an optional callback invoked with the subscriber
// count after every subscribe or unsubscribe.
func NewBroadcaster(onChange func(count int)) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan *models.Report),
		onChange:    onChange,
	}
}

func (b *Broadcaster) Subscribe() (uint64, <-chan *models.Report) {
	id := b.nextID.Add(1)
	ch := make(chan *models.Report, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[id] = ch
	count := len(b.subscribers)
	b.mu.Unlock()

	b.notify(count)
	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		close(ch)
		delete(b.subscribers, id)
	}
	count := len(b.subscribers)
	b.mu.Unlock()

	if ok {
		b.notify(count)
	}
}

// Broadcast never blocks; subscribers with a full buffer miss the report.
func (b *Broadcaster) Broadcast(r *models.Report) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- r:
		default:
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels, causing streams to exit gracefully
func (b *Broadcaster) Close() {
	b.mu.Lock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()

	b.notify(0)
}

func (b *Broadcaster) notify(count int) {
	if b.onChange != nil {
		b.onChange(count)
	}
}
