package utils

import (
	"sync"
)

// Broadcaster fans one stream of updates out to many subscribers. It backs
// the push channels, where one stuck consumer must never stall delivery to
// the rest: a subscriber whose buffer is full is evicted on the spot.
type Broadcaster[T any] struct {
	mu     *sync.Mutex
	nextID int
	subs   map[int]chan T
	closed bool
}

func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		mu:   &sync.Mutex{},
		subs: make(map[int]chan T),
	}
}

// Subscribe registers a new subscriber with the given buffer size and returns
// its channel together with a cancel function. Cancelling closes the channel
// and is safe to call more than once. After Close the returned channel is
// already closed.
func (b *Broadcaster[T]) Subscribe(buf int) (<-chan T, func()) {
	ch := make(chan T, buf)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	return ch, func() { b.drop(id) }
}

// Publish delivers v to every subscriber with room in its buffer. Subscribers
// without room are evicted and their channels closed; the number of evicted
// subscribers is returned.
func (b *Broadcaster[T]) Publish(v T) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	evicted := 0
	for id, ch := range b.subs {
		select {
		case ch <- v:
		default:
			delete(b.subs, id)
			close(ch)
			evicted++
		}
	}
	return evicted
}

// Close evicts every subscriber. Publish and Subscribe become no-ops.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	b.closed = true
}

func (b *Broadcaster[T]) drop(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}
