package events

import "sync"

// Bus provides in-process pub/sub between the evaluators and the notifiers.
// Publishing never blocks; events for a full subscriber are dropped.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan any
	nextID int
	// OnDrop is called for every event a subscriber could not take.
	OnDrop func(ev any)
}

func NewBus() *Bus { return &Bus{subs: make(map[int]chan any)} }

// Subscribe returns a buffered channel of events and a function that
// unsubscribes and closes it.
func (b *Bus) Subscribe(buffer int) (<-chan any, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan any, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Bus) Publish(ev any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			if b.OnDrop != nil {
				b.OnDrop(ev)
			}
		}
	}
}
