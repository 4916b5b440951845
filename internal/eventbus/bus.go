// Package eventbus is an in-process fanout for small notifications between
// components (poll cycle results, config reloads).
//
// Publish never blocks: a subscriber whose buffer is full misses the event.
package eventbus

import (
	"sync"
	"time"
)

const (
	// TypePollCycle carries a bridge.Result after every poll cycle.
	TypePollCycle = "poll.cycle"
	// TypeConfigReloaded carries the new config after a hot reload.
	TypeConfigReloaded = "config.reloaded"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*Subscription
}

func New() *Bus {
	return &Bus{subs: map[uint64]*Subscription{}}
}

// Subscription receives events on C until Close is called.
type Subscription struct {
	C <-chan Event

	bus    *Bus
	id     uint64
	types  map[string]struct{}
	ch     chan Event
	closed bool
}

// Subscribe registers a buffered subscriber. With no types it receives
// everything.
func (b *Bus) Subscribe(buffer int, types ...string) *Subscription {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{C: ch, bus: b, ch: ch}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

func (s *Subscription) wants(typ string) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[typ]
	return ok
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(b.subs, s.id)
	close(s.ch)
}

// Publish fans e out to matching subscribers.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends happen under the read lock so Close cannot race a send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.wants(e.Type) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
		}
	}
}
