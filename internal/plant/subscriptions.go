package plant

import (
	"cmp"
	"slices"
	"sync"
)

// Subscription identifies one live stream. Params carries channel-specific
// qualifiers such as update bits or bar type and period.
type Subscription struct {
	Channel  string
	Symbol   string
	Exchange string
	Params   string
}

// Subscriptions is the set of streams to replay after a reconnect. Adding
// an existing entry is a no-op.
type Subscriptions struct {
	mu  sync.Mutex
	set map[Subscription]uint64 // Times replayed since added
}

// NewSubscriptions creates an empty set.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{set: make(map[Subscription]uint64)}
}

// Add records s and reports whether it was new.
func (s *Subscriptions) Add(sub Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[sub]; ok {
		return false
	}
	s.set[sub] = 0
	return true
}

// Remove forgets s and reports whether it was present.
func (s *Subscriptions) Remove(sub Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[sub]; !ok {
		return false
	}
	delete(s.set, sub)
	return true
}

func (s *Subscriptions) Has(sub Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[sub]
	return ok
}

func (s *Subscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.set)
}

// List returns the subscriptions in a stable order.
func (s *Subscriptions) List() []Subscription {
	s.mu.Lock()
	out := make([]Subscription, 0, len(s.set))
	for sub := range s.set {
		out = append(out, sub)
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b Subscription) int {
		return cmp.Or(
			cmp.Compare(a.Channel, b.Channel),
			cmp.Compare(a.Symbol, b.Symbol),
			cmp.Compare(a.Exchange, b.Exchange),
			cmp.Compare(a.Params, b.Params),
		)
	})
	return out
}

func (s *Subscriptions) markReplayed(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.set[sub]; ok {
		s.set[sub] = n + 1
	}
}

func (s *Subscriptions) replays(sub Subscription) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set[sub]
}

// Clear forgets every subscription.
func (s *Subscriptions) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.set)
}
