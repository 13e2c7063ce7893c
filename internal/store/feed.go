package store

import "sync"

// Feed fans values out to subscribers. Each subscriber gets its own
// goroutine and a one-slot mailbox: a slow subscriber skips intermediate
// values but always ends on the newest one. Values carry a sequence number
// and a subscriber never sees a sequence lower than one it already got.
type Feed[T any] struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]*subscriber[T]
}

type subscriber[T any] struct {
	fn     func(T)
	notify chan struct{}
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	seen    bool
	pending bool
	seq     uint64
	value   T
}

// Subscribe registers fn and seeds it with (seq, initial).
func (f *Feed[T]) Subscribe(seq uint64, initial T, fn func(T)) Unsubscribe {
	s := &subscriber[T]{
		fn:     fn,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	s.offer(seq, initial)

	f.mu.Lock()
	if f.subs == nil {
		f.subs = make(map[uint64]*subscriber[T])
	}
	id := f.next
	f.next++
	f.subs[id] = s
	f.mu.Unlock()

	go s.run()

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
		s.once.Do(func() { close(s.done) })
	}
}

// Publish offers v to every current subscriber.
func (f *Feed[T]) Publish(seq uint64, v T) {
	f.mu.Lock()
	subs := make([]*subscriber[T], 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		s.offer(seq, v)
	}
}

// Len reports the number of live subscribers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close drops every subscriber.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()

	for _, s := range subs {
		s.once.Do(func() { close(s.done) })
	}
}

func (s *subscriber[T]) offer(seq uint64, v T) {
	s.mu.Lock()
	if s.seen && seq <= s.seq {
		s.mu.Unlock()
		return
	}
	s.seen = true
	s.seq = seq
	s.value = v
	s.pending = true
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber[T]) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
			s.mu.Lock()
			if !s.pending {
				s.mu.Unlock()
				continue
			}
			v := s.value
			s.pending = false
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.fn(v)
		}
	}
}
