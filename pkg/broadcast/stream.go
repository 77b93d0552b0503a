package broadcast

import (
	"context"
	"sync"
)

// Stream fans published values out to all active subscribers.
// All methods are safe for concurrent use.
type Stream[T any] struct {
	mu        sync.RWMutex
	subs      map[*subscriber[T]]struct{}
	buffer    int
	closed    bool
	cleanupWg sync.WaitGroup
}

type subscriber[T any] struct {
	ch     chan T
	mu     sync.RWMutex
	closed bool
}

// NewStream creates an in-memory stream. The buffer parameter sets the
// channel buffer for each subscriber; a minimum of 1 is enforced so that
// publishes stay non-blocking.
func NewStream[T any](buffer int) *Stream[T] {
	return &Stream[T]{
		subs:   make(map[*subscriber[T]]struct{}),
		buffer: max(buffer, 1),
	}
}

// Subscribe registers a new subscriber and returns its receive channel.
// The subscription is removed and the channel closed when ctx is cancelled,
// when the subscriber falls behind, or when the stream is closed. Subscribing
// to a closed stream returns an already-closed channel.
func (s *Stream[T]) Subscribe(ctx context.Context) <-chan T {
	sub := &subscriber[T]{ch: make(chan T, s.buffer)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.close()
		return sub.ch
	}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	if ctx.Done() != nil {
		s.cleanupWg.Add(1)
		go func() {
			defer s.cleanupWg.Done()
			<-ctx.Done()
			s.unsubscribe(sub)
		}()
	}

	return sub.ch
}

// Publish delivers v to every active subscriber. Subscribers whose buffers
// are full miss the value and are dropped from the stream.
func (s *Stream[T]) Publish(v T) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}

	for sub := range s.subs {
		if !sub.send(v) {
			// Removing under a write lock here would deadlock against the
			// read lock above, so the drop happens asynchronously.
			go s.unsubscribe(sub)
		}
	}
}

// Close shuts down the stream and closes all subscriber channels.
// It is safe to call Close multiple times.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for sub := range s.subs {
		sub.close()
	}
	clear(s.subs)
	s.mu.Unlock()

	// Wait for context-cleanup goroutines so Close never races unsubscribe.
	s.cleanupWg.Wait()
}

func (s *Stream[T]) unsubscribe(sub *subscriber[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[sub]; !ok {
		return
	}
	delete(s.subs, sub)
	sub.close()
}

func (sub *subscriber[T]) send(v T) bool {
	sub.mu.RLock()
	defer sub.mu.RUnlock()

	if sub.closed {
		return false
	}
	select {
	case sub.ch <- v:
		return true
	default:
		return false
	}
}

func (sub *subscriber[T]) close() {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if !sub.closed {
		close(sub.ch)
		sub.closed = true
	}
}
