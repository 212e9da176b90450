package docstore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Subscription is the handle returned by Store.Subscribe. The owner must call
// Close when it stops caring about the path; an unclosed subscription keeps
// its goroutine and backend listener alive.
//
// Change signals are coalesced: every wake-up re-reads the current value, so
// the callback always sees the latest state and never runs concurrently with
// itself. Close must not be called from inside the callback.
type Subscription struct {
	id     string
	path   string
	notify chan struct{}
	cancel context.CancelFunc
	ctx    context.Context
	done   chan struct{}
	once   sync.Once

	release func()
}

type readFunc func(ctx context.Context) (Snapshot, error)

func newSubscription(path string) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		id:     uuid.NewString(),
		path:   path,
		notify: make(chan struct{}, 1),
		cancel: cancel,
		ctx:    ctx,
		done:   make(chan struct{}),
	}
	s.notify <- struct{}{}
	return s
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string { return s.id }

// Path is the subscribed store path.
func (s *Subscription) Path() string { return s.path }

// Done is closed once the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close stops delivery and waits for an in-flight callback to return. It is
// safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		if s.release != nil {
			s.release()
		}
	})
}

// signal marks the path dirty without blocking.
func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) start(read readFunc, fn func(Snapshot)) {
	go func() {
		defer close(s.done)
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-s.notify:
			}
			snap, err := read(s.ctx)
			if s.ctx.Err() != nil {
				return
			}
			if err != nil {
				slog.Warn("docstore: subscription read failed",
					slog.String("subscription", s.id),
					slog.String("path", s.path),
					slog.String("error", err.Error()))
				continue
			}
			fn(snap)
		}
	}()
}
