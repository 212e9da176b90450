package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Razee4315/panda-chat/internal/docstore"
	"github.com/Razee4315/panda-chat/internal/logger"
	"github.com/Razee4315/panda-chat/internal/metrics"
)

// heartbeatInterval keeps idle streams alive through proxies.
var heartbeatInterval = 15 * time.Second

// latest holds the newest value a subscription delivered. Older undelivered
// values are dropped, so a slow client always receives current state.
type latest[T any] struct {
	mu     sync.Mutex
	value  T
	notify chan struct{}
}

func (l *latest[T]) put(v T) {
	l.mu.Lock()
	l.value = v
	l.mu.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *latest[T]) get() T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// stream opens a subscription and writes every delivered value as a
// server-sent event until the client disconnects. The subscription is
// closed on return.
func stream[T any](c echo.Context, m *metrics.Metrics, event string, subscribe func(fn func(T)) (*docstore.Subscription, error)) error {
	box := &latest[T]{notify: make(chan struct{}, 1)}
	sub, err := subscribe(box.put)
	if err != nil {
		return httpError(c, err)
	}
	defer sub.Close()

	ctx := c.Request().Context()
	log := logger.FromContext(ctx).With(slog.String("stream", uuid.NewString()), slog.String("event", event))
	log.Debug("stream opened", slog.String("path", sub.Path()))
	if m != nil {
		m.Streams.Inc()
		defer m.Streams.Dec()
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("stream closed")
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case <-box.notify:
			data, err := json.Marshal(box.get())
			if err != nil {
				log.Warn("dropping unencodable event", slog.String("error", err.Error()))
				continue
			}
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", event, data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
