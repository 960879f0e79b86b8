package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/tbourn/go-waitlist-backend/internal/queue"
	"github.com/tbourn/go-waitlist-backend/internal/store"
)

// SerialRunner runs a task inside the serialization queue and reports the
// backlog. Implemented by *queue.Queue.
type SerialRunner interface {
	Do(ctx context.Context, task queue.Task) error
	Len() int
}

// Stats summarizes the store.
type Stats struct {
	Rows       int        `json:"rows"`
	SizeBytes  int64      `json:"size_bytes"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
	QueueDepth int        `json:"queue_depth"`
}

// StatsService reports store statistics. The row count is read inside the
// queue so it reflects a committed file and never races an append.
type StatsService struct {
	Store FileStore
	Queue SerialRunner
}

// Stats returns the current store statistics. An absent store reports zero
// rows.
func (s *StatsService) Stats(ctx context.Context) (Stats, error) {
	tr := otel.Tracer("services/StatsService")
	ctx, span := tr.Start(ctx, "Stats")
	defer span.End()

	var out Stats
	err := s.Queue.Do(ctx, func(ctx context.Context) error {
		rows, err := s.Store.Rows(ctx)
		if err != nil {
			return err
		}
		out.Rows = len(rows)

		info, err := s.Store.Stat()
		switch {
		case err == nil:
			mod := info.ModTime.UTC()
			out.SizeBytes = info.Size
			out.ModifiedAt = &mod
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrFull):
			return Stats{}, ErrQueueBusy
		case errors.Is(err, queue.ErrClosed):
			return Stats{}, ErrQueueClosed
		}
		return Stats{}, err
	}
	out.QueueDepth = s.Queue.Len()
	return out, nil
}
