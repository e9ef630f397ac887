package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"classquiz-service/internal/domain"
)

// Publisher pushes room snapshots to an external transport (Redis pub/sub, AMQP, ...).
type Publisher interface {
	Publish(ctx context.Context, snapshot domain.RoomSnapshot) error
}

// Publishers fans a snapshot out to several publishers; every one is tried.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, snapshot domain.RoomSnapshot) error {
	var errs []error
	for _, p := range ps {
		if err := p.Publish(ctx, snapshot); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const publishTimeout = 3 * time.Second

// Notifier decouples room commits from external publishing. Enqueue never blocks: when the queue
// is full the snapshot is dropped, a later one for the same room supersedes it anyway.
type Notifier struct {
	publisher Publisher
	queue     chan domain.RoomSnapshot
	logger    *slog.Logger
}

func NewNotifier(publisher Publisher, buffer int, logger *slog.Logger) *Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		publisher: publisher,
		queue:     make(chan domain.RoomSnapshot, buffer),
		logger:    logger,
	}
}

// Enqueue schedules a snapshot for publishing.
func (n *Notifier) Enqueue(snapshot domain.RoomSnapshot) {
	select {
	case n.queue <- snapshot:
	default:
		n.logger.Warn("notification dropped", "room_id", snapshot.Room.ID, "version", snapshot.Version)
	}
}

// Run drains the queue until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot := <-n.queue:
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := n.publisher.Publish(pubCtx, snapshot); err != nil {
				n.logger.Error("publish snapshot failed", "room_id", snapshot.Room.ID, "version", snapshot.Version, "error", err)
			}
			cancel()
		}
	}
}
