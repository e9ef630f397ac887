package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"classquiz-service/internal/app"
	"classquiz-service/internal/domain"
)

type capturePublisher struct {
	mu        sync.Mutex
	snapshots []domain.RoomSnapshot
}

func (p *capturePublisher) Publish(_ context.Context, snapshot domain.RoomSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, snapshot)
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshots)
}

func (p *capturePublisher) last() domain.RoomSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshots[len(p.snapshots)-1]
}

func TestNotifierPublishesCommittedChanges(t *testing.T) {
	publisher := &capturePublisher{}
	notifier := app.NewNotifier(publisher, 16, nil)
	h := newHarness(t, func(o *app.Options) { o.Notifier = notifier })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go notifier.Run(ctx)

	room := h.createRoom(t, domain.RoomSettings{})
	h.join(t, room.ID, "alice")
	h.start(t, room.ID)

	deadline := time.Now().Add(2 * time.Second)
	for publisher.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 published snapshots, got %d", publisher.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
	last := publisher.last()
	if last.Room.Status != domain.RoomActive || last.Version != 2 {
		t.Fatalf("expected active snapshot at version 2, got %s v%d", last.Room.Status, last.Version)
	}
}

func TestNotifierDropsWhenFull(t *testing.T) {
	publisher := &capturePublisher{}
	notifier := app.NewNotifier(publisher, 1, nil)

	notifier.Enqueue(domain.RoomSnapshot{Version: 1})
	notifier.Enqueue(domain.RoomSnapshot{Version: 2})

	ctx, cancel := context.WithCancel(context.Background())
	go notifier.Run(ctx)
	deadline := time.Now().Add(time.Second)
	for publisher.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	if publisher.count() != 1 || publisher.last().Version != 1 {
		t.Fatalf("expected only the first snapshot published, got %d", publisher.count())
	}
}

type failingPublisher struct{ err error }

func (p failingPublisher) Publish(context.Context, domain.RoomSnapshot) error { return p.err }

func TestPublishersTriesEveryPublisher(t *testing.T) {
	boom := errors.New("broker down")
	first, second := &capturePublisher{}, &capturePublisher{}
	fanout := app.Publishers{first, failingPublisher{err: boom}, second}

	err := fanout.Publish(context.Background(), domain.RoomSnapshot{Version: 4})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined publisher error, got %v", err)
	}
	if first.count() != 1 || second.count() != 1 {
		t.Fatalf("expected both healthy publishers called, got %d and %d", first.count(), second.count())
	}
}
