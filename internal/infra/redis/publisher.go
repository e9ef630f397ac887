package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"classquiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SnapshotPublisher stores the latest snapshot of every room and announces it on a pub/sub channel.
// Each publish also extends the room's liveness marker written by RoomStore.
//
//	SET quizroom:room:{roomID}:snapshot {json} EX ttl
//	EXPIRE quizroom:room:{roomID} ttl
//	PUBLISH quizroom:room:{roomID}:events {json}
type SnapshotPublisher struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotPublisher(client *redis.Client, ttl time.Duration) *SnapshotPublisher {
	return &SnapshotPublisher{client: client, ttl: ttl}
}

func (p *SnapshotPublisher) Publish(ctx context.Context, snapshot domain.RoomSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	roomID := snapshot.Room.ID
	pipe := p.client.TxPipeline()
	pipe.Set(ctx, snapshotKey(roomID), raw, p.ttl)
	if p.ttl > 0 {
		// no-op once Remove deleted the marker
		pipe.Expire(ctx, roomKey(roomID), p.ttl)
	}
	pipe.Publish(ctx, eventsChannel(roomID), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// Latest returns the last published snapshot of a room.
func (p *SnapshotPublisher) Latest(ctx context.Context, roomID string) (domain.RoomSnapshot, error) {
	raw, err := p.client.Get(ctx, snapshotKey(roomID)).Bytes()
	if err == redis.Nil {
		return domain.RoomSnapshot{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	var snapshot domain.RoomSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return domain.RoomSnapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snapshot, nil
}
