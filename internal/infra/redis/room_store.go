package redis

import (
	"context"
	"sync"
	"time"

	"classquiz-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// RoomStore is a Redis-aware implementation of app.RoomRepository.
// Rooms stay in a local map because the coordinator is the single in-process writer; Redis only
// carries a liveness marker per room (holding its quiz id) so other instances and tooling can
// discover live rooms. Snapshots themselves are published by SnapshotPublisher.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.RWMutex
	rooms map[string]*app.Room
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{
		client: client,
		ttl:    ttl,
		rooms:  make(map[string]*app.Room),
	}
}

func (s *RoomStore) Add(room *app.Room) {
	state := room.State()
	s.mu.Lock()
	s.rooms[state.ID] = room
	s.mu.Unlock()
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), roomKey(state.ID), state.QuizID, s.ttl).Err()
}

func (s *RoomStore) Get(roomID string) (*app.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	return room, ok
}

func (s *RoomStore) Remove(roomID string) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
	_ = s.client.Del(context.Background(), roomKey(roomID), snapshotKey(roomID)).Err()
}

func (s *RoomStore) List() []*app.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]*app.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func roomKey(roomID string) string {
	return "quizroom:room:" + roomID
}

func snapshotKey(roomID string) string {
	return "quizroom:room:" + roomID + ":snapshot"
}

func eventsChannel(roomID string) string {
	return "quizroom:room:" + roomID + ":events"
}
