package memory

import (
	"context"
	"sync"

	"classquiz-service/internal/domain"
)

// AnswerLog keeps the most recent submissions in memory. With a limit the records form a ring:
// next is the slot the following Record overwrites, which is also the oldest entry once full.
type AnswerLog struct {
	mu      sync.Mutex
	limit   int
	next    int
	records []domain.AnswerRecord
}

// NewAnswerLog keeps at most limit records; limit <= 0 keeps everything.
func NewAnswerLog(limit int) *AnswerLog {
	return &AnswerLog{limit: limit}
}

func (l *AnswerLog) Record(_ context.Context, record domain.AnswerRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit <= 0 || len(l.records) < l.limit {
		l.records = append(l.records, record)
		return nil
	}
	l.records[l.next] = record
	l.next = (l.next + 1) % l.limit
	return nil
}

// ForRoom returns the recorded submissions of a room in arrival order.
func (l *AnswerLog) ForRoom(roomID string) []domain.AnswerRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.AnswerRecord
	for i := range l.records {
		r := l.records[(l.next+i)%len(l.records)]
		if r.RoomID == roomID {
			out = append(out, r)
		}
	}
	return out
}
