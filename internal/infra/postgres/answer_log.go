package postgres

import (
	"context"
	"fmt"
	"time"

	"classquiz-service/internal/domain"
	"github.com/uptrace/bun"
)

type answerAuditRow struct {
	bun.BaseModel `bun:"table:answer_audit"`

	ID            int64     `bun:"id,pk,autoincrement"`
	RoomID        string    `bun:"room_id,notnull"`
	PlayerID      string    `bun:"player_id,notnull"`
	UserID        string    `bun:"user_id,notnull"`
	QuestionIndex int       `bun:"question_index,notnull"`
	Answer        string    `bun:"answer,notnull"`
	ReceivedAt    time.Time `bun:"received_at,notnull"`
	Accepted      bool      `bun:"accepted,notnull"`
	Correct       bool      `bun:"correct,notnull"`
	Reason        string    `bun:"reason,notnull"`
}

// AnswerLog persists every submission, accepted or not, to the answer_audit table.
type AnswerLog struct {
	db *bun.DB
}

func NewAnswerLog(db *bun.DB) *AnswerLog {
	return &AnswerLog{db: db}
}

func (l *AnswerLog) Record(ctx context.Context, record domain.AnswerRecord) error {
	row := answerAuditRow{
		RoomID:        record.RoomID,
		PlayerID:      record.PlayerID,
		UserID:        record.UserID,
		QuestionIndex: record.QuestionIndex,
		Answer:        record.Answer,
		ReceivedAt:    record.ReceivedAt,
		Accepted:      record.Accepted,
		Correct:       record.Correct,
		Reason:        record.Reason,
	}
	if _, err := l.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	return nil
}

// ForRoom returns the submissions of a room in arrival order.
func (l *AnswerLog) ForRoom(ctx context.Context, roomID string) ([]domain.AnswerRecord, error) {
	var rows []answerAuditRow
	err := l.db.NewSelect().
		Model(&rows).
		Where("room_id = ?", roomID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	records := make([]domain.AnswerRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, domain.AnswerRecord{
			RoomID:        row.RoomID,
			PlayerID:      row.PlayerID,
			UserID:        row.UserID,
			QuestionIndex: row.QuestionIndex,
			Answer:        row.Answer,
			ReceivedAt:    row.ReceivedAt,
			Accepted:      row.Accepted,
			Correct:       row.Correct,
			Reason:        row.Reason,
		})
	}
	return records, nil
}
