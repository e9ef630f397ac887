package app

import (
	"strings"
	"time"

	"classquiz-service/internal/domain"
)

// scoreAnswer compares the answer to the question's correct answer, trimmed and case-insensitive.
func scoreAnswer(q domain.Question, answer string) (bool, int) {
	if strings.EqualFold(strings.TrimSpace(q.CorrectAnswer), strings.TrimSpace(answer)) {
		return true, q.PointValue()
	}
	return false, 0
}

// SecondsRemaining is max(0, ceil(limit - (now - startedAt))). Clients only ever derive their
// countdown from the server's startedAt.
func SecondsRemaining(startedAt time.Time, limitSeconds int, now time.Time) int {
	left := time.Duration(limitSeconds)*time.Second - now.Sub(startedAt)
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}
