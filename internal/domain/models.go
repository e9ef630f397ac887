package domain

import (
	"fmt"
	"time"
)

// RoomStatus is the lifecycle state of a room: waiting -> active -> finished.
type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomActive   RoomStatus = "active"
	RoomFinished RoomStatus = "finished"
)

// RewardType selects what the distributor pays out when a room finishes.
type RewardType string

const (
	RewardNone     RewardType = "none"
	RewardCoins    RewardType = "coins"
	RewardCard     RewardType = "card"
	RewardExternal RewardType = "external"
)

// RewardConfig is fixed at room creation.
type RewardConfig struct {
	Type                RewardType `json:"type"`
	Coins1st            int        `json:"coins1st,omitempty"`
	Coins2nd            int        `json:"coins2nd,omitempty"`
	Coins3rd            int        `json:"coins3rd,omitempty"`
	CardID              string     `json:"cardId,omitempty"`
	ExternalDescription string     `json:"externalDescription,omitempty"`
}

// Validate checks the reward fields required by the reward type.
func (r RewardConfig) Validate() error {
	switch r.Type {
	case RewardNone, "":
		return nil
	case RewardCoins:
		if r.Coins1st < 0 || r.Coins2nd < 0 || r.Coins3rd < 0 {
			return fmt.Errorf("%w: coin rewards must be non-negative", ErrInvalidRoomConfig)
		}
		return nil
	case RewardCard:
		if r.CardID == "" {
			return fmt.Errorf("%w: card reward requires a card id", ErrInvalidRoomConfig)
		}
		return nil
	case RewardExternal:
		if r.ExternalDescription == "" {
			return fmt.Errorf("%w: external reward requires a description", ErrInvalidRoomConfig)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown reward type %q", ErrInvalidRoomConfig, r.Type)
	}
}

// CoinsForRank returns the coin grant for a 1-based rank; ranks beyond 3 get nothing.
func (r RewardConfig) CoinsForRank(rank int) int {
	switch rank {
	case 1:
		return r.Coins1st
	case 2:
		return r.Coins2nd
	case 3:
		return r.Coins3rd
	}
	return 0
}

// Room is the persisted room record. The coordinator is its only writer.
type Room struct {
	ID                   string       `json:"id"`
	QuizID               string       `json:"quizId"`
	CreatedBy            string       `json:"createdBy"`
	Status               RoomStatus   `json:"status"`
	CurrentQuestionIndex int          `json:"currentQuestionIndex"` // -1 while waiting
	QuestionStartedAt    *time.Time   `json:"questionStartedAt,omitempty"`
	TimePerQuestion      int          `json:"timePerQuestionSeconds"`
	MaxPlayers           int          `json:"maxPlayers"`
	AutoAdvance          bool         `json:"autoAdvance"`
	Reward               RewardConfig `json:"reward"`
	RewardsDistributed   bool         `json:"rewardsDistributed"`
	CreatedAt            time.Time    `json:"createdAt"`
	FinishedAt           *time.Time   `json:"finishedAt,omitempty"`
}

// RoomSettings are the caller-supplied parameters of create_room.
type RoomSettings struct {
	QuizID          string       `json:"quizId"`
	MaxPlayers      int          `json:"maxPlayers"`
	TimePerQuestion int          `json:"timePerQuestionSeconds"`
	AutoAdvance     *bool        `json:"autoAdvance,omitempty"`
	Reward          RewardConfig `json:"reward"`
}

// MaxTimePerQuestion bounds the per-question limit, in seconds.
const MaxTimePerQuestion = 24 * 60 * 60

// Validate checks the settings before a room is created.
func (s RoomSettings) Validate() error {
	if s.QuizID == "" {
		return fmt.Errorf("%w: quiz id is required", ErrInvalidRoomConfig)
	}
	if s.MaxPlayers <= 0 {
		return fmt.Errorf("%w: max players must be positive", ErrInvalidRoomConfig)
	}
	if s.TimePerQuestion <= 0 {
		return fmt.Errorf("%w: time per question must be positive", ErrInvalidRoomConfig)
	}
	if s.TimePerQuestion > MaxTimePerQuestion {
		return fmt.Errorf("%w: time per question must not exceed %d seconds", ErrInvalidRoomConfig, MaxTimePerQuestion)
	}
	return s.Reward.Validate()
}

// Player is one user's participation in a room.
type Player struct {
	ID                   string    `json:"id"`
	RoomID               string    `json:"roomId"`
	UserID               string    `json:"userId"`
	DisplayName          string    `json:"displayName"`
	Score                int       `json:"score"`
	CorrectAnswers       int       `json:"correctAnswers"`
	CurrentQuestionIndex int       `json:"currentQuestionIndex"` // highest answered index, -1 if none
	Rewarded             bool      `json:"rewarded"`
	JoinedAt             time.Time `json:"joinedAt"`
}

// Question is a single quiz question. CorrectAnswer is compared case-insensitively.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correctAnswer"`
	Points        int      `json:"points"` // defaults to 1 if zero
}

// PointValue returns the points awarded for a correct answer.
func (q Question) PointValue() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// Quiz is an ordered, immutable collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	Questions []Question `json:"questions"`
}

// QuestionView is the client-safe projection of the live question.
type QuestionView struct {
	Index   int      `json:"index"`
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
	Points  int      `json:"points"`
}

// LeaderboardEntry is one ranked player.
type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	PlayerID       string `json:"playerId"`
	UserID         string `json:"userId"`
	DisplayName    string `json:"displayName"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correctAnswers"`
}

// Leaderboard captures the ordered ranking for a room.
type Leaderboard struct {
	RoomID  string             `json:"roomId"`
	Entries []LeaderboardEntry `json:"entries"`
}

// RoomSnapshot is the full client-visible state of a room at one version.
type RoomSnapshot struct {
	Room             Room          `json:"room"`
	Version          uint64        `json:"version"`
	TotalQuestions   int           `json:"totalQuestions"`
	Question         *QuestionView `json:"question,omitempty"`
	SecondsRemaining int           `json:"secondsRemaining"`
	Players          []Player      `json:"players"`
	Leaderboard      Leaderboard   `json:"leaderboard"`
}

// AnswerSubmission is a player's answer for one question index.
type AnswerSubmission struct {
	PlayerID      string
	QuestionIndex int
	Answer        string
	SubmittedAt   time.Time
}

// AnswerResult summarizes an accepted submission.
type AnswerResult struct {
	PlayerID       string `json:"playerId"`
	QuestionIndex  int    `json:"questionIndex"`
	Correct        bool   `json:"correct"`
	Awarded        int    `json:"awarded"`
	TotalScore     int    `json:"totalScore"`
	CorrectAnswers int    `json:"correctAnswers"`
}

// AnswerRecord is one audit trail row; rejected submissions are recorded too.
type AnswerRecord struct {
	RoomID        string
	PlayerID      string
	UserID        string
	QuestionIndex int
	Answer        string
	ReceivedAt    time.Time
	Accepted      bool
	Correct       bool
	Reason        string
}

// Grant is one ledger payout performed by the distributor.
type Grant struct {
	Rank           int    `json:"rank"`
	PlayerID       string `json:"playerId"`
	UserID         string `json:"userId"`
	Coins          int    `json:"coins,omitempty"`
	CardID         string `json:"cardId,omitempty"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// Distribution is the outcome of a successful reward payout.
type Distribution struct {
	RoomID              string      `json:"roomId"`
	RewardType          RewardType  `json:"rewardType"`
	Grants              []Grant     `json:"grants"`
	ExternalDescription string      `json:"externalDescription,omitempty"`
	Leaderboard         Leaderboard `json:"leaderboard"`
}

// GrantKey is the ledger idempotency key for a room rank.
func GrantKey(roomID string, rank int) string {
	return fmt.Sprintf("%s:%d", roomID, rank)
}
