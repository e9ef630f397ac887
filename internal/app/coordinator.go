package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"classquiz-service/internal/domain"
	"github.com/google/uuid"
)

// RoomRepository abstracts where live rooms are kept (in-memory, Redis-marked, etc).
type RoomRepository interface {
	Add(room *Room)
	Get(roomID string) (*Room, bool)
	Remove(roomID string)
	List() []*Room
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// AnswerLog is the append-only audit trail of submissions.
type AnswerLog interface {
	Record(ctx context.Context, record domain.AnswerRecord) error
}

// Options tunes a Coordinator. Zero values fall back to sensible defaults.
type Options struct {
	MinPlayers  int
	AutoAdvance bool
	Now         func() time.Time
	NewID       func() string
	Logger      *slog.Logger
	Answers     AnswerLog
	Distributor *Distributor
	Notifier    *Notifier
}

// Coordinator is the single writer of room and player state.
type Coordinator struct {
	rooms       RoomRepository
	quizzes     QuizRepository
	answers     AnswerLog
	distributor *Distributor
	notifier    *Notifier
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
	minPlayers  int
	autoAdvance bool

	mu          sync.RWMutex
	playerRooms map[string]string
}

func NewCoordinator(rooms RoomRepository, quizzes QuizRepository, opts Options) *Coordinator {
	c := &Coordinator{
		rooms:       rooms,
		quizzes:     quizzes,
		answers:     opts.Answers,
		distributor: opts.Distributor,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
		now:         opts.Now,
		newID:       opts.NewID,
		minPlayers:  opts.MinPlayers,
		autoAdvance: opts.AutoAdvance,
		playerRooms: make(map[string]string),
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if c.minPlayers < 1 {
		c.minPlayers = 1
	}
	return c
}

// CreateRoom validates the settings and the quiz, then registers a waiting room.
func (c *Coordinator) CreateRoom(ctx context.Context, creatorID string, settings domain.RoomSettings) (domain.Room, error) {
	if creatorID == "" {
		return domain.Room{}, fmt.Errorf("%w: creator is required", domain.ErrInvalidRoomConfig)
	}
	if err := settings.Validate(); err != nil {
		return domain.Room{}, err
	}
	quiz, err := c.quizzes.GetQuiz(ctx, settings.QuizID)
	if err != nil {
		return domain.Room{}, err
	}
	if len(quiz.Questions) == 0 {
		return domain.Room{}, domain.ErrEmptyQuiz
	}

	reward := settings.Reward
	if reward.Type == "" {
		reward.Type = domain.RewardNone
	}
	autoAdvance := c.autoAdvance
	if settings.AutoAdvance != nil {
		autoAdvance = *settings.AutoAdvance
	}

	state := domain.Room{
		ID:                   c.newID(),
		QuizID:               settings.QuizID,
		CreatedBy:            creatorID,
		Status:               domain.RoomWaiting,
		CurrentQuestionIndex: -1,
		TimePerQuestion:      settings.TimePerQuestion,
		MaxPlayers:           settings.MaxPlayers,
		AutoAdvance:          autoAdvance,
		Reward:               reward,
		CreatedAt:            c.now(),
	}
	room := NewRoomWithClock(state, c.now)
	if c.notifier != nil {
		room.setOnChange(c.notifier.Enqueue)
	}
	c.rooms.Add(room)

	c.logger.Info("room created", "room_id", state.ID, "quiz_id", state.QuizID, "creator", creatorID,
		"max_players", state.MaxPlayers, "reward", state.Reward.Type)
	return state, nil
}

// JoinRoom registers a player, returning the existing record when the user already joined.
func (c *Coordinator) JoinRoom(_ context.Context, roomID, userID, displayName string) (domain.Player, error) {
	room, err := c.room(roomID)
	if err != nil {
		return domain.Player{}, err
	}
	if displayName == "" {
		displayName = userID
	}

	player, created, err := room.join(userID, displayName, c.newID())
	if err != nil {
		return domain.Player{}, err
	}
	if created {
		c.mu.Lock()
		c.playerRooms[player.ID] = roomID
		c.mu.Unlock()
		c.logger.Info("player joined", "room_id", roomID, "player_id", player.ID, "user_id", userID)
	}
	return player, nil
}

// StartRoom loads the quiz once and opens question 0.
func (c *Coordinator) StartRoom(ctx context.Context, roomID, callerID string) (domain.RoomSnapshot, error) {
	room, err := c.controlledRoom(roomID, callerID)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	quiz, err := c.quizzes.GetQuiz(ctx, room.State().QuizID)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	if err := room.start(c.minPlayers, quiz.Questions); err != nil {
		return domain.RoomSnapshot{}, err
	}
	c.logger.Info("room started", "room_id", roomID, "questions", len(quiz.Questions))
	return room.Snapshot(), nil
}

// AdvanceQuestion is the creator's manual "next question".
func (c *Coordinator) AdvanceQuestion(_ context.Context, roomID, callerID string) (domain.RoomSnapshot, error) {
	room, err := c.controlledRoom(roomID, callerID)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	state, _, err := room.advance(-1)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	c.logAdvance(state, "manual")
	return room.Snapshot(), nil
}

// FinishRoom ends an active room immediately.
func (c *Coordinator) FinishRoom(_ context.Context, roomID, callerID string) (domain.RoomSnapshot, error) {
	room, err := c.controlledRoom(roomID, callerID)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	if _, err := room.finish(); err != nil {
		return domain.RoomSnapshot{}, err
	}
	c.logger.Info("room finished", "room_id", roomID, "cause", "creator")
	return room.Snapshot(), nil
}

// SubmitAnswer scores one answer. The receipt time is always the server's clock.
func (c *Coordinator) SubmitAnswer(ctx context.Context, playerID string, questionIndex int, answer string) (domain.AnswerResult, error) {
	room, err := c.playerRoom(playerID)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	sub := domain.AnswerSubmission{
		PlayerID:      playerID,
		QuestionIndex: questionIndex,
		Answer:        answer,
		SubmittedAt:   c.now(),
	}
	result, player, closed, err := room.submit(sub)
	if closed {
		c.logAdvance(room.State(), "timeout")
	}
	if !errors.Is(err, domain.ErrPlayerNotFound) {
		c.audit(ctx, room.ID(), player, sub, result, err)
	}
	return result, err
}

// Player returns a player record by id.
func (c *Coordinator) Player(playerID string) (domain.Player, error) {
	room, err := c.playerRoom(playerID)
	if err != nil {
		return domain.Player{}, err
	}
	player, ok := room.player(playerID)
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return player, nil
}

// PlayerInRoom returns the player record a user holds in a room.
func (c *Coordinator) PlayerInRoom(roomID, userID string) (domain.Player, error) {
	room, err := c.room(roomID)
	if err != nil {
		return domain.Player{}, err
	}
	player, ok := room.playerForUser(userID)
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return player, nil
}

// Snapshot returns the current full state of a room.
func (c *Coordinator) Snapshot(roomID string) (domain.RoomSnapshot, error) {
	room, err := c.room(roomID)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	return room.Snapshot(), nil
}

// Leaderboard projects the current ranking of a room.
func (c *Coordinator) Leaderboard(roomID string) (domain.Leaderboard, error) {
	room, err := c.room(roomID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return room.Leaderboard(), nil
}

// Changed reports whether the room has committed changes after version since.
func (c *Coordinator) Changed(roomID string, since uint64) (bool, error) {
	room, err := c.room(roomID)
	if err != nil {
		return false, err
	}
	return room.Version() > since, nil
}

// WaitForChange blocks until the room moves past version since or ctx ends.
// It returns the latest snapshot and whether it is newer than since.
func (c *Coordinator) WaitForChange(ctx context.Context, roomID string, since uint64) (domain.RoomSnapshot, bool, error) {
	room, err := c.room(roomID)
	if err != nil {
		return domain.RoomSnapshot{}, false, err
	}
	updates, cancel := room.subscribe()
	defer cancel()

	var latest domain.RoomSnapshot
	for {
		select {
		case snapshot, ok := <-updates:
			if !ok {
				return latest, false, domain.ErrRoomNotFound
			}
			latest = snapshot
			if snapshot.Version > since {
				return snapshot, true, nil
			}
		case <-ctx.Done():
			return latest, false, nil
		}
	}
}

// Subscribe returns a channel that receives room snapshots.
// The caller must invoke the returned cancel function to avoid leaks.
func (c *Coordinator) Subscribe(_ context.Context, roomID string) (<-chan domain.RoomSnapshot, func(), error) {
	room, err := c.room(roomID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := room.subscribe()
	return ch, cancel, nil
}

// DistributeRewards pays out the finished room once.
func (c *Coordinator) DistributeRewards(ctx context.Context, roomID, callerID string) (domain.Distribution, error) {
	room, err := c.controlledRoom(roomID, callerID)
	if err != nil {
		return domain.Distribution{}, err
	}
	if c.distributor == nil {
		return domain.Distribution{}, fmt.Errorf("%w: no distributor configured", domain.ErrLedgerGrantFailed)
	}
	return c.distributor.Distribute(ctx, room)
}

// advanceOnTimeout is the driver's guarded advance; it returns true only for the call that moved
// the room off expectedIndex.
func (c *Coordinator) advanceOnTimeout(room *Room, expectedIndex int) bool {
	state, moved, err := room.advance(expectedIndex)
	if err != nil || !moved {
		return false
	}
	c.logAdvance(state, "timeout")
	return true
}

// sweep tears down rooms that finished before cutoff and rooms left waiting since before cutoff.
func (c *Coordinator) sweep(cutoff time.Time) int {
	removed := 0
	for _, room := range c.rooms.List() {
		if !room.retiredBefore(cutoff) {
			continue
		}
		roomID := room.ID()
		c.mu.Lock()
		for playerID, rid := range c.playerRooms {
			if rid == roomID {
				delete(c.playerRooms, playerID)
			}
		}
		c.mu.Unlock()
		room.close()
		c.rooms.Remove(roomID)
		removed++
		c.logger.Debug("room swept", "room_id", roomID)
	}
	return removed
}

func (c *Coordinator) room(roomID string) (*Room, error) {
	room, ok := c.rooms.Get(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

func (c *Coordinator) controlledRoom(roomID, callerID string) (*Room, error) {
	room, err := c.room(roomID)
	if err != nil {
		return nil, err
	}
	if room.State().CreatedBy != callerID {
		return nil, domain.ErrNotRoomCreator
	}
	return room, nil
}

func (c *Coordinator) playerRoom(playerID string) (*Room, error) {
	c.mu.RLock()
	roomID, ok := c.playerRooms[playerID]
	c.mu.RUnlock()
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return c.room(roomID)
}

func (c *Coordinator) logAdvance(state domain.Room, cause string) {
	if state.Status == domain.RoomFinished {
		c.logger.Info("room finished", "room_id", state.ID, "cause", cause)
		return
	}
	c.logger.Info("question advanced", "room_id", state.ID, "question_index", state.CurrentQuestionIndex, "cause", cause)
}

func (c *Coordinator) audit(ctx context.Context, roomID string, player domain.Player, sub domain.AnswerSubmission, result domain.AnswerResult, err error) {
	if c.answers == nil {
		return
	}
	record := domain.AnswerRecord{
		RoomID:        roomID,
		PlayerID:      sub.PlayerID,
		UserID:        player.UserID,
		QuestionIndex: sub.QuestionIndex,
		Answer:        sub.Answer,
		ReceivedAt:    sub.SubmittedAt,
		Accepted:      err == nil,
		Correct:       result.Correct,
	}
	if err != nil {
		record.Reason = err.Error()
	}
	if auditErr := c.answers.Record(ctx, record); auditErr != nil {
		c.logger.Warn("answer audit failed", "room_id", roomID, "player_id", sub.PlayerID, "error", auditErr)
	}
}
