package app

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"classquiz-service/internal/domain"
)

// Room is the in-process, single-writer representation of a quiz room.
// Every mutation happens under mu and bumps version before subscribers are notified.
type Room struct {
	now func() time.Time

	mu          sync.RWMutex
	state       domain.Room
	questions   []domain.Question
	players     map[string]*domain.Player
	byUser      map[string]string
	version     uint64
	closed      bool
	subscribers map[chan domain.RoomSnapshot]struct{}
	onChange    func(domain.RoomSnapshot)

	// payoutMu serializes reward distribution; RewardsDistributed is only written while it is held.
	payoutMu sync.Mutex
}

// NewRoom is exported for infrastructure layers that need to seed rooms.
func NewRoom(state domain.Room) *Room {
	return NewRoomWithClock(state, time.Now)
}

// NewRoomWithClock allows deterministic timestamps in tests.
func NewRoomWithClock(state domain.Room, now func() time.Time) *Room {
	return &Room{
		now:         now,
		state:       state,
		players:     make(map[string]*domain.Player),
		byUser:      make(map[string]string),
		subscribers: make(map[chan domain.RoomSnapshot]struct{}),
	}
}

// ID returns the room identifier.
func (r *Room) ID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.ID
}

// State returns a copy of the room record.
func (r *Room) State() domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyRoom(r.state)
}

func (r *Room) setOnChange(fn func(domain.RoomSnapshot)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

func (r *Room) join(userID, displayName, playerID string) (domain.Player, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byUser[userID]; ok {
		return *r.players[id], false, nil
	}
	if r.state.Status == domain.RoomFinished {
		return domain.Player{}, false, domain.ErrRoomClosed
	}
	if len(r.players) >= r.state.MaxPlayers {
		return domain.Player{}, false, domain.ErrRoomFull
	}

	player := &domain.Player{
		ID:                   playerID,
		RoomID:               r.state.ID,
		UserID:               userID,
		DisplayName:          displayName,
		CurrentQuestionIndex: -1,
		JoinedAt:             r.now(),
	}
	r.players[playerID] = player
	r.byUser[userID] = playerID
	r.broadcastLocked()
	return *player, true, nil
}

func (r *Room) start(minPlayers int, questions []domain.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Status != domain.RoomWaiting {
		return fmt.Errorf("%w: cannot start a %s room", domain.ErrInvalidStateTransition, r.state.Status)
	}
	if len(questions) == 0 {
		return domain.ErrEmptyQuiz
	}
	if minPlayers < 1 {
		minPlayers = 1
	}
	if len(r.players) < minPlayers {
		return fmt.Errorf("%w: need at least %d players, have %d", domain.ErrInvalidStateTransition, minPlayers, len(r.players))
	}

	r.questions = append([]domain.Question(nil), questions...)
	now := r.now()
	r.state.Status = domain.RoomActive
	r.state.CurrentQuestionIndex = 0
	r.state.QuestionStartedAt = &now
	r.broadcastLocked()
	return nil
}

// advance moves to the next question (or finishes on the last one). A non-negative expected
// index turns it into a guarded timeout advance: it is a no-op unless the room is still on that
// question and its deadline has passed, which makes repeated timer ticks harmless.
func (r *Room) advance(expected int) (domain.Room, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Status != domain.RoomActive {
		if expected >= 0 {
			return copyRoom(r.state), false, nil
		}
		return copyRoom(r.state), false, fmt.Errorf("%w: cannot advance a %s room", domain.ErrInvalidStateTransition, r.state.Status)
	}
	if expected >= 0 && (r.state.CurrentQuestionIndex != expected || !r.expiredLocked(r.now())) {
		return copyRoom(r.state), false, nil
	}

	r.advanceLocked()
	r.broadcastLocked()
	return copyRoom(r.state), true, nil
}

func (r *Room) finish() (domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Status != domain.RoomActive {
		return copyRoom(r.state), fmt.Errorf("%w: cannot finish a %s room", domain.ErrInvalidStateTransition, r.state.Status)
	}
	r.finishLocked()
	r.broadcastLocked()
	return copyRoom(r.state), nil
}

// submit applies one answer atomically. The returned player is the submitter's record after the
// call (zero if unknown) and the bool reports that this call committed a timeout advance.
func (r *Room) submit(sub domain.AnswerSubmission) (domain.AnswerResult, domain.Player, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	player, ok := r.players[sub.PlayerID]
	if !ok {
		return domain.AnswerResult{}, domain.Player{}, false, domain.ErrPlayerNotFound
	}
	if r.state.Status != domain.RoomActive {
		return domain.AnswerResult{}, *player, false, domain.ErrStaleQuestion
	}

	// The server clock closes the question even if the driver has not ticked yet.
	if r.state.AutoAdvance && r.expiredLocked(sub.SubmittedAt) {
		r.advanceLocked()
		r.broadcastLocked()
		return domain.AnswerResult{}, *player, true, domain.ErrStaleQuestion
	}
	if sub.QuestionIndex != r.state.CurrentQuestionIndex {
		return domain.AnswerResult{}, *player, false, domain.ErrStaleQuestion
	}
	if player.CurrentQuestionIndex >= sub.QuestionIndex {
		return domain.AnswerResult{}, *player, false, domain.ErrDuplicateAnswer
	}

	correct, points := scoreAnswer(r.questions[sub.QuestionIndex], sub.Answer)
	if correct {
		player.Score += points
		player.CorrectAnswers++
	}
	player.CurrentQuestionIndex = sub.QuestionIndex
	r.broadcastLocked()

	return domain.AnswerResult{
		PlayerID:       player.ID,
		QuestionIndex:  sub.QuestionIndex,
		Correct:        correct,
		Awarded:        points,
		TotalScore:     player.Score,
		CorrectAnswers: player.CorrectAnswers,
	}, *player, false, nil
}

// timeoutDue reports the live question index and whether its deadline has passed at now.
func (r *Room) timeoutDue(now time.Time) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state.Status != domain.RoomActive || !r.state.AutoAdvance {
		return r.state.CurrentQuestionIndex, false
	}
	return r.state.CurrentQuestionIndex, r.expiredLocked(now)
}

// retiredBefore reports whether the room finished before cutoff, or was created before cutoff and
// never started. The status is left untouched either way.
func (r *Room) retiredBefore(cutoff time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch r.state.Status {
	case domain.RoomFinished:
		return r.state.FinishedAt != nil && r.state.FinishedAt.Before(cutoff)
	case domain.RoomWaiting:
		return r.state.CreatedAt.Before(cutoff)
	}
	return false
}

func (r *Room) player(playerID string) (domain.Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[playerID]
	if !ok {
		return domain.Player{}, false
	}
	return *p, true
}

func (r *Room) playerForUser(userID string) (domain.Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUser[userID]
	if !ok {
		return domain.Player{}, false
	}
	return *r.players[id], true
}

// Snapshot returns the full client-visible state.
func (r *Room) Snapshot() domain.RoomSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Leaderboard projects the current player set.
func (r *Room) Leaderboard() domain.Leaderboard {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return ProjectLeaderboard(r.state.ID, r.playerListLocked())
}

// Version is incremented on every committed change.
func (r *Room) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *Room) markRewarded(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[playerID]; ok && !p.Rewarded {
		p.Rewarded = true
		r.broadcastLocked()
	}
}

func (r *Room) markDistributed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.RewardsDistributed = true
	r.broadcastLocked()
}

// subscribe returns a channel primed with the current snapshot. The caller must invoke cancel.
func (r *Room) subscribe() (<-chan domain.RoomSnapshot, func()) {
	ch := make(chan domain.RoomSnapshot, 8)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	r.subscribers[ch] = struct{}{}
	// the buffer is empty, so priming under the lock cannot block
	ch <- r.snapshotLocked()
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// close tears the room down and ends every subscription.
func (r *Room) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for ch := range r.subscribers {
		delete(r.subscribers, ch)
		close(ch)
	}
}

func (r *Room) advanceLocked() {
	if r.state.CurrentQuestionIndex < len(r.questions)-1 {
		now := r.now()
		r.state.CurrentQuestionIndex++
		r.state.QuestionStartedAt = &now
		return
	}
	r.finishLocked()
}

func (r *Room) finishLocked() {
	now := r.now()
	r.state.Status = domain.RoomFinished
	r.state.QuestionStartedAt = nil
	r.state.FinishedAt = &now
}

func (r *Room) expiredLocked(now time.Time) bool {
	if r.state.QuestionStartedAt == nil {
		return false
	}
	return SecondsRemaining(*r.state.QuestionStartedAt, r.state.TimePerQuestion, now) == 0
}

func (r *Room) broadcastLocked() {
	r.version++
	snapshot := r.snapshotLocked()
	for ch := range r.subscribers {
		select {
		case ch <- snapshot:
		default:
			// Slow subscriber: drop its oldest snapshot, the newest one supersedes it.
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
	if r.onChange != nil {
		r.onChange(snapshot)
	}
}

func (r *Room) playerListLocked() []domain.Player {
	players := make([]domain.Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, *p)
	}
	sort.Slice(players, func(i, j int) bool {
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].ID < players[j].ID
	})
	return players
}

func (r *Room) snapshotLocked() domain.RoomSnapshot {
	players := r.playerListLocked()
	snapshot := domain.RoomSnapshot{
		Room:           copyRoom(r.state),
		Version:        r.version,
		TotalQuestions: len(r.questions),
		Players:        players,
		Leaderboard:    ProjectLeaderboard(r.state.ID, players),
	}
	if r.state.Status == domain.RoomActive && r.state.CurrentQuestionIndex >= 0 && r.state.CurrentQuestionIndex < len(r.questions) {
		q := r.questions[r.state.CurrentQuestionIndex]
		snapshot.Question = &domain.QuestionView{
			Index:   r.state.CurrentQuestionIndex,
			ID:      q.ID,
			Text:    q.Text,
			Options: append([]string(nil), q.Options...),
			Points:  q.PointValue(),
		}
		if r.state.QuestionStartedAt != nil {
			snapshot.SecondsRemaining = SecondsRemaining(*r.state.QuestionStartedAt, r.state.TimePerQuestion, r.now())
		}
	}
	return snapshot
}

func copyRoom(room domain.Room) domain.Room {
	if room.QuestionStartedAt != nil {
		t := *room.QuestionStartedAt
		room.QuestionStartedAt = &t
	}
	if room.FinishedAt != nil {
		t := *room.FinishedAt
		room.FinishedAt = &t
	}
	return room
}
