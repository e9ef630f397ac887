package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"classquiz-service/internal/app"
	"classquiz-service/internal/domain"
	"classquiz-service/internal/infra/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	coord   *app.Coordinator
	driver  *app.Driver
	clock   *fakeClock
	ledger  *memory.Ledger
	answers *memory.AnswerLog
	rooms   *memory.RoomStore
}

func newHarness(t *testing.T, configure ...func(*app.Options)) *harness {
	t.Helper()
	h := &harness{
		clock:   newFakeClock(),
		ledger:  memory.NewLedger(),
		answers: memory.NewAnswerLog(0),
		rooms:   memory.NewRoomStore(),
	}
	var seq int
	var seqMu sync.Mutex
	opts := app.Options{
		MinPlayers:  1,
		AutoAdvance: true,
		Now:         h.clock.Now,
		NewID: func() string {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return fmt.Sprintf("id-%02d", seq)
		},
		Answers:     h.answers,
		Distributor: app.NewDistributor(h.ledger, h.ledger, nil),
	}
	for _, fn := range configure {
		fn(&opts)
	}
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": sampleQuiz(),
		"empty":  {ID: "empty"},
	}), 5*time.Minute)
	h.coord = app.NewCoordinator(h.rooms, quizzes, opts)
	h.driver = app.NewDriver(h.coord, time.Second, time.Hour, nil)
	return h
}

func (h *harness) createRoom(t *testing.T, settings domain.RoomSettings) domain.Room {
	t.Helper()
	if settings.QuizID == "" {
		settings.QuizID = "quiz-1"
	}
	if settings.MaxPlayers == 0 {
		settings.MaxPlayers = 10
	}
	if settings.TimePerQuestion == 0 {
		settings.TimePerQuestion = 30
	}
	room, err := h.coord.CreateRoom(context.Background(), "teacher", settings)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room
}

func (h *harness) join(t *testing.T, roomID, userID string) domain.Player {
	t.Helper()
	player, err := h.coord.JoinRoom(context.Background(), roomID, userID, userID)
	if err != nil {
		t.Fatalf("join %s: %v", userID, err)
	}
	return player
}

func (h *harness) start(t *testing.T, roomID string) {
	t.Helper()
	if _, err := h.coord.StartRoom(context.Background(), roomID, "teacher"); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func (h *harness) answer(t *testing.T, playerID string, index int, text string) domain.AnswerResult {
	t.Helper()
	result, err := h.coord.SubmitAnswer(context.Background(), playerID, index, text)
	if err != nil {
		t.Fatalf("answer %s q%d: %v", playerID, index, err)
	}
	return result
}

func (h *harness) snapshot(t *testing.T, roomID string) domain.RoomSnapshot {
	t.Helper()
	snapshot, err := h.coord.Snapshot(roomID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snapshot
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{ID: "q1", Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4", Points: 10},
			{ID: "q2", Text: "Capital of France?", CorrectAnswer: "Paris", Points: 10},
			{ID: "q3", Text: "Largest planet?", CorrectAnswer: "Jupiter", Points: 20},
		},
	}
}

func boolPtr(v bool) *bool { return &v }
