package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"classquiz-service/internal/domain"
)

func TestRoomLifecycleOverREST(t *testing.T) {
	server, _, ledger := newTestServer(t, RouterOptions{})

	status, env := doJSON(t, server, http.MethodPost, "/rooms", "teacher", domain.RoomSettings{
		QuizID:          "quiz-1",
		MaxPlayers:      5,
		TimePerQuestion: 30,
		Reward:          domain.RewardConfig{Type: domain.RewardCoins, Coins1st: 100, Coins2nd: 50},
	})
	if status != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d %s", status, env.Message)
	}
	room := decodeData[domain.Room](t, env)
	base := "/rooms/" + room.ID

	status, env = doJSON(t, server, http.MethodPost, base+"/players", "alice", nil)
	if status != http.StatusOK {
		t.Fatalf("join: expected 200, got %d", status)
	}
	alice := decodeData[domain.Player](t, env)
	_, env = doJSON(t, server, http.MethodPost, base+"/players", "alice", nil)
	if again := decodeData[domain.Player](t, env); again.ID != alice.ID {
		t.Fatalf("expected idempotent join, got %s and %s", alice.ID, again.ID)
	}
	doJSON(t, server, http.MethodPost, base+"/players", "bob", nil)

	if status, _ := doJSON(t, server, http.MethodPost, base+"/start", "alice", nil); status != http.StatusForbidden {
		t.Fatalf("expected 403 for non-creator start, got %d", status)
	}
	status, env = doJSON(t, server, http.MethodPost, base+"/start", "teacher", nil)
	if status != http.StatusOK {
		t.Fatalf("start: expected 200, got %d %s", status, env.Message)
	}
	if bytes.Contains(env.Data, []byte(`"correctAnswer"`)) {
		t.Fatalf("snapshot must not reveal the correct answer: %s", env.Data)
	}
	snapshot := decodeData[domain.RoomSnapshot](t, env)
	if snapshot.Question == nil || snapshot.Question.Index != 0 || snapshot.SecondsRemaining != 30 {
		t.Fatalf("expected question 0 with 30s left, got %+v", snapshot)
	}

	status, env = doJSON(t, server, http.MethodPost, base+"/answers", "alice", answerRequest{QuestionIndex: 0, Answer: "4"})
	if status != http.StatusOK {
		t.Fatalf("answer: expected 200, got %d %s", status, env.Message)
	}
	if result := decodeData[domain.AnswerResult](t, env); !result.Correct || result.TotalScore != 10 {
		t.Fatalf("expected correct answer worth 10, got %+v", result)
	}
	status, env = doJSON(t, server, http.MethodPost, base+"/answers", "alice", answerRequest{QuestionIndex: 0, Answer: "4"})
	if status != http.StatusConflict || env.Message != "answer not accepted" {
		t.Fatalf("expected 409 answer not accepted, got %d %q", status, env.Message)
	}
	if status, _ := doJSON(t, server, http.MethodPost, base+"/answers", "carol", answerRequest{QuestionIndex: 0, Answer: "4"}); status != http.StatusNotFound {
		t.Fatalf("expected 404 for a user who never joined, got %d", status)
	}

	if status, env := doJSON(t, server, http.MethodPost, base+"/rewards", "teacher", nil); status != http.StatusConflict ||
		env.Message != "action not available in current room state" {
		t.Fatalf("expected 409 before finish, got %d %q", status, env.Message)
	}
	doJSON(t, server, http.MethodPost, base+"/advance", "teacher", nil)
	doJSON(t, server, http.MethodPost, base+"/answers", "bob", answerRequest{QuestionIndex: 1, Answer: "London"})
	if status, _ := doJSON(t, server, http.MethodPost, base+"/finish", "teacher", nil); status != http.StatusOK {
		t.Fatalf("finish: expected 200, got %d", status)
	}

	_, env = doJSON(t, server, http.MethodGet, base+"/leaderboard", "bob", nil)
	board := decodeData[domain.Leaderboard](t, env)
	if len(board.Entries) != 2 || board.Entries[0].UserID != "alice" || board.Entries[0].Rank != 1 {
		t.Fatalf("expected alice first, got %+v", board.Entries)
	}

	status, env = doJSON(t, server, http.MethodPost, base+"/rewards", "teacher", nil)
	if status != http.StatusOK {
		t.Fatalf("rewards: expected 200, got %d %s", status, env.Message)
	}
	if ledger.Balance("alice") != 100 || ledger.Balance("bob") != 50 {
		t.Fatalf("unexpected balances alice=%d bob=%d", ledger.Balance("alice"), ledger.Balance("bob"))
	}
	if status, _ := doJSON(t, server, http.MethodPost, base+"/rewards", "teacher", nil); status != http.StatusConflict {
		t.Fatalf("expected 409 on second payout, got %d", status)
	}
}

func TestRequestsWithoutIdentityAreRejected(t *testing.T) {
	server, _, _ := newTestServer(t, RouterOptions{})
	if status, _ := doJSON(t, server, http.MethodPost, "/rooms", "", domain.RoomSettings{}); status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if status, _ := doJSON(t, server, http.MethodPost, "/rooms", "teacher", domain.RoomSettings{QuizID: "quiz-1"}); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid settings, got %d", status)
	}
	if status, _ := doJSON(t, server, http.MethodGet, "/rooms/missing", "teacher", nil); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestChangesEndpoint(t *testing.T) {
	server, coord, _ := newTestServer(t, RouterOptions{})
	ctx := context.Background()
	room, err := coord.CreateRoom(ctx, "teacher", domain.RoomSettings{QuizID: "quiz-1", MaxPlayers: 5, TimePerQuestion: 30})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := coord.JoinRoom(ctx, room.ID, "alice", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	base := "/rooms/" + room.ID + "/changes"

	if status, _ := doJSON(t, server, http.MethodGet, base+"?since=1", "alice", nil); status != http.StatusNoContent {
		t.Fatalf("expected 204 when nothing changed, got %d", status)
	}
	if status, _ := doJSON(t, server, http.MethodGet, base+"?since=0", "alice", nil); status != http.StatusOK {
		t.Fatalf("expected 200 when changed, got %d", status)
	}
	if status, _ := doJSON(t, server, http.MethodGet, base+"?since=abc", "alice", nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad version, got %d", status)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = coord.StartRoom(ctx, room.ID, "teacher")
	}()
	status, env := doJSON(t, server, http.MethodGet, base+"?since=1&wait=1", "alice", nil)
	if status != http.StatusOK {
		t.Fatalf("expected long poll to return the change, got %d", status)
	}
	if snapshot := decodeData[domain.RoomSnapshot](t, env); snapshot.Version != 2 || snapshot.Room.Status != domain.RoomActive {
		t.Fatalf("expected active room at version 2, got v%d %s", snapshot.Version, snapshot.Room.Status)
	}
}

func TestPerIPRateLimit(t *testing.T) {
	server, _, _ := newTestServer(t, RouterOptions{RateLimit: 1, RateBurst: 2})
	var statuses []int
	for i := 0; i < 3; i++ {
		resp, err := server.Client().Get(server.URL + "/healthz")
		if err != nil {
			t.Fatalf("healthz: %v", err)
		}
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK || statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("expected the third request limited, got %v", statuses)
	}
}

func TestRateLimitWithoutBurstStillAdmits(t *testing.T) {
	server, _, _ := newTestServer(t, RouterOptions{RateLimit: 1})
	resp, err := server.Client().Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected first request admitted, got %d", resp.StatusCode)
	}

	limiter := NewIPRateLimiter(5, 0)
	admitted := 0
	for i := 0; i < 10; i++ {
		if limiter.Allow("10.0.0.1") {
			admitted++
		}
	}
	if admitted != 5 {
		t.Fatalf("expected burst defaulted to the rate, admitted %d", admitted)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domain.ErrDuplicateAnswer, http.StatusConflict},
		{domain.ErrStaleQuestion, http.StatusConflict},
		{fmt.Errorf("%w: need 2 players", domain.ErrInvalidStateTransition), http.StatusConflict},
		{domain.ErrRoomFull, http.StatusConflict},
		{domain.ErrRoomClosed, http.StatusConflict},
		{domain.ErrAlreadyDistributed, http.StatusConflict},
		{domain.ErrRoomNotFound, http.StatusNotFound},
		{domain.ErrQuizNotFound, http.StatusNotFound},
		{domain.ErrNotRoomCreator, http.StatusForbidden},
		{domain.ErrEmptyQuiz, http.StatusBadRequest},
		{fmt.Errorf("%w: %w", domain.ErrLedgerGrantFailed, errors.New("timeout")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if status, _ := errorStatus(tc.err); status != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, status)
		}
	}
}
