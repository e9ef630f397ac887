package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"classquiz-service/internal/app"
	"classquiz-service/internal/domain"
	"classquiz-service/internal/infra/memory"
)

type envelope struct {
	Error   bool            `json:"error"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func newTestCoordinator(t *testing.T) (*app.Coordinator, *memory.Ledger) {
	t.Helper()
	ledger := memory.NewLedger()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute)
	coord := app.NewCoordinator(memory.NewRoomStore(), quizzes, app.Options{
		AutoAdvance: true,
		Distributor: app.NewDistributor(ledger, ledger, nil),
	})
	return coord, ledger
}

func newTestServer(t *testing.T, opts RouterOptions) (*httptest.Server, *app.Coordinator, *memory.Ledger) {
	t.Helper()
	coord, ledger := newTestCoordinator(t)
	server := httptest.NewServer(NewRouter(coord, opts))
	t.Cleanup(server.Close)
	return server, coord, ledger
}

func doJSON(t *testing.T, server *httptest.Server, method, path, userID string, body any) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
		req.Header.Set("X-User-Name", userID)
	}
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
	return out
}

func sampleQuiz() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{ID: "q1", Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4", Points: 10},
				{ID: "q2", Text: "Capital of France?", CorrectAnswer: "Paris", Points: 10},
			},
		},
	}
}
