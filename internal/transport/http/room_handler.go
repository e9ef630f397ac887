package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"classquiz-service/internal/app"
	"classquiz-service/internal/domain"
	"github.com/go-chi/chi/v5"
)

const (
	maxBodyBytes    = 1 << 16
	defaultLongPoll = 25 * time.Second
)

// RoomHandler exposes the coordinator commands over REST.
type RoomHandler struct {
	coord    *app.Coordinator
	logger   *slog.Logger
	longPoll time.Duration
}

func NewRoomHandler(coord *app.Coordinator, logger *slog.Logger) *RoomHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomHandler{coord: coord, logger: logger, longPoll: defaultLongPoll}
}

type answerRequest struct {
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
}

func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var settings domain.RoomSettings
	if !decodeJSON(w, r, &settings) {
		return
	}
	room, err := h.coord.CreateRoom(r.Context(), identityFrom(r.Context()).UserID, settings)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, room, "room created")
}

func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.coord.Snapshot(chi.URLParam(r, "roomID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot, "")
}

// Changes answers "has the room moved past version since?". With wait=1 it long-polls.
func (h *RoomHandler) Changes(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	since, err := strconv.ParseUint(r.URL.Query().Get("since"), 10, 64)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "since must be a version number")
		return
	}

	if r.URL.Query().Get("wait") != "1" {
		changed, err := h.coord.Changed(roomID, since)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if !changed {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.GetRoom(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.longPoll)
	defer cancel()
	snapshot, changed, err := h.coord.WaitForChange(ctx, roomID, since)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !changed {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, snapshot, "")
}

func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	player, err := h.coord.JoinRoom(r.Context(), chi.URLParam(r, "roomID"), id.UserID, id.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, player, "joined")
}

func (h *RoomHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.coord.StartRoom)
}

func (h *RoomHandler) Advance(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.coord.AdvanceQuestion)
}

func (h *RoomHandler) Finish(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.coord.FinishRoom)
}

func (h *RoomHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	player, err := h.coord.PlayerInRoom(chi.URLParam(r, "roomID"), identityFrom(r.Context()).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.coord.SubmitAnswer(r.Context(), player.ID, req.QuestionIndex, req.Answer)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result, "answer accepted")
}

func (h *RoomHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.coord.Leaderboard(chi.URLParam(r, "roomID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board, "")
}

func (h *RoomHandler) DistributeRewards(w http.ResponseWriter, r *http.Request) {
	dist, err := h.coord.DistributeRewards(r.Context(), chi.URLParam(r, "roomID"), identityFrom(r.Context()).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dist, "rewards distributed")
}

type controlFunc func(ctx context.Context, roomID, callerID string) (domain.RoomSnapshot, error)

func (h *RoomHandler) control(w http.ResponseWriter, r *http.Request, fn controlFunc) {
	snapshot, err := fn(r.Context(), chi.URLParam(r, "roomID"), identityFrom(r.Context()).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot, "")
}

func (h *RoomHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
