package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"classquiz-service/internal/domain"
)

type jsonResponse struct {
	Error   bool   `json:"error"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonResponse{Data: data, Message: msg})
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonResponse{Error: true, Message: msg})
}

// writeError maps a domain error to a status code and a client-facing message.
func writeError(w http.ResponseWriter, err error) {
	status, msg := errorStatus(err)
	writeFailure(w, status, msg)
}

func errorStatus(err error) (int, string) {
	switch {
	case domain.IsSubmissionError(err):
		return http.StatusConflict, "answer not accepted"
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return http.StatusConflict, "action not available in current room state"
	case errors.Is(err, domain.ErrRoomFull),
		errors.Is(err, domain.ErrRoomClosed),
		errors.Is(err, domain.ErrAlreadyDistributed):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrPlayerNotFound),
		errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrNotRoomCreator):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrInvalidRoomConfig),
		errors.Is(err, domain.ErrEmptyQuiz):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrLedgerGrantFailed):
		return http.StatusBadGateway, domain.ErrLedgerGrantFailed.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
