package domain

import "errors"

var (
	// ErrInvalidStateTransition is returned when a command is not available in the room's current status.
	ErrInvalidStateTransition = errors.New("invalid room state transition")
	// ErrRoomFull is returned when a join would exceed the room capacity.
	ErrRoomFull = errors.New("room is full")
	// ErrRoomClosed is returned when joining a finished room.
	ErrRoomClosed = errors.New("room is closed")
	// ErrDuplicateAnswer is returned when a player already answered the question.
	ErrDuplicateAnswer = errors.New("question already answered")
	// ErrStaleQuestion is returned when the answered question is not the live one.
	ErrStaleQuestion = errors.New("question is not current")
	// ErrAlreadyDistributed guards the one-time reward payout.
	ErrAlreadyDistributed = errors.New("rewards already distributed")
	// ErrLedgerGrantFailed wraps external ledger failures during payout.
	ErrLedgerGrantFailed = errors.New("ledger grant failed")

	// ErrRoomNotFound is returned when the room does not exist (or was swept).
	ErrRoomNotFound = errors.New("room not found")
	// ErrPlayerNotFound is returned when a player id is unknown to the room.
	ErrPlayerNotFound = errors.New("player not found in room")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrEmptyQuiz indicates a quiz without questions.
	ErrEmptyQuiz = errors.New("quiz has no questions")
	// ErrInvalidRoomConfig is returned by room creation validation.
	ErrInvalidRoomConfig = errors.New("invalid room config")
	// ErrNotRoomCreator is returned when someone other than the creator controls the room.
	ErrNotRoomCreator = errors.New("only the room creator can do this")
)

// IsSubmissionError reports whether err is one of the answer rejection reasons.
func IsSubmissionError(err error) bool {
	return errors.Is(err, ErrDuplicateAnswer) || errors.Is(err, ErrStaleQuestion)
}
