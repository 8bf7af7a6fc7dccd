package domain

import "errors"

var (
	// ErrGameNotFound is returned when no game matches a code or id.
	ErrGameNotFound = errors.New("game not found")
	// ErrQuestionNotFound indicates question content could not be loaded.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrUnknownPlayer is returned when a user acts in a game they never joined.
	ErrUnknownPlayer = errors.New("player not found in game")
	// ErrAlreadyEnded rejects operations on a completed game.
	ErrAlreadyEnded = errors.New("game already ended")
	// ErrInProgress rejects joins once the game is active.
	ErrInProgress = errors.New("game already in progress")
	// ErrEmptyRoster rejects starting a game nobody joined.
	ErrEmptyRoster = errors.New("no players in game")
	// ErrDuplicateAnswer is returned for a second answer to the same question.
	ErrDuplicateAnswer = errors.New("question already answered")
	// ErrStaleQuestion is returned when the answer targets a question that is not current.
	ErrStaleQuestion = errors.New("question is not the current question")
	// ErrUnauthorized is returned when the caller's role does not allow the operation.
	ErrUnauthorized = errors.New("not authorized")
	// ErrCodeTaken is returned by stores when a game code collides.
	ErrCodeTaken = errors.New("game code already in use")
	// ErrInvalidGame rejects malformed game creation requests.
	ErrInvalidGame = errors.New("game needs a title and at least one question")
)

// Kind groups errors by how callers should react to them.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindInvalid      Kind = "invalid"
	KindInternal     Kind = "internal"
)

type classified struct {
	err     error
	kind    Kind
	message string
}

var taxonomy = []classified{
	{ErrGameNotFound, KindNotFound, "Game not found"},
	{ErrQuestionNotFound, KindNotFound, "Question not found"},
	{ErrUnknownPlayer, KindNotFound, "Player not found"},
	{ErrAlreadyEnded, KindInvalidState, "This game has already ended. Please join a new game."},
	{ErrInProgress, KindInvalidState, "This game is already in progress. Please join a new game."},
	{ErrEmptyRoster, KindInvalidState, "No players in the game"},
	{ErrDuplicateAnswer, KindConflict, "Already answered this question"},
	{ErrStaleQuestion, KindConflict, "Invalid question"},
	{ErrCodeTaken, KindConflict, "Game code already in use"},
	{ErrUnauthorized, KindUnauthorized, "Not authorized"},
	{ErrInvalidGame, KindInvalid, "A game needs a title and at least one question"},
}

// KindOf classifies err. Anything unrecognised is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, c := range taxonomy {
		if errors.Is(err, c.err) {
			return c.kind
		}
	}
	return KindInternal
}

// PublicMessage returns the human-readable message for a classified error,
// or fallback for storage and other internal failures.
func PublicMessage(err error, fallback string) string {
	for _, c := range taxonomy {
		if errors.Is(err, c.err) {
			return c.message
		}
	}
	return fallback
}
