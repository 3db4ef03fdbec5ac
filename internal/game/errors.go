package game

import (
	"errors"
	"fmt"
)

type reasonError struct {
	reason  string
	message string
}

func (e *reasonError) Error() string {
	return e.message
}

var (
	ErrRoomNotFound     error = &reasonError{"not_found", "room not found"}
	ErrPlayerNotFound   error = &reasonError{"player_not_found", "player not found"}
	ErrNotWaiting       error = &reasonError{"not_waiting", "game already started"}
	ErrNicknameTaken    error = &reasonError{"nickname_taken", "nickname already taken"}
	ErrNotHost          error = &reasonError{"not_host", "only the host can perform this action"}
	ErrInvalidState     error = &reasonError{"invalid_state", "action not allowed in the current room state"}
	ErrAlreadySubmitted error = &reasonError{"already_submitted", "drawing already submitted this round"}
	ErrPlayerExists     error = &reasonError{"player_exists", "player id already in use"}
	ErrUnknownJudge     error = &reasonError{"unknown_judge", "unknown judge model"}
	ErrInvalidInput     error = &reasonError{"invalid_input", "invalid input"}
)

// InvariantError reports a room whose host state diverged from the
// exactly-one-host rule. It is never patched over.
type InvariantError struct {
	RoomID string
	Hosts  int
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("host invariant violated room_id=%s hosts=%d: %s", e.RoomID, e.Hosts, e.Detail)
}

// Reason returns the stable code for an error returned by the manager.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var re *reasonError
	if errors.As(err, &re) {
		return re.reason
	}
	var ie *InvariantError
	if errors.As(err, &ie) {
		return "invariant_violation"
	}
	return "internal"
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrRoomNotFound) || errors.Is(err, ErrPlayerNotFound)
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
