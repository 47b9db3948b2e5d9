package models

import "errors"

var (
	ErrAlreadyHasActiveRoom = errors.New("host already has an active room")
	ErrRoomNotFound         = errors.New("room not found")
	ErrRoomFull             = errors.New("room is full")
	ErrRoomNotOpen          = errors.New("room is not open")
	ErrWrongPassword        = errors.New("wrong room password")
	ErrAlreadySeated        = errors.New("occupant already seated")
	ErrNotSeated            = errors.New("occupant is not seated in this room")
	ErrNotHost              = errors.New("caller is not the room host")
	ErrNotYourTurn          = errors.New("not your turn")
	ErrIllegalMove          = errors.New("illegal move")
	ErrNoBotsPresent        = errors.New("no bots present")
	ErrGameNotRunning       = errors.New("no game running in this room")
	ErrVersionConflict      = errors.New("version conflict")
	ErrPlayersNotReady      = errors.New("not every player is ready")
	ErrInvalidArgument      = errors.New("invalid argument")

	// ErrInvariantViolation means internal state is inconsistent. The room
	// that produced it is torn down.
	ErrInvariantViolation = errors.New("invariant violation")
)

var reasonCodes = []struct {
	err  error
	code string
}{
	{ErrAlreadyHasActiveRoom, "ALREADY_HAS_ACTIVE_ROOM"},
	{ErrRoomNotFound, "ROOM_NOT_FOUND"},
	{ErrRoomFull, "ROOM_FULL"},
	{ErrRoomNotOpen, "ROOM_NOT_OPEN"},
	{ErrWrongPassword, "WRONG_PASSWORD"},
	{ErrAlreadySeated, "ALREADY_SEATED"},
	{ErrNotSeated, "NOT_SEATED"},
	{ErrNotHost, "NOT_HOST"},
	{ErrNotYourTurn, "NOT_YOUR_TURN"},
	{ErrIllegalMove, "ILLEGAL_MOVE"},
	{ErrNoBotsPresent, "NO_BOTS_PRESENT"},
	{ErrGameNotRunning, "GAME_NOT_RUNNING"},
	{ErrVersionConflict, "VERSION_CONFLICT"},
	{ErrPlayersNotReady, "PLAYERS_NOT_READY"},
	{ErrInvalidArgument, "INVALID_ARGUMENT"},
	{ErrInvariantViolation, "INVARIANT_VIOLATION"},
}

// ReasonCode returns the structured reason code for err, or "INTERNAL" when
// err is not one of the known kinds.
func ReasonCode(err error) string {
	for _, rc := range reasonCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	return "INTERNAL"
}
