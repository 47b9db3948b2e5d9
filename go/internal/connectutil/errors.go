package connectutil

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"connectrpc.com/connect"
	"github.com/mcdev12/pidr/go/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	// HeaderReason carries the structured reason code of a rejection.
	HeaderReason = "Pidr-Reason"
	// HeaderSnapshotVersion carries the authoritative game snapshot or room
	// version a rejected command was checked against.
	HeaderSnapshotVersion = "Pidr-Snapshot-Version"
	// HeaderSnapshot carries the JSON game view or room of a rejected
	// command, base64 encoded as connect binary headers are.
	HeaderSnapshot = "Pidr-Snapshot-Bin"
)

var errorCodes = []struct {
	err  error
	code connect.Code
}{
	{models.ErrAlreadyHasActiveRoom, connect.CodeAlreadyExists},
	{models.ErrRoomNotFound, connect.CodeNotFound},
	{models.ErrRoomFull, connect.CodeResourceExhausted},
	{models.ErrRoomNotOpen, connect.CodeFailedPrecondition},
	{models.ErrWrongPassword, connect.CodePermissionDenied},
	{models.ErrAlreadySeated, connect.CodeAlreadyExists},
	{models.ErrNotSeated, connect.CodePermissionDenied},
	{models.ErrNotHost, connect.CodePermissionDenied},
	{models.ErrNotYourTurn, connect.CodeFailedPrecondition},
	{models.ErrIllegalMove, connect.CodeInvalidArgument},
	{models.ErrNoBotsPresent, connect.CodeFailedPrecondition},
	{models.ErrGameNotRunning, connect.CodeFailedPrecondition},
	{models.ErrVersionConflict, connect.CodeAborted},
	{models.ErrPlayersNotReady, connect.CodeFailedPrecondition},
	{models.ErrInvalidArgument, connect.CodeInvalidArgument},
	{models.ErrInvariantViolation, connect.CodeInternal},
	{context.Canceled, connect.CodeCanceled},
	{context.DeadlineExceeded, connect.CodeDeadlineExceeded},
}

// CodeOf maps a domain error onto a connect code.
func CodeOf(err error) connect.Code {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return connect.CodeInternal
}

// Error converts err into a connect error carrying the reason header.
// Errors that are already connect errors pass through.
func Error(err error) error {
	if err == nil {
		return nil
	}
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr
	}
	code := CodeOf(err)
	if code == connect.CodeInternal {
		log.Error().Err(err).Msg("internal error")
	}
	cerr = connect.NewError(code, err)
	cerr.Meta().Set(HeaderReason, models.ReasonCode(err))
	return cerr
}

// SnapshotError is Error plus the version and, when view is not nil, the
// snapshot the command was rejected against.
func SnapshotError(err error, version uint64, view any) error {
	out := Error(err)
	var cerr *connect.Error
	if !errors.As(out, &cerr) {
		return out
	}
	cerr.Meta().Set(HeaderSnapshotVersion, strconv.FormatUint(version, 10))
	if view != nil {
		raw, merr := json.Marshal(view)
		if merr != nil {
			log.Warn().Err(merr).Msg("failed to encode rejection snapshot")
			return out
		}
		cerr.Meta().Set(HeaderSnapshot, connect.EncodeBinaryHeader(raw))
	}
	return out
}
