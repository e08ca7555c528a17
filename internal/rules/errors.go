package rules

import (
	"errors"
	"fmt"
)

// MoveErrorCode classifies a rejected move. These are expected, user-facing
// conditions; they are returned as values, never raised as panics.
type MoveErrorCode string

const (
	CodeNoPieceAtSource  MoveErrorCode = "NO_PIECE_AT_SOURCE"
	CodeNotYourTurn      MoveErrorCode = "NOT_YOUR_TURN"
	CodeOutOfBounds      MoveErrorCode = "OUT_OF_BOUNDS"
	CodeCannotCaptureOwn MoveErrorCode = "CANNOT_CAPTURE_OWN_PIECE"
	CodeIllegalMovement  MoveErrorCode = "ILLEGAL_MOVEMENT_PATTERN"
	CodeStackFull        MoveErrorCode = "STACK_FULL"
)

// MoveError is the typed rejection returned by ApplyMove.
type MoveError struct {
	Code   MoveErrorCode
	Detail string
}

func (e *MoveError) Error() string {
	if e.Detail == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func newMoveError(code MoveErrorCode, format string, args ...any) *MoveError {
	return &MoveError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the MoveErrorCode from an error returned by this package.
// Returns the empty string for foreign errors.
func CodeOf(err error) MoveErrorCode {
	var me *MoveError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}
