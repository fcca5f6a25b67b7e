package domain

import "errors"

// Error kinds. Every domain error wraps exactly one of these so callers can
// branch on the kind with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrValidation      = errors.New("validation error")
)

// Error is a domain error with a stable machine-readable code.
type Error struct {
	Code    string
	Message string
	kind    error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.kind }

func newError(kind error, code, msg string) *Error {
	return &Error{Code: code, Message: msg, kind: kind}
}

var (
	ErrCallerRequired = newError(ErrUnauthenticated, "UNAUTHENTICATED", "authentication required")

	ErrNotStreamOwner = newError(ErrUnauthorized, "NOT_STREAM_OWNER", "you are not the owner of this stream")
	ErrCannotDelete   = newError(ErrUnauthorized, "NOT_ALLOWED", "not allowed to delete this message")
	ErrFollowersOnly  = newError(ErrUnauthorized, "FOLLOWERS_ONLY", "chat is limited to followers")

	ErrStreamNotFound  = newError(ErrNotFound, "STREAM_NOT_FOUND", "stream not found")
	ErrRoomNotFound    = newError(ErrNotFound, "ROOM_NOT_FOUND", "chat room not found")
	ErrMessageNotFound = newError(ErrNotFound, "MESSAGE_NOT_FOUND", "message not found")
	ErrUserNotFound    = newError(ErrNotFound, "USER_NOT_FOUND", "user not found")
	ErrNoTranscript    = newError(ErrNotFound, "TRANSCRIPT_NOT_FOUND", "no transcript has been archived for this stream")

	ErrAlreadyExists     = newError(ErrInvalidState, "ALREADY_EXISTS", "already exists")
	ErrRoomAlreadyExists = &Error{Code: "ROOM_ALREADY_EXISTS", Message: "chat room already exists for this stream", kind: ErrAlreadyExists}
	ErrStreamNotLive     = newError(ErrInvalidState, "STREAM_NOT_LIVE", "stream is not live")
	ErrAlreadyLive       = newError(ErrInvalidState, "ALREADY_LIVE", "stream is already live")
	ErrNotLive           = newError(ErrInvalidState, "NOT_LIVE", "stream is not live")
	ErrStreamEnded       = newError(ErrInvalidState, "STREAM_ENDED", "stream has ended; create a new stream to go live again")
	ErrChatDisabled      = newError(ErrInvalidState, "CHAT_DISABLED", "chat is disabled for this stream")
	ErrSlowMode          = newError(ErrInvalidState, "SLOW_MODE", "slow mode is on; wait before sending another message")

	ErrEmptyMessage       = newError(ErrValidation, "EMPTY_MESSAGE", "message cannot be empty")
	ErrContentTooLong     = newError(ErrValidation, "CONTENT_TOO_LONG", "message is too long")
	ErrInvalidMessageType = newError(ErrValidation, "INVALID_MESSAGE_TYPE", "unknown message type")
	ErrInvalidSessionID   = newError(ErrValidation, "INVALID_SESSION_ID", "invalid session id")
	ErrSelfFollow         = newError(ErrValidation, "SELF_FOLLOW", "cannot follow yourself")
	ErrInvalidCursor      = newError(ErrValidation, "INVALID_CURSOR", "invalid cursor")
	ErrInvalidInput       = newError(ErrValidation, "INVALID_INPUT", "invalid input")
)

// CodeOf returns the code of the outermost domain error in err's chain.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
