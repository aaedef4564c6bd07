package matchmaking

import "errors"

// Error taxonomy surfaced to callers. Store-layer failures never cross
// this package raw; they are wrapped into ErrUnavailable, which is safe
// to retry with backoff. ErrInvalidArgument is a caller bug and must not
// be retried.
var (
	ErrInvalidArgument = errors.New("matchmaking: invalid argument")
	ErrUnavailable     = errors.New("matchmaking: store unavailable")
)
