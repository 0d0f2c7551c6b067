package domain

import "errors"

var (
	ErrPermissionDenied = errors.New("only the leader may do that")
	ErrInvalidIndex     = errors.New("song index out of range")
	ErrInvalidOrder     = errors.New("order is not a permutation of the setlist")
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrVersionConflict  = errors.New("stale version")
	ErrBadPayload       = errors.New("bad payload")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnavailable      = errors.New("session unavailable")
)

// ErrorCode is the wire code of an error message.
type ErrorCode string

const (
	CodePermissionDenied ErrorCode = "permission_denied"
	CodeInvalidIndex     ErrorCode = "invalid_index"
	CodeInvalidOrder     ErrorCode = "invalid_order"
	CodeNotFound         ErrorCode = "not_found"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeVersionConflict  ErrorCode = "version_conflict"
	CodeBadPayload       ErrorCode = "bad_payload"
	CodeRateLimited      ErrorCode = "rate_limited"
	CodeUnavailable      ErrorCode = "unavailable"
	CodeInternal         ErrorCode = "internal"
)

var codes = []struct {
	err  error
	code ErrorCode
}{
	{ErrPermissionDenied, CodePermissionDenied},
	{ErrInvalidIndex, CodeInvalidIndex},
	{ErrInvalidOrder, CodeInvalidOrder},
	{ErrNotFound, CodeNotFound},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrVersionConflict, CodeVersionConflict},
	{ErrBadPayload, CodeBadPayload},
	{ErrDisplayNameEmpty, CodeBadPayload},
	{ErrDisplayNameTooLong, CodeBadPayload},
	{ErrRateLimited, CodeRateLimited},
	{ErrUnavailable, CodeUnavailable},
}

func CodeOf(err error) ErrorCode {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
