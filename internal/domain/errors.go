package domain

import "errors"

var (
	// ErrStoreUnavailable marks connection and timeout faults against either store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrMalformedMessage marks an inbound stream payload that could not be decoded.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrQueryFailed marks a read-path failure that must reach the caller.
	ErrQueryFailed = errors.New("query failed")

	ErrInvalidRange = errors.New("invalid time range")

	// ErrResultTruncated marks a scan that hit its row cap before the range was exhausted.
	ErrResultTruncated = errors.New("result exceeds scan limit")
)
