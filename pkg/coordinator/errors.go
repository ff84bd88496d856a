// Copyright 2025 Takhin Data, Inc.

package coordinator

import (
	"errors"
	"fmt"
)

// ErrorCode is the small closed set of outcomes the store/load pipelines
// report back to callers. NoOffset is not an error; it is the answer to
// "what is the committed offset for this partition" when there is none.
type ErrorCode int8

const (
	NoError ErrorCode = iota
	GroupCoordinatorNotAvailable
	NotCoordinatorForGroup
	InvalidCommitOffsetSize
	OffsetMetadataTooLarge
	Unknown
	NoOffset
)

func (c ErrorCode) String() string {
	switch c {
	case NoError:
		return "NoError"
	case GroupCoordinatorNotAvailable:
		return "GroupCoordinatorNotAvailable"
	case NotCoordinatorForGroup:
		return "NotCoordinatorForGroup"
	case InvalidCommitOffsetSize:
		return "InvalidCommitOffsetSize"
	case OffsetMetadataTooLarge:
		return "OffsetMetadataTooLarge"
	case NoOffset:
		return "NoOffset"
	default:
		return "Unknown"
	}
}

// Sentinel storage-layer errors the translation table below recognizes.
// The storage layer (pkg/storage/topic's CoordinatorStorage) is expected to
// wrap one of these with %w when an append fails for a recognizable reason;
// anything else falls through to Unknown.
var (
	ErrUnknownTopicOrPartition = errors.New("unknown topic or partition")
	ErrNotLeaderForPartition   = errors.New("not leader for partition")
	ErrMessageSizeTooLarge     = errors.New("message size too large")
	ErrMessageSetSizeTooLarge  = errors.New("message set size too large")
	ErrInvalidFetchSize        = errors.New("invalid fetch size")
)

// translateStorageError maps a storage-layer append failure to the
// (commit error, group error) pair a caller should see, per the fixed
// translation table: unreachable partition metadata reads as coordinator
// unavailability, a stale leader pointer reads as a coordinator-location
// error a client should rediscover, oversize-message failures read as
// InvalidCommitOffsetSize on the commit side and Unknown on the group
// side, and any other error is reported as Unknown on both sides; the
// original storage error is not passed through to the caller.
func translateStorageError(err error) (commit ErrorCode, group ErrorCode) {
	switch {
	case err == nil:
		return NoError, NoError
	case errors.Is(err, ErrUnknownTopicOrPartition):
		return GroupCoordinatorNotAvailable, GroupCoordinatorNotAvailable
	case errors.Is(err, ErrNotLeaderForPartition):
		return NotCoordinatorForGroup, NotCoordinatorForGroup
	case errors.Is(err, ErrMessageSizeTooLarge), errors.Is(err, ErrMessageSetSizeTooLarge), errors.Is(err, ErrInvalidFetchSize):
		return InvalidCommitOffsetSize, Unknown
	default:
		return Unknown, Unknown
	}
}

// fatalf panics with a clearly-labeled invariant violation. The callback
// paths in the store pipeline use this for conditions that should be
// impossible by construction (e.g. an append completion reporting status
// for a partition nobody submitted) rather than silently continuing with
// inconsistent state.
func fatalf(format string, args ...interface{}) {
	panic(fmt.Sprintf("coordinator: invariant violated: "+format, args...))
}
