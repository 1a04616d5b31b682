// Package downloader implements a retrying, peer-selecting,
// linkage-validating header-sequence fetcher: given a reference header,
// it drives GET_BLOCK_HEADERS requests against a rotating set of peers
// until it has assembled count contiguous headers ending just below the
// reference, or exhausted its retry budget.
package downloader

import (
	"errors"
	"fmt"
)

// ErrMaxRetriesReached is returned once attempts_remaining hits zero.
type ErrMaxRetriesReached struct {
	Attempts uint16
}

func (e *ErrMaxRetriesReached) Error() string {
	return fmt.Sprintf("downloader: max retries reached after %d attempts", e.Attempts)
}

// ErrLinkageViolation records the index at which parent-hash linkage
// broke; it counts as a failed attempt.
type ErrLinkageViolation struct {
	At int
}

func (e *ErrLinkageViolation) Error() string {
	return fmt.Sprintf("downloader: linkage violation at index %d", e.At)
}

// ErrShortResponse is returned when the peer's response contains fewer
// than count headers; it counts as a failed attempt.
var ErrShortResponse = errors.New("downloader: response shorter than requested count")

// ErrRequestTimeout is returned when the outstanding request's deadline
// elapses before a response is delivered; counts as a failed attempt.
var ErrRequestTimeout = errors.New("downloader: request timeout")

// ErrCancelled is surfaced to the caller when the task's cancellation
// signal fires; the in-flight request is abandoned and any later
// response is discarded.
var ErrCancelled = errors.New("downloader: task cancelled")

// ErrNoPeers is returned when the task has no candidate peer to issue a
// request against, including on retry after the prior peer failed.
var ErrNoPeers = errors.New("downloader: no peers available")
