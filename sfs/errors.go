// Package sfs implements the redundant split-file fetch segment: a
// K-data/M-check erasure-coded block fetch coordinator that reconstructs
// one segment of a split file from whichever K of its K+M blocks arrive
// first, healing the rest in the background.
package sfs

import "fmt"

// ErrorCode classifies why an individual block fetch, or an entire
// segment, failed.
type ErrorCode int

const (
	// InvalidURI means the block's retrieval key could not be parsed.
	InvalidURI ErrorCode = iota
	// InvalidMetadata means the splitfile manifest describing this
	// segment's blocks was malformed.
	InvalidMetadata
	// BucketError means the Bucket backing a block's data could not be
	// written to or read from. A segment also records it when its
	// decode step fails (codec lookup, FEC decode, or writing the
	// output bucket).
	BucketError
	// SplitfileError means so many of the segment's blocks failed that
	// K of them can no longer arrive.
	SplitfileError
	// Cancelled means the fetch was cancelled by its caller, not by any
	// failure of the underlying fetch itself.
	Cancelled
)

func (c ErrorCode) String() string {
	switch c {
	case InvalidURI:
		return "InvalidURI"
	case InvalidMetadata:
		return "InvalidMetadata"
	case BucketError:
		return "BucketError"
	case SplitfileError:
		return "SplitfileError"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// FetchError reports why one block fetch failed, and whether retrying it
// could plausibly help.
type FetchError struct {
	Code    ErrorCode
	Fatal   bool
	Detail  string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("sfs: %s: %s", e.Code, e.Detail)
}

// ErrorHistogram tallies fetch failures by code, carried along with a
// segment failure so the caller can tell a transient-network segment
// failure from one where every block's URI was malformed.
type ErrorHistogram map[ErrorCode]int

// Merge adds other's counts into h in place and returns h, so it can be
// chained while folding per-block failures into a segment-level report.
func (h ErrorHistogram) Merge(other ErrorHistogram) ErrorHistogram {
	for code, count := range other {
		h[code] += count
	}
	return h
}

// Record adds one occurrence of code to the histogram.
func (h ErrorHistogram) Record(code ErrorCode) {
	h[code]++
}

// Total returns the sum of every code's count.
func (h ErrorHistogram) Total() int {
	total := 0
	for _, count := range h {
		total += count
	}
	return total
}

// SegmentError is returned by FetchSegment.Err for a segment that
// finished failed (too many block failures, a decode failure, a
// rejected key, or cancellation), carrying the histogram of why.
type SegmentError struct {
	Histogram ErrorHistogram
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("sfs: segment failed, %d block failures: %v", e.Histogram.Total(), e.Histogram)
}
