// Package constants contains the tuning constants for the overlay node's
// reliable datagram layer and split-file fetch coordinator.
package constants

import "time"

const (
	// WindowSize is the sliding window width: the number of in-flight
	// unacknowledged packets a peer session may have outstanding at once.
	WindowSize = 256

	// AckDelay is the duration after which a queued ack becomes urgent
	// (authorizes emission of an otherwise-empty control packet).
	AckDelay = 200 * time.Millisecond

	// ResendBackoff is the minimum spacing between consecutive resend
	// requests for the same missing sequence number.
	ResendBackoff = 500 * time.Millisecond

	// ResendUrgentSlop is added to ResendBackoff to compute a resend
	// item's urgentAt once it has been marked sent.
	ResendUrgentSlop = 200 * time.Millisecond

	// BlockSize is the fixed erasure-coding block size, in bytes. The
	// decoder driver uses the block size passed to NewFetchSegment and
	// does not read this constant.
	BlockSize = 32768

	// HealProbabilityDenominator is the denominator of the 1/N draw used
	// to decide whether to heal a block that was never attempted by its
	// child fetcher.
	HealProbabilityDenominator = 5
)
