package sfs

import "io"

// Bucket is a temporary, write-once-then-read-many byte store for one
// block or one reconstructed segment's worth of data. Implementations
// may back it with a file, a memory buffer, or anything else. This
// package writes a segment's reconstructed data blocks into one bucket;
// it does not read that bucket back or call Free on it.
type Bucket interface {
	io.Writer
	io.ReaderAt
	// Size returns how many bytes have been written so far.
	Size() int64
	// Free releases whatever storage backs the bucket. Safe to call
	// more than once.
	Free()
}

// BucketFactory allocates Buckets, parameterized by the expected size so
// an implementation backed by preallocated storage can size itself up
// front.
type BucketFactory interface {
	MakeBucket(sizeHint int64) (Bucket, error)
}
