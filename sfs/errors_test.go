package sfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorHistogramMerge(t *testing.T) {
	require := require.New(t)
	h := ErrorHistogram{InvalidURI: 1}
	other := ErrorHistogram{InvalidURI: 2, BucketError: 1}

	h.Merge(other)
	require.Equal(3, h[InvalidURI])
	require.Equal(1, h[BucketError])
	require.Equal(4, h.Total())
}

func TestErrorHistogramRecord(t *testing.T) {
	require := require.New(t)
	h := ErrorHistogram{}
	h.Record(SplitfileError)
	h.Record(SplitfileError)
	require.Equal(2, h[SplitfileError])
}

func TestSegmentErrorMessage(t *testing.T) {
	require := require.New(t)
	err := &SegmentError{Histogram: ErrorHistogram{InvalidURI: 2}}
	require.Contains(err.Error(), "2 block failures")
}
