package sfs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeFetcher delivers a scripted result as soon as Schedule is called,
// unless Cancel beats it to the punch.
type fakeFetcher struct {
	mu        sync.Mutex
	data      []byte
	ferr      *FetchError
	cancelled bool
	retries   int
	onSuccess func([]byte)
	onFailure func(*FetchError)
}

func (f *fakeFetcher) Schedule(ctx context.Context) {
	go func() {
		f.mu.Lock()
		cancelled := f.cancelled
		f.mu.Unlock()
		if cancelled {
			return
		}
		if f.ferr != nil {
			f.onFailure(f.ferr)
		} else {
			f.onSuccess(f.data)
		}
	}()
}

func (f *fakeFetcher) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = true
}

func (f *fakeFetcher) RetryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retries
}

type fakeCodec struct{}

func (fakeCodec) Decode(dataBlocks, checkBlocks [][]byte, blockSize int) ([][]byte, error) {
	out := make([][]byte, len(dataBlocks))
	for i, b := range dataBlocks {
		if b != nil {
			out[i] = b
			continue
		}
		// pretend reconstruction filled in the missing data block from
		// check blocks
		out[i] = []byte("reconstructed")
	}
	return out, nil
}

func (fakeCodec) Encode(dataBlocks [][]byte, blockSize int) ([][]byte, error) {
	out := make([][]byte, 2)
	for i := range out {
		out[i] = []byte("recomputed-check")
	}
	return out, nil
}

type fakeCodecFactory struct{}

func (fakeCodecFactory) GetCodec(k, m, blockSize int) (Codec, error) {
	return fakeCodec{}, nil
}

type failingCodec struct{}

func (failingCodec) Decode(dataBlocks, checkBlocks [][]byte, blockSize int) ([][]byte, error) {
	return nil, errors.New("corrupt block arrangement")
}

func (failingCodec) Encode(dataBlocks [][]byte, blockSize int) ([][]byte, error) {
	return nil, errors.New("corrupt block arrangement")
}

type failingCodecFactory struct{}

func (failingCodecFactory) GetCodec(k, m, blockSize int) (Codec, error) {
	return failingCodec{}, nil
}

type fakeBucket struct {
	mu   sync.Mutex
	data []byte
}

func (b *fakeBucket) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *fakeBucket) ReadAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copy(p, b.data[off:]), nil
}

func (b *fakeBucket) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.data))
}

func (b *fakeBucket) Free() {}

type fakeBucketFactory struct{}

func (fakeBucketFactory) MakeBucket(sizeHint int64) (Bucket, error) {
	return &fakeBucket{}, nil
}

type fakeParent struct {
	mu       sync.Mutex
	finished []*FetchSegment
	done     chan struct{}
}

func newFakeParent() *fakeParent {
	return &fakeParent{done: make(chan struct{}, 8)}
}

func (p *fakeParent) segmentFinished(seg *FetchSegment) {
	p.mu.Lock()
	p.finished = append(p.finished, seg)
	p.mu.Unlock()
	p.done <- struct{}{}
}

func allSucceedFactory(t *testing.T) FetcherFactory {
	return func(token int, isCheck bool, onSuccess func([]byte), onFailure func(*FetchError)) SingleFetcher {
		return &fakeFetcher{data: []byte("block-data"), onSuccess: onSuccess, onFailure: onFailure}
	}
}

func TestFetchSegmentDecodesOnAllSuccess(t *testing.T) {
	require := require.New(t)
	parent := newFakeParent()

	seg, err := NewFetchSegment("seg-1", OnionStandard, 3, 2, 32768, nil, nil, allSucceedFactory(t), fakeCodecFactory{}, fakeBucketFactory{}, parent, nil)
	require.NoError(err)
	seg.Schedule()

	select {
	case <-parent.done:
	case <-time.After(time.Second):
		t.Fatal("segment never finished")
	}

	require.Nil(seg.Err())
}

func TestFetchSegmentFailsWhenTooManyBlocksFail(t *testing.T) {
	require := require.New(t)
	parent := newFakeParent()

	factory := func(token int, isCheck bool, onSuccess func([]byte), onFailure func(*FetchError)) SingleFetcher {
		return &fakeFetcher{ferr: &FetchError{Code: BucketError, Detail: "gone"}, onSuccess: onSuccess, onFailure: onFailure}
	}

	seg, err := NewFetchSegment("seg-2", OnionStandard, 3, 2, 32768, nil, nil, factory, fakeCodecFactory{}, fakeBucketFactory{}, parent, nil)
	require.NoError(err)
	seg.Schedule()

	select {
	case <-parent.done:
	case <-time.After(time.Second):
		t.Fatal("segment never finished")
	}

	err = seg.Err()
	require.Error(err)
	var segErr *SegmentError
	require.ErrorAs(err, &segErr)
	// fail() trips as soon as the third failure makes K successes
	// impossible; the remaining two in-flight results are discarded
	// rather than double-counted.
	require.Equal(3, segErr.Histogram[BucketError])
}

func TestFetchSegmentCancel(t *testing.T) {
	require := require.New(t)
	parent := newFakeParent()

	blockForever := func(token int, isCheck bool, onSuccess func([]byte), onFailure func(*FetchError)) SingleFetcher {
		return &fakeFetcher{data: nil, onSuccess: func([]byte) {}, onFailure: func(*FetchError) {}}
	}
	seg, err := NewFetchSegment("seg-3", OnionStandard, 3, 2, 32768, nil, nil, blockForever, fakeCodecFactory{}, fakeBucketFactory{}, parent, nil)
	require.NoError(err)
	seg.Schedule()
	seg.Cancel()

	require.True(seg.cancelled)

	select {
	case <-parent.done:
	case <-time.After(time.Second):
		t.Fatal("parent was never notified of cancellation")
	}
	require.Len(parent.finished, 1)
	require.Same(seg, parent.finished[0])

	err = seg.Err()
	require.Error(err)
	var segErr *SegmentError
	require.ErrorAs(err, &segErr)
	require.Equal(1, segErr.Histogram[Cancelled])
}

func TestFetchSegmentDecodeFailureReportsBucketError(t *testing.T) {
	require := require.New(t)
	parent := newFakeParent()

	seg, err := NewFetchSegment("seg-decode-fail", OnionStandard, 3, 2, 32768, nil, nil, allSucceedFactory(t), failingCodecFactory{}, fakeBucketFactory{}, parent, nil)
	require.NoError(err)
	seg.Schedule()

	select {
	case <-parent.done:
	case <-time.After(time.Second):
		t.Fatal("segment never finished")
	}

	// decodeStarted is true by the time the codec rejects the block
	// arrangement; Err must still surface the failure rather than
	// treating decodeStarted as evidence of success.
	require.True(seg.decodeStarted)
	err = seg.Err()
	require.Error(err)
	var segErr *SegmentError
	require.ErrorAs(err, &segErr)
	require.Equal(1, segErr.Histogram[BucketError])
}

func TestNewFetchSegmentRejectsUnsupportedSplitType(t *testing.T) {
	require := require.New(t)
	parent := newFakeParent()

	_, err := NewFetchSegment("seg-bad-type", SplitType(99), 3, 2, 32768, nil, nil, allSucceedFactory(t), fakeCodecFactory{}, fakeBucketFactory{}, parent, nil)
	require.Error(err)
	var ferr *FetchError
	require.ErrorAs(err, &ferr)
	require.Equal(InvalidMetadata, ferr.Code)
}

func TestNewFetchSegmentRejectsNonRedundantWithCheckBlocks(t *testing.T) {
	require := require.New(t)
	parent := newFakeParent()

	_, err := NewFetchSegment("seg-bad-m", NonRedundant, 3, 2, 32768, nil, nil, allSucceedFactory(t), fakeCodecFactory{}, fakeBucketFactory{}, parent, nil)
	require.Error(err)
	var ferr *FetchError
	require.ErrorAs(err, &ferr)
	require.Equal(InvalidMetadata, ferr.Code)
}

func TestFetchSegmentNonRedundantConcatenatesWithoutCodec(t *testing.T) {
	require := require.New(t)
	parent := newFakeParent()

	seg, err := NewFetchSegment("seg-nonredundant", NonRedundant, 3, 0, 32768, nil, nil, allSucceedFactory(t), fakeCodecFactory{}, fakeBucketFactory{}, parent, nil)
	require.NoError(err)
	seg.Schedule()

	select {
	case <-parent.done:
	case <-time.After(time.Second):
		t.Fatal("segment never finished")
	}

	require.Nil(seg.Err())
}

func TestFetchSegmentScheduleRejectsUSKKey(t *testing.T) {
	require := require.New(t)
	parent := newFakeParent()

	dataKeys := []BlockKey{{Kind: KeyUpdatableSubspace}, {}, {}}
	seg, err := NewFetchSegment("seg-usk", OnionStandard, 3, 2, 32768, dataKeys, nil, allSucceedFactory(t), fakeCodecFactory{}, fakeBucketFactory{}, parent, nil)
	require.NoError(err)
	seg.Schedule()

	select {
	case <-parent.done:
	case <-time.After(time.Second):
		t.Fatal("segment never finished")
	}

	segErr := seg.Err()
	require.Error(segErr)
	var se *SegmentError
	require.ErrorAs(segErr, &se)
	require.Equal(1, se.Histogram[InvalidMetadata])
}

func TestFetchSegmentScheduleRejectsMalformedKey(t *testing.T) {
	require := require.New(t)
	parent := newFakeParent()

	checkKeys := []BlockKey{{Malformed: true}, {}}
	seg, err := NewFetchSegment("seg-malformed", OnionStandard, 3, 2, 32768, nil, checkKeys, allSucceedFactory(t), fakeCodecFactory{}, fakeBucketFactory{}, parent, nil)
	require.NoError(err)
	seg.Schedule()

	select {
	case <-parent.done:
	case <-time.After(time.Second):
		t.Fatal("segment never finished")
	}

	segErr := seg.Err()
	require.Error(segErr)
	var se *SegmentError
	require.ErrorAs(segErr, &se)
	require.Equal(1, se.Histogram[InvalidURI])
}
