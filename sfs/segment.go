package sfs

import (
	"context"
	"fmt"
	"sync"

	logging "gopkg.in/op/go-logging.v1"
)

// SegmentParent is notified when a FetchSegment finishes, successfully
// or not. A split-file fetch spanning many segments implements this to
// track overall progress and decide when the whole file is assembled.
type SegmentParent interface {
	segmentFinished(seg *FetchSegment)
}

// FetcherFactory builds the SingleFetcher for one block slot in a
// segment. isCheck distinguishes a check block slot from a data block
// slot, since some overlays route them to different peers. The returned
// fetcher must report its result by calling exactly one of onSuccess or
// onFailure, exactly once, some time after Schedule is called.
type FetcherFactory func(token int, isCheck bool, onSuccess func([]byte), onFailure func(*FetchError)) SingleFetcher

// FetchSegment coordinates fetching one segment's K data blocks and M
// check blocks, starting reconstruction as soon as any K of the K+M have
// arrived and healing the unfetched remainder probabilistically once
// reconstruction succeeds.
type FetchSegment struct {
	mu sync.Mutex

	splitType SplitType
	k, m      int
	blockSize int
	minFetched int

	dataKeys  []BlockKey
	checkKeys []BlockKey

	data  *fetcherArena
	check *fetcherArena

	codecFactory  CodecFactory
	bucketFactory BucketFactory
	parent        SegmentParent
	log           *logging.Logger

	fetchedCount        int
	failedCount         int
	fatallyFailedCount  int
	histogram           ErrorHistogram
	decodeStarted       bool
	finished            bool
	failed              bool
	cancelled           bool

	decoder *decoderDriver

	id                         string
	healer                     Healer
	healRecorder               HealDecisionRecorder
	healProbabilityDenominator int
	healScheduler              *RetryScheduler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewFetchSegment constructs a segment with k data blocks and m check
// blocks, not yet scheduled. splitType must be NonRedundant (which
// requires m == 0) or OnionStandard; any other value is a metadata
// parse error at construction. dataKeys and checkKeys carry enough of
// each block's retrieval key to let Schedule validate it; either may be
// nil when the caller has no key-level validation to offer, in which
// case every slot is treated as an ordinary, well-formed key.
func NewFetchSegment(id string, splitType SplitType, k, m, blockSize int, dataKeys, checkKeys []BlockKey, factory FetcherFactory, codecFactory CodecFactory, bucketFactory BucketFactory, parent SegmentParent, log *logging.Logger) (*FetchSegment, error) {
	if !splitType.valid() {
		return nil, &FetchError{Code: InvalidMetadata, Fatal: true, Detail: fmt.Sprintf("unsupported split type %s", splitType)}
	}
	if splitType == NonRedundant && m != 0 {
		return nil, &FetchError{Code: InvalidMetadata, Fatal: true, Detail: "nonredundant split must carry zero check blocks"}
	}
	if dataKeys == nil {
		dataKeys = make([]BlockKey, k)
	}
	if checkKeys == nil {
		checkKeys = make([]BlockKey, m)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &FetchSegment{
		id:                         id,
		splitType:                  splitType,
		k:                          k,
		m:                          m,
		blockSize:                  blockSize,
		minFetched:                 k,
		dataKeys:                   dataKeys,
		checkKeys:                  checkKeys,
		data:                       newFetcherArena(k),
		check:                      newFetcherArena(m),
		codecFactory:               codecFactory,
		bucketFactory:              bucketFactory,
		parent:                     parent,
		log:                        log,
		histogram:                  ErrorHistogram{},
		healProbabilityDenominator: 5,
		ctx:                        ctx,
		cancel:                     cancel,
	}
	for i := 0; i < k; i++ {
		token := i
		s.data.set(token, factory(token, false,
			func(data []byte) { s.onSuccess(s.data, token, data) },
			func(err *FetchError) { s.onFailure(s.data, token, err) }))
	}
	for i := 0; i < m; i++ {
		token := i
		s.check.set(token, factory(token, true,
			func(data []byte) { s.onSuccess(s.check, token, data) },
			func(err *FetchError) { s.onFailure(s.check, token, err) }))
	}
	return s, nil
}

// ConfigureHealing wires a Healer and an optional ledger into the
// segment's post-decode heal pass, along with the 1-in-denominator odds
// that a missing block slot whose fetcher never retried is healed.
// Must be called before Schedule.
func (s *FetchSegment) ConfigureHealing(healer Healer, recorder HealDecisionRecorder, denominator int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healer = healer
	s.healRecorder = recorder
	if denominator > 0 {
		s.healProbabilityDenominator = denominator
	}
}

// UseHealScheduler spreads this segment's heal re-insertions out over
// time through sched rather than firing them all the instant decoding
// finishes, so a segment that needed to heal several slots at once
// doesn't burst all of that write traffic in the same moment.
func (s *FetchSegment) UseHealScheduler(sched *RetryScheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healScheduler = sched
}

// Schedule validates this segment's block keys, then starts every
// block fetcher. A key of an unsupported variant (a USK — updatable
// subspace keys are not permitted inside a splitfile) fails the whole
// segment with InvalidMetadata; a key malformed at the URI level fails
// it with InvalidURI. Neither child fetcher is ever scheduled in
// either case.
func (s *FetchSegment) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasUnsupportedKey() {
		s.fail(InvalidMetadata)
		return
	}
	if s.hasMalformedKey() {
		s.fail(InvalidURI)
		return
	}

	for i := 0; i < s.data.len(); i++ {
		slot := s.data.get(i)
		slot.status = blockFetching
		slot.fetcher.Schedule(s.ctx)
	}
	for i := 0; i < s.check.len(); i++ {
		slot := s.check.get(i)
		slot.status = blockFetching
		slot.fetcher.Schedule(s.ctx)
	}
}

// hasUnsupportedKey reports whether any of this segment's block keys is
// a variant not permitted inside a splitfile. Must be called with s.mu
// held.
func (s *FetchSegment) hasUnsupportedKey() bool {
	for _, k := range s.dataKeys {
		if k.Kind == KeyUpdatableSubspace {
			return true
		}
	}
	for _, k := range s.checkKeys {
		if k.Kind == KeyUpdatableSubspace {
			return true
		}
	}
	return false
}

// hasMalformedKey reports whether any of this segment's block keys
// failed to parse at the URI level. Must be called with s.mu held.
func (s *FetchSegment) hasMalformedKey() bool {
	for _, k := range s.dataKeys {
		if k.Malformed {
			return true
		}
	}
	for _, k := range s.checkKeys {
		if k.Malformed {
			return true
		}
	}
	return false
}

// onSuccess records that the block at token (in the given arena)
// arrived with data, and starts decoding once enough blocks are in.
func (s *FetchSegment) onSuccess(arena *fetcherArena, token int, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := arena.get(token)
	if slot == nil || s.finished || s.cancelled {
		// Cancelled or already reconciled; a race between cancellation
		// and an in-flight result landing anyway. Safe no-op.
		return
	}
	slot.status = blockFetched
	slot.data = data
	s.fetchedCount++

	if !s.decodeStarted && s.fetchedCount >= s.minFetched {
		s.decodeStarted = true
		s.startDecode()
	}
}

// onFailure records that the block at token failed. fatal indicates the
// error is not worth retrying (e.g. InvalidURI), as opposed to a
// transient network failure.
func (s *FetchSegment) onFailure(arena *fetcherArena, token int, ferr *FetchError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := arena.get(token)
	if slot == nil || s.finished || s.cancelled {
		return
	}
	slot.status = blockFailed
	slot.err = ferr
	s.histogram.Record(ferr.Code)
	if ferr.Fatal {
		s.fatallyFailedCount++
	} else {
		s.failedCount++
	}

	if s.k+s.m-(s.failedCount+s.fatallyFailedCount) < s.minFetched {
		s.fail(SplitfileError)
	}
}

// startDecode hands the currently-fetched blocks off to a decoder
// driver. Must be called with s.mu held.
func (s *FetchSegment) startDecode() {
	dataBlocks := make([][]byte, s.k)
	for i := 0; i < s.k; i++ {
		if slot := s.data.get(i); slot != nil && slot.status == blockFetched {
			dataBlocks[i] = slot.data
		}
	}
	checkBlocks := make([][]byte, s.m)
	for i := 0; i < s.m; i++ {
		if slot := s.check.get(i); slot != nil && slot.status == blockFetched {
			checkBlocks[i] = slot.data
		}
	}

	s.decoder = newDecoderDriver(s, dataBlocks, checkBlocks)
	s.decoder.start()
}

// decodeSucceeded is called by the decoder driver once reconstruction
// has produced the segment's K data blocks. finished is marked true
// before the parent is ever notified, so a caller reacting to
// segmentFinished always sees a segment that already considers itself
// done.
func (s *FetchSegment) decodeSucceeded() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.cancelRemainingFetches()
	s.parent.segmentFinished(s)
}

// decodeFailed is called by the decoder driver when obtaining the codec,
// decoding, allocating the output bucket, or writing to it fails. It
// fails the segment with BucketError.
func (s *FetchSegment) decodeFailed(detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log != nil {
		s.log.Errorf("segment %s: decode failed: %s", s.id, detail)
	}
	s.fail(BucketError)
}

// fail marks the segment permanently failed with the given code,
// cancels every still-in-flight block fetcher, and notifies the parent
// via segmentFinished exactly once. Must be called with s.mu held.
func (s *FetchSegment) fail(code ErrorCode) {
	if s.finished {
		return
	}
	s.finished = true
	s.failed = true
	s.histogram.Record(code)
	for i := 0; i < s.data.len(); i++ {
		if slot := s.data.get(i); slot != nil && slot.status == blockFetching {
			slot.fetcher.Cancel()
			slot.status = blockCancelled
		}
	}
	for i := 0; i < s.check.len(); i++ {
		if slot := s.check.get(i); slot != nil && slot.status == blockFetching {
			slot.fetcher.Cancel()
			slot.status = blockCancelled
		}
	}
	s.cancel()
	go s.parent.segmentFinished(s)
}

// Cancel abandons the segment's fetch entirely, at the caller's
// request rather than because of accumulated failures — equivalent to
// fail(Cancelled).
func (s *FetchSegment) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || s.cancelled {
		return
	}
	s.cancelled = true
	s.fail(Cancelled)
}

// cancelRemainingFetches stops any block fetcher still in flight once
// reconstruction no longer needs it.
func (s *FetchSegment) cancelRemainingFetches() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < s.data.len(); i++ {
		if slot := s.data.get(i); slot != nil && slot.status == blockFetching {
			slot.fetcher.Cancel()
			slot.status = blockCancelled
		}
	}
	for i := 0; i < s.check.len(); i++ {
		if slot := s.check.get(i); slot != nil && slot.status == blockFetching {
			slot.fetcher.Cancel()
			slot.status = blockCancelled
		}
	}
}

// Err returns the segment's accumulated failure, or nil if it finished
// successfully. A segment that reconstructed its K data blocks via
// decodeSucceeded is never failed, even though its histogram may carry
// entries from individual block slots that failed along the way and
// were covered by redundancy.
func (s *FetchSegment) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished || !s.failed {
		return nil
	}
	return &SegmentError{Histogram: s.histogram}
}
