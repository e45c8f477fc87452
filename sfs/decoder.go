package sfs

import (
	"math/rand"
	"time"
)

// healJitterMax bounds the random delay a scheduled heal re-insertion
// waits before running, so concurrently-finishing segments don't all
// write their heals in the same instant.
const healJitterMax = 2 * time.Second

// Healer re-inserts a reconstructed block back into the overlay so that
// a slot which failed to fetch gets a fresh copy in circulation,
// trading write bandwidth for future fetch redundancy.
type Healer interface {
	Heal(blockIndex int, isCheck bool, data []byte)
}

// HealDecisionRecorder durably records whether a given block slot was
// selected for healing. The heal pass only writes these decisions; it
// never reads earlier ones back when deciding.
type HealDecisionRecorder interface {
	RecordHealDecision(segmentID string, blockIndex int, isCheck bool, healed bool) error
}

// decoderDriver runs one segment's FEC reconstruction and subsequent
// healing pass on its own goroutine, off the segment's lock: erasure
// decoding of a handful of 32KiB blocks is cheap, but there is no reason
// to hold this segment's remaining onSuccess/onFailure callbacks
// hostage to it.
type decoderDriver struct {
	seg         *FetchSegment
	dataBlocks  [][]byte
	checkBlocks [][]byte
}

func newDecoderDriver(seg *FetchSegment, dataBlocks, checkBlocks [][]byte) *decoderDriver {
	return &decoderDriver{seg: seg, dataBlocks: dataBlocks, checkBlocks: checkBlocks}
}

func (d *decoderDriver) start() {
	go d.run()
}

func (d *decoderDriver) run() {
	var codec Codec
	reconstructed := d.dataBlocks

	// A NonRedundant split carries no check blocks at all (m == 0,
	// enforced at construction), so decode is a no-op: the K data
	// blocks are the reconstructed output as-is, concatenated in order.
	if d.seg.splitType != NonRedundant {
		var err error
		codec, err = d.seg.codecFactory.GetCodec(d.seg.k, d.seg.m, d.seg.blockSize)
		if err != nil {
			d.seg.decodeFailed(err.Error())
			return
		}

		reconstructed, err = codec.Decode(d.dataBlocks, d.checkBlocks, d.seg.blockSize)
		if err != nil {
			d.seg.decodeFailed(err.Error())
			return
		}
	}

	bucket, err := d.seg.bucketFactory.MakeBucket(int64(d.seg.k * d.seg.blockSize))
	if err != nil {
		d.seg.decodeFailed(err.Error())
		return
	}
	for _, block := range reconstructed {
		if _, err := bucket.Write(block); err != nil {
			d.seg.decodeFailed(err.Error())
			return
		}
	}

	d.seg.decodeSucceeded()
	d.healMissing(codec, reconstructed)
}

// healMissing re-inserts reconstructed data for every block slot — data
// or check — that was never fetched, when the segment has a Healer
// configured, subject to a retry-count threshold and a probabilistic
// draw so a busy overlay isn't flooded with heal traffic every time a
// segment happens to complete via redundancy instead of every block
// arriving. A missing check block's bytes aren't among reconstructed
// (which holds only the K data blocks), so they're re-derived by
// re-encoding from it on demand.
func (d *decoderDriver) healMissing(codec Codec, reconstructed [][]byte) {
	if d.seg.healer == nil {
		return
	}
	for i := 0; i < d.seg.k; i++ {
		slot := d.seg.data.get(i)
		if slot == nil || slot.status == blockFetched {
			continue
		}
		d.considerHeal(i, false, reconstructed[i], slot)
	}

	var recomputedCheck [][]byte
	for i := 0; i < d.seg.m; i++ {
		slot := d.seg.check.get(i)
		if slot == nil || slot.status == blockFetched {
			continue
		}
		if recomputedCheck == nil {
			var err error
			recomputedCheck, err = codec.Encode(reconstructed, d.seg.blockSize)
			if err != nil {
				if d.seg.log != nil {
					d.seg.log.Errorf("segment %s: re-encoding check blocks for heal failed: %s", d.seg.id, err)
				}
				return
			}
		}
		if i >= len(recomputedCheck) {
			continue
		}
		d.considerHeal(i, true, recomputedCheck[i], slot)
	}
}

// considerHeal decides whether blockIndex should be healed: unconditionally
// once its fetcher has retried at least once, otherwise by a 1-in-N
// probabilistic draw, so a block that was never even attempted a second
// time isn't automatically assumed lost.
func (d *decoderDriver) considerHeal(blockIndex int, isCheck bool, data []byte, slot *fetcherSlot) {
	retryCount := slot.fetcher.RetryCount()

	denom := d.seg.healProbabilityDenominator
	if denom <= 0 {
		denom = 1
	}
	shouldHeal := retryCount >= 1 || rand.Intn(denom) == 0

	if shouldHeal {
		if d.seg.healScheduler != nil {
			jitter := time.Duration(rand.Int63n(int64(healJitterMax)))
			d.seg.healScheduler.Schedule(jitter, func() {
				d.seg.healer.Heal(blockIndex, isCheck, data)
			})
		} else {
			d.seg.healer.Heal(blockIndex, isCheck, data)
		}
	}
	if d.seg.healRecorder != nil {
		_ = d.seg.healRecorder.RecordHealDecision(d.seg.id, blockIndex, isCheck, shouldHeal)
	}
}
