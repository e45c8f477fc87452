package sfs

import "fmt"

// SplitType identifies how a segment's K data blocks and M check blocks
// combine to reconstruct the original content. Any value outside this
// set is a metadata parse error at segment construction.
type SplitType int

const (
	// NonRedundant segments carry no check blocks (M=0); decoding is a
	// no-op straight concatenation of the K data blocks in order.
	NonRedundant SplitType = iota
	// OnionStandard segments require FEC decode of the K+M blocks.
	OnionStandard
)

func (t SplitType) String() string {
	switch t {
	case NonRedundant:
		return "NONREDUNDANT"
	case OnionStandard:
		return "ONION_STANDARD"
	default:
		return fmt.Sprintf("SplitType(%d)", int(t))
	}
}

// valid reports whether t is one of the split types this package knows
// how to decode.
func (t SplitType) valid() bool {
	return t == NonRedundant || t == OnionStandard
}

// KeyKind classifies the retrieval-key variant behind one of a
// segment's data or check block slots. Key parsing itself is external
// to this package; a BlockKey carries only the minimum shape Schedule
// needs to validate before handing the key off to a child fetcher.
type KeyKind int

const (
	// KeyNormal is an ordinary content-addressed block key.
	KeyNormal KeyKind = iota
	// KeyUpdatableSubspace is a USK — not permitted inside a splitfile.
	KeyUpdatableSubspace
)

// BlockKey is one data or check block slot's retrieval key, as handed
// to FetchSegment by whatever parsed the splitfile manifest.
type BlockKey struct {
	// Kind classifies the key variant. A KeyUpdatableSubspace key fails
	// Schedule with InvalidMetadata.
	Kind KeyKind
	// Malformed marks a key that failed to parse at the URI level. Any
	// malformed key fails Schedule with InvalidURI.
	Malformed bool
}
