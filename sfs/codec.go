package sfs

// Codec reconstructs the K data blocks of a segment from any K of its
// K+M data and check blocks. Implementations live outside this package;
// FetchSegment only ever depends on this interface, so the actual
// erasure coding scheme (Reed-Solomon, Cauchy, whatever a deployment
// chooses) is never this package's concern.
type Codec interface {
	// Decode takes the segment's K data block slots and M check block
	// slots, each either the block's bytes or nil if that block was
	// never fetched, and returns the K reconstructed data blocks in
	// order. It requires at least K of the K+M slots to be non-nil.
	Decode(dataBlocks, checkBlocks [][]byte, blockSize int) ([][]byte, error)

	// Encode regenerates the M check blocks from a complete set of K
	// data blocks, for re-deriving a check block the heal pass finds
	// missing once reconstruction has produced the data blocks it's
	// computed from.
	Encode(dataBlocks [][]byte, blockSize int) ([][]byte, error)
}

// CodecFactory resolves the Codec to use for a segment of the given
// dimensions, since different (K, M) pairs may require different
// generator matrices or even different libraries entirely.
type CodecFactory interface {
	GetCodec(k, m, blockSize int) (Codec, error)
}
