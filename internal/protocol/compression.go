package protocol

import "github.com/klauspost/compress/s2"

// Compression abstracts the body compression capability negotiated during
// STARTUP. It applies to the body only: OPTIONS and STARTUP frames
// themselves are always sent uncompressed, and the caller is responsible
// for not invoking Compress/Decompress before negotiation completes.
type Compression interface {
	Compress(body []byte) ([]byte, error)
	Decompress(body []byte) ([]byte, error)
	// Flag is the bit ORed into the frame header's flags byte whenever this
	// algorithm is used to compress a body.
	Flag() byte
	// Name is the STARTUP COMPRESSION option value, e.g. "lz4" or "snappy".
	Name() string
}

// Uncompressed is the identity Compression, used before negotiation and
// whenever the client did not request compression.
type Uncompressed struct{}

func (Uncompressed) Compress(body []byte) ([]byte, error)   { return body, nil }
func (Uncompressed) Decompress(body []byte) ([]byte, error) { return body, nil }
func (Uncompressed) Flag() byte                             { return 0 }
func (Uncompressed) Name() string                            { return "" }

// Lz4 is a negotiation-ready seam: no LZ4 implementation exists anywhere
// in this project's retrieval pack, so it is left injectable rather than
// fabricated (see DESIGN.md). Snappy below is wired to a real codec.
type Lz4 struct {
	// Compress/Decompress are injected so the core has no hard dependency
	// on a specific LZ4 library; a real build wires these to e.g.
	// github.com/pierrec/lz4/v4.
	CompressFunc   func([]byte) ([]byte, error)
	DecompressFunc func([]byte) ([]byte, error)
}

func (c Lz4) Compress(body []byte) ([]byte, error) {
	if c.CompressFunc == nil {
		return nil, ErrCompression
	}
	return c.CompressFunc(body)
}

func (c Lz4) Decompress(body []byte) ([]byte, error) {
	if c.DecompressFunc == nil {
		return nil, ErrCompression
	}
	return c.DecompressFunc(body)
}

func (Lz4) Flag() byte   { return FlagCompression }
func (Lz4) Name() string { return "lz4" }

// Snappy negotiates the "snappy" STARTUP option and compresses bodies with
// klauspost/compress/s2, which implements the same block Encode/Decode API
// as the reference Snappy codec (and reads plain Snappy blocks as a
// strict subset of the S2 format), so no vendored/fabricated Snappy
// dependency is needed.
type Snappy struct{}

func (Snappy) Compress(body []byte) ([]byte, error) {
	return s2.EncodeSnappy(nil, body), nil
}

func (Snappy) Decompress(body []byte) ([]byte, error) {
	n, err := s2.DecodedLen(body)
	if err != nil {
		return nil, ErrCompression
	}
	dst := make([]byte, n)
	out, err := s2.Decode(dst, body)
	if err != nil {
		return nil, ErrCompression
	}
	return out, nil
}

func (Snappy) Flag() byte   { return FlagCompression }
func (Snappy) Name() string { return "snappy" }
