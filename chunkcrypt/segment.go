package chunkcrypt

import "github.com/bitfsorg/chunkd/digest"

// DefaultSegmentSize is the size of the pieces an encrypted chunk is sent in.
const DefaultSegmentSize = 64 * 1024

// Segments splits ciphertext into ordered segments of at most size bytes
// and returns them with their digests.
func Segments(ciphertext []byte, size int) ([][]byte, []string, error) {
	if size <= 0 {
		return nil, nil, ErrInvalidSegmentSize
	}
	var segs [][]byte
	var hashes []string
	for off := 0; off < len(ciphertext); off += size {
		end := min(off+size, len(ciphertext))
		seg := ciphertext[off:end]
		segs = append(segs, seg)
		hashes = append(hashes, digest.Digest(seg))
	}
	return segs, hashes, nil
}
