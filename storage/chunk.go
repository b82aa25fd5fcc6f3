package storage

// DefaultChunkSize is the default chunk size for content splitting (1MB).
const DefaultChunkSize = 1 << 20

// SplitIntoChunks splits data into fixed-size chunks.
// The last chunk may be smaller than chunkSize. Empty input yields a
// single empty chunk so that every file maps to at least one chunk.
func SplitIntoChunks(data []byte, chunkSize int) ([][]byte, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if len(data) == 0 {
		return [][]byte{{}}, nil
	}
	chunks := make([][]byte, 0, (len(data)+chunkSize-1)/chunkSize)
	for i := 0; i < len(data); i += chunkSize {
		end := min(i+chunkSize, len(data))
		chunk := make([]byte, end-i)
		copy(chunk, data[i:end])
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
