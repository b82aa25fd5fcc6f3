package provider

// StoreChunkRequestParams is the body of STORE_CHUNK_REQUEST.
type StoreChunkRequestParams struct {
	ChunkID   string `json:"chunkId"`
	Length    int64  `json:"length"`
	ExpiresAt int64  `json:"expires"`
}

// StoreChunkSegmentsParams is the body of STORE_CHUNK_SEGMENTS.
type StoreChunkSegmentsParams struct {
	ChunkID       string   `json:"chunkId"`
	SegmentHashes []string `json:"segmentHashes"`
	ChunkLength   int64    `json:"chunkLength"`
	RealID        string   `json:"realId"`
	PubKey        string   `json:"pubKey"`
	RealLength    int64    `json:"realLength"`
}

// StoreChunkDataParams is the body of STORE_CHUNK_DATA.
type StoreChunkDataParams struct {
	ChunkID      string `json:"chunkId"`
	SegmentIndex int    `json:"segmentIndex"`
	SegmentData  []byte `json:"segmentData"`
}

// ChunkIDParams is the body of STORE_CHUNK_SIGNATURE_REQUEST and GET_CHUNK.
type ChunkIDParams struct {
	ChunkID string `json:"chunkId"`
}

// RealIDParams is the body of GET_DECRYPTED_CHUNK.
type RealIDParams struct {
	RealID string `json:"realId"`
}
