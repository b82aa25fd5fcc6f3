// Package provider implements the storage-provider side of the chunk
// protocol: accepting an encrypted chunk as ordered segments, pledging
// that its plaintext matches a claimed digest, and serving it back.
package provider

import "time"

// Status is the negotiation state of a stored chunk. It only moves forward.
type Status int

const (
	StatusEmpty Status = iota
	StatusSegmentsDeclared
	StatusDataComplete
	StatusSigned
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "EMPTY"
	case StatusSegmentsDeclared:
		return "SEGMENTS_DECLARED"
	case StatusDataComplete:
		return "DATA_COMPLETE"
	case StatusSigned:
		return "SIGNED"
	default:
		return "UNKNOWN"
	}
}

// Chunk is a provider-side chunk record.
//
// ID is the digest of the encrypted bytes and RealID the claimed digest
// of the plaintext. RealIDVerified is set only after the chunk has been
// decrypted and its digest compared.
type Chunk struct {
	ID             string
	RealID         string
	PubKey         string
	SegmentHashes  []string
	Received       []bool
	Length         int64
	RealLength     int64
	RealIDVerified bool
	Decrypted      bool
	Status         Status
	ExpiresAt      int64
	PledgedAt      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Complete reports whether every declared segment has arrived.
func (c *Chunk) Complete() bool {
	for _, r := range c.Received {
		if !r {
			return false
		}
	}
	return len(c.Received) > 0
}

// Missing returns the indexes of segments not yet received.
func (c *Chunk) Missing() []int {
	var out []int
	for i, r := range c.Received {
		if !r {
			out = append(out, i)
		}
	}
	return out
}
