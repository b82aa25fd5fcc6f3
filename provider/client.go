package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/bitfsorg/chunkd/chunkcrypt"
	"github.com/bitfsorg/chunkd/digest"
	"github.com/bitfsorg/chunkd/protocol"
)

// ErrBadPledge indicates a pledge signature that does not verify against
// the provider's public key.
var ErrBadPledge = errors.New("provider: pledge signature does not verify")

// Pledge is a provider's signed promise to hold a chunk.
type Pledge struct {
	ChunkID   string
	RealID    string
	Signature string
	PledgedAt int64
}

// Client drives the upload side of the provider protocol.
type Client struct {
	Caller protocol.Caller
	// ProviderKey is the public key chunks are sealed to and pledges are
	// verified against.
	ProviderKey *ec.PublicKey
	SegmentSize int
	// TTL sets the requested expiry; zero means no expiry.
	TTL time.Duration
}

// StoreChunk seals plaintext to the provider, sends it segment by
// segment and returns the verified pledge.
func (c *Client) StoreChunk(ctx context.Context, plaintext []byte) (*Pledge, error) {
	sealed, err := chunkcrypt.Seal(plaintext, c.ProviderKey)
	if err != nil {
		return nil, err
	}
	size := c.SegmentSize
	if size <= 0 {
		size = chunkcrypt.DefaultSegmentSize
	}
	segments, hashes, err := chunkcrypt.Segments(sealed.Ciphertext, size)
	if err != nil {
		return nil, err
	}
	chunkID := digest.Digest(sealed.Ciphertext)
	realID := digest.Digest(plaintext)

	var expires int64
	if c.TTL > 0 {
		expires = time.Now().Add(c.TTL).Unix()
	}
	if err := c.Caller.Call(ctx, protocol.MsgStoreChunkRequest, StoreChunkRequestParams{
		ChunkID:   chunkID,
		Length:    int64(len(sealed.Ciphertext)),
		ExpiresAt: expires,
	}); err != nil {
		return nil, err
	}
	if err := c.Caller.Call(ctx, protocol.MsgStoreChunkSegments, StoreChunkSegmentsParams{
		ChunkID:       chunkID,
		SegmentHashes: hashes,
		ChunkLength:   int64(len(sealed.Ciphertext)),
		RealID:        realID,
		PubKey:        sealed.PubKeyHex(),
		RealLength:    int64(len(plaintext)),
	}); err != nil {
		return nil, err
	}
	for i, seg := range segments {
		if err := c.Caller.Call(ctx, protocol.MsgStoreChunkData, StoreChunkDataParams{
			ChunkID:      chunkID,
			SegmentIndex: i,
			SegmentData:  seg,
		}); err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
	}

	p := &Pledge{RealID: realID}
	if err := c.Caller.Call(ctx, protocol.MsgStoreChunkSignatureRequest, ChunkIDParams{ChunkID: chunkID},
		&p.ChunkID, &p.Signature, &p.PledgedAt); err != nil {
		return nil, err
	}
	if p.ChunkID != chunkID || !VerifyPledge(c.ProviderKey, chunkID, p.PledgedAt, p.Signature) {
		return nil, ErrBadPledge
	}
	return p, nil
}

// GetChunk fetches encrypted bytes and checks them against chunkID.
func (c *Client) GetChunk(ctx context.Context, chunkID string) ([]byte, error) {
	var id string
	var data []byte
	if err := c.Caller.Call(ctx, protocol.MsgGetChunk, ChunkIDParams{ChunkID: chunkID}, &id, &data); err != nil {
		return nil, err
	}
	if !digest.Verify(chunkID, data) {
		return nil, ErrInvalidHash.Wrap("chunk %s", chunkID)
	}
	return data, nil
}

// GetDecryptedChunk fetches plaintext by real id and checks its digest.
func (c *Client) GetDecryptedChunk(ctx context.Context, realID string) ([]byte, error) {
	var id string
	var data []byte
	if err := c.Caller.Call(ctx, protocol.MsgGetDecryptedChunk, RealIDParams{RealID: realID}, &id, &data); err != nil {
		return nil, err
	}
	if !digest.Verify(realID, data) {
		return nil, ErrInvalidHash.Wrap("real id %s", realID)
	}
	return data, nil
}
