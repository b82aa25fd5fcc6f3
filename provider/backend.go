package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfsorg/chunkd/download"
	"github.com/bitfsorg/chunkd/upload"
)

// Backend plugs a remote provider into the chunk pipelines: uploads are
// stored sealed to the provider and downloads ask for the plaintext by
// its id.
type Backend struct {
	Client *Client
	// Label names the provider in logs and metrics.
	Label string
}

var (
	_ upload.Sender   = (*Backend)(nil)
	_ download.Source = (*Backend)(nil)
)

// Send implements upload.Sender. The returned record id is the
// provider's encrypted chunk id. A pledge that fails to verify counts
// as an unvalidated upload.
func (b *Backend) Send(ctx context.Context, id string, data []byte) (string, error) {
	p, err := b.Client.StoreChunk(ctx, data)
	if errors.Is(err, ErrBadPledge) {
		return "", fmt.Errorf("%w: %w", upload.ErrNotValidated, err)
	}
	if err != nil {
		return "", err
	}
	if p.RealID != id {
		return p.ChunkID, fmt.Errorf("%w: pledge covers %s, not %s", upload.ErrNotValidated, p.RealID, id)
	}
	return p.ChunkID, nil
}

// Name implements download.Source.
func (b *Backend) Name() string {
	if b.Label == "" {
		return "provider"
	}
	return "provider:" + b.Label
}

// Fetch implements download.Source.
func (b *Backend) Fetch(ctx context.Context, id string) ([]byte, error) {
	return b.Client.GetDecryptedChunk(ctx, id)
}
