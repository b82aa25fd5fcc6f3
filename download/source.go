package download

import "context"

// Source is a remote place chunk bytes can be fetched from. Sources are
// untrusted: the Downloader verifies every payload against its id.
type Source interface {
	Name() string
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc struct {
	SourceName string
	Fn         func(ctx context.Context, id string) ([]byte, error)
}

// Name implements Source.
func (s SourceFunc) Name() string { return s.SourceName }

// Fetch implements Source.
func (s SourceFunc) Fetch(ctx context.Context, id string) ([]byte, error) { return s.Fn(ctx, id) }
