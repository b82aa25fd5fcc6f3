// Package accelerator fetches chunks from fast, untrusted caches in
// front of the ledger: a plain HTTP endpoint or an S3-compatible bucket.
// Both implement download.Source; the downloader verifies what they
// return.
package accelerator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/bitfsorg/chunkd/digest"
	"github.com/bitfsorg/chunkd/download"
	"github.com/bitfsorg/chunkd/httpx"
)

// ErrNotFound indicates the accelerator does not hold the chunk.
var ErrNotFound = errors.New("accelerator: chunk not found")

// MaxChunkSize bounds a single fetched object.
const MaxChunkSize = 64 << 20

// HTTPSource fetches GET {base}/chunks/{id}.
type HTTPSource struct {
	base   string
	client *retryablehttp.Client
}

var _ download.Source = (*HTTPSource)(nil)

// NewHTTPSource returns a source for the accelerator at base.
func NewHTTPSource(base string, retries int, timeout time.Duration) *HTTPSource {
	return &HTTPSource{base: strings.TrimRight(base, "/"), client: httpx.NewClient(retries, timeout)}
}

// Name implements download.Source.
func (s *HTTPSource) Name() string { return "accelerator:" + s.base }

// Fetch implements download.Source.
func (s *HTTPSource) Fetch(ctx context.Context, id string) ([]byte, error) {
	if !digest.Valid(id) {
		return nil, fmt.Errorf("accelerator: invalid id %q", id)
	}
	data, err := httpx.Get(ctx, s.client, s.base+"/chunks/"+id, MaxChunkSize)
	if errors.Is(err, httpx.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return data, err
}

// S3Config locates a bucket of chunks keyed {Prefix}{id}.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// PathStyle addresses the bucket in the URL path, as most
	// S3-compatible services other than AWS require.
	PathStyle bool
}

// S3Source reads chunks from an S3-compatible bucket.
type S3Source struct {
	cfg    S3Config
	client *s3.Client
}

var _ download.Source = (*S3Source)(nil)

// NewS3Source returns a source for cfg. Empty credentials fall back to
// anonymous access.
func NewS3Source(cfg S3Config) (*S3Source, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("accelerator: empty bucket")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.PathStyle,
	}
	if cfg.AccessKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		opts.Credentials = aws.AnonymousCredentials{}
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return &S3Source{cfg: cfg, client: s3.New(opts)}, nil
}

// Name implements download.Source.
func (s *S3Source) Name() string { return "s3:" + s.cfg.Bucket }

// Fetch implements download.Source.
func (s *S3Source) Fetch(ctx context.Context, id string) ([]byte, error) {
	if !digest.Valid(id) {
		return nil, fmt.Errorf("accelerator: invalid id %q", id)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.cfg.Prefix + id),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("accelerator: s3 get %s: %w", id, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(out.Body, MaxChunkSize+1))
	if err != nil {
		return nil, fmt.Errorf("accelerator: s3 read %s: %w", id, err)
	}
	if len(data) > MaxChunkSize {
		return nil, fmt.Errorf("accelerator: s3 object %s exceeds %d bytes", id, MaxChunkSize)
	}
	return data, nil
}
