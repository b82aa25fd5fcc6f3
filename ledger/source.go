package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/bitfsorg/chunkd/digest"
	"github.com/bitfsorg/chunkd/download"
	"github.com/bitfsorg/chunkd/httpx"
	"github.com/bitfsorg/chunkd/logging"
	"github.com/bitfsorg/chunkd/network"
	"github.com/bitfsorg/chunkd/tx"
)

// SourceConfig configures a Source. At least one of EdgeURL and Node
// must be set.
type SourceConfig struct {
	Index Index
	// EdgeURL serves GET {EdgeURL}/tx/{txid}/data with the raw payload.
	EdgeURL string
	Node    network.BlockchainService
	Retries int
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

// Source reads chunks back from their transactions. It implements
// download.Source.
type Source struct {
	cfg    SourceConfig
	edge   string
	client *retryablehttp.Client
	log    logrus.FieldLogger
}

var _ download.Source = (*Source)(nil)

// NewSource returns a Source for cfg.
func NewSource(cfg SourceConfig) (*Source, error) {
	if cfg.Index == nil || (cfg.EdgeURL == "" && cfg.Node == nil) {
		return nil, fmt.Errorf("%w: source needs an index and an edge or node", tx.ErrNilParam)
	}
	return &Source{
		cfg:    cfg,
		edge:   strings.TrimRight(cfg.EdgeURL, "/"),
		client: httpx.NewClient(cfg.Retries, cfg.Timeout),
		log:    logging.OrDiscard(cfg.Logger).WithField("component", "ledger"),
	}, nil
}

// Name implements download.Source.
func (s *Source) Name() string { return "ledger" }

// Fetch tries every indexed transaction for id, first through the edge
// cache and then through the node, and returns the first payload that
// hashes to id.
func (s *Source) Fetch(ctx context.Context, id string) ([]byte, error) {
	txids, err := s.cfg.Index.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(txids) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotIndexed, id)
	}
	for _, txid := range txids {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log := s.log.WithFields(logrus.Fields{"chunk": id, "txid": txid})
		if s.edge != "" {
			data, err := httpx.Get(ctx, s.client, s.edge+"/tx/"+txid+"/data", tx.MaxDataSize)
			switch {
			case err != nil:
				log.WithError(err).Debug("edge fetch failed")
			case digest.Verify(id, data):
				return data, nil
			default:
				log.Warn("edge payload does not match chunk id")
			}
		}
		if s.cfg.Node != nil {
			data, err := s.fromNode(ctx, id, txid)
			if err == nil {
				return data, nil
			}
			log.WithError(err).Debug("node fetch failed")
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnavailable, id)
}

func (s *Source) fromNode(ctx context.Context, id, txid string) ([]byte, error) {
	raw, err := s.cfg.Node.GetRawTx(ctx, txid)
	if err != nil {
		return nil, err
	}
	gotID, data, err := tx.ParseChunkTx(raw)
	if err != nil {
		return nil, err
	}
	if gotID != id || !digest.Verify(id, data) {
		return nil, fmt.Errorf("ledger: tx %s carries %s, not %s", txid, gotID, id)
	}
	return data, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, httpx.ErrNotFound)
}
