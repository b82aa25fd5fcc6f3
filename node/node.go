// Package node assembles a chunkd process from its configuration: the
// chunk repository and cache, the upload and download pipelines with
// their backends, and optionally a local storage provider.
package node

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/sirupsen/logrus"

	"github.com/bitfsorg/chunkd/accelerator"
	"github.com/bitfsorg/chunkd/chunkcrypt"
	"github.com/bitfsorg/chunkd/chunkinfo"
	"github.com/bitfsorg/chunkd/config"
	"github.com/bitfsorg/chunkd/decryptworker"
	"github.com/bitfsorg/chunkd/discovery"
	"github.com/bitfsorg/chunkd/download"
	"github.com/bitfsorg/chunkd/keystore"
	"github.com/bitfsorg/chunkd/ledger"
	"github.com/bitfsorg/chunkd/logging"
	"github.com/bitfsorg/chunkd/metrics"
	"github.com/bitfsorg/chunkd/network"
	"github.com/bitfsorg/chunkd/notify"
	"github.com/bitfsorg/chunkd/protocol"
	"github.com/bitfsorg/chunkd/provider"
	"github.com/bitfsorg/chunkd/repository"
	"github.com/bitfsorg/chunkd/storage"
	"github.com/bitfsorg/chunkd/upload"
)

var (
	// ErrNoBackend indicates uploads were requested but no backend is usable.
	ErrNoBackend = errors.New("node: no upload backend configured")

	// ErrMissingKey indicates a component needs a key that was not supplied.
	ErrMissingKey = errors.New("node: missing key")
)

// Options carries what the configuration file cannot.
type Options struct {
	// FeeKey funds ledger transactions.
	FeeKey *ec.PrivateKey
	// ProviderKey is the identity of the local provider.
	ProviderKey *ec.PrivateKey
	// Chain replaces the RPC client built from the configuration.
	Chain    network.BlockchainService
	Resolver discovery.Resolver
	// WorkerCommand runs decrypt workers as child processes; the node
	// appends "--key-file <path>". Empty runs them in-process.
	WorkerCommand []string
	// Env is consulted for RPC overrides; nil reads the process environment.
	Env    map[string]string
	Logger *logrus.Logger
}

// Node is a running chunkd instance.
type Node struct {
	cfg  config.Config
	log  *logrus.Logger
	hub  *notify.Hub
	obs  metrics.Observer
	prom *metrics.Prometheus

	repo       *repository.GormRepository
	cache      *storage.FileStore
	uploader   *upload.Uploader
	downloader *download.Downloader
	sources    []download.Source

	mux         *protocol.Mux
	providerKey *ec.PrivateKey

	closers []io.Closer
}

// New opens every component cfg asks for. In-progress transfers left by
// a previous run are re-queued before the pipelines start.
func New(ctx context.Context, cfg config.Config, opts Options) (*Node, error) {
	n := &Node{cfg: cfg, hub: notify.NewHub(), obs: metrics.Nop{}}
	n.log = opts.Logger
	if n.log == nil {
		log, closer, err := logging.New(cfg.LogLevel, cfg.LogFile)
		if err != nil {
			return nil, err
		}
		n.log, n.closers = log, append(n.closers, closer)
	}
	if opts.Env == nil {
		opts.Env = config.Environ()
	}
	if err := n.open(ctx, opts); err != nil {
		_ = n.Close()
		return nil, err
	}
	return n, nil
}

func (n *Node) open(ctx context.Context, opts Options) error {
	cfg := n.cfg

	repo, err := repository.Open(filepath.Join(cfg.DataDir, "chunks.db"))
	if err != nil {
		return err
	}
	n.repo = repo
	n.closers = append(n.closers, repo)
	ul, dl, err := repo.RecoverInProgress(ctx)
	if err != nil {
		return err
	}
	if ul+dl > 0 {
		n.log.WithFields(logrus.Fields{"uploads": ul, "downloads": dl}).Info("requeued interrupted transfers")
	}

	if n.cache, err = storage.NewFileStore(filepath.Join(cfg.DataDir, "cache")); err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		if n.prom, err = metrics.NewPrometheus(); err != nil {
			return err
		}
		n.obs = n.prom
	}

	resolver := opts.Resolver
	if resolver == nil {
		if cfg.DNSUpstream != "" {
			resolver = &discovery.DNSResolver{Upstream: cfg.DNSUpstream, RequireDNSSEC: cfg.RequireDNSSEC}
		} else {
			resolver = discovery.SystemResolver{}
		}
	}

	chain := opts.Chain
	if chain == nil {
		rpcCfg, err := network.ResolveConfig(&network.RPCConfig{
			URL:      cfg.RPCURL,
			User:     cfg.RPCUser,
			Password: cfg.RPCPassword,
			Retries:  cfg.HTTPRetries,
			Timeout:  cfg.HTTPTimeout,
		}, opts.Env, cfg.Network)
		if err != nil {
			n.log.WithError(err).Info("ledger node disabled")
		} else {
			chain = network.NewRPCClient(*rpcCfg)
		}
	}

	var sender upload.Sender
	n.sources = n.accelerators(ctx, resolver)
	switch cfg.Backend {
	case config.BackendProvider:
		b, err := n.remoteProvider(ctx, resolver)
		if err != nil {
			return err
		}
		sender = b
		n.sources = append(n.sources, b)
	default:
		s, src, err := n.ledger(ctx, resolver, chain, opts.FeeKey)
		if err != nil {
			return err
		}
		if s != nil {
			sender = s
		}
		if src != nil {
			n.sources = append(n.sources, src)
		}
	}

	if sender != nil {
		n.uploader = upload.New(repo, n.cache, sender, upload.Options{
			ChunkSize:    cfg.ChunkSize,
			RetryLimit:   cfg.UploadRetryLimit,
			LoopInterval: cfg.UploadLoopInterval,
			Workers:      cfg.UploadWorkers,
			Hub:          n.hub,
			Logger:       n.log,
			Observer:     n.obs,
		})
	}
	n.downloader = download.New(repo, n.cache, n.sources, download.Options{
		ConcurrentDownloadDelay: cfg.ConcurrentDownloadDelay,
		FetchWorkers:            cfg.FetchWorkers,
		Hub:                     n.hub,
		Logger:                  n.log,
		Observer:                n.obs,
	})

	if cfg.ServeProvider {
		return n.localProvider(opts)
	}
	return nil
}

// accelerators lists configured and discovered accelerator sources, S3 last.
func (n *Node) accelerators(ctx context.Context, resolver discovery.Resolver) []download.Source {
	cfg := n.cfg
	urls := append([]string(nil), cfg.AcceleratorURLs...)
	if cfg.DiscoveryDomain != "" {
		found, err := discovery.URLs(ctx, resolver, cfg.DiscoveryDomain, discovery.ServiceAccelerator, "http")
		if err != nil {
			n.log.WithError(err).Debug("no accelerators discovered")
		}
		urls = append(urls, found...)
	}
	var out []download.Source
	for _, u := range urls {
		out = append(out, accelerator.NewHTTPSource(u, cfg.HTTPRetries, cfg.HTTPTimeout))
	}
	if cfg.S3Bucket != "" {
		s3src, err := accelerator.NewS3Source(accelerator.S3Config{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			n.log.WithError(err).Warn("s3 accelerator disabled")
		} else {
			out = append(out, s3src)
		}
	}
	return out
}

func (n *Node) ledger(ctx context.Context, resolver discovery.Resolver, chain network.BlockchainService,
	feeKey *ec.PrivateKey) (*ledger.Sender, *ledger.Source, error) {
	cfg := n.cfg

	var index ledger.Index
	if cfg.IndexURL != "" {
		index = ledger.NewHTTPIndex(cfg.IndexURL, cfg.HTTPRetries, cfg.HTTPTimeout)
	} else {
		bolt, err := ledger.OpenBoltIndex(filepath.Join(cfg.DataDir, "ledger", "index.db"))
		if err != nil {
			return nil, nil, err
		}
		n.closers = append(n.closers, bolt)
		index = bolt
	}

	edge := cfg.EdgeURL
	if edge == "" && cfg.DiscoveryDomain != "" {
		if urls, err := discovery.URLs(ctx, resolver, cfg.DiscoveryDomain, discovery.ServiceEdge, "http"); err == nil {
			edge = urls[0]
		}
	}

	var src *ledger.Source
	if chain != nil || edge != "" {
		var err error
		src, err = ledger.NewSource(ledger.SourceConfig{
			Index:   index,
			EdgeURL: edge,
			Node:    chain,
			Retries: cfg.HTTPRetries,
			Timeout: cfg.HTTPTimeout,
			Logger:  n.log,
		})
		if err != nil {
			return nil, nil, err
		}
	}
	if chain == nil || feeKey == nil {
		n.log.Info("ledger uploads disabled: need a node and a fee key")
		return nil, src, nil
	}
	s, err := ledger.NewSender(ledger.SenderConfig{
		Node:             chain,
		Index:            index,
		Key:              feeKey,
		FeeRate:          cfg.FeeRate,
		MinConfirmations: cfg.MinConfirmations,
		ConfirmTimeout:   cfg.ConfirmTimeout,
		Logger:           n.log,
	})
	if err != nil {
		return nil, nil, err
	}
	n.log.WithField("address", s.Address()).Info("ledger uploads enabled")
	return s, src, nil
}

func (n *Node) remoteProvider(ctx context.Context, resolver discovery.Resolver) (*provider.Backend, error) {
	cfg := n.cfg
	url := cfg.ProviderURL
	if url == "" {
		urls, err := discovery.URLs(ctx, resolver, cfg.DiscoveryDomain, discovery.ServiceProvider, "http")
		if err != nil {
			return nil, err
		}
		url = urls[0]
	}

	var (
		pub *ec.PublicKey
		err error
	)
	if cfg.ProviderPubKey != "" {
		pub, err = chunkcrypt.ParsePubKey(cfg.ProviderPubKey)
	} else if cfg.DiscoveryDomain != "" {
		pub, err = discovery.ProviderKey(ctx, resolver, cfg.DiscoveryDomain)
	} else {
		err = fmt.Errorf("%w: provider_pubkey", ErrMissingKey)
	}
	if err != nil {
		return nil, err
	}
	return &provider.Backend{
		Client: &provider.Client{
			Caller:      protocol.NewClient(url, cfg.HTTPRetries, cfg.HTTPTimeout),
			ProviderKey: pub,
		},
		Label: url,
	}, nil
}

func (n *Node) localProvider(opts Options) error {
	cfg := n.cfg
	key := opts.ProviderKey
	if key == nil {
		return fmt.Errorf("%w: provider identity", ErrMissingKey)
	}
	dir := filepath.Join(cfg.DataDir, "provider")
	repo, err := provider.OpenBoltRepository(filepath.Join(dir, "provider.db"))
	if err != nil {
		return err
	}
	n.closers = append(n.closers, repo)

	var launcher decryptworker.Launcher = &decryptworker.InProcessLauncher{Key: key}
	if len(opts.WorkerCommand) > 0 {
		keyPath := filepath.Join(dir, "worker.key")
		if err := keystore.WriteKeyFile(keyPath, key); err != nil {
			return err
		}
		args := append(append([]string(nil), opts.WorkerCommand[1:]...), "--key-file", keyPath)
		launcher = &decryptworker.ExecLauncher{Path: opts.WorkerCommand[0], Args: args}
	}
	sup := decryptworker.NewSupervisor(launcher, decryptworker.Options{
		Concurrency: cfg.DecryptWorkers,
		Timeout:     cfg.DecryptTimeout,
		Logger:      n.log,
	})
	h, err := provider.NewHandler(provider.Config{
		DataDir:                  dir,
		Repo:                     repo,
		Decryptor:                sup,
		Signer:                   &provider.KeySigner{Key: key},
		RevalidateDecryptedChunk: cfg.RevalidateDecryptedChunk,
		Logger:                   n.log,
	})
	if err != nil {
		return err
	}
	n.mux = protocol.NewMux(n.log, n.obs)
	h.Register(n.mux)
	n.providerKey = key
	return nil
}

// ProviderID is the hex public key of the local provider, or "".
func (n *Node) ProviderID() string {
	if n.providerKey == nil {
		return ""
	}
	return hex.EncodeToString(n.providerKey.PubKey().Compressed())
}

// Sources returns the download sources in priority order.
func (n *Node) Sources() []download.Source { return n.sources }

// UploadPath uploads a file or directory and returns its content id.
func (n *Node) UploadPath(ctx context.Context, path string) (string, error) {
	if n.uploader == nil {
		return "", ErrNoBackend
	}
	return n.uploader.UploadPath(ctx, path)
}

// UploadFile uploads data and returns its content id.
func (n *Node) UploadFile(ctx context.Context, data []byte) (string, error) {
	if n.uploader == nil {
		return "", ErrNoBackend
	}
	return n.uploader.UploadFile(ctx, data)
}

// EnqueueChunksForUpload queues pre-split chunks without waiting.
func (n *Node) EnqueueChunksForUpload(ctx context.Context, chunks [][]byte, fileID string) ([]string, error) {
	if n.uploader == nil {
		return nil, ErrNoBackend
	}
	return n.uploader.EnqueueChunksForUpload(ctx, chunks, fileID)
}

// GetFile returns the content behind id in enc.
func (n *Node) GetFile(ctx context.Context, id string, enc download.Encoding) ([]byte, error) {
	return n.downloader.GetFile(ctx, id, enc)
}

// GetDir returns the directory listing behind id.
func (n *Node) GetDir(ctx context.Context, id string) (*chunkinfo.Dir, error) {
	return n.downloader.GetDir(ctx, id)
}

// Close stops the pipelines and closes every store, newest first.
func (n *Node) Close() error {
	var errs []error
	if n.uploader != nil {
		errs = append(errs, n.uploader.Close())
	}
	for i := len(n.closers) - 1; i >= 0; i-- {
		errs = append(errs, n.closers[i].Close())
	}
	n.closers = nil
	return errors.Join(errs...)
}
