package provider

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bitfsorg/chunkd/chunkcrypt"
	"github.com/bitfsorg/chunkd/decryptworker"
	"github.com/bitfsorg/chunkd/digest"
	"github.com/bitfsorg/chunkd/logging"
	"github.com/bitfsorg/chunkd/protocol"
	"github.com/bitfsorg/chunkd/storage"
)

const (
	// DefaultMaxSegments bounds the manifest of a single chunk.
	DefaultMaxSegments = 4096

	// DefaultMaxChunkLength bounds the encrypted size of a single chunk.
	DefaultMaxChunkLength = 64 << 20
)

// Decryptor decrypts an encrypted chunk file into a plaintext file.
type Decryptor interface {
	Decrypt(ctx context.Context, job decryptworker.Job) error
}

// AdmissionPolicy decides whether to accept a store request.
type AdmissionPolicy interface {
	Admit(ctx context.Context, p StoreChunkRequestParams) error
}

// AcceptAll admits every request.
type AcceptAll struct{}

// Admit implements AdmissionPolicy.
func (AcceptAll) Admit(context.Context, StoreChunkRequestParams) error { return nil }

// Config configures a Handler.
type Config struct {
	// DataDir holds segment, encrypted and decrypted chunk files.
	DataDir   string
	Repo      Repository
	Decryptor Decryptor
	Signer    Signer
	Admission AdmissionPolicy

	// RevalidateDecryptedChunk re-checks the digest of cached plaintext on
	// every GET_DECRYPTED_CHUNK.
	RevalidateDecryptedChunk bool

	MaxSegments    int
	MaxChunkLength int64
	Logger         logrus.FieldLogger
	Now            func() time.Time
}

// Handler answers the storage-provider messages. Handlers touching the
// same chunk id run one at a time; a failed message leaves the persisted
// record unchanged.
type Handler struct {
	repo       Repository
	segments   *storage.FileStore
	encrypted  *storage.FileStore
	decrypted  *storage.FileStore
	tmpDir     string
	decryptor  Decryptor
	signer     Signer
	admission  AdmissionPolicy
	revalidate bool
	maxSegs    int
	maxLen     int64
	locks      *keyedMutex
	log        logrus.FieldLogger
	now        func() time.Time
}

// NewHandler creates the stores under cfg.DataDir and returns a Handler.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Repo == nil || cfg.Decryptor == nil || cfg.Signer == nil {
		return nil, fmt.Errorf("provider: repo, decryptor and signer are required")
	}
	h := &Handler{
		repo:       cfg.Repo,
		tmpDir:     filepath.Join(cfg.DataDir, "tmp"),
		decryptor:  cfg.Decryptor,
		signer:     cfg.Signer,
		admission:  cfg.Admission,
		revalidate: cfg.RevalidateDecryptedChunk,
		maxSegs:    cfg.MaxSegments,
		maxLen:     cfg.MaxChunkLength,
		locks:      newKeyedMutex(),
		log:        logging.OrDiscard(cfg.Logger).WithField("component", "provider"),
		now:        cfg.Now,
	}
	if h.admission == nil {
		h.admission = AcceptAll{}
	}
	if h.maxSegs <= 0 {
		h.maxSegs = DefaultMaxSegments
	}
	if h.maxLen <= 0 {
		h.maxLen = DefaultMaxChunkLength
	}
	if h.now == nil {
		h.now = time.Now
	}

	var err error
	if h.segments, err = storage.NewFileStore(filepath.Join(cfg.DataDir, "segments")); err != nil {
		return nil, err
	}
	if h.encrypted, err = storage.NewFileStore(filepath.Join(cfg.DataDir, "encrypted")); err != nil {
		return nil, err
	}
	if h.decrypted, err = storage.NewFileStore(filepath.Join(cfg.DataDir, "decrypted")); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(h.tmpDir, 0700); err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}
	return h, nil
}

// Register installs the six message handlers on r.
func (h *Handler) Register(r protocol.Router) {
	r.Handle(protocol.MsgStoreChunkRequest, decodeInto(h.StoreChunkRequest))
	r.Handle(protocol.MsgStoreChunkSegments, decodeInto(h.StoreChunkSegments))
	r.Handle(protocol.MsgStoreChunkData, decodeInto(h.StoreChunkData))
	r.Handle(protocol.MsgStoreChunkSignatureRequest, decodeInto(h.StoreChunkSignatureRequest))
	r.Handle(protocol.MsgGetChunk, decodeInto(h.GetChunk))
	r.Handle(protocol.MsgGetDecryptedChunk, decodeInto(h.GetDecryptedChunk))
}

func decodeInto[P any](fn func(context.Context, P) ([]any, error)) protocol.HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) ([]any, error) {
		var p P
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, ErrInvalidParams.Wrap("%v", err)
		}
		return fn(ctx, p)
	}
}

func internal(err error) error {
	return ErrInternal.Wrap("%v", err)
}

// StoreChunkRequest asks whether the provider will take a chunk. It
// persists nothing.
func (h *Handler) StoreChunkRequest(ctx context.Context, p StoreChunkRequestParams) ([]any, error) {
	if !digest.Valid(p.ChunkID) {
		return nil, ErrInvalidParams.Wrap("chunkId")
	}
	if p.Length < 0 || p.Length > h.maxLen {
		return nil, ErrRejected.Wrap("length %d", p.Length)
	}
	if err := h.admission.Admit(ctx, p); err != nil {
		return nil, ErrRejected.Wrap("%v", err)
	}
	return []any{p.ChunkID, true}, nil
}

func (h *Handler) validateManifest(p StoreChunkSegmentsParams) error {
	switch {
	case !digest.Valid(p.ChunkID):
		return ErrInvalidParams.Wrap("chunkId")
	case !digest.Valid(p.RealID):
		return ErrInvalidParams.Wrap("realId")
	case len(p.SegmentHashes) == 0 || len(p.SegmentHashes) > h.maxSegs:
		return ErrInvalidParams.Wrap("segment count %d", len(p.SegmentHashes))
	case p.ChunkLength < chunkcrypt.MinCiphertextLen || p.ChunkLength > h.maxLen:
		return ErrInvalidParams.Wrap("chunkLength %d", p.ChunkLength)
	case p.RealLength < 0 || p.RealLength > p.ChunkLength:
		return ErrInvalidParams.Wrap("realLength %d", p.RealLength)
	}
	for i, s := range p.SegmentHashes {
		if !digest.Valid(s) {
			return ErrInvalidParams.Wrap("segmentHashes[%d]", i)
		}
	}
	if _, err := chunkcrypt.ParsePubKey(p.PubKey); err != nil {
		return ErrInvalidParams.Wrap("pubKey")
	}
	return nil
}

// StoreChunkSegments declares the ordered segment manifest of a chunk.
func (h *Handler) StoreChunkSegments(_ context.Context, p StoreChunkSegmentsParams) ([]any, error) {
	if err := h.validateManifest(p); err != nil {
		return nil, err
	}
	unlock := h.locks.Lock(p.ChunkID)
	defer unlock()

	existing, err := h.repo.Get(p.ChunkID)
	if err != nil {
		return nil, internal(err)
	}
	if existing != nil && existing.Status != StatusEmpty {
		return nil, ErrChunkAlreadyStored.Wrap("%s is %s", p.ChunkID, existing.Status)
	}

	now := h.now()
	c := &Chunk{
		ID:            p.ChunkID,
		RealID:        p.RealID,
		PubKey:        p.PubKey,
		SegmentHashes: append([]string(nil), p.SegmentHashes...),
		Received:      make([]bool, len(p.SegmentHashes)),
		Length:        p.ChunkLength,
		RealLength:    p.RealLength,
		Status:        StatusSegmentsDeclared,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := h.repo.Put(c); err != nil {
		return nil, internal(err)
	}
	h.log.WithFields(logrus.Fields{"chunk": c.ID, "segments": len(c.SegmentHashes)}).Debug("segments declared")
	return []any{p.ChunkID}, nil
}

// StoreChunkData receives one segment. The final segment triggers
// assembly; the assembled bytes must hash to the chunk id.
func (h *Handler) StoreChunkData(_ context.Context, p StoreChunkDataParams) ([]any, error) {
	if !digest.Valid(p.ChunkID) {
		return nil, ErrInvalidParams.Wrap("chunkId")
	}
	unlock := h.locks.Lock(p.ChunkID)
	defer unlock()

	c, err := h.repo.Get(p.ChunkID)
	if err != nil {
		return nil, internal(err)
	}
	if c == nil || c.Status == StatusEmpty {
		return nil, ErrChunkNotFound.Wrap("%s: segments not declared", p.ChunkID)
	}
	if p.SegmentIndex < 0 || p.SegmentIndex >= len(c.SegmentHashes) {
		return nil, ErrInvalidSegment.Wrap("%d of %d", p.SegmentIndex, len(c.SegmentHashes))
	}
	want := c.SegmentHashes[p.SegmentIndex]
	if digest.Digest(p.SegmentData) != want {
		return nil, ErrInvalidHash.Wrap("segment %d", p.SegmentIndex)
	}
	if c.Received[p.SegmentIndex] {
		return []any{c.ID, p.SegmentIndex, c.Status >= StatusDataComplete}, nil
	}

	c.Received[p.SegmentIndex] = true
	if !c.Complete() {
		if err := h.segments.Put(want, p.SegmentData); err != nil {
			return nil, internal(err)
		}
		c.UpdatedAt = h.now()
		if err := h.repo.Put(c); err != nil {
			return nil, internal(err)
		}
		return []any{c.ID, p.SegmentIndex, false}, nil
	}

	assembled, err := h.assemble(c, p.SegmentIndex, p.SegmentData)
	if err != nil {
		return nil, err
	}
	if int64(len(assembled)) != c.Length || digest.Digest(assembled) != c.ID {
		return nil, ErrInvalidHash.Wrap("assembled chunk does not match %s", c.ID)
	}
	if err := h.segments.Put(want, p.SegmentData); err != nil {
		return nil, internal(err)
	}
	if err := h.encrypted.Put(c.ID, assembled); err != nil {
		return nil, internal(err)
	}
	c.Received[p.SegmentIndex] = true
	c.Status = StatusDataComplete
	c.UpdatedAt = h.now()
	if err := h.repo.Put(c); err != nil {
		return nil, internal(err)
	}
	h.log.WithFields(logrus.Fields{"chunk": c.ID, "bytes": len(assembled)}).Info("chunk data complete")
	return []any{c.ID, p.SegmentIndex, true}, nil
}

// assemble concatenates the stored segments of c, substituting data at
// index pending (-1 for none).
func (h *Handler) assemble(c *Chunk, pending int, data []byte) ([]byte, error) {
	out := make([]byte, 0, c.Length)
	for i, hash := range c.SegmentHashes {
		if i == pending {
			out = append(out, data...)
			continue
		}
		seg, err := h.segments.Get(hash)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrChunkLost.Wrap("segment %d missing", i)
		}
		if err != nil {
			return nil, internal(err)
		}
		if digest.Digest(seg) != hash {
			return nil, ErrChunkLost.Wrap("segment %d corrupt", i)
		}
		out = append(out, seg...)
	}
	return out, nil
}

// encryptedBytes returns the verified ciphertext of c, rebuilding the
// assembled file from segments if it is missing.
func (h *Handler) encryptedBytes(c *Chunk) ([]byte, error) {
	data, err := h.encrypted.Get(c.ID)
	if errors.Is(err, storage.ErrNotFound) {
		data, err = h.assemble(c, -1, nil)
		if err != nil {
			return nil, err
		}
		if digest.Digest(data) != c.ID {
			return nil, ErrChunkLost.Wrap("reassembled %s does not match", c.ID)
		}
		if err := h.encrypted.Put(c.ID, data); err != nil {
			return nil, internal(err)
		}
		return data, nil
	}
	if err != nil {
		return nil, internal(err)
	}
	if digest.Digest(data) != c.ID {
		return nil, ErrChunkLost.Wrap("%s corrupt on disk", c.ID)
	}
	return data, nil
}

// decrypt runs the chunk through the decryptor and returns the plaintext.
// Verified plaintext is moved into the decrypted store under the real id.
func (h *Handler) decrypt(ctx context.Context, c *Chunk) ([]byte, error) {
	if _, err := h.encryptedBytes(c); err != nil {
		return nil, err
	}
	in, err := h.encrypted.Path(c.ID)
	if err != nil {
		return nil, internal(err)
	}
	out := filepath.Join(h.tmpDir, c.ID+".dec")
	defer func() { _ = os.Remove(out) }()

	err = h.decryptor.Decrypt(ctx, decryptworker.Job{ChunkID: c.ID, InputPath: in, OutputPath: out, PubKey: c.PubKey})
	if errors.Is(err, decryptworker.ErrWorkerFailed) {
		return nil, errCannotDecrypt{err}
	}
	if err != nil {
		return nil, internal(err)
	}
	plaintext, err := os.ReadFile(out)
	if err != nil {
		return nil, internal(err)
	}
	return plaintext, nil
}

// errCannotDecrypt marks a decryption the worker rejected: the chunk was
// not sealed to this provider's key.
type errCannotDecrypt struct{ err error }

func (e errCannotDecrypt) Error() string { return e.err.Error() }
func (e errCannotDecrypt) Unwrap() error { return e.err }

// StoreChunkSignatureRequest verifies the chunk's plaintext against its
// claimed real id and returns a signed pledge.
func (h *Handler) StoreChunkSignatureRequest(ctx context.Context, p ChunkIDParams) ([]any, error) {
	if !digest.Valid(p.ChunkID) {
		return nil, ErrInvalidParams.Wrap("chunkId")
	}
	unlock := h.locks.Lock(p.ChunkID)
	defer unlock()

	c, err := h.repo.Get(p.ChunkID)
	if err != nil {
		return nil, internal(err)
	}
	if c == nil || c.Status == StatusEmpty {
		return nil, ErrChunkNotFound.Wrap("%s", p.ChunkID)
	}
	if c.Status < StatusDataComplete {
		return nil, ErrChunkIncomplete.Wrap("%d segments missing", len(c.Missing()))
	}

	updated := *c
	if !c.RealIDVerified {
		plaintext, err := h.decrypt(ctx, c)
		var cd errCannotDecrypt
		if errors.As(err, &cd) {
			return nil, ErrInvalidChunkRealID.Wrap("%v", cd.err)
		}
		if err != nil {
			return nil, err
		}
		if digest.Digest(plaintext) != c.RealID {
			return nil, ErrInvalidChunkRealID.Wrap("%s", c.RealID)
		}
		if err := h.decrypted.Put(c.RealID, plaintext); err != nil {
			return nil, internal(err)
		}
		updated.RealIDVerified = true
		updated.Decrypted = true
	}

	pledgedAt := h.now().Unix()
	sig, err := h.signer.Sign(PledgeMessage(c.ID, pledgedAt))
	if err != nil {
		return nil, internal(err)
	}
	updated.Status = StatusSigned
	updated.PledgedAt = pledgedAt
	updated.UpdatedAt = h.now()
	if err := h.repo.Put(&updated); err != nil {
		return nil, internal(err)
	}
	h.log.WithFields(logrus.Fields{"chunk": c.ID, "real_id": c.RealID}).Info("chunk pledged")
	return []any{c.ID, hex.EncodeToString(sig), pledgedAt}, nil
}

// GetChunk serves the encrypted bytes of a stored chunk.
func (h *Handler) GetChunk(_ context.Context, p ChunkIDParams) ([]any, error) {
	if !digest.Valid(p.ChunkID) {
		return nil, ErrInvalidParams.Wrap("chunkId")
	}
	unlock := h.locks.Lock(p.ChunkID)
	defer unlock()

	c, err := h.repo.Get(p.ChunkID)
	if err != nil {
		return nil, internal(err)
	}
	if c == nil || c.Status < StatusDataComplete {
		return nil, ErrChunkNotFound.Wrap("%s", p.ChunkID)
	}
	data, err := h.encryptedBytes(c)
	if err != nil {
		return nil, err
	}
	return []any{c.ID, data}, nil
}

// GetDecryptedChunk serves plaintext by real id.
func (h *Handler) GetDecryptedChunk(ctx context.Context, p RealIDParams) ([]any, error) {
	if !digest.Valid(p.RealID) {
		return nil, ErrInvalidParams.Wrap("realId")
	}
	candidates, err := h.repo.FindByRealID(p.RealID)
	if err != nil {
		return nil, internal(err)
	}
	var c *Chunk
	for _, cand := range candidates {
		if cand.Status < StatusDataComplete {
			continue
		}
		if c == nil || (cand.RealIDVerified && !c.RealIDVerified) {
			c = cand
		}
	}
	if c == nil {
		return nil, ErrChunkNotFound.Wrap("real id %s", p.RealID)
	}

	unlock := h.locks.Lock(c.ID)
	defer unlock()

	// Another handler may have advanced the chunk while we waited.
	c, err = h.repo.Get(c.ID)
	if err != nil {
		return nil, internal(err)
	}
	if c == nil || c.Status < StatusDataComplete {
		return nil, ErrChunkNotFound.Wrap("real id %s", p.RealID)
	}

	if c.RealIDVerified && c.Decrypted {
		data, err := h.decrypted.Get(c.RealID)
		switch {
		case err == nil && (!h.revalidate || digest.Digest(data) == c.RealID):
			return []any{c.RealID, data}, nil
		case err == nil:
			return nil, ErrChunkLost.Wrap("decrypted %s corrupt", c.RealID)
		case !errors.Is(err, storage.ErrNotFound):
			return nil, internal(err)
		}
	}

	plaintext, err := h.decrypt(ctx, c)
	var cd errCannotDecrypt
	if errors.As(err, &cd) {
		return nil, ErrChunkLost.Wrap("%v", cd.err)
	}
	if err != nil {
		return nil, err
	}
	if digest.Digest(plaintext) != c.RealID {
		return nil, ErrChunkLost.Wrap("decrypted %s does not match", c.ID)
	}
	if err := h.decrypted.Put(c.RealID, plaintext); err != nil {
		return nil, internal(err)
	}
	updated := *c
	updated.RealIDVerified = true
	updated.Decrypted = true
	updated.UpdatedAt = h.now()
	if err := h.repo.Put(&updated); err != nil {
		return nil, internal(err)
	}
	return []any{c.RealID, plaintext}, nil
}
