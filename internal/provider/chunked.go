package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/emrgen/pagenote/internal/kv"
	"github.com/sirupsen/logrus"
)

const (
	chunkKeyPrefix = "_pagenote_sync_"
	chunkMetaKey   = chunkKeyPrefix + "meta"

	// ChunkSize leaves headroom under the backend's ~8KB per-key cap.
	ChunkSize = 7000
	// QuotaCeiling leaves ~10KB of the ~100KB total quota for the settings
	// record and the encryption key.
	QuotaCeiling = 90000
)

// Meta is the chunk directory record written beside the chunks.
type Meta struct {
	Chunks int   `json:"chunks"`
	TS     int64 `json:"ts"`
}

var _ Provider = (*Chunked)(nil)

// Chunked stores the payload in a quota-limited key/value scope, split into
// fixed-size chunks under a shared prefix with a metadata record.
type Chunked struct {
	store kv.Store
	now   func() time.Time
}

func NewChunked(store kv.Store) *Chunked {
	return &Chunked{store: store, now: time.Now}
}

func (c *Chunked) Name() string { return NameChunked }

// Push rejects payloads beyond the quota ceiling before touching any key,
// then clears every previously written chunk before writing the new set, so
// a smaller write can never leave stale trailing chunks behind.
func (c *Chunked) Push(ctx context.Context, payload []byte) error {
	if len(payload) > QuotaCeiling {
		return fmt.Errorf("%w: payload %d bytes over %d ceiling", ErrQuotaExceeded, len(payload), QuotaCeiling)
	}

	if err := c.clearChunks(ctx); err != nil {
		return fmt.Errorf("clear stale chunks: %w", err)
	}

	chunks := splitChunks(payload, ChunkSize)
	for i, chunk := range chunks {
		if err := c.store.Set(ctx, chunkKey(i), chunk); err != nil {
			return fmt.Errorf("write chunk %d: %w", i, err)
		}
	}

	meta, err := json.Marshal(Meta{Chunks: len(chunks), TS: c.now().UnixMilli()})
	if err != nil {
		return err
	}
	return c.store.Set(ctx, chunkMetaKey, string(meta))
}

// Pull reassembles chunks 0..chunks-1 via the metadata record. A missing
// metadata record means no remote data; a missing or unreadable chunk is
// treated the same way rather than surfacing a partial payload.
func (c *Chunked) Pull(ctx context.Context) ([]byte, error) {
	meta, err := c.Meta(ctx)
	if err != nil || meta == nil {
		return nil, nil
	}

	payload := make([]byte, 0, meta.Chunks*ChunkSize)
	for i := 0; i < meta.Chunks; i++ {
		chunk, err := c.store.Get(ctx, chunkKey(i))
		if err != nil {
			if !errors.Is(err, kv.ErrNotFound) {
				logrus.Warnf("chunked pull: chunk %d unreadable: %v", i, err)
			}
			return nil, nil
		}
		payload = append(payload, chunk...)
	}
	if len(payload) == 0 {
		return nil, nil
	}
	return payload, nil
}

// Meta returns the chunk directory record, or nil when the remote is empty.
func (c *Chunked) Meta(ctx context.Context) (*Meta, error) {
	raw, err := c.store.Get(ctx, chunkMetaKey)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		logrus.Warnf("chunked pull: meta unreadable: %v", err)
		return nil, nil
	}
	meta := &Meta{}
	if err := json.Unmarshal([]byte(raw), meta); err != nil {
		return nil, nil
	}
	return meta, nil
}

func (c *Chunked) clearChunks(ctx context.Context) error {
	keys, err := c.store.Keys(ctx, chunkKeyPrefix)
	if err != nil {
		return err
	}
	sort.Strings(keys)
	return c.store.Delete(ctx, keys...)
}

func chunkKey(i int) string {
	return fmt.Sprintf("%s%d", chunkKeyPrefix, i)
}

func splitChunks(payload []byte, size int) []string {
	if len(payload) == 0 {
		return []string{""}
	}
	chunks := make([]string, 0, (len(payload)+size-1)/size)
	for start := 0; start < len(payload); start += size {
		end := start + size
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, string(payload[start:end]))
	}
	return chunks
}
