package storage

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rzbill/agentdeploy/pkg/types"
	"github.com/rzbill/agentdeploy/pkg/utils"
)

// Object is a stored artifact held by MemoryStore.
type Object struct {
	Data   []byte
	Digest string
}

// MemoryStore is an in-memory ObjectStore.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]Object
}

var _ ObjectStore = (*MemoryStore)(nil)

// NewMemoryStore creates a store with the given buckets.
func NewMemoryStore(buckets ...string) *MemoryStore {
	m := &MemoryStore{buckets: make(map[string]map[string]Object)}
	for _, b := range buckets {
		m.buckets[b] = make(map[string]Object)
	}
	return m
}

// Upload copies the file into memory.
func (m *MemoryStore) Upload(ctx context.Context, ref types.ArtifactRef, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ref.Validate(); err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return &types.PreconditionError{What: "bundle", Detail: err.Error()}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.buckets[ref.Bucket]
	if !ok {
		return &types.APIError{Op: "PutObject", Code: "NoSuchBucket", Message: fmt.Sprintf("bucket %s does not exist", ref.Bucket), Err: types.ErrNotFound}
	}
	bucket[ref.Key] = Object{Data: data, Digest: utils.Digest(data)}
	return nil
}

// BucketExists reports whether the bucket was configured.
func (m *MemoryStore) BucketExists(_ context.Context, bucket string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.buckets[bucket]
	return ok, nil
}

// Exists reports whether an object is stored under ref.
func (m *MemoryStore) Exists(_ context.Context, ref types.ArtifactRef) (bool, error) {
	_, ok := m.Get(ref)
	return ok, nil
}

// Get returns the stored object.
func (m *MemoryStore) Get(ref types.ArtifactRef) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.buckets[ref.Bucket][ref.Key]
	return obj, ok
}

// Keys returns the object keys in a bucket.
func (m *MemoryStore) Keys(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.buckets[bucket]))
	for k := range m.buckets[bucket] {
		keys = append(keys, k)
	}
	return keys
}
