// Package storage publishes code bundles to object storage.
package storage

import (
	"context"

	"github.com/rzbill/agentdeploy/pkg/types"
)

// DigestMetadataKey is the object metadata entry holding the bundle's
// xxhash64 digest.
const DigestMetadataKey = "xxhash64"

// ObjectStore uploads artifacts and checks for their presence.
type ObjectStore interface {
	// Upload stores the file at localPath under ref. An existing object
	// with the same key is overwritten.
	Upload(ctx context.Context, ref types.ArtifactRef, localPath string) error
	// BucketExists reports whether the bucket is reachable.
	BucketExists(ctx context.Context, bucket string) (bool, error)
	// Exists reports whether the object behind ref is present.
	Exists(ctx context.Context, ref types.ArtifactRef) (bool, error)
}
