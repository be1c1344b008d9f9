package types

import (
	"fmt"
	"strings"
)

// ArtifactKind distinguishes code bundles from container images.
type ArtifactKind string

const (
	ArtifactKindCode      ArtifactKind = "code"
	ArtifactKindContainer ArtifactKind = "container"
)

// ArtifactRef identifies the deployable payload of one runtime version.
// A code bundle is a (bucket, key) pair in object storage; a container
// artifact is an image URI. It is immutable once a version references it.
type ArtifactRef struct {
	Bucket   string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Key      string `json:"key,omitempty" yaml:"key,omitempty"`
	ImageURI string `json:"imageUri,omitempty" yaml:"imageUri,omitempty"`
}

// CodeArtifact returns a code bundle reference.
func CodeArtifact(bucket, key string) ArtifactRef {
	return ArtifactRef{Bucket: bucket, Key: key}
}

// ContainerArtifact returns a container image reference.
func ContainerArtifact(imageURI string) ArtifactRef {
	return ArtifactRef{ImageURI: imageURI}
}

// Kind returns the artifact kind.
func (a ArtifactRef) Kind() ArtifactKind {
	if a.ImageURI != "" {
		return ArtifactKindContainer
	}
	return ArtifactKindCode
}

// Validate checks the reference is complete for its kind.
func (a ArtifactRef) Validate() error {
	switch a.Kind() {
	case ArtifactKindContainer:
		if a.Bucket != "" || a.Key != "" {
			return NewValidationError("artifact has both an image and an object location")
		}
	default:
		if a.Bucket == "" {
			return NewValidationError("artifact bucket is required")
		}
		if a.Key == "" {
			return NewValidationError("artifact key is required")
		}
	}
	return nil
}

// String returns an s3:// URI or the image URI.
func (a ArtifactRef) String() string {
	if a.Kind() == ArtifactKindContainer {
		return a.ImageURI
	}
	return fmt.Sprintf("s3://%s/%s", a.Bucket, a.Key)
}

// ArtifactKey returns the object key a runtime version's bundle is
// published under: <runtime-name>/v<version>/code.zip.
func ArtifactKey(runtimeName string, version Version) string {
	return fmt.Sprintf("%s/v%s/code.zip", strings.Trim(runtimeName, "/"), version)
}
