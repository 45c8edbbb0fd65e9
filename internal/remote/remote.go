// Package remote implements the registry operations the sync engine needs.
//
// Based on go-containerregistry patterns:
// - Authentication via Authenticator, falling back to the docker keychain
// - Blobs are uploaded before the manifest that references them
// - Standard OCI distribution spec
package remote

import (
	"context"
	"io"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// Taggable is anything that can be pushed as a manifest.
type Taggable = remote.Taggable

// Registry handles manifest and blob operations against one repository.
type Registry interface {
	// PullManifest fetches the manifest a tag points to. A missing tag
	// yields an error wrapping ErrNotFound.
	PullManifest(ctx context.Context, tag string) (*v1.Manifest, v1.Hash, error)

	// PullBlob opens a blob for reading.
	PullBlob(ctx context.Context, digest v1.Hash) (io.ReadCloser, error)

	// PushBlob uploads a blob unless the registry already has it.
	PushBlob(ctx context.Context, blob v1.Layer) error

	// CheckManifest reports the digest a tag or digest reference resolves to.
	CheckManifest(ctx context.Context, reference string) (v1.Hash, bool, error)

	// PushManifest uploads a manifest under tag and returns its digest.
	PushManifest(ctx context.Context, m Taggable, tag string) (v1.Hash, error)
}
