package ocirepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	v1 "github.com/google/go-containerregistry/pkg/v1"

	"github.com/aweris/ocirepo/internal/image"
	"github.com/aweris/ocirepo/internal/remote"
)

// fakeRegistry is an in-memory remote.Registry that records every call.
type fakeRegistry struct {
	mu        sync.Mutex
	blobs     map[v1.Hash][]byte
	manifests map[string][]byte
	calls     []string
	pulled    []v1.Hash

	failPushBlob error
}

var _ remote.Registry = (*fakeRegistry)(nil)

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		blobs:     map[v1.Hash][]byte{},
		manifests: map[string][]byte{},
	}
}

func (f *fakeRegistry) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeRegistry) PullManifest(_ context.Context, tag string) (*v1.Manifest, v1.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pullManifest %s", tag)
	raw, ok := f.manifests[tag]
	if !ok {
		return nil, v1.Hash{}, fmt.Errorf("manifest %s: %w", tag, remote.ErrNotFound)
	}
	m, err := v1.ParseManifest(bytes.NewReader(raw))
	if err != nil {
		return nil, v1.Hash{}, err
	}
	digest, err := image.DigestOf(raw)
	return m, digest, err
}

func (f *fakeRegistry) PullBlob(_ context.Context, digest v1.Hash) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pullBlob %s", digest)
	f.pulled = append(f.pulled, digest)
	b, ok := f.blobs[digest]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", digest, remote.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeRegistry) PushBlob(_ context.Context, blob v1.Layer) error {
	digest, err := blob.Digest()
	if err != nil {
		return err
	}
	rc, err := blob.Compressed()
	if err != nil {
		return err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pushBlob %s", digest)
	if f.failPushBlob != nil {
		return f.failPushBlob
	}
	f.blobs[digest] = b
	return nil
}

func (f *fakeRegistry) CheckManifest(_ context.Context, reference string) (v1.Hash, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("checkManifest %s", reference)
	raw, ok := f.manifests[reference]
	if !ok {
		return v1.Hash{}, false, nil
	}
	digest, err := image.DigestOf(raw)
	return digest, err == nil, err
}

func (f *fakeRegistry) PushManifest(_ context.Context, m remote.Taggable, tag string) (v1.Hash, error) {
	raw, err := m.RawManifest()
	if err != nil {
		return v1.Hash{}, err
	}
	parsed, err := v1.ParseManifest(bytes.NewReader(raw))
	if err != nil {
		return v1.Hash{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pushManifest %s", tag)
	for _, d := range append([]v1.Descriptor{parsed.Config}, parsed.Layers...) {
		if _, ok := f.blobs[d.Digest]; !ok {
			return v1.Hash{}, errors.New("manifest references unknown blob " + d.Digest.String())
		}
	}
	f.manifests[tag] = raw
	return image.DigestOf(raw)
}

// storeImage publishes an image with an arbitrary config blob.
func (f *fakeRegistry) storeImage(tag string, layerBlob []byte, layerDigest v1.Hash, config []byte) error {
	configDigest, _, err := v1.SHA256(bytes.NewReader(config))
	if err != nil {
		return err
	}
	m, err := image.NewManifest(image.FormatDocker,
		v1.Descriptor{Digest: configDigest, Size: int64(len(config))},
		v1.Descriptor{Digest: layerDigest, Size: int64(len(layerBlob))},
	)
	if err != nil {
		return err
	}
	raw, _ := m.RawManifest()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[configDigest] = config
	f.blobs[layerDigest] = layerBlob
	f.manifests[tag] = raw
	return nil
}

func (f *fakeRegistry) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeRegistry) pulledBlob(digest v1.Hash) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.pulled {
		if d == digest {
			return true
		}
	}
	return false
}

func (f *fakeRegistry) manifest(tag string) (*v1.Manifest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.manifests[tag]
	if !ok {
		return nil, false
	}
	m, err := v1.ParseManifest(bytes.NewReader(raw))
	return m, err == nil
}
