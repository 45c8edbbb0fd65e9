package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
)

// DefaultAttempts is how often a transient failure is tried before giving up.
const DefaultAttempts = 3

var ErrNotFound = errors.New("not found")

// Options configures an OCIRemote.
type Options struct {
	Auth      Authenticator
	Transport http.RoundTripper

	// PlainHTTP marks a registry addressed with an http:// URL.
	PlainHTTP bool

	// SendCredentialsOverHTTP allows credentials on plain-http registries.
	// When false, they are accessed anonymously.
	SendCredentialsOverHTTP bool

	Attempts int
	Logger   *log.Logger
}

// OCIRemote implements Registry for one OCI repository.
type OCIRemote struct {
	repo name.Repository
	opts Options
	log  *log.Logger
}

var _ Registry = (*OCIRemote)(nil)

// NewOCIRemote creates a client for repo.
func NewOCIRemote(repo name.Repository, opts Options) *OCIRemote {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &OCIRemote{
		repo: repo,
		opts: opts,
		log:  logger.With("repository", repo.String()),
	}
}

func (r *OCIRemote) String() string   { return r.repo.String() }
func (r *OCIRemote) Registry() string { return r.repo.RegistryStr() }

func (r *OCIRemote) PullManifest(ctx context.Context, tag string) (*v1.Manifest, v1.Hash, error) {
	ref := r.repo.Tag(tag)
	desc, err := retry(ctx, r.opts.Attempts, func() (*remote.Descriptor, error) {
		return remote.Get(ref, r.remoteOptions(ctx)...)
	})
	if err != nil {
		return nil, v1.Hash{}, fmt.Errorf("get manifest %s: %w", ref, classify(err))
	}
	m, err := v1.ParseManifest(bytes.NewReader(desc.Manifest))
	if err != nil {
		return nil, v1.Hash{}, fmt.Errorf("parse manifest %s: %w", ref, err)
	}
	r.log.Debug("pulled manifest", "tag", tag, "digest", desc.Digest, "mediaType", desc.MediaType)
	return m, desc.Digest, nil
}

// PullBlob opens a blob. The returned reader verifies the content against
// digest when it reaches EOF.
func (r *OCIRemote) PullBlob(ctx context.Context, digest v1.Hash) (io.ReadCloser, error) {
	ref := r.repo.Digest(digest.String())
	rc, err := retry(ctx, r.opts.Attempts, func() (io.ReadCloser, error) {
		l, err := remote.Layer(ref, r.remoteOptions(ctx)...)
		if err != nil {
			return nil, err
		}
		return l.Compressed()
	})
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", digest, classify(err))
	}
	r.log.Debug("pulling blob", "digest", digest)
	return rc, nil
}

// PushBlob uploads blob. The registry is asked first, so an existing blob
// is not uploaded again.
func (r *OCIRemote) PushBlob(ctx context.Context, blob v1.Layer) error {
	digest, err := blob.Digest()
	if err != nil {
		return fmt.Errorf("blob digest: %w", err)
	}
	if _, err := retry(ctx, r.opts.Attempts, func() (struct{}, error) {
		return struct{}{}, remote.WriteLayer(r.repo, blob, r.remoteOptions(ctx)...)
	}); err != nil {
		return fmt.Errorf("put blob %s: %w", digest, classify(err))
	}
	r.log.Debug("pushed blob", "digest", digest)
	return nil
}

// CheckManifest reports whether reference (a tag or a digest) exists and
// what digest it resolves to. A missing manifest is not an error.
func (r *OCIRemote) CheckManifest(ctx context.Context, reference string) (v1.Hash, bool, error) {
	var ref name.Reference = r.repo.Tag(reference)
	if strings.Contains(reference, ":") {
		ref = r.repo.Digest(reference)
	}
	desc, err := retry(ctx, r.opts.Attempts, func() (*v1.Descriptor, error) {
		return remote.Head(ref, r.remoteOptions(ctx)...)
	})
	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrNotFound) {
			return v1.Hash{}, false, nil
		}
		return v1.Hash{}, false, fmt.Errorf("head manifest %s: %w", ref, err)
	}
	return desc.Digest, true, nil
}

// PushManifest uploads m under tag. Every blob m references must already
// be in the repository.
func (r *OCIRemote) PushManifest(ctx context.Context, m Taggable, tag string) (v1.Hash, error) {
	raw, err := m.RawManifest()
	if err != nil {
		return v1.Hash{}, fmt.Errorf("raw manifest: %w", err)
	}
	digest, _, err := v1.SHA256(bytes.NewReader(raw))
	if err != nil {
		return v1.Hash{}, fmt.Errorf("manifest digest: %w", err)
	}

	ref := r.repo.Tag(tag)
	if _, err := retry(ctx, r.opts.Attempts, func() (struct{}, error) {
		return struct{}{}, remote.Put(ref, m, r.remoteOptions(ctx)...)
	}); err != nil {
		return v1.Hash{}, fmt.Errorf("put manifest %s: %w", ref, classify(err))
	}
	r.log.Debug("pushed manifest", "tag", tag, "digest", digest)
	return digest, nil
}

func (r *OCIRemote) remoteOptions(ctx context.Context) []remote.Option {
	opts := []remote.Option{remote.WithContext(ctx), r.authOption()}
	if r.opts.Transport != nil {
		opts = append(opts, remote.WithTransport(r.opts.Transport))
	}
	return opts
}

func (r *OCIRemote) authOption() remote.Option {
	if r.opts.PlainHTTP && !r.opts.SendCredentialsOverHTTP {
		return remote.WithAuth(authn.Anonymous)
	}
	if r.opts.Auth != nil {
		username, password, err := r.opts.Auth.Authenticate(r.Registry())
		if err != nil {
			r.log.Debug("authenticator failed, using keychain", "err", err)
		}
		if err == nil && username != "" {
			return remote.WithAuth(&authn.Basic{
				Username: username,
				Password: password,
			})
		}
	}
	return remote.WithAuthFromKeychain(authn.DefaultKeychain)
}

// classify marks a registry 404 with ErrNotFound.
func classify(err error) error {
	var terr *transport.Error
	if errors.As(err, &terr) && terr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

// permanent reports whether retrying err is pointless.
func permanent(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var terr *transport.Error
	if errors.As(err, &terr) {
		return terr.StatusCode >= 400 && terr.StatusCode < 500 && terr.StatusCode != http.StatusTooManyRequests
	}
	return false
}

func retry[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if permanent(err) {
			break
		}
		if i < maxAttempts-1 {
			delay := time.Duration(1<<i) * 500 * time.Millisecond // 500ms, 1s, 2s, 4s...
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return zero, lastErr
}
