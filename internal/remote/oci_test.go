package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/registry"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/ocirepo/internal/image"
	"github.com/aweris/ocirepo/internal/layer"
)

func newTestRemote(t *testing.T, repository string) *OCIRemote {
	t.Helper()
	srv := httptest.NewServer(registry.New())
	t.Cleanup(srv.Close)

	host := strings.TrimPrefix(srv.URL, "http://")
	repo, err := name.NewRepository(host+"/"+repository, name.Insecure)
	require.NoError(t, err)
	return NewOCIRemote(repo, Options{Attempts: 1})
}

func TestOCIRemote_RoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newTestRemote(t, "org/artifact")

	f := image.FormatDocker
	l, err := layer.Build(strings.NewReader("hello"), layer.Entry{
		Name:    "hello.txt",
		Size:    5,
		ModTime: time.Unix(1700000000, 0),
	}, f.LayerMediaType())
	require.NoError(t, err)
	cfg, err := image.NewConfig(mustDiffID(t, l), time.Unix(1700000000, 0))
	require.NoError(t, err)
	m, err := image.NewManifest(f, cfg.Descriptor(f.ConfigMediaType()), l.Descriptor())
	require.NoError(t, err)

	_, found, err := r.CheckManifest(ctx, "1.0")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, r.PushBlob(ctx, l))
	require.NoError(t, r.PushBlob(ctx, cfg.Layer(f.ConfigMediaType())))
	digest, err := r.PushManifest(ctx, m, "1.0")
	require.NoError(t, err)
	assert.Equal(t, m.Digest(), digest)

	got, found, err := r.CheckManifest(ctx, "1.0")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, digest, got)

	_, found, err = r.CheckManifest(ctx, digest.String())
	require.NoError(t, err)
	assert.True(t, found)

	pulled, pulledDigest, err := r.PullManifest(ctx, "1.0")
	require.NoError(t, err)
	assert.Equal(t, digest, pulledDigest)
	require.Len(t, pulled.Layers, 1)
	assert.Equal(t, l.Descriptor().Digest, pulled.Layers[0].Digest)
	assert.Equal(t, cfg.Digest(), pulled.Config.Digest)

	rc, err := r.PullBlob(ctx, pulled.Config.Digest)
	require.NoError(t, err)
	raw, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, cfg.Raw(), raw)

	rc, err = r.PullBlob(ctx, pulled.Layers[0].Digest)
	require.NoError(t, err)
	defer rc.Close()
	var out bytes.Buffer
	hdr, err := layer.ExtractFirst(rc, &out)
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", hdr.Name)
	assert.Equal(t, "hello", out.String())
}

func TestOCIRemote_NotFound(t *testing.T) {
	ctx := context.Background()
	r := newTestRemote(t, "org/missing")

	_, _, err := r.PullManifest(ctx, "latest")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	missing := v1.Hash{Algorithm: "sha256", Hex: strings.Repeat("0", 64)}
	_, err = r.PullBlob(ctx, missing)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClassify(t *testing.T) {
	notFound := &transport.Error{StatusCode: http.StatusNotFound}
	assert.ErrorIs(t, classify(notFound), ErrNotFound)

	denied := &transport.Error{StatusCode: http.StatusUnauthorized}
	assert.NotErrorIs(t, classify(denied), ErrNotFound)
	assert.Equal(t, denied, classify(denied))
}

func TestPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"not found", &transport.Error{StatusCode: http.StatusNotFound}, true},
		{"unauthorized", &transport.Error{StatusCode: http.StatusUnauthorized}, true},
		{"too many requests", &transport.Error{StatusCode: http.StatusTooManyRequests}, false},
		{"server error", &transport.Error{StatusCode: http.StatusBadGateway}, false},
		{"canceled", context.Canceled, true},
		{"network", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, permanent(tt.err))
		})
	}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after transient failure", func(t *testing.T) {
		calls := 0
		got, err := retry(ctx, 2, func() (int, error) {
			calls++
			if calls == 1 {
				return 0, errors.New("flaky")
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, got)
		assert.Equal(t, 2, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		_, err := retry(ctx, 3, func() (int, error) {
			calls++
			return 0, &transport.Error{StatusCode: http.StatusForbidden}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("honours cancellation between attempts", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		calls := 0
		_, err := retry(cctx, 3, func() (int, error) {
			calls++
			cancel()
			return 0, errors.New("flaky")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestStaticAuthenticator(t *testing.T) {
	a := StaticAuthenticator{Registry: "registry.example.com", Username: "u", Password: "p"}

	user, pass, err := a.Authenticate("REGISTRY.example.com")
	require.NoError(t, err)
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)

	user, _, err = a.Authenticate("other.example.com")
	require.NoError(t, err)
	assert.Empty(t, user)

	wildcard := StaticAuthenticator{Username: "u"}
	user, _, err = wildcard.Authenticate("whatever.example.com")
	require.NoError(t, err)
	assert.Equal(t, "u", user)
}

func TestNewTransport(t *testing.T) {
	tr := NewTransport(TransportConfig{})
	assert.Equal(t, DefaultReadTimeout, tr.ResponseHeaderTimeout)
	assert.Equal(t, DefaultConnectTimeout, tr.TLSHandshakeTimeout)
	assert.Nil(t, tr.TLSClientConfig)

	proxy, err := url.Parse("http://proxy.internal:3128")
	require.NoError(t, err)
	tr = NewTransport(TransportConfig{
		Proxy:              proxy,
		InsecureSkipVerify: true,
		ConnectTimeout:     time.Second,
		ReadTimeout:        2 * time.Second,
	})
	assert.Equal(t, 2*time.Second, tr.ResponseHeaderTimeout)
	require.NotNil(t, tr.TLSClientConfig)
	assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)

	req, err := http.NewRequest(http.MethodGet, "https://registry.example.com/v2/", nil)
	require.NoError(t, err)
	got, err := tr.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, proxy, got)
}

func mustDiffID(t *testing.T, l *layer.Layer) v1.Hash {
	t.Helper()
	h, err := l.DiffID()
	require.NoError(t, err)
	return h
}
