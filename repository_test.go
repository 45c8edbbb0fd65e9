package ocirepo

import (
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/ocirepo/internal/naming"
	"github.com/aweris/ocirepo/internal/remote"
)

func TestOpen_Invalid(t *testing.T) {
	quiet := WithLogger(log.New(io.Discard))
	tests := []struct {
		name    string
		baseURL string
		opts    []Option
	}{
		{"empty", "", nil},
		{"no host", "docker://", nil},
		{"bad host", "bad host/maven", nil},
		{"insecure not allowed", "http://registry.example.com", []Option{WithAllowInsecureRegistries(false)}},
		{"unknown format", "registry.example.com", []Option{WithManifestFormat(ManifestFormat(7))}},
		{"unknown strategy", "registry.example.com", []Option{WithNamingStrategy(NamingStrategy(9))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.baseURL, append([]Option{quiet}, tt.opts...)...)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidReference)
		})
	}
}

func TestAdapter_Resolve(t *testing.T) {
	a, err := Open("docker://docker.io/acme",
		WithLogger(log.New(io.Discard)),
		WithRepositoryName("org/tools/1.0/tool.jar", "Tools/Special"),
	)
	require.NoError(t, err)

	ref, err := a.Resolve(antPath)
	require.NoError(t, err)
	assert.Equal(t, "docker.io", ref.Registry)
	assert.Equal(t, "acme/org_apache_ant_ant_1_10_11_ant-1_10_11_jar", ref.Repository)
	assert.Equal(t, "1.10.11", ref.Tag)

	ref, err = a.Resolve("org/tools/1.0/tool.jar")
	require.NoError(t, err)
	assert.Equal(t, "acme/tools_special", ref.Repository)
	assert.Equal(t, "1.0", ref.Tag)

	_, err = a.Resolve("")
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestAdapter_NamingStrategies(t *testing.T) {
	quiet := WithLogger(log.New(io.Discard))

	none, err := Open("registry.example.com/maven", quiet, WithNamingStrategy(NamingNone))
	require.NoError(t, err)
	ref, err := none.Resolve("Org/Apache/ant/1.10.11/ant.jar")
	require.NoError(t, err)
	assert.Equal(t, "maven/org/apache/ant/1.10.11/ant.jar", ref.Repository)

	hashed, err := Open("registry.example.com", quiet, WithNamingStrategy(NamingSHA256))
	require.NoError(t, err)
	first, err := hashed.Resolve(antPath)
	require.NoError(t, err)
	second, err := hashed.Resolve(antPath)
	require.NoError(t, err)
	assert.Len(t, first.Repository, 64)
	assert.Equal(t, first, second)
}

func TestParseOptions(t *testing.T) {
	s, err := ParseNamingStrategy("sha256")
	require.NoError(t, err)
	assert.Equal(t, NamingSHA256, s)

	f, err := ParseManifestFormat("oci")
	require.NoError(t, err)
	assert.Equal(t, FormatOCI, f)

	_, err = ParseManifestFormat("v1")
	assert.Error(t, err)
}

func TestOpError(t *testing.T) {
	cause := errors.New("boom")
	err := newOpError("get", "a/1.0/b.jar", "r.example.com/a:1.0", cause)
	assert.Equal(t, "get a/1.0/b.jar (r.example.com/a:1.0): ocirepo: transfer failed: boom", err.Error())
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, cause)

	assert.ErrorIs(t, newOpError("get", "", "", remote.ErrNotFound), ErrNotFound)
	assert.ErrorIs(t, newOpError("get", "", "", naming.ErrInvalidReference), ErrInvalidReference)

	unsupported := &OpError{Op: "list", Path: "org", Kind: ErrUnsupported}
	assert.Equal(t, "list org: ocirepo: operation not supported", unsupported.Error())
}
