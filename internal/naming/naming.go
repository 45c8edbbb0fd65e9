// Package naming maps artifact paths to registry image references.
package naming

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/go-containerregistry/pkg/name"
)

// DefaultTag is used when the artifact path carries no version-like segment.
const DefaultTag = "latest"

// ErrInvalidReference is returned for paths or registry URLs that do not form
// a valid image reference.
var ErrInvalidReference = errors.New("invalid reference")

// singleNamespaceRegistries accept exactly one "/" in a repository name.
var singleNamespaceRegistries = map[string]bool{
	"docker.io":               true,
	"index.docker.io":         true,
	"registry-1.docker.io":    true,
	"registry.hub.docker.com": true,
	"quay.io":                 true,
}

// Reference is a resolved image location.
type Reference struct {
	Registry   string
	Repository string
	Tag        string
	Insecure   bool
}

func (r Reference) String() string {
	return r.Registry + "/" + r.Repository + ":" + r.Tag
}

// Name returns the go-containerregistry form of r.
func (r Reference) Name() (name.Tag, error) {
	opts := []name.Option{name.StrictValidation}
	if r.Insecure {
		opts = append(opts, name.Insecure)
	}
	tag, err := name.NewTag(r.String(), opts...)
	if err != nil {
		return name.Tag{}, fmt.Errorf("%w: %w", ErrInvalidReference, err)
	}
	return tag, nil
}

// Base is the parsed repository URL: a registry host, an optional
// namespace prefix and whether plain HTTP was requested.
type Base struct {
	Registry  string
	Namespace string
	Insecure  bool
}

var schemes = []string{"docker://", "oci://", "https://", "http://"}

// ParseBase parses URLs such as docker://localhost:5000/maven,
// https://ghcr.io/acme or quay.io/acme.
func ParseBase(baseURL string) (Base, error) {
	rest := strings.TrimSpace(baseURL)
	var b Base
	lower := strings.ToLower(rest)
	for _, scheme := range schemes {
		if strings.HasPrefix(lower, scheme) {
			rest = rest[len(scheme):]
			b.Insecure = scheme == "http://"
			break
		}
	}
	rest = strings.TrimRight(rest, "/")

	host, namespace, _ := strings.Cut(rest, "/")
	if host == "" {
		return Base{}, fmt.Errorf("%w: no registry in %q", ErrInvalidReference, baseURL)
	}
	if _, err := name.NewRegistry(host, name.StrictValidation); err != nil {
		return Base{}, fmt.Errorf("%w: %w", ErrInvalidReference, err)
	}
	b.Registry = strings.ToLower(host)
	b.Namespace = strings.ToLower(namespace)
	return b, nil
}

// Resolver turns artifact paths into references under one base URL.
// It holds no per-call state.
type Resolver struct {
	base      Base
	strategy  Strategy
	overrides map[string]string
}

// NewResolver creates a resolver. overrides maps artifact paths to explicit
// repository names and wins over the strategy.
func NewResolver(baseURL string, s Strategy, overrides map[string]string) (*Resolver, error) {
	base, err := ParseBase(baseURL)
	if err != nil {
		return nil, err
	}
	if _, err := RepositoryName("", s); err != nil {
		return nil, err
	}
	return &Resolver{base: base, strategy: s, overrides: overrides}, nil
}

func (r *Resolver) Base() Base         { return r.base }
func (r *Resolver) Strategy() Strategy { return r.strategy }

// Resolve computes the registry, repository and tag for artifactPath.
func (r *Resolver) Resolve(artifactPath string) (Reference, error) {
	p := strings.TrimLeft(artifactPath, "/")
	if p == "" || strings.HasSuffix(p, "/") {
		return Reference{}, fmt.Errorf("%w: artifact path %q", ErrInvalidReference, artifactPath)
	}

	repo, ok := r.overrides[artifactPath]
	if !ok {
		var err error
		if repo, err = RepositoryName(p, r.strategy); err != nil {
			return Reference{}, err
		}
	}
	repo = strings.ToLower(repo)
	if r.base.Namespace != "" {
		repo = r.base.Namespace + "/" + repo
	}

	ref := Reference{
		Registry:   r.base.Registry,
		Repository: Normalize(r.base.Registry, repo),
		Tag:        Tag(p),
		Insecure:   r.base.Insecure,
	}
	if _, err := ref.Name(); err != nil {
		return Reference{}, err
	}
	return ref, nil
}

// Tag derives the image tag from the segment before the file name: it is
// used verbatim when it starts with a digit, otherwise DefaultTag applies.
// .../1.10.12/ant-1.10.12.jar gives 1.10.12, .../latest/ant.jar gives latest.
func Tag(artifactPath string) string {
	i := strings.LastIndex(artifactPath, "/")
	if i < 0 {
		return DefaultTag
	}
	dir := artifactPath[:i]
	segment := dir[strings.LastIndex(dir, "/")+1:]
	first, _ := utf8.DecodeRuneInString(segment)
	if segment == "" || !unicode.IsDigit(first) {
		return DefaultTag
	}
	return segment
}

// Normalize flattens repository names for registries with a single
// namespace level: every "/" after the first becomes "_". Other registries
// get the name unchanged.
func Normalize(registry, repository string) string {
	if !singleNamespaceRegistries[strings.ToLower(registry)] {
		return repository
	}
	namespace, rest, ok := strings.Cut(repository, "/")
	if !ok {
		return repository
	}
	return namespace + "/" + strings.ReplaceAll(rest, "/", "_")
}
