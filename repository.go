package ocirepo

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-containerregistry/pkg/name"

	"github.com/aweris/ocirepo/internal/image"
	"github.com/aweris/ocirepo/internal/naming"
	"github.com/aweris/ocirepo/internal/remote"
)

const (
	opOpen         = "open"
	opPut          = "put"
	opGet          = "get"
	opExists       = "exists"
	opGetIfNewer   = "getIfNewer"
	opPutDirectory = "putDirectory"
	opList         = "list"
)

// Repository is the artifact transfer surface build tools talk to.
type Repository interface {
	// Put publishes the file at source as the image for artifactPath.
	Put(ctx context.Context, artifactPath, source string) error

	// Get writes the artifact to destination and sets its modification time.
	Get(ctx context.Context, artifactPath, destination string) error

	// Exists reports whether an image is tagged for artifactPath.
	Exists(ctx context.Context, artifactPath string) (bool, error)

	// GetIfNewer behaves like Get when the stored artifact was created
	// after threshold. Otherwise it returns false and leaves destination
	// alone.
	GetIfNewer(ctx context.Context, artifactPath, destination string, threshold time.Time) (bool, error)

	// PutDirectory always fails with ErrUnsupported.
	PutDirectory(ctx context.Context, sourceDir, destinationDir string) error

	// List always fails with ErrUnsupported.
	List(ctx context.Context, dir string) ([]string, error)
}

// Reference is a resolved image reference.
type Reference = naming.Reference

// Adapter stores artifacts as single-layer images in one registry. It holds
// no per-artifact state and is safe for concurrent use.
type Adapter struct {
	resolver *naming.Resolver
	format   image.Format
	events   EventSink
	log      *log.Logger

	newClient func(ref Reference) (remote.Registry, error)
}

var _ Repository = (*Adapter)(nil)

// Open creates an adapter for the registry at baseURL, e.g.
// "docker://registry.example.com/maven" or "http://localhost:5000".
func Open(baseURL string, opts ...Option) (*Adapter, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if err := options.validate(); err != nil {
		return nil, &OpError{Op: opOpen, Ref: baseURL, Kind: ErrInvalidReference, Err: err}
	}
	resolver, err := naming.NewResolver(baseURL, options.Naming, options.Overrides)
	if err != nil {
		return nil, newOpError(opOpen, "", baseURL, err)
	}
	base := resolver.Base()
	if base.Insecure && !options.AllowInsecureRegistries {
		return nil, newOpError(opOpen, "", baseURL,
			fmt.Errorf("%w: insecure registry %s is not allowed", naming.ErrInvalidReference, base.Registry))
	}

	logger := options.Logger
	if logger == nil {
		logger = defaultLogger()
	}

	transport := options.Transport
	if transport == nil {
		transport = remote.NewTransport(remote.TransportConfig{
			Proxy:              options.Proxy,
			InsecureSkipVerify: options.SkipTLSVerify,
			ConnectTimeout:     options.ConnectTimeout,
			ReadTimeout:        options.ReadTimeout,
		})
	}

	auth := options.Auth
	if auth == nil && options.Username != "" {
		// Validated by the resolver; RegistryStr maps docker.io to its API host.
		reg, _ := name.NewRegistry(base.Registry)
		auth = remote.StaticAuthenticator{
			Registry: reg.RegistryStr(),
			Username: options.Username,
			Password: options.Password,
		}
	}
	if auth == nil {
		auth = remote.NewDefaultAuthenticator()
	}

	clientOpts := remote.Options{
		Auth:                    auth,
		Transport:               transport,
		PlainHTTP:               base.Insecure,
		SendCredentialsOverHTTP: options.SendCredentialsOverHTTP,
		Attempts:                options.Attempts,
		Logger:                  logger,
	}

	return &Adapter{
		resolver: resolver,
		format:   options.Format,
		events:   options.Events,
		log:      logger,
		newClient: func(ref Reference) (remote.Registry, error) {
			tag, err := ref.Name()
			if err != nil {
				return nil, err
			}
			return remote.NewOCIRemote(tag.Context(), clientOpts), nil
		},
	}, nil
}

// Resolve computes the image reference for artifactPath without contacting
// the registry.
func (a *Adapter) Resolve(artifactPath string) (Reference, error) {
	ref, err := a.resolver.Resolve(artifactPath)
	if err != nil {
		return Reference{}, newOpError("resolve", artifactPath, "", err)
	}
	return ref, nil
}

// connect resolves artifactPath and creates a registry client for it.
func (a *Adapter) connect(op, artifactPath string) (Reference, remote.Registry, error) {
	ref, err := a.resolver.Resolve(artifactPath)
	if err != nil {
		return Reference{}, nil, newOpError(op, artifactPath, "", err)
	}
	client, err := a.newClient(ref)
	if err != nil {
		return Reference{}, nil, newOpError(op, artifactPath, ref.String(), err)
	}
	return ref, client, nil
}

func (a *Adapter) PutDirectory(_ context.Context, sourceDir, _ string) error {
	return &OpError{Op: opPutDirectory, Path: sourceDir, Kind: ErrUnsupported}
}

func (a *Adapter) List(_ context.Context, dir string) ([]string, error) {
	return nil, &OpError{Op: opList, Path: dir, Kind: ErrUnsupported}
}
