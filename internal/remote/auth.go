package remote

import (
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
)

// Authenticator provides authentication for OCI registry operations.
type Authenticator interface {
	// Authenticate returns credentials for the given registry. An empty
	// username means no credentials.
	Authenticate(registry string) (username, password string, err error)
}

// DefaultAuthenticator uses the system keychain (like Docker).
type DefaultAuthenticator struct {
	keychain authn.Keychain
}

// NewDefaultAuthenticator creates a default authenticator.
func NewDefaultAuthenticator() *DefaultAuthenticator {
	return &DefaultAuthenticator{keychain: authn.DefaultKeychain}
}

// Authenticate returns basic credentials from the keychain, if any.
func (a *DefaultAuthenticator) Authenticate(registry string) (string, string, error) {
	reg, err := name.NewRegistry(registry)
	if err != nil {
		return "", "", err
	}
	auth, err := a.keychain.Resolve(reg)
	if err != nil {
		return "", "", err
	}
	cfg, err := auth.Authorization()
	if err != nil {
		return "", "", err
	}
	return cfg.Username, cfg.Password, nil
}

// StaticAuthenticator hands out fixed credentials for a single registry
// host. An empty Registry matches every host.
type StaticAuthenticator struct {
	Registry string
	Username string
	Password string
}

func (a StaticAuthenticator) Authenticate(registry string) (string, string, error) {
	if a.Registry != "" && !strings.EqualFold(a.Registry, registry) {
		return "", "", nil
	}
	return a.Username, a.Password, nil
}
