package ocirepo

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/aweris/ocirepo/internal/image"
	"github.com/aweris/ocirepo/internal/naming"
	"github.com/aweris/ocirepo/internal/remote"
)

// Authenticator provides credentials for remote registries.
type Authenticator = remote.Authenticator

// NamingStrategy selects how artifact paths become repository names.
type NamingStrategy = naming.Strategy

const (
	NamingDefault = naming.StrategyDefault
	NamingSHA256  = naming.StrategySHA256
	NamingNone    = naming.StrategyNone
)

// ManifestFormat selects the manifest and media type flavour.
type ManifestFormat = image.Format

const (
	FormatDocker = image.FormatDocker
	FormatOCI    = image.FormatOCI
)

// ParseNamingStrategy parses "default", "sha256" or "none".
func ParseNamingStrategy(s string) (NamingStrategy, error) { return naming.ParseStrategy(s) }

// ParseManifestFormat parses "docker" (V2.2) or "oci".
func ParseManifestFormat(s string) (ManifestFormat, error) { return image.ParseFormat(s) }

// Options configures an Adapter.
type Options struct {
	Naming NamingStrategy
	Format ManifestFormat

	// AllowInsecureRegistries permits http:// registry URLs.
	AllowInsecureRegistries bool
	// SendCredentialsOverHTTP sends credentials to http:// registries.
	SendCredentialsOverHTTP bool
	SkipTLSVerify           bool

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Proxy          *url.URL

	// Transport overrides the transport built from the settings above.
	// It may be shared between adapters.
	Transport http.RoundTripper

	Auth     Authenticator
	Username string
	Password string

	// Overrides maps artifact paths to explicit repository names; they win
	// over the naming strategy.
	Overrides map[string]string

	Logger   *log.Logger
	Events   EventSink
	Attempts int
}

// Option is a functional option for configuring Open.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Naming:                  NamingDefault,
		Format:                  FormatDocker,
		AllowInsecureRegistries: true,
		SendCredentialsOverHTTP: true,
		ConnectTimeout:          remote.DefaultConnectTimeout,
		ReadTimeout:             remote.DefaultReadTimeout,
		Overrides:               map[string]string{},
		Attempts:                remote.DefaultAttempts,
	}
}

// validate rejects enum values outside the known sets.
func (o *Options) validate() error {
	if o.Format != FormatDocker && o.Format != FormatOCI {
		return fmt.Errorf("unknown manifest format %v", o.Format)
	}
	if _, err := naming.RepositoryName("", o.Naming); err != nil {
		return err
	}
	return nil
}

func defaultLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		Level:  log.WarnLevel,
		Prefix: "ocirepo",
	})
}

// WithNamingStrategy sets the repository naming strategy.
func WithNamingStrategy(s NamingStrategy) Option {
	return func(o *Options) { o.Naming = s }
}

// WithManifestFormat sets the manifest format used by Put.
func WithManifestFormat(f ManifestFormat) Option {
	return func(o *Options) { o.Format = f }
}

func WithAllowInsecureRegistries(allow bool) Option {
	return func(o *Options) { o.AllowInsecureRegistries = allow }
}

func WithSendCredentialsOverHTTP(send bool) Option {
	return func(o *Options) { o.SendCredentialsOverHTTP = send }
}

// WithSkipTLSVerify disables certificate verification for https registries.
func WithSkipTLSVerify(skip bool) Option {
	return func(o *Options) { o.SkipTLSVerify = skip }
}

// WithConnectTimeout bounds dialing and the TLS handshake.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.ConnectTimeout = d
		}
	}
}

// WithReadTimeout bounds the wait for response headers.
func WithReadTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.ReadTimeout = d
		}
	}
}

// WithProxy routes all registry traffic through proxy.
func WithProxy(proxy *url.URL) Option {
	return func(o *Options) { o.Proxy = proxy }
}

func WithTransport(t http.RoundTripper) Option {
	return func(o *Options) { o.Transport = t }
}

// WithAuth sets custom authentication.
func WithAuth(auth Authenticator) Option {
	return func(o *Options) { o.Auth = auth }
}

// WithCredentials sets static credentials for the configured registry host.
// Other hosts fall back to the docker keychain.
func WithCredentials(username, password string) Option {
	return func(o *Options) {
		o.Username = username
		o.Password = password
	}
}

// WithRepositoryName pins the repository name used for artifactPath.
func WithRepositoryName(artifactPath, repository string) Option {
	return func(o *Options) { o.Overrides[artifactPath] = repository }
}

func WithLogger(l *log.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithEventSink receives transfer events for Put, Get and GetIfNewer.
func WithEventSink(sink EventSink) Option {
	return func(o *Options) { o.Events = sink }
}

// WithRetries sets how many attempts a transient registry failure gets.
func WithRetries(attempts int) Option {
	return func(o *Options) {
		if attempts > 0 {
			o.Attempts = attempts
		}
	}
}
