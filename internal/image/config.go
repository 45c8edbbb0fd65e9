// Package image builds the synthetic config and manifest that wrap a single
// artifact layer.
package image

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/static"
	"github.com/google/go-containerregistry/pkg/v1/types"
)

const (
	configOS           = "linux"
	configArchitecture = "amd64"
	rootFSType         = "layers"
)

// ErrNoCreated is returned when a config carries no creation time.
var ErrNoCreated = errors.New("config has no creation time")

// Config is a serialized container config referencing exactly one layer.
// Its created field is the only place the artifact's modification time is
// kept.
type Config struct {
	raw    []byte
	digest v1.Hash
}

// NewConfig builds the config for a layer with the given diffID.
func NewConfig(diffID v1.Hash, created time.Time) (*Config, error) {
	cf := &v1.ConfigFile{
		Architecture: configArchitecture,
		OS:           configOS,
		Created:      v1.Time{Time: created.UTC().Truncate(time.Second)},
		RootFS: v1.RootFS{
			Type:    rootFSType,
			DiffIDs: []v1.Hash{diffID},
		},
	}
	raw, err := json.Marshal(cf)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	digest, _, err := v1.SHA256(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("digest config: %w", err)
	}
	return &Config{raw: raw, digest: digest}, nil
}

func (c *Config) Raw() []byte     { return c.raw }
func (c *Config) Digest() v1.Hash { return c.digest }
func (c *Config) Size() int64     { return int64(len(c.raw)) }

// Layer wraps the config so it can be uploaded like any other blob.
func (c *Config) Layer(mediaType types.MediaType) v1.Layer {
	return static.NewLayer(c.raw, mediaType)
}

// Descriptor returns the manifest descriptor for the config.
func (c *Config) Descriptor(mediaType types.MediaType) v1.Descriptor {
	return v1.Descriptor{
		MediaType: mediaType,
		Size:      c.Size(),
		Digest:    c.digest,
	}
}

// ParseCreated extracts the creation time from a serialized config.
func ParseCreated(raw []byte) (time.Time, error) {
	cf, err := v1.ParseConfigFile(bytes.NewReader(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse config: %w", err)
	}
	if cf.Created.IsZero() {
		return time.Time{}, ErrNoCreated
	}
	return cf.Created.Time, nil
}
