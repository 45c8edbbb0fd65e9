package image

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/types"
)

// Format selects the manifest flavour.
type Format int

const (
	FormatDocker Format = iota
	FormatOCI
)

// ParseFormat accepts "docker" (or "v2.2", "docker-v2.2") and "oci".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "docker", "v2.2", "docker-v2.2", "dockerv2_2":
		return FormatDocker, nil
	case "oci":
		return FormatOCI, nil
	default:
		return 0, fmt.Errorf("unknown manifest format %q", s)
	}
}

func (f Format) String() string {
	switch f {
	case FormatDocker:
		return "docker"
	case FormatOCI:
		return "oci"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

func (f Format) ManifestMediaType() types.MediaType {
	switch f {
	case FormatOCI:
		return types.OCIManifestSchema1
	default:
		return types.DockerManifestSchema2
	}
}

func (f Format) ConfigMediaType() types.MediaType {
	switch f {
	case FormatOCI:
		return types.OCIConfigJSON
	default:
		return types.DockerConfigJSON
	}
}

func (f Format) LayerMediaType() types.MediaType {
	switch f {
	case FormatOCI:
		return types.OCILayer
	default:
		return types.DockerLayer
	}
}

// Manifest is a serialized single-layer manifest. It satisfies
// remote.Taggable so it can be pushed as is.
type Manifest struct {
	format   Format
	raw      []byte
	digest   v1.Hash
	manifest *v1.Manifest
}

// NewManifest builds a manifest referencing config and layer. Only digest and
// size are taken from the descriptors; media types follow the format.
func NewManifest(f Format, config, layer v1.Descriptor) (*Manifest, error) {
	if f != FormatDocker && f != FormatOCI {
		return nil, fmt.Errorf("unknown manifest format %v", f)
	}
	m := &v1.Manifest{
		SchemaVersion: 2,
		MediaType:     f.ManifestMediaType(),
		Config: v1.Descriptor{
			MediaType: f.ConfigMediaType(),
			Size:      config.Size,
			Digest:    config.Digest,
		},
		Layers: []v1.Descriptor{{
			MediaType: f.LayerMediaType(),
			Size:      layer.Size,
			Digest:    layer.Digest,
		}},
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	digest, err := DigestOf(raw)
	if err != nil {
		return nil, err
	}
	return &Manifest{format: f, raw: raw, digest: digest, manifest: m}, nil
}

// DigestOf returns the digest of a serialized manifest.
func DigestOf(raw []byte) (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(raw))
	if err != nil {
		return v1.Hash{}, fmt.Errorf("digest manifest: %w", err)
	}
	return h, nil
}

func (m *Manifest) Format() Format               { return m.format }
func (m *Manifest) Digest() v1.Hash              { return m.digest }
func (m *Manifest) Manifest() *v1.Manifest       { return m.manifest }
func (m *Manifest) RawManifest() ([]byte, error) { return m.raw, nil }

func (m *Manifest) MediaType() (types.MediaType, error) {
	return m.format.ManifestMediaType(), nil
}
