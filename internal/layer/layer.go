// Package layer packs a single file into a gzip-compressed tar layer and
// unpacks it again.
//
// The compressed digest and the diffID are accumulated while the archive is
// written:
//
//	file -> tar -> [diffID hash] -> gzip -> [digest hash, size] -> buffer
package layer

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/klauspost/compress/gzip"
)

const entryMode = 0o644

// ErrEmpty is returned when a layer holds no tar entry.
var ErrEmpty = errors.New("layer has no entries")

// Entry describes the single file stored in a layer.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Layer is an in-memory gzip tar layer with precomputed digests.
// It implements v1.Layer so it can be handed to remote.WriteLayer.
type Layer struct {
	compressed []byte
	digest     v1.Hash
	diffID     v1.Hash
	mediaType  types.MediaType
	modTime    time.Time
}

var _ v1.Layer = (*Layer)(nil)

// Build archives src as the only entry of a new layer. src must yield exactly
// e.Size bytes. Any read or write failure discards the partial output.
func Build(src io.Reader, e Entry, mediaType types.MediaType) (*Layer, error) {
	name := path.Base(filepath.ToSlash(e.Name))
	if name == "" || name == "." || name == "/" {
		return nil, fmt.Errorf("invalid entry name %q", e.Name)
	}

	var buf bytes.Buffer
	outer, err := newDigestWriter(&buf)
	if err != nil {
		return nil, err
	}
	gz := gzip.NewWriter(outer)
	inner, err := newDigestWriter(gz)
	if err != nil {
		return nil, err
	}
	tw := tar.NewWriter(inner)

	modTime := e.ModTime.UTC().Truncate(time.Second)
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     e.Size,
		Mode:     entryMode,
		ModTime:  modTime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, fmt.Errorf("write tar header: %w", err)
	}
	if _, err := io.Copy(tw, src); err != nil {
		return nil, fmt.Errorf("write tar entry: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}

	return &Layer{
		compressed: buf.Bytes(),
		digest:     outer.Hash(),
		diffID:     inner.Hash(),
		mediaType:  mediaType,
		modTime:    modTime,
	}, nil
}

// FromFile builds a layer from the file at p, using its base name and
// modification time for the tar entry. Source bytes are copied to progress
// as they are read, if it is non-nil.
func FromFile(p string, mediaType types.MediaType, progress io.Writer) (*Layer, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("source %s is not a regular file", p)
	}

	var src io.Reader = f
	if progress != nil {
		src = io.TeeReader(f, progress)
	}
	return Build(src, Entry{
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, mediaType)
}

func (l *Layer) Digest() (v1.Hash, error) { return l.digest, nil }
func (l *Layer) DiffID() (v1.Hash, error) { return l.diffID, nil }
func (l *Layer) Size() (int64, error)     { return int64(len(l.compressed)), nil }

func (l *Layer) MediaType() (types.MediaType, error) { return l.mediaType, nil }

func (l *Layer) Compressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.compressed)), nil
}

func (l *Layer) Uncompressed() (io.ReadCloser, error) {
	return gzip.NewReader(bytes.NewReader(l.compressed))
}

// Bytes returns the compressed layer.
func (l *Layer) Bytes() []byte { return l.compressed }

// ModTime is the entry's modification time at second precision.
func (l *Layer) ModTime() time.Time { return l.modTime }

// Descriptor returns the manifest descriptor for the layer.
func (l *Layer) Descriptor() v1.Descriptor {
	return v1.Descriptor{
		MediaType: l.mediaType,
		Size:      int64(len(l.compressed)),
		Digest:    l.digest,
	}
}

// ExtractFirst decompresses r and copies the content of its first tar entry
// to w. Entry metadata is returned but otherwise ignored.
func ExtractFirst(r io.Reader, w io.Writer) (*tar.Header, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	hdr, err := tr.Next()
	if err == io.EOF {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("read tar header: %w", err)
	}
	if _, err := io.Copy(w, tr); err != nil {
		return nil, fmt.Errorf("read tar entry: %w", err)
	}
	return hdr, nil
}
