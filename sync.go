package ocirepo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	v1 "github.com/google/go-containerregistry/pkg/v1"

	"github.com/aweris/ocirepo/internal/image"
	"github.com/aweris/ocirepo/internal/layer"
	"github.com/aweris/ocirepo/internal/remote"
)

// Put packages source as a single-layer image and pushes it under the tag
// derived from artifactPath. Nothing is pushed when the tag already points
// at an identical manifest.
func (a *Adapter) Put(ctx context.Context, artifactPath, source string) error {
	ref, client, err := a.connect(opPut, artifactPath)
	if err != nil {
		return err
	}
	return a.transfer(opPut, artifactPath, ref, func(progress io.Writer) error {
		return a.push(ctx, client, ref, source, progress)
	})
}

func (a *Adapter) push(ctx context.Context, client remote.Registry, ref Reference, source string, progress io.Writer) error {
	l, err := layer.FromFile(source, a.format.LayerMediaType(), progress)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPackaging, err)
	}
	diffID, err := l.DiffID()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPackaging, err)
	}
	cfg, err := image.NewConfig(diffID, l.ModTime())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPackaging, err)
	}
	configType := a.format.ConfigMediaType()
	m, err := image.NewManifest(a.format, cfg.Descriptor(configType), l.Descriptor())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPackaging, err)
	}

	logger := a.log.With("ref", ref.String(), "digest", m.Digest())
	existing, found, err := client.CheckManifest(ctx, ref.Tag)
	if err != nil {
		return err
	}
	if found && existing == m.Digest() {
		logger.Info("artifact already published, skipping push")
		return nil
	}

	if err := client.PushBlob(ctx, l); err != nil {
		return err
	}
	if err := client.PushBlob(ctx, cfg.Layer(configType)); err != nil {
		return err
	}
	if _, err := client.PushManifest(ctx, m, ref.Tag); err != nil {
		return err
	}
	logger.Debug("pushed artifact", "size", l.Descriptor().Size, "created", l.ModTime())
	return nil
}

// Get downloads the artifact to destination and sets its modification time
// to the creation time recorded in the image config.
func (a *Adapter) Get(ctx context.Context, artifactPath, destination string) error {
	ref, client, err := a.connect(opGet, artifactPath)
	if err != nil {
		return err
	}
	return a.transfer(opGet, artifactPath, ref, func(progress io.Writer) error {
		m, err := pullManifest(ctx, client, ref)
		if err != nil {
			return err
		}
		raw, err := pullConfig(ctx, client, m)
		if err != nil {
			return err
		}
		created, err := image.ParseCreated(raw)
		if err != nil {
			a.log.Warn("cannot read creation time, keeping current modification time", "ref", ref.String(), "err", err)
		}
		return a.download(ctx, client, m, destination, created, progress)
	})
}

// Exists reports whether the tag for artifactPath resolves to a manifest.
func (a *Adapter) Exists(ctx context.Context, artifactPath string) (bool, error) {
	ref, client, err := a.connect(opExists, artifactPath)
	if err != nil {
		return false, err
	}
	_, found, err := client.CheckManifest(ctx, ref.Tag)
	if err != nil {
		return false, newOpError(opExists, artifactPath, ref.String(), err)
	}
	return found, nil
}

// GetIfNewer downloads the artifact only when its recorded creation time is
// after threshold. Only the config blob is read to decide. A config whose
// creation time cannot be read counts as newer.
func (a *Adapter) GetIfNewer(ctx context.Context, artifactPath, destination string, threshold time.Time) (bool, error) {
	ref, client, err := a.connect(opGetIfNewer, artifactPath)
	if err != nil {
		return false, err
	}
	m, err := pullManifest(ctx, client, ref)
	if err != nil {
		return false, newOpError(opGetIfNewer, artifactPath, ref.String(), err)
	}
	raw, err := pullConfig(ctx, client, m)
	if err != nil {
		return false, newOpError(opGetIfNewer, artifactPath, ref.String(), err)
	}

	created, err := image.ParseCreated(raw)
	if err == nil && !created.After(threshold) {
		a.log.Info("artifact is up to date", "ref", ref.String(), "created", created, "threshold", threshold)
		return false, nil
	}
	if err != nil {
		a.log.Warn("cannot read creation time, assuming stale", "ref", ref.String(), "err", err)
	}

	if err := a.transfer(opGetIfNewer, artifactPath, ref, func(progress io.Writer) error {
		return a.download(ctx, client, m, destination, created, progress)
	}); err != nil {
		return false, err
	}
	return true, nil
}

// transfer wraps fn with transfer events and error reporting.
func (a *Adapter) transfer(op, artifactPath string, ref Reference, fn func(progress io.Writer) error) error {
	event := Event{Op: op, Path: artifactPath, Ref: ref.String()}
	var progress io.Writer
	if a.events != nil {
		progress = &progressWriter{sink: a.events, event: event}
	}

	a.emit(event, EventStarted, nil)
	a.log.Debug("transfer started", "op", op, "path", artifactPath, "ref", event.Ref)
	if err := fn(progress); err != nil {
		opErr := newOpError(op, artifactPath, event.Ref, err)
		a.emit(event, EventFailed, opErr)
		a.log.Debug("transfer failed", "op", op, "path", artifactPath, "err", err)
		return opErr
	}
	a.emit(event, EventCompleted, nil)
	return nil
}

func (a *Adapter) emit(e Event, kind EventKind, err error) {
	if a.events == nil {
		return
	}
	e.Kind = kind
	e.Err = err
	a.events.TransferEvent(e)
}

// download extracts the first layer of m into destination. The file is
// written next to destination and renamed into place once complete.
func (a *Adapter) download(ctx context.Context, client remote.Registry, m *v1.Manifest, destination string, created time.Time, progress io.Writer) (err error) {
	if len(m.Layers) == 0 {
		return errors.New("manifest has no layers")
	}
	rc, err := client.PullBlob(ctx, m.Layers[0].Digest)
	if err != nil {
		return err
	}
	defer rc.Close()

	dir := filepath.Dir(destination)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(destination)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	var w io.Writer = tmp
	if progress != nil {
		w = io.MultiWriter(tmp, progress)
	}
	if _, err := layer.ExtractFirst(rc, w); err != nil {
		return fmt.Errorf("extract layer: %w", err)
	}
	// Drain the blob so the registry client can verify its digest.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("read layer: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), destination); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	if !created.IsZero() {
		if err := os.Chtimes(destination, created, created); err != nil {
			return fmt.Errorf("set modification time: %w", err)
		}
	}
	a.log.Debug("downloaded artifact", "destination", destination, "digest", m.Layers[0].Digest, "created", created)
	return nil
}

func pullManifest(ctx context.Context, client remote.Registry, ref Reference) (*v1.Manifest, error) {
	m, _, err := client.PullManifest(ctx, ref.Tag)
	if err != nil {
		return nil, err
	}
	if len(m.Layers) == 0 {
		return nil, fmt.Errorf("manifest for %s has no layers", ref)
	}
	return m, nil
}

func pullConfig(ctx context.Context, client remote.Registry, m *v1.Manifest) ([]byte, error) {
	rc, err := client.PullBlob(ctx, m.Config.Digest)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return raw, nil
}
