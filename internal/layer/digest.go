package layer

import (
	"encoding/hex"
	"hash"
	"io"

	v1 "github.com/google/go-containerregistry/pkg/v1"
)

const hashAlgorithm = "sha256"

// digestWriter forwards writes to w while hashing and counting every byte
// that w accepted.
type digestWriter struct {
	w io.Writer
	h hash.Hash
	n int64
}

func newDigestWriter(w io.Writer) (*digestWriter, error) {
	h, err := v1.Hasher(hashAlgorithm)
	if err != nil {
		return nil, err
	}
	return &digestWriter{w: w, h: h}, nil
}

func (d *digestWriter) Write(p []byte) (int, error) {
	n, err := d.w.Write(p)
	d.h.Write(p[:n])
	d.n += int64(n)
	return n, err
}

// Hash returns the digest of everything written so far.
func (d *digestWriter) Hash() v1.Hash {
	return v1.Hash{Algorithm: hashAlgorithm, Hex: hex.EncodeToString(d.h.Sum(nil))}
}

// Size returns the number of bytes written so far.
func (d *digestWriter) Size() int64 { return d.n }
