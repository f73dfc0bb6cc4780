package history

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/sha3"
)

// ErrNotFound is returned by Latest when an image has never been recorded.
var ErrNotFound = errors.New("no build recorded")

// Record describes one completed image build.
type Record struct {
	Image     string        `json:"image"`
	Tag       string        `json:"tag"`
	BuildDate string        `json:"buildDate"`
	Duration  time.Duration `json:"duration"`
	Succeeded bool          `json:"succeeded"`
	Digest    *Digest       `json:"digest,omitempty"`
}

// Digest identifies exported image content.
type Digest struct {
	Sha256   string `json:"sha256"`
	Shake256 string `json:"shake256"`
}

// NewDigest hashes b.
func NewDigest(b []byte) *Digest {
	sha256Hash := sha256.Sum256(b)
	sha3Hash := make([]byte, 64)
	sha3.ShakeSum256(sha3Hash, b)
	return &Digest{
		Sha256:   fmt.Sprintf("%x", sha256Hash),
		Shake256: fmt.Sprintf("%x", sha3Hash),
	}
}

// FileDigest hashes the file at path, streaming so large image tars are
// never held in memory.
func FileDigest(path string) (*Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sha256Hash := sha256.New()
	shake := sha3.NewShake256()
	if _, err := io.Copy(io.MultiWriter(sha256Hash, shake), f); err != nil {
		return nil, err
	}
	sha3Hash := make([]byte, 64)
	if _, err := shake.Read(sha3Hash); err != nil {
		return nil, err
	}
	return &Digest{
		Sha256:   fmt.Sprintf("%x", sha256Hash.Sum(nil)),
		Shake256: fmt.Sprintf("%x", sha3Hash),
	}, nil
}

// Store persists the most recent build of each image.
type Store interface {
	Latest(ctx context.Context, image string) (*Record, error)
	Put(ctx context.Context, record *Record) error
}
