package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
)

// FileStore keeps one JSON file per image.
type FileStore struct {
	log logr.Logger
	dir string
}

var _ Store = (*FileStore)(nil)

func NewFileStore(log logr.Logger, dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	return &FileStore{
		log: log,
		dir: dir,
	}, nil
}

func (s *FileStore) Latest(_ context.Context, image string) (*Record, error) {
	p := s.path(image)
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decoding %q: %w", p, err)
	}
	return &r, nil
}

func (s *FileStore) Put(_ context.Context, record *Record) error {
	b, err := json.Marshal(record)
	if err != nil {
		return err
	}
	p := s.path(record.Image)
	s.log.Info("storing build record", "path", p)
	return os.WriteFile(p, b, 0600)
}

func (s *FileStore) path(image string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", image))
}
