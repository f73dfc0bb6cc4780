package history

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
)

// LRUStore is a read-through cache in front of another Store, for the
// webhook server which checks the last build of every affected image.
type LRUStore struct {
	lru    *lru.Cache
	source Store
}

var _ Store = (*LRUStore)(nil)

func NewLRUStore(size int, source Store) (*LRUStore, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &LRUStore{lru: cache, source: source}, nil
}

func (s *LRUStore) Latest(ctx context.Context, image string) (*Record, error) {
	if cached, ok := s.lru.Get(image); ok {
		return cached.(*Record), nil
	}

	r, err := s.source.Latest(ctx, image)
	if err != nil {
		return nil, err
	}
	s.lru.Add(image, r)
	return r, nil
}

func (s *LRUStore) Put(ctx context.Context, record *Record) error {
	s.lru.Add(record.Image, record)
	return s.source.Put(ctx, record)
}
