package storage

import (
	"context"
	"strings"
)

// PrefixedStorage wraps an ObjectStorage and prepends a prefix to all object paths.
type PrefixedStorage struct {
	inner  ObjectStorage
	prefix string
}

// WithPrefix returns a view of inner rooted at prefix. An empty prefix
// returns inner unchanged.
func WithPrefix(inner ObjectStorage, prefix string) ObjectStorage {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return inner
	}
	return &PrefixedStorage{inner: inner, prefix: prefix}
}

func (s *PrefixedStorage) Upload(ctx context.Context, localPath, objectPath string) error {
	return s.inner.Upload(ctx, localPath, s.key(objectPath))
}

func (s *PrefixedStorage) PutIfAbsent(ctx context.Context, localPath, objectPath string) error {
	return s.inner.PutIfAbsent(ctx, localPath, s.key(objectPath))
}

func (s *PrefixedStorage) Delete(ctx context.Context, objectPath string) error {
	return s.inner.Delete(ctx, s.key(objectPath))
}

// ListObjects strips the prefix from the returned keys so callers see the
// same paths they wrote.
func (s *PrefixedStorage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	objects, err := s.inner.ListObjects(ctx, s.key(prefix))
	if err != nil {
		return nil, err
	}

	stripped := make([]string, len(objects))
	for i, obj := range objects {
		stripped[i] = strings.TrimPrefix(obj, s.prefix+"/")
	}
	return stripped, nil
}

func (s *PrefixedStorage) key(objectPath string) string {
	return s.prefix + "/" + strings.TrimPrefix(objectPath, "/")
}
