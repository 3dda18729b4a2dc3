// Package storage provides the object storage that result artifacts are
// published to.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrUploadFailed       = errors.New("upload failed")
	ErrDeleteFailed       = errors.New("delete failed")
)

// ObjectStorage abstracts object storage operations.
// Implementations are S3 and the local filesystem.
type ObjectStorage interface {
	// Upload uploads a file, replacing any existing object.
	// localPath is the path to the local file to upload.
	// objectPath is the destination path in object storage.
	Upload(ctx context.Context, localPath, objectPath string) error

	// PutIfAbsent uploads a file only if no object exists at objectPath.
	// Returns ErrPreconditionFailed when the object already exists.
	PutIfAbsent(ctx context.Context, localPath, objectPath string) error

	// Delete removes an object from storage. Deleting a missing object is not
	// an error.
	Delete(ctx context.Context, objectPath string) error

	// ListObjects returns the keys under prefix in lexical order. A prefix
	// holding nothing yields an empty list, not an error.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
