package object

import (
	"context"
	"io"
)

// ObjectStore defines the contract for saving and retrieving binary objects
// addressed by canonical storage keys.
type ObjectStore interface {
	Put(ctx context.Context, storageKey string, contentType string, r io.Reader) (sizeBytes int64, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	// OpenRange reads length bytes starting at offset. A length < 0 reads to
	// the end of the object.
	OpenRange(ctx context.Context, storageKey string, offset, length int64) (io.ReadCloser, error)
	Delete(ctx context.Context, storageKey string) error
}
