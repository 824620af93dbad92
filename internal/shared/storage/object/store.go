package object

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a key does not exist in the backing store.
var ErrNotFound = errors.New("object not found")

// Info describes a stored object without its body.
type Info struct {
	SizeBytes   int64
	ContentType string
}

// Store is the contract for saving and retrieving binary objects under
// caller-chosen keys. Implementations must treat keys as opaque slash-joined
// paths and return ErrNotFound for missing keys on Open and Stat. Delete is
// idempotent: deleting a missing key succeeds.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Presign(ctx context.Context, key string, expires time.Duration) (string, error)
	PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
}
