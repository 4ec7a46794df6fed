package storage

import (
	"context"
	"io"
)

// Storage copies packet files to a secondary store.
type Storage interface {
	// Save stores a file at the given path
	Save(ctx context.Context, path string, file io.Reader) error

	// Delete removes a file at the given path
	Delete(ctx context.Context, path string) error
}

// Nop is used when no mirror is configured.
type Nop struct{}

func (Nop) Save(context.Context, string, io.Reader) error { return nil }

func (Nop) Delete(context.Context, string) error { return nil }
