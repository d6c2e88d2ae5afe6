// Package storage publishes mirrored artifacts to object storage.
package storage

import (
	"context"
	"strings"
)

// Store is the "store bytes at key" capability. Keys are relative to the
// store's configured prefix.
type Store interface {
	// Put stores an in-memory object.
	Put(ctx context.Context, key string, body []byte) error
	// PutFile stores the content of a local file, using multipart upload for
	// large files.
	PutFile(ctx context.Context, key, path string) error
	// URL returns the public address of key.
	URL(key string) string
}

// JoinKey prefixes key with prefix, ignoring surrounding slashes.
func JoinKey(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	key = strings.TrimLeft(key, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
