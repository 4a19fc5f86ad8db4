// Package archive writes report documents to durable storage, either a
// local directory or an S3-compatible bucket.
package archive

import "context"

// Writer stores report documents under keys.
type Writer interface {
	// Preflight verifies that the backend is reachable and writable, to
	// fail fast on misconfiguration.
	Preflight(ctx context.Context) error

	// Put writes the document at key with the given content type.
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
