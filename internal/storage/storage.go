// Package storage mirrors vendor-hosted artifacts into durable object
// storage. Vendor result URLs are time-limited; a job only becomes
// SUCCEEDED once every artifact has been copied somewhere the service
// controls.
package storage

import "context"

// ObjectStore persists raw bytes under a key and returns a durable,
// client-servable reference.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
