package blob

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the object-storage collaborator. Keys are opaque strings;
// ownership is encoded in the key prefix, never enforced here.
type Store interface {
	// Put uploads an object.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	// Get opens an object for reading; the caller closes the stream.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Exists reports whether the key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes an object; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// PresignGet returns a time-limited download URL.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// NewKey builds the canonical object key "<tenantId>/<kind>/<uuid>_<filename>".
func NewKey(tenantID, kind, filename string) string {
	return fmt.Sprintf("%s/%s/%s_%s", tenantID, kind, uuid.NewString(), sanitizeFilename(filename))
}

// ThumbnailKey derives the thumbnail object key from the original's key.
func ThumbnailKey(blobKey string) string {
	return blobKey + ".thumbnail.webp"
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "file"
	}
	replacer := strings.NewReplacer("/", "_", "\\", "_", " ", "_")
	return replacer.Replace(name)
}
