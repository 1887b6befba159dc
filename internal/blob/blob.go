// Package blob provides the key-value object bucket that job documents and
// uploaded files live in.
package blob

import (
	"context"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = eris.New("blob: not found")

// Bucket is a flat key-value object store. Put overwrites; Delete of a
// missing key is not an error.
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// URLScheme prefixes references to objects in the upload bucket.
const URLScheme = "blob://"

// Ref returns the blob:// reference for key.
func Ref(key string) string {
	return URLScheme + key
}

// KeyFromRef extracts the key from a blob:// reference.
func KeyFromRef(ref string) (string, bool) {
	if !strings.HasPrefix(ref, URLScheme) {
		return "", false
	}
	key, err := CleanKey(strings.TrimPrefix(ref, URLScheme))
	if err != nil {
		return "", false
	}
	return key, true
}

// CleanKey normalizes key and rejects keys that escape the bucket root.
func CleanKey(key string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(key))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return "", eris.Errorf("blob: invalid key %q", key)
	}
	return clean, nil
}

func joinPrefix(prefix, key string) string {
	p := strings.Trim(strings.TrimSpace(prefix), "/")
	k := strings.TrimLeft(key, "/")
	if p == "" {
		return k
	}
	if k == "" {
		return p
	}
	return p + "/" + k
}
