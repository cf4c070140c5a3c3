package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"estimate-backend/internal/shared/storage/object"
)

// Public base URLs the bucket has been served from historically. Stored
// artifact URLs may still reference any of these; KeyFor strips them all so
// callers can re-derive a current URL.
var defaultLegacyBases = []string{
	"https://repair-estimates-prod.s3.amazonaws.com",
	"https://files.estimates.example.com",
}

// Adapter stores and retrieves generated artifacts under canonical keys and
// translates between storage keys and public URLs.
type Adapter struct {
	store       object.ObjectStore
	baseURL     string
	legacyBases []string
}

// NewAdapter builds an Adapter. baseURL is the current public base URL;
// extraLegacy lists additional historical base URLs beyond the built-in ones.
func NewAdapter(store object.ObjectStore, baseURL string, extraLegacy []string) *Adapter {
	bases := make([]string, 0, len(extraLegacy)+len(defaultLegacyBases))
	for _, b := range extraLegacy {
		if trimmed := strings.TrimRight(strings.TrimSpace(b), "/"); trimmed != "" {
			bases = append(bases, trimmed)
		}
	}
	bases = append(bases, defaultLegacyBases...)

	return &Adapter{
		store:       store,
		baseURL:     strings.TrimRight(baseURL, "/"),
		legacyBases: bases,
	}
}

// Put stores bytes at the given canonical key.
func (a *Adapter) Put(ctx context.Context, key string, contentType string, data []byte) error {
	if _, err := a.store.Put(ctx, key, contentType, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("put artifact %s: %w", key, err)
	}
	return nil
}

// Get fetches the full contents stored at the given canonical key.
func (a *Adapter) Get(ctx context.Context, key string) ([]byte, error) {
	body, err := a.store.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w", key, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the blob at the given canonical key.
func (a *Adapter) Delete(ctx context.Context, key string) error {
	if err := a.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete artifact %s: %w", key, err)
	}
	return nil
}

// URLFor composes the current public URL for a canonical key. It never emits
// a deprecated base URL; callers holding a stored URL must re-derive via
// KeyFor first.
func (a *Adapter) URLFor(key string) string {
	return a.baseURL + "/" + strings.TrimLeft(key, "/")
}

// KeyFor normalizes a stored URL or key to its canonical storage key. It
// strips the current and every known historical base URL, drops a leading
// slash, and rejects keys carrying parent-directory traversal. It is
// idempotent: an already-canonical key normalizes to itself. The second
// return is false when the input cannot be resolved to a key.
func (a *Adapter) KeyFor(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	for _, base := range append([]string{a.baseURL}, a.legacyBases...) {
		if base == "" {
			continue
		}
		if s == base {
			return "", false
		}
		if strings.HasPrefix(s, base+"/") {
			s = strings.TrimPrefix(s, base+"/")
			break
		}
	}

	// Anything still carrying a scheme points at a host we never served from.
	if strings.Contains(s, "://") {
		return "", false
	}

	s = strings.TrimLeft(s, "/")
	if s == "" {
		return "", false
	}
	for _, seg := range strings.Split(s, "/") {
		if seg == ".." {
			return "", false
		}
	}
	return s, true
}
