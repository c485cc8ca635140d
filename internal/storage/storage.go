// Package storage keeps image assets in a content-addressed namespace.
// An asset's name is the hex SHA-256 of its bytes followed by its extension,
// so identical uploads always land on the same name. Implementations never
// delete on their own; callers decide when an asset is superseded.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"strings"
)

var (
	// ErrWriteFailed wraps any I/O failure while persisting an asset.
	ErrWriteFailed = errors.New("storage write failed")
	// ErrDeleteFailed wraps any I/O failure while removing an asset.
	ErrDeleteFailed = errors.New("storage delete failed")
	// ErrInvalidName is returned for names that could escape the asset root.
	ErrInvalidName = errors.New("invalid asset name")
)

// Store is a content-addressed asset store.
type Store interface {
	// Write persists data under Fingerprint(data)+ext. Writing bytes that are
	// already stored is a no-op that still succeeds.
	Write(ctx context.Context, data []byte, ext string) (Stored, error)
	// Remove deletes the named asset. A missing asset is not an error.
	Remove(ctx context.Context, name string) error
	// Exists reports whether the named asset is present. The catalog never
	// needs it on a request path; it is kept for diagnostics and tests.
	Exists(ctx context.Context, name string) (bool, error)
	// Locator builds the public reference for name. It is derived on every
	// call and never persisted.
	Locator(name string, origin Origin) string
}

// Stored describes the outcome of a Write.
type Stored struct {
	Name        string
	Fingerprint string
	Extension   string
	// Created is false when the asset already existed before the write.
	Created bool
}

// Origin is the scheme and host of the request being served.
type Origin struct {
	Scheme string
	Host   string
}

// Fingerprint returns the hex SHA-256 digest of data.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NameFor returns the canonical asset name for data stored with ext.
func NameFor(data []byte, ext string) string {
	return Fingerprint(data) + strings.ToLower(ext)
}

// CheckName rejects empty names and anything containing a path element.
func CheckName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// contentType guesses the MIME type from the extension.
func contentType(ext string) string {
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// joinURL concatenates a base and a path without doubling slashes.
func joinURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + name
}
