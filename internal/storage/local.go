package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStore implements Store on a single directory of the local filesystem.
// Files are written to a temporary name first and renamed into place, so a
// reader never sees a partially written asset.
type LocalStore struct {
	root  string
	route string
}

// NewLocalStore creates root if needed. route is the URL path the directory is
// served under, e.g. "/images".
func NewLocalStore(root, route string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir %q: %w", root, err)
	}
	log.Printf("storage: serving assets from %s", root)
	return &LocalStore{root: root, route: "/" + strings.Trim(route, "/")}, nil
}

// Root returns the asset directory.
func (s *LocalStore) Root() string { return s.root }

// Route returns the URL path prefix assets are served under.
func (s *LocalStore) Route() string { return s.route }

// Write stores data under its content-addressed name.
func (s *LocalStore) Write(ctx context.Context, data []byte, ext string) (Stored, error) {
	stored := Stored{
		Name:        NameFor(data, ext),
		Fingerprint: Fingerprint(data),
		Extension:   strings.ToLower(ext),
	}
	if err := CheckName(stored.Name); err != nil {
		return Stored{}, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return Stored{}, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	target := filepath.Join(s.root, stored.Name)
	if _, err := os.Stat(target); err == nil {
		return stored, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Stored{}, fmt.Errorf("%w: stat %q: %w", ErrWriteFailed, stored.Name, err)
	}

	tmp := filepath.Join(s.root, ".upload-"+uuid.NewString())
	if err := writeFile(tmp, data); err != nil {
		_ = os.Remove(tmp)
		return Stored{}, fmt.Errorf("%w: %q: %w", ErrWriteFailed, stored.Name, err)
	}
	// A concurrent writer of the same bytes may win the rename; the result is identical.
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return Stored{}, fmt.Errorf("%w: rename %q: %w", ErrWriteFailed, stored.Name, err)
	}

	stored.Created = true
	return stored, nil
}

// Remove deletes the named file; a missing file is treated as success.
func (s *LocalStore) Remove(ctx context.Context, name string) error {
	if err := CheckName(name); err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
	err := os.Remove(filepath.Join(s.root, name))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("%w: %q: %w", ErrDeleteFailed, name, err)
}

// Exists reports whether the named file is present.
func (s *LocalStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := CheckName(name); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(s.root, name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %q: %w", name, err)
}

// Locator returns scheme://host/<route>/<name>, or a root-relative path when
// the origin has no host.
func (s *LocalStore) Locator(name string, origin Origin) string {
	path := joinURL(s.route, name)
	if origin.Host == "" {
		return path
	}
	scheme := origin.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + origin.Host + path
}

func writeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
