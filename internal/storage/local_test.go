package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "images"), "/images")
	require.NoError(t, err)
	return s
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestLocalStoreWriteIsContentAddressed(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	stored, err := s.Write(ctx, []byte("PNGDATA1"), ".PNG")
	require.NoError(t, err)

	assert.Equal(t, Fingerprint([]byte("PNGDATA1"))+".png", stored.Name)
	assert.Equal(t, ".png", stored.Extension)
	assert.True(t, stored.Created)

	got, err := os.ReadFile(filepath.Join(s.Root(), stored.Name))
	require.NoError(t, err)
	assert.Equal(t, "PNGDATA1", string(got))
}

func TestLocalStoreWriteTwiceDeduplicates(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	first, err := s.Write(ctx, []byte("same bytes"), ".jpg")
	require.NoError(t, err)
	second, err := s.Write(ctx, []byte("same bytes"), ".jpg")
	require.NoError(t, err)

	assert.Equal(t, first.Name, second.Name)
	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, 1, countFiles(t, s.Root()))
}

func TestLocalStoreSameBytesDifferentExtension(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	a, err := s.Write(ctx, []byte("x"), ".jpg")
	require.NoError(t, err)
	b, err := s.Write(ctx, []byte("x"), ".png")
	require.NoError(t, err)

	assert.NotEqual(t, a.Name, b.Name)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.Equal(t, 2, countFiles(t, s.Root()))
}

func TestLocalStoreRemove(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	stored, err := s.Write(ctx, []byte("bye"), ".gif")
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, stored.Name))
	ok, err := s.Exists(ctx, stored.Name)
	require.NoError(t, err)
	assert.False(t, ok)

	// already gone is a valid end state
	require.NoError(t, s.Remove(ctx, stored.Name))
}

func TestLocalStoreRejectsPathNames(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	for _, name := range []string{"", "..", "../secret.png", "a/b.png", ".hidden"} {
		err := s.Remove(ctx, name)
		assert.True(t, errors.Is(err, ErrDeleteFailed), name)
		assert.True(t, errors.Is(err, ErrInvalidName), name)
	}

	_, err := s.Write(ctx, []byte("x"), "/../../x")
	assert.True(t, errors.Is(err, ErrWriteFailed))
}

func TestLocalStoreWriteFailure(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}
	ctx := context.Background()
	s := newLocal(t)
	require.NoError(t, os.Chmod(s.Root(), 0o500))
	t.Cleanup(func() { _ = os.Chmod(s.Root(), 0o755) })

	_, err := s.Write(ctx, []byte("nope"), ".png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWriteFailed))
	assert.Equal(t, 0, countFiles(t, s.Root()))
}

func TestLocalStoreLocator(t *testing.T) {
	s := newLocal(t)

	assert.Equal(t, "https://shop.example.com/images/abc.png",
		s.Locator("abc.png", Origin{Scheme: "https", Host: "shop.example.com"}))
	assert.Equal(t, "http://localhost:8080/images/abc.png",
		s.Locator("abc.png", Origin{Host: "localhost:8080"}))
	assert.Equal(t, "/images/abc.png", s.Locator("abc.png", Origin{}))
}

func TestLocalStoreRouteIsNormalized(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "media/")
	require.NoError(t, err)
	assert.Equal(t, "/media", s.Route())
}

func TestFingerprintIsStable(t *testing.T) {
	assert.Equal(t, Fingerprint([]byte("PNGDATA1")), Fingerprint([]byte("PNGDATA1")))
	assert.Len(t, Fingerprint(nil), 64)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Fingerprint(nil))
	assert.NotEqual(t, Fingerprint([]byte("PNGDATA1")), Fingerprint([]byte("PNGDATA2")))
}

func TestMinioLocatorPrefersPublicBase(t *testing.T) {
	s := &MinioStore{bucket: "products", publicBase: "https://cdn.example.com/products"}
	assert.Equal(t, "https://cdn.example.com/products/abc.png", s.Locator("abc.png", Origin{Host: "api"}))

	s.publicBase = ""
	assert.Equal(t, "http://api/products/abc.png", s.Locator("abc.png", Origin{Host: "api"}))
	assert.Equal(t, "/products/abc.png", s.Locator("abc.png", Origin{}))
}
