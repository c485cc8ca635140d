package product

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrine/service/internal/storage"
)

func newCached(t *testing.T) (*CachedRepository, *memRecords, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	records := newMemRecords()
	return NewCachedRepository(records, client, time.Minute), records, mr
}

func TestCachedRepositoryFindByID(t *testing.T) {
	ctx := context.Background()
	cached, records, mr := newCached(t)

	p, err := cached.Create(ctx, Fields{Name: "Mug", Image: "a.png"})
	require.NoError(t, err)

	first, err := cached.FindByID(ctx, p.ID)
	require.NoError(t, err)
	second, err := cached.FindByID(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, 1, records.calls["find"], "second read is served from redis")
	assert.True(t, mr.Exists(idKey(p.ID)))

	ttl := mr.TTL(idKey(p.ID))
	assert.Equal(t, time.Minute, ttl)
}

func TestCachedRepositoryInvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	cached, records, mr := newCached(t)

	p, err := cached.Create(ctx, Fields{Name: "Mug", Image: "a.png"})
	require.NoError(t, err)

	list, err := cached.List(ctx, OrderByID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	_, err = cached.FindByID(ctx, p.ID)
	require.NoError(t, err)

	_, err = cached.Update(ctx, p.ID, Fields{Name: "Cup", Image: "b.png"})
	require.NoError(t, err)
	assert.False(t, mr.Exists(idKey(p.ID)))
	assert.False(t, mr.Exists(productListKeyPrefix+string(OrderByID)))

	got, err := cached.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cup", got.Name)

	_, err = cached.Create(ctx, Fields{Name: "Plate", Image: "c.png"})
	require.NoError(t, err)
	list, err = cached.List(ctx, OrderByID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 2, records.calls["list"])

	_, err = cached.Delete(ctx, p.ID)
	require.NoError(t, err)
	_, err = cached.FindByID(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedRepositoryCountIsNotCached(t *testing.T) {
	ctx := context.Background()
	cached, records, _ := newCached(t)

	_, err := cached.Create(ctx, Fields{Name: "Mug", Image: "a.png"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		n, err := cached.CountByImage(ctx, "a.png")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	assert.Equal(t, 3, records.calls["count"])
}

func TestCachedRepositoryFallsBackWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	cached, _, mr := newCached(t)

	p, err := cached.Create(ctx, Fields{Name: "Mug", Image: "a.png"})
	require.NoError(t, err)
	mr.Close()

	got, err := cached.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mug", got.Name)
}

func TestCachedRepositoryFreshReadSkipsCache(t *testing.T) {
	ctx := context.Background()
	cached, records, _ := newCached(t)

	p, err := cached.Create(ctx, Fields{Name: "Mug", Image: "a.png"})
	require.NoError(t, err)
	stale := *p
	stale.Image = "old.png"
	cached.set(ctx, idKey(p.ID), &stale)

	got, err := cached.FindByID(withFreshRead(ctx), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.png", got.Image)
	assert.Equal(t, 1, records.calls["find"])

	got, err = cached.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.png", got.Image, "fresh read refreshes the cached entry")
	assert.Equal(t, 1, records.calls["find"])
}

func TestServiceUpdateOverStaleCacheReleasesCurrentAsset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cached, _, _ := newCached(t)
	cached.next = f.records
	svc := NewService(cached, f.store, f.svc.Policy())

	created, err := svc.Create(ctx, CreateInput{Name: "Mug", Description: strPtr("tall"), Upload: png("PNGDATA1")})
	require.NoError(t, err)
	stale, err := cached.FindByID(ctx, created.ID)
	require.NoError(t, err)

	_, err = svc.Update(ctx, created.ID, Patch{Name: strPtr("Cup")}, png("PNGDATA2"))
	require.NoError(t, err)
	// A reader that loaded the row before the update puts it back.
	cached.set(ctx, idKey(created.ID), stale)

	updated, err := svc.Update(ctx, created.ID, Patch{}, png("PNGDATA3"))
	require.NoError(t, err)

	third := storage.Fingerprint([]byte("PNGDATA3")) + ".png"
	assert.Equal(t, "Cup", updated.Name)
	assert.Equal(t, third, updated.Image)
	assert.Equal(t, []string{third}, f.files(t))

	deleted, err := svc.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, third, deleted.Image)
	assert.Empty(t, f.files(t))
}
