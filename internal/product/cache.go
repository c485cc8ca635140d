package product

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	productByIDKeyPrefix = "product:id:"
	productListKeyPrefix = "product:list:"
	defaultCacheTTL      = 5 * time.Minute
)

var errCacheMiss = errors.New("cache miss")

type freshReadKey struct{}

// withFreshRead marks ctx so FindByID skips any cached copy. Mutations read
// the row they are about to replace this way.
func withFreshRead(ctx context.Context) context.Context {
	return context.WithValue(ctx, freshReadKey{}, true)
}

func isFreshRead(ctx context.Context) bool {
	fresh, _ := ctx.Value(freshReadKey{}).(bool)
	return fresh
}

// CachedRepository wraps a RecordStore with a Redis read-through cache.
// CountByImage, and FindByID under withFreshRead, always go to the
// underlying store since asset cleanup decisions depend on them.
type CachedRepository struct {
	next  RecordStore
	redis *redis.Client
	ttl   time.Duration
}

// NewCachedRepository creates a cached record store. A non-positive ttl uses five minutes.
func NewCachedRepository(next RecordStore, client *redis.Client, ttl time.Duration) *CachedRepository {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedRepository{next: next, redis: client, ttl: ttl}
}

func idKey(id int64) string { return productByIDKeyPrefix + strconv.FormatInt(id, 10) }

func listKeys() []string {
	return []string{productListKeyPrefix + string(OrderByID), productListKeyPrefix + string(OrderByName)}
}

// FindByID retrieves a product, trying the cache first unless ctx asks for a
// fresh read. A fresh read also refreshes the cached entry.
func (c *CachedRepository) FindByID(ctx context.Context, id int64) (*Product, error) {
	if !isFreshRead(ctx) {
		var p Product
		if err := c.get(ctx, idKey(id), &p); err == nil {
			return &p, nil
		}
	}

	result, err := c.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, idKey(id), result)
	return result, nil
}

// List retrieves the ordered product list, trying the cache first.
func (c *CachedRepository) List(ctx context.Context, order Order) ([]*Product, error) {
	key := productListKeyPrefix + string(order)

	var products []*Product
	if err := c.get(ctx, key, &products); err == nil {
		return products, nil
	}

	result, err := c.next.List(ctx, order)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, result)
	return result, nil
}

// Create inserts a product and invalidates the cached lists.
func (c *CachedRepository) Create(ctx context.Context, f Fields) (*Product, error) {
	p, err := c.next.Create(ctx, f)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, listKeys()...)
	return p, nil
}

// Update writes through and drops the product and list entries.
func (c *CachedRepository) Update(ctx context.Context, id int64, f Fields) (*Product, error) {
	p, err := c.next.Update(ctx, id, f)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, append(listKeys(), idKey(id))...)
	return p, nil
}

// Delete removes the product and drops the product and list entries.
func (c *CachedRepository) Delete(ctx context.Context, id int64) (*Product, error) {
	p, err := c.next.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, append(listKeys(), idKey(id))...)
	return p, nil
}

// CountByImage is never cached.
func (c *CachedRepository) CountByImage(ctx context.Context, image string) (int, error) {
	return c.next.CountByImage(ctx, image)
}

func (c *CachedRepository) get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return errCacheMiss
		}
		log.Printf("cache: get %s: %v", key, err)
		return fmt.Errorf("redis get error: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal error: %w", err)
	}
	return nil
}

// set stores value; cache errors are logged and otherwise ignored.
func (c *CachedRepository) set(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
}

func (c *CachedRepository) invalidate(ctx context.Context, keys ...string) {
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		log.Printf("cache: warning: invalidate %v: %v", keys, err)
	}
}
