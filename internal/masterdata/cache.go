package masterdata

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/stockledger/internal/platform/cache"
)

// CachedCatalog fronts a Catalog with Redis. Concurrent misses on the same key share one
// upstream load. Redis failures fall through to the upstream catalog.
type CachedCatalog struct {
	next   Catalog
	client redis.Cmdable
	ttl    time.Duration
	group  singleflight.Group
}

// NewCachedCatalog wraps next. A nil client disables caching.
func NewCachedCatalog(next Catalog, client redis.Cmdable, ttl time.Duration) *CachedCatalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedCatalog{next: next, client: client, ttl: ttl}
}

func (c *CachedCatalog) Product(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := c.fetchJSON(ctx, keyFor("product", id), &p, func(ctx context.Context) (any, error) {
		return c.next.Product(ctx, id)
	})
	return p, err
}

func (c *CachedCatalog) BranchExists(ctx context.Context, id int64) (bool, error) {
	return c.exists(ctx, "branch", id, c.next.BranchExists)
}

func (c *CachedCatalog) PartnerExists(ctx context.Context, id int64) (bool, error) {
	return c.exists(ctx, "partner", id, c.next.PartnerExists)
}

func (c *CachedCatalog) SupplierExists(ctx context.Context, id int64) (bool, error) {
	return c.exists(ctx, "supplier", id, c.next.SupplierExists)
}

// Invalidate drops the cached product entry, e.g. after a price change.
func (c *CachedCatalog) Invalidate(ctx context.Context, productID int64) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, keyFor("product", productID)).Err()
}

func (c *CachedCatalog) exists(ctx context.Context, kind string, id int64, load func(context.Context, int64) (bool, error)) (bool, error) {
	var ok bool
	err := c.fetchJSON(ctx, keyFor(kind, id), &ok, func(ctx context.Context) (any, error) {
		found, err := load(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errMissing
		}
		return true, nil
	})
	if errors.Is(err, errMissing) {
		return false, nil
	}
	return ok, err
}

// errMissing keeps negative lookups out of the cache so a newly created branch is seen at once.
var errMissing = errors.New("masterdata: missing")

func (c *CachedCatalog) fetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
	}
	res := c.group.DoChan(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if c.client != nil {
			_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-res:
		if r.Err != nil {
			return r.Err
		}
		return json.Unmarshal(r.Val.([]byte), dest)
	}
}

func keyFor(kind string, id int64) string {
	return cache.Key("masterdata", kind, strconv.FormatInt(id, 10))
}
