package masterdata_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/masterdata"
	"github.com/odyssey-erp/stockledger/internal/masterdata/masterdatatest"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

func setup(t *testing.T) (*masterdata.CachedCatalog, *masterdatatest.Static, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	upstream := masterdatatest.New().WithProduct(1, 1200, 2000).WithBranches(3)
	return masterdata.NewCachedCatalog(upstream, client, time.Minute), upstream, mr
}

func TestCachedCatalogServesProductFromRedis(t *testing.T) {
	ctx := context.Background()
	catalog, upstream, mr := setup(t)

	p, err := catalog.Product(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "1200", p.UnitCost.String())

	p, err = catalog.Product(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "2000", p.SalePrice.String())
	require.Equal(t, 1, upstream.ProductCalls)
	require.True(t, mr.Exists("stockledger:masterdata:product:1"))

	mr.FastForward(2 * time.Minute)
	_, err = catalog.Product(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, upstream.ProductCalls)
}

func TestCachedCatalogInvalidate(t *testing.T) {
	ctx := context.Background()
	catalog, upstream, _ := setup(t)

	_, err := catalog.Product(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, catalog.Invalidate(ctx, 1))
	_, err = catalog.Product(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, upstream.ProductCalls)
}

func TestCachedCatalogDoesNotCacheMisses(t *testing.T) {
	ctx := context.Background()
	catalog, upstream, mr := setup(t)

	_, err := catalog.Product(ctx, 99)
	require.ErrorIs(t, err, shared.ErrNotFound)

	ok, err := catalog.BranchExists(ctx, 4)
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, mr.Exists("stockledger:masterdata:branch:4"))

	upstream.WithBranches(4)
	ok, err = catalog.BranchExists(ctx, 4)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = catalog.BranchExists(ctx, 3)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCachedCatalogWithoutRedis(t *testing.T) {
	upstream := masterdatatest.New().WithSuppliers(8)
	catalog := masterdata.NewCachedCatalog(upstream, nil, 0)
	ok, err := catalog.SupplierExists(context.Background(), 8)
	require.NoError(t, err)
	require.True(t, ok)
}
