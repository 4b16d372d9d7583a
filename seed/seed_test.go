package seed_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commerce-engine/auth"
	"github.com/warp/commerce-engine/commerce"
	"github.com/warp/commerce-engine/seed"
	"github.com/warp/commerce-engine/store/sqlite"
	"github.com/warp/commerce-engine/store/sqlstore"
	"golang.org/x/crypto/bcrypt"
)

var seedNow = time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testOptions() seed.Options {
	opts := seed.DefaultOptions()
	opts.Clients = 8
	opts.Days = 7
	opts.Now = func() time.Time { return seedNow }
	opts.Hasher = auth.NewPasswordHasher(bcrypt.MinCost)
	return opts
}

func TestLoad(t *testing.T) {
	// GIVEN: An empty database
	// WHEN: The demo dataset is loaded
	// THEN: The catalog exists, purchases went through the ledger and the
	//       analytics queries have data to report

	store := newTestStore(t)
	ctx := context.Background()

	summary, err := seed.Load(ctx, store, testOptions())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Administrators)
	assert.Equal(t, 8, summary.Categories)
	assert.Equal(t, 16, summary.Products)
	assert.Equal(t, 8, summary.Clients)
	assert.Positive(t, summary.Completed)
	assert.Equal(t, summary.Purchases, summary.Completed+summary.Pending)
	assert.True(t, summary.Revenue.IsPositive())

	page, err := store.ListPurchases(ctx, commerce.PurchaseFilter{}, commerce.PageRequest{}.Normalize())
	require.NoError(t, err)
	assert.Equal(t, int64(summary.Completed), page.TotalCount)

	rows, err := store.MostPurchasedByCategory(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 8)
}

func TestLoad_SameSeedSameData(t *testing.T) {
	ctx := context.Background()

	first, err := seed.Load(ctx, newTestStore(t), testOptions())
	require.NoError(t, err)
	second, err := seed.Load(ctx, newTestStore(t), testOptions())
	require.NoError(t, err)

	assert.Equal(t, first.Purchases, second.Purchases)
	assert.Equal(t, first.Completed, second.Completed)
	assert.True(t, first.Revenue.Equal(second.Revenue))
}

func TestLoad_IsRepeatable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := seed.Load(ctx, store, testOptions())
	require.NoError(t, err)
	summary, err := seed.Load(ctx, store, testOptions())
	require.NoError(t, err)

	admins, err := store.ListActiveAdministrators(ctx)
	require.NoError(t, err)
	assert.Len(t, admins, summary.Administrators)
}

func TestLoad_DemoCredentialsWork(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	opts := testOptions()
	_, err := seed.Load(ctx, store, opts)
	require.NoError(t, err)

	service := auth.NewService(store, auth.NewTokenManager(auth.TokenConfig{Secret: "s"}), opts.Hasher)
	_, admin, err := service.Login(ctx, "admin@test.com", seed.DemoPassword)
	require.NoError(t, err)
	assert.Equal(t, commerce.RoleAdmin, admin.Role)
}
