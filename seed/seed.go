/*
seed.go - Demo dataset loader

PURPOSE:
  Populates an empty database with administrators, categories, products,
  clients and a month of purchases so the analytics endpoints have
  something to report on. Used by `server -seed` and in tests.

HOW LOADING WORKS:
 1. Reset database (clear all data)
 2. Create administrators (bcrypt digests via auth.PasswordHasher)
 3. Create categories and products, one product in two categories
 4. Create clients
 5. Record purchases through the PurchaseLedger, so stock and
    first-purchase rules apply exactly as they do for API traffic

DETERMINISM:
  All random choices come from a PCG source seeded with Options.Seed.
  The same seed and clock produce the same dataset.

NOTE:
  Loading resets the database. Only use in development/demo environments.

SEE ALSO:
  - commerce/ledger.go: RecordPurchase
  - cmd/server/main.go: -seed flag
*/
package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/warp/commerce-engine/auth"
	"github.com/warp/commerce-engine/commerce"
	"github.com/warp/commerce-engine/logging"
)

// DemoPassword is shared by every seeded administrator.
const DemoPassword = "password123"

// Store is what the loader writes through.
type Store interface {
	commerce.TxStore
	CreateAdministrator(ctx context.Context, a *commerce.Administrator) error
	CreateCategory(ctx context.Context, c *commerce.Category) error
	CreateProduct(ctx context.Context, p *commerce.Product) error
	CreateClient(ctx context.Context, c *commerce.Client) error
	Reset(ctx context.Context) error
}

type Options struct {
	Clients int
	Days    int
	// MaxDailyPurchases bounds the random number of purchases per day.
	MaxDailyPurchases int
	Seed              uint64
	Now               func() time.Time
	Hasher            *auth.PasswordHasher
}

func DefaultOptions() Options {
	return Options{
		Clients:           50,
		Days:              30,
		MaxDailyPurchases: 10,
		Seed:              42,
		Now:               time.Now,
		Hasher:            auth.NewPasswordHasher(auth.DefaultBcryptCost),
	}
}

type Summary struct {
	Administrators int
	Categories     int
	Products       int
	Clients        int
	Purchases      int
	Completed      int
	Pending        int
	Revenue        commerce.Money
}

// =============================================================================
// DATASET
// =============================================================================

var administrators = []struct {
	name  string
	email string
	role  commerce.Role
}{
	{"Cesar Parra", "admin@commerce.local", commerce.RoleAdmin},
	{"Ana Garcia", "manager@commerce.local", commerce.RoleManager},
	{"Carlos Rodriguez", "supervisor@commerce.local", commerce.RoleManager},
	{"Admin Test", "admin@test.com", commerce.RoleAdmin},
}

type productSeed struct {
	name        string
	description string
	price       float64
	minStock    int
	maxStock    int
}

var catalog = []struct {
	name        string
	description string
	products    []productSeed
}{
	{"Electronics", "Electronics and technology", []productSeed{
		{"iPhone 15 Pro", "Latest generation Apple smartphone with a pro camera", 1299, 100, 500},
		{"MacBook Air M2", "Thin and light laptop with the M2 chip", 1899, 100, 500},
		{"Samsung Galaxy S24", "Premium Android phone with built-in AI", 1199, 100, 500},
		{"iPad Pro 12.9", "Professional tablet with a Liquid Retina XDR display", 1499, 100, 500},
		{"AirPods Pro 2", "Wireless earbuds with noise cancellation", 299, 100, 500},
	}},
	{"Clothing and Accessories", "Apparel and fashion accessories", []productSeed{
		{"Levis 501 Jeans", "Classic blue denim jeans", 89, 150, 400},
		{"Nike Dri-FIT Shirt", "Quick-drying sports shirt", 45, 150, 400},
		{"North Face Jacket", "Waterproof outdoor jacket", 199, 150, 400},
		{"Adidas Ultraboost", "High performance running shoes", 179, 150, 400},
		{"Casio G-Shock Watch", "Shock and water resistant watch", 129, 150, 400},
	}},
	{"Home and Garden", "Products for home and garden", []productSeed{
		{"Dyson V15 Vacuum", "High power cordless vacuum cleaner", 699, 50, 200},
		{"Nespresso Machine", "Automatic capsule coffee machine", 189, 50, 200},
		{"Tefal Cookware Set", "Six piece non-stick cookware set", 159, 50, 200},
		{"LG Smart Microwave", "Smart 25L microwave oven", 249, 50, 200},
		{"Premium Bed Sheets", "Egyptian cotton bed sheet set", 89, 50, 200},
	}},
	{"Sports", "Sports and fitness gear", nil},
	{"Books and Media", "Books, music and movies", nil},
	{"Health and Beauty", "Health and cosmetics products", nil},
	{"Automotive", "Vehicle accessories and parts", nil},
	{"Toys", "Toys and games for children", nil},
}

var (
	firstNames = []string{"Alice", "Bruno", "Camila", "Diego", "Elena", "Felipe", "Gabriela", "Hugo", "Isabel", "Javier"}
	lastNames  = []string{"Rojas", "Silva", "Torres", "Vega", "Morales", "Castro", "Fuentes", "Herrera"}
	streets    = []string{"Main St", "Oak Ave", "Pine Rd", "Maple Dr", "Cedar Ln"}
)

// =============================================================================
// LOAD
// =============================================================================

// Load resets the store and writes the demo dataset.
func Load(ctx context.Context, store Store, opts Options) (*Summary, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Hasher == nil {
		opts.Hasher = auth.NewPasswordHasher(auth.DefaultBcryptCost)
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	summary := &Summary{Revenue: commerce.ZeroMoney()}

	if err := store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset database: %w", err)
	}

	digest, err := opts.Hasher.Hash(DemoPassword)
	if err != nil {
		return nil, err
	}
	var admins []*commerce.Administrator
	for _, a := range administrators {
		admin := &commerce.Administrator{Name: a.name, Email: a.email, PasswordDigest: digest, Role: a.role, Active: true}
		if err := store.CreateAdministrator(ctx, admin); err != nil {
			return nil, fmt.Errorf("failed to create administrator %s: %w", a.email, err)
		}
		admins = append(admins, admin)
	}
	summary.Administrators = len(admins)

	pickAdmin := func() commerce.AdministratorID { return admins[rng.IntN(len(admins))].ID }

	categoryIDs := make(map[string]commerce.CategoryID)
	var products []*commerce.Product
	for _, c := range catalog {
		category := &commerce.Category{Name: c.name, Description: c.description, Active: true, AdministratorID: pickAdmin()}
		if err := store.CreateCategory(ctx, category); err != nil {
			return nil, fmt.Errorf("failed to create category %s: %w", c.name, err)
		}
		categoryIDs[c.name] = category.ID
		summary.Categories++

		for _, p := range c.products {
			product, err := createProduct(ctx, store, p, rng, pickAdmin(), category.ID)
			if err != nil {
				return nil, err
			}
			products = append(products, product)
		}
	}

	// One product listed in two categories
	watch, err := createProduct(ctx, store,
		productSeed{"Apple Watch Series 9", "Smartwatch with GPS and health monitoring", 499, 80, 300},
		rng, pickAdmin(), categoryIDs["Electronics"], categoryIDs["Sports"])
	if err != nil {
		return nil, err
	}
	products = append(products, watch)
	summary.Products = len(products)

	var clients []*commerce.Client
	for i := 0; i < opts.Clients; i++ {
		first := firstNames[rng.IntN(len(firstNames))]
		last := lastNames[rng.IntN(len(lastNames))]
		client := &commerce.Client{
			Name:    first + " " + last,
			Email:   fmt.Sprintf("%s.%s.%d@example.com", first, last, i+1),
			Phone:   fmt.Sprintf("555%07d", rng.IntN(10_000_000)),
			Address: fmt.Sprintf("%d %s", 1+rng.IntN(999), streets[rng.IntN(len(streets))]),
			Active:  true,
		}
		if err := store.CreateClient(ctx, client); err != nil {
			return nil, fmt.Errorf("failed to create client %s: %w", client.Email, err)
		}
		clients = append(clients, client)
	}
	summary.Clients = len(clients)
	if len(clients) == 0 {
		return summary, nil
	}

	ledger := commerce.NewPurchaseLedger(store, commerce.WithClock(opts.Now))
	record := func(req commerce.PurchaseRequest) error {
		result, err := ledger.RecordPurchase(ctx, req)
		if errors.Is(err, commerce.ErrInsufficientStock) {
			return nil
		}
		if err != nil {
			return err
		}
		summary.Purchases++
		if result.Purchase.Status == commerce.StatusCompleted {
			summary.Completed++
			summary.Revenue = summary.Revenue.Add(result.Purchase.TotalAmount)
		} else {
			summary.Pending++
		}
		return nil
	}

	today := opts.Now().UTC().Truncate(24 * time.Hour)
	for d := opts.Days; d >= 0; d-- {
		day := today.AddDate(0, 0, -d)
		for n := rng.IntN(opts.MaxDailyPurchases + 1); n > 0; n-- {
			product := products[rng.IntN(len(products))]
			at := day.Add(time.Duration(rng.Int64N(int64(24 * time.Hour))))
			if at.After(opts.Now()) {
				at = opts.Now().UTC()
			}
			status := commerce.StatusCompleted
			if rng.IntN(4) == 0 {
				status = commerce.StatusPending
			}
			err := record(commerce.PurchaseRequest{
				ProductID:    product.ID,
				ClientID:     clients[rng.IntN(len(clients))].ID,
				Quantity:     1 + rng.IntN(max(product.Stock/10, 1)),
				PurchaseDate: &at,
				Status:       status,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to record purchase: %w", err)
			}
		}
	}

	// Guarantee the first product has a completed purchase from yesterday
	yesterday := opts.Now().UTC().AddDate(0, 0, -1)
	if err := record(commerce.PurchaseRequest{
		ProductID:    products[0].ID,
		ClientID:     clients[0].ID,
		Quantity:     2,
		PurchaseDate: &yesterday,
	}); err != nil {
		return nil, fmt.Errorf("failed to record purchase: %w", err)
	}

	logging.Info(ctx).
		Int("administrators", summary.Administrators).
		Int("categories", summary.Categories).
		Int("products", summary.Products).
		Int("clients", summary.Clients).
		Int("purchases", summary.Purchases).
		Int("completed", summary.Completed).
		Int("pending", summary.Pending).
		Str("revenue", summary.Revenue.String()).
		Msg("demo data loaded")

	return summary, nil
}

func createProduct(ctx context.Context, store Store, p productSeed, rng *rand.Rand, owner commerce.AdministratorID, categories ...commerce.CategoryID) (*commerce.Product, error) {
	product := &commerce.Product{
		Name:            p.name,
		Description:     p.description,
		Price:           commerce.NewMoney(p.price),
		Stock:           p.minStock + rng.IntN(p.maxStock-p.minStock+1),
		Active:          true,
		AdministratorID: owner,
		CategoryIDs:     categories,
	}
	if err := store.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product %s: %w", p.name, err)
	}
	return product, nil
}
