package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/warp/commerce-engine/commerce"
)

// =============================================================================
// CATALOG STORE (commerce.CatalogStore interface)
// =============================================================================
// Every Create* normalizes then validates the record before inserting it, so
// a product created without a SKU gets a generated one. Uniqueness and
// referential integrity are left to the schema.

type administratorRow struct {
	ID             int64  `db:"id"`
	Name           string `db:"name"`
	Email          string `db:"email"`
	PasswordDigest string `db:"password_digest"`
	Role           string `db:"role"`
	Active         bool   `db:"active"`
	CreatedAt      dbTime `db:"created_at"`
}

func (r administratorRow) toDomain() commerce.Administrator {
	return commerce.Administrator{
		ID:             commerce.AdministratorID(r.ID),
		Name:           r.Name,
		Email:          r.Email,
		PasswordDigest: r.PasswordDigest,
		Role:           commerce.Role(r.Role),
		Active:         r.Active,
		CreatedAt:      r.CreatedAt.Time,
	}
}

const administratorColumns = `id, name, email, password_digest, role, active, created_at`

func (s *Store) CreateAdministrator(ctx context.Context, a *commerce.Administrator) error {
	a.Normalize()
	if err := a.Validate(); err != nil {
		return err
	}
	a.CreatedAt = s.now().UTC()
	query := `
		INSERT INTO administrators (name, email, password_digest, role, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`

	var id int64
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(query),
		a.Name, a.Email, a.PasswordDigest, string(a.Role), a.Active, s.timeArg(a.CreatedAt),
	).Scan(&id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("administrator email %q: %w", a.Email, commerce.ErrDuplicate)
		}
		return fmt.Errorf("failed to create administrator: %w", err)
	}
	a.ID = commerce.AdministratorID(id)
	return nil
}

func (s *Store) GetAdministrator(ctx context.Context, id commerce.AdministratorID) (*commerce.Administrator, error) {
	var row administratorRow
	query := `SELECT ` + administratorColumns + ` FROM administrators WHERE id = ?`
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(query), int64(id)); err != nil {
		return nil, notFound(err, "Administrator", id)
	}
	a := row.toDomain()
	return &a, nil
}

// GetAdministratorByEmail matches case-insensitively.
func (s *Store) GetAdministratorByEmail(ctx context.Context, email string) (*commerce.Administrator, error) {
	var row administratorRow
	query := `SELECT ` + administratorColumns + ` FROM administrators WHERE lower(email) = lower(?)`
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(query), email); err != nil {
		return nil, notFound(err, "Administrator", email)
	}
	a := row.toDomain()
	return &a, nil
}

func (s *Store) ListActiveAdministrators(ctx context.Context) ([]commerce.Administrator, error) {
	var rows []administratorRow
	query := `SELECT ` + administratorColumns + ` FROM administrators WHERE active = TRUE ORDER BY id`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list administrators: %w", err)
	}
	out := make([]commerce.Administrator, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

type categoryRow struct {
	ID              int64          `db:"id"`
	Name            string         `db:"name"`
	Description     sql.NullString `db:"description"`
	Active          bool           `db:"active"`
	AdministratorID int64          `db:"administrator_id"`
	CreatedAt       dbTime         `db:"created_at"`
}

func (s *Store) CreateCategory(ctx context.Context, c *commerce.Category) error {
	c.Normalize()
	if err := c.Validate(); err != nil {
		return err
	}
	c.CreatedAt = s.now().UTC()
	query := `
		INSERT INTO categories (name, description, active, administrator_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`

	var id int64
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(query),
		c.Name, nullString(c.Description), c.Active, int64(c.AdministratorID), s.timeArg(c.CreatedAt),
	).Scan(&id)
	if err != nil {
		switch {
		case isUniqueConstraintError(err):
			return fmt.Errorf("category name %q: %w", c.Name, commerce.ErrDuplicate)
		case isForeignKeyError(err):
			return &commerce.NotFoundError{Resource: "Administrator", ID: c.AdministratorID}
		}
		return fmt.Errorf("failed to create category: %w", err)
	}
	c.ID = commerce.CategoryID(id)
	return nil
}

func (s *Store) ListCategories(ctx context.Context) ([]commerce.Category, error) {
	var rows []categoryRow
	query := `SELECT id, name, description, active, administrator_id, created_at FROM categories ORDER BY id`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	out := make([]commerce.Category, len(rows))
	for i, r := range rows {
		out[i] = commerce.Category{
			ID:              commerce.CategoryID(r.ID),
			Name:            r.Name,
			Description:     r.Description.String,
			Active:          r.Active,
			AdministratorID: commerce.AdministratorID(r.AdministratorID),
			CreatedAt:       r.CreatedAt.Time,
		}
	}
	return out, nil
}

// =============================================================================
// PRODUCTS
// =============================================================================

type productRow struct {
	ID              int64  `db:"id"`
	Name            string `db:"name"`
	Description     string `db:"description"`
	PriceCents      int64  `db:"price_cents"`
	SKU             string `db:"sku"`
	Stock           int    `db:"stock"`
	Active          bool   `db:"active"`
	AdministratorID int64  `db:"administrator_id"`
	CreatedAt       dbTime `db:"created_at"`
}

// CreateProduct inserts the product and its category links in one transaction.
func (s *Store) CreateProduct(ctx context.Context, p *commerce.Product) error {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}
	p.CreatedAt = s.now().UTC()
	return s.inTx(ctx, func(q queryer) error {
		query := `
			INSERT INTO products (name, description, price_cents, sku, stock, active, administrator_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`

		var id int64
		err := q.QueryRowxContext(ctx, q.Rebind(query),
			p.Name, p.Description, p.Price.Cents(), p.SKU, p.Stock, p.Active,
			int64(p.AdministratorID), s.timeArg(p.CreatedAt),
		).Scan(&id)
		if err != nil {
			switch {
			case isUniqueConstraintError(err):
				return fmt.Errorf("product sku %q: %w", p.SKU, commerce.ErrDuplicate)
			case isForeignKeyError(err):
				return &commerce.NotFoundError{Resource: "Administrator", ID: p.AdministratorID}
			}
			return fmt.Errorf("failed to create product: %w", err)
		}
		p.ID = commerce.ProductID(id)

		link := q.Rebind(`INSERT INTO product_categories (product_id, category_id) VALUES (?, ?)`)
		for _, categoryID := range p.CategoryIDs {
			if _, err := q.ExecContext(ctx, link, id, int64(categoryID)); err != nil {
				switch {
				case isUniqueConstraintError(err):
					return fmt.Errorf("product %d already in category %d: %w", id, categoryID, commerce.ErrDuplicate)
				case isForeignKeyError(err):
					return &commerce.NotFoundError{Resource: "Category", ID: categoryID}
				}
				return fmt.Errorf("failed to link product %d to category %d: %w", id, categoryID, err)
			}
		}
		return nil
	})
}

func (s *Store) GetProduct(ctx context.Context, id commerce.ProductID) (*commerce.Product, error) {
	return s.getProduct(ctx, s.db, id)
}

func (s *Store) getProduct(ctx context.Context, q queryer, id commerce.ProductID) (*commerce.Product, error) {
	var row productRow
	query := `
		SELECT id, name, description, price_cents, sku, stock, active, administrator_id, created_at
		FROM products WHERE id = ?`
	if err := sqlx.GetContext(ctx, q, &row, q.Rebind(query), int64(id)); err != nil {
		return nil, notFound(err, "Product", id)
	}

	var categoryIDs []int64
	if err := sqlx.SelectContext(ctx, q, &categoryIDs,
		q.Rebind(`SELECT category_id FROM product_categories WHERE product_id = ? ORDER BY category_id`), int64(id),
	); err != nil {
		return nil, fmt.Errorf("failed to load categories of product %d: %w", id, err)
	}

	p := &commerce.Product{
		ID:              commerce.ProductID(row.ID),
		Name:            row.Name,
		Description:     row.Description,
		Price:           commerce.MoneyFromCents(row.PriceCents),
		SKU:             row.SKU,
		Stock:           row.Stock,
		Active:          row.Active,
		AdministratorID: commerce.AdministratorID(row.AdministratorID),
		CreatedAt:       row.CreatedAt.Time,
	}
	for _, c := range categoryIDs {
		p.CategoryIDs = append(p.CategoryIDs, commerce.CategoryID(c))
	}
	return p, nil
}

// =============================================================================
// CLIENTS
// =============================================================================

type clientRow struct {
	ID        int64          `db:"id"`
	Name      string         `db:"name"`
	Email     string         `db:"email"`
	Phone     string         `db:"phone"`
	Address   sql.NullString `db:"address"`
	Active    bool           `db:"active"`
	CreatedAt dbTime         `db:"created_at"`
}

func (s *Store) CreateClient(ctx context.Context, c *commerce.Client) error {
	c.Normalize()
	if err := c.Validate(); err != nil {
		return err
	}
	c.CreatedAt = s.now().UTC()
	query := `
		INSERT INTO clients (name, email, phone, address, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`

	var id int64
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(query),
		c.Name, c.Email, c.Phone, nullString(c.Address), c.Active, s.timeArg(c.CreatedAt),
	).Scan(&id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("client email %q: %w", c.Email, commerce.ErrDuplicate)
		}
		return fmt.Errorf("failed to create client: %w", err)
	}
	c.ID = commerce.ClientID(id)
	return nil
}

func (s *Store) GetClient(ctx context.Context, id commerce.ClientID) (*commerce.Client, error) {
	return s.getClient(ctx, s.db, id)
}

func (s *Store) getClient(ctx context.Context, q queryer, id commerce.ClientID) (*commerce.Client, error) {
	var row clientRow
	query := `SELECT id, name, email, phone, address, active, created_at FROM clients WHERE id = ?`
	if err := sqlx.GetContext(ctx, q, &row, q.Rebind(query), int64(id)); err != nil {
		return nil, notFound(err, "Client", id)
	}
	return &commerce.Client{
		ID:        commerce.ClientID(row.ID),
		Name:      row.Name,
		Email:     row.Email,
		Phone:     row.Phone,
		Address:   row.Address.String,
		Active:    row.Active,
		CreatedAt: row.CreatedAt.Time,
	}, nil
}
