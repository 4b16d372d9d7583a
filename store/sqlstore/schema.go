package sqlstore

// Schema is auto-migrated on New(). Statements are idempotent.

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS administrators (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		password_digest TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'admin' CHECK (role IN ('admin', 'manager')),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_administrators_email ON administrators(lower(email))`,

	`CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		administrator_id INTEGER NOT NULL REFERENCES administrators(id) ON DELETE RESTRICT,
		created_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_name ON categories(lower(name))`,

	`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		price_cents INTEGER NOT NULL CHECK (price_cents > 0),
		sku TEXT NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		administrator_id INTEGER NOT NULL REFERENCES administrators(id) ON DELETE RESTRICT,
		created_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_products_sku ON products(lower(sku))`,
	`CREATE INDEX IF NOT EXISTS idx_products_admin_active ON products(administrator_id, active)`,

	`CREATE TABLE IF NOT EXISTS product_categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
		UNIQUE (product_id, category_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_product_categories_analytics ON product_categories(category_id, product_id)`,

	`CREATE TABLE IF NOT EXISTS clients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL,
		address TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_clients_email ON clients(lower(email))`,

	// Products with purchases cannot be deleted.
	`CREATE TABLE IF NOT EXISTS purchases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
		client_id INTEGER NOT NULL REFERENCES clients(id) ON DELETE RESTRICT,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price_cents INTEGER NOT NULL CHECK (unit_price_cents > 0),
		total_amount_cents INTEGER NOT NULL CHECK (total_amount_cents > 0),
		purchase_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'completed'
			CHECK (status IN ('pending', 'completed', 'cancelled', 'refunded')),
		created_at TEXT NOT NULL
	)`,
	// Per-category/per-product aggregation and first-purchase lookup
	`CREATE INDEX IF NOT EXISTS idx_purchases_analytics ON purchases(product_id, status, purchase_date)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_date_status ON purchases(purchase_date, status)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_granularity ON purchases(status, purchase_date)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_client_status ON purchases(client_id, status)`,

	`CREATE TABLE IF NOT EXISTS notification_deliveries (
		kind TEXT NOT NULL,
		ref TEXT NOT NULL,
		delivered_at TEXT NOT NULL,
		PRIMARY KEY (kind, ref)
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS administrators (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		password_digest TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'admin' CHECK (role IN ('admin', 'manager')),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_administrators_email ON administrators(lower(email))`,

	`CREATE TABLE IF NOT EXISTS categories (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		administrator_id BIGINT NOT NULL REFERENCES administrators(id) ON DELETE RESTRICT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_name ON categories(lower(name))`,

	`CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		price_cents BIGINT NOT NULL CHECK (price_cents > 0),
		sku TEXT NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		administrator_id BIGINT NOT NULL REFERENCES administrators(id) ON DELETE RESTRICT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_products_sku ON products(lower(sku))`,
	`CREATE INDEX IF NOT EXISTS idx_products_admin_active ON products(administrator_id, active)`,

	`CREATE TABLE IF NOT EXISTS product_categories (
		id BIGSERIAL PRIMARY KEY,
		product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		category_id BIGINT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
		UNIQUE (product_id, category_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_product_categories_analytics ON product_categories(category_id, product_id)`,

	`CREATE TABLE IF NOT EXISTS clients (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL,
		address TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_clients_email ON clients(lower(email))`,

	`CREATE TABLE IF NOT EXISTS purchases (
		id BIGSERIAL PRIMARY KEY,
		product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
		client_id BIGINT NOT NULL REFERENCES clients(id) ON DELETE RESTRICT,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price_cents BIGINT NOT NULL CHECK (unit_price_cents > 0),
		total_amount_cents BIGINT NOT NULL CHECK (total_amount_cents > 0),
		purchase_date TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL DEFAULT 'completed'
			CHECK (status IN ('pending', 'completed', 'cancelled', 'refunded')),
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_analytics ON purchases(product_id, status, purchase_date)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_date_status ON purchases(purchase_date, status)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_granularity ON purchases(status, purchase_date)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_client_status ON purchases(client_id, status)`,

	`CREATE TABLE IF NOT EXISTS notification_deliveries (
		kind TEXT NOT NULL,
		ref TEXT NOT NULL,
		delivered_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (kind, ref)
	)`,
}
