/*
Package commerce provides the purchase ledger and the domain model of the back office.

PURPOSE:
  Everything the analytics API and the background jobs agree on lives here:
  catalog records, purchases, money, the error taxonomy, the store
  interfaces and the ledger that enforces the stock and first-purchase
  invariants. Storage, transport and caching are in other packages.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: fixed-point currency amount (decimal, two places)
  - Purchase: the central record; total_amount is always derived
  - PurchaseStatus: pending, completed, cancelled, refunded
  - Typed IDs so a ProductID can never be passed where a ClientID belongs

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal in memory, integer cents in storage,
     float64 only when a response is serialized
  2. Snapshots: a purchase copies the product price at creation time
  3. Immutability: purchases change status, nothing else

SEE ALSO:
  - ledger.go: RecordPurchase / IsFirstCompletedPurchase
  - store.go: Persistence interfaces
  - catalog.go: Normalization and validation of catalog records
*/
package commerce

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AdministratorID int64
type CategoryID int64
type ProductID int64
type ClientID int64
type PurchaseID int64

func (id PurchaseID) String() string { return fmt.Sprintf("%d", int64(id)) }

// =============================================================================
// MONEY - Fixed-point currency amount
// =============================================================================

// Money is a currency amount with cent precision.
type Money struct {
	Amount decimal.Decimal
}

func NewMoney(value float64) Money {
	return Money{Amount: decimal.NewFromFloat(value).Round(2)}
}

// MoneyFromCents converts the storage representation back to Money.
func MoneyFromCents(cents int64) Money {
	return Money{Amount: decimal.New(cents, -2)}
}

func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Money{Amount: d.Round(2)}, nil
}

func ZeroMoney() Money { return Money{Amount: decimal.Zero} }

// Cents returns the amount in minor units, the form stored in the database.
func (m Money) Cents() int64 { return m.Amount.Shift(2).Round(0).IntPart() }

func (m Money) Add(o Money) Money      { return Money{Amount: m.Amount.Add(o.Amount)} }
func (m Money) Times(qty int) Money    { return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(qty)))} }
func (m Money) IsPositive() bool       { return m.Amount.IsPositive() }
func (m Money) Equal(o Money) bool     { return m.Amount.Equal(o.Amount) }
func (m Money) String() string         { return m.Amount.StringFixed(2) }
func (m Money) Round() Money           { return Money{Amount: m.Amount.Round(2)} }

// Float64 is used at the HTTP boundary only.
func (m Money) Float64() float64 {
	f, _ := m.Amount.Float64()
	return f
}

// MarshalJSON always writes two decimals so a decoded value keeps the
// scale it was stored with.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.Amount.StringFixed(2) + `"`), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	if err := m.Amount.UnmarshalJSON(data); err != nil {
		return err
	}
	m.Amount = m.Amount.Round(2)
	return nil
}

// =============================================================================
// STATUSES AND ROLES
// =============================================================================

type PurchaseStatus string

const (
	StatusPending   PurchaseStatus = "pending"
	StatusCompleted PurchaseStatus = "completed"
	StatusCancelled PurchaseStatus = "cancelled"
	StatusRefunded  PurchaseStatus = "refunded"
)

func (s PurchaseStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleManager }

// =============================================================================
// CATALOG RECORDS
// =============================================================================

type Administrator struct {
	ID             AdministratorID `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	PasswordDigest string          `json:"-"`
	Role           Role            `json:"role"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Category struct {
	ID              CategoryID      `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Active          bool            `json:"active"`
	AdministratorID AdministratorID `json:"administrator_id"`
	CreatedAt       time.Time       `json:"created_at"`
}

type Product struct {
	ID              ProductID       `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Price           Money           `json:"price"`
	SKU             string          `json:"sku"`
	Stock           int             `json:"stock"`
	Active          bool            `json:"active"`
	AdministratorID AdministratorID `json:"administrator_id"`
	CategoryIDs     []CategoryID    `json:"category_ids"`
	CreatedAt       time.Time       `json:"created_at"`
}

type Client struct {
	ID        ClientID  `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// PURCHASE - The central record
// =============================================================================

// Purchase is one client buying a quantity of one product.
// TotalAmount is always Quantity x UnitPrice; it is never supplied.
type Purchase struct {
	ID           PurchaseID     `json:"id"`
	ProductID    ProductID      `json:"product_id"`
	ClientID     ClientID       `json:"client_id"`
	Quantity     int            `json:"quantity"`
	UnitPrice    Money          `json:"unit_price"`
	TotalAmount  Money          `json:"total_amount"`
	PurchaseDate time.Time      `json:"purchase_date"`
	Status       PurchaseStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// PurchaseDetail is a purchase with the flattened product and client snapshot
// used by listings and notifications.
type PurchaseDetail struct {
	Purchase
	Product ProductSummary `json:"product"`
	Client  ClientSummary  `json:"client"`
}

type ProductSummary struct {
	ID            ProductID            `json:"id"`
	Name          string               `json:"name"`
	SKU           string               `json:"sku"`
	Categories    []string             `json:"categories"`
	Administrator AdministratorSummary `json:"administrator"`
}

type AdministratorSummary struct {
	ID    AdministratorID `json:"id"`
	Name  string          `json:"name"`
	Email string          `json:"email"`
}

type ClientSummary struct {
	ID    ClientID `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
}
