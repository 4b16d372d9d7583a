/*
dto.go - JSON shapes of the HTTP API

PURPOSE:
  Keeps the wire contract apart from the domain model. Money leaves the
  system here and only here as float64; everything inside stays decimal.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
  - commerce/report.go: The aggregate views these are built from
*/
package api

import (
	"time"

	"github.com/warp/commerce-engine/commerce"
)

// =============================================================================
// AUTH
// =============================================================================

type LoginRequest struct {
	Administrator struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	} `json:"administrator"`
}

type AdministratorDTO struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func toAdministratorDTO(a *commerce.Administrator) AdministratorDTO {
	return AdministratorDTO{ID: int64(a.ID), Name: a.Name, Email: a.Email, Role: string(a.Role)}
}

// =============================================================================
// ANALYTICS
// =============================================================================

type ProductCountDTO struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	SKU           string `json:"sku"`
	PurchaseCount int64  `json:"purchase_count"`
}

type CategoryTopProductDTO struct {
	CategoryID   int64            `json:"category_id"`
	CategoryName string           `json:"category_name"`
	Product      *ProductCountDTO `json:"product"`
}

type ProductRevenueDTO struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	TotalRevenue float64 `json:"total_revenue"`
}

type CategoryRevenueDTO struct {
	CategoryID   int64               `json:"category_id"`
	CategoryName string              `json:"category_name"`
	TopProducts  []ProductRevenueDTO `json:"top_products"`
}

type PaginationDTO struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	TotalCount  int64 `json:"total_count"`
	PerPage     int   `json:"per_page"`
}

func toCategoryTopProductDTOs(rows []commerce.CategoryTopProduct) []CategoryTopProductDTO {
	dtos := make([]CategoryTopProductDTO, len(rows))
	for i, r := range rows {
		dtos[i] = CategoryTopProductDTO{CategoryID: int64(r.CategoryID), CategoryName: r.CategoryName}
		if r.Product != nil {
			dtos[i].Product = &ProductCountDTO{
				ID:            int64(r.Product.ID),
				Name:          r.Product.Name,
				SKU:           r.Product.SKU,
				PurchaseCount: r.Product.PurchaseCount,
			}
		}
	}
	return dtos
}

func toCategoryRevenueDTOs(rows []commerce.CategoryRevenue) []CategoryRevenueDTO {
	dtos := make([]CategoryRevenueDTO, len(rows))
	for i, r := range rows {
		products := make([]ProductRevenueDTO, len(r.TopProducts))
		for j, p := range r.TopProducts {
			products[j] = ProductRevenueDTO{
				ID:           int64(p.ID),
				Name:         p.Name,
				SKU:          p.SKU,
				TotalRevenue: p.TotalRevenue.Float64(),
			}
		}
		dtos[i] = CategoryRevenueDTO{CategoryID: int64(r.CategoryID), CategoryName: r.CategoryName, TopProducts: products}
	}
	return dtos
}

// =============================================================================
// PURCHASES
// =============================================================================

// CreatePurchaseRequest carries no total amount; any total_amount sent by a
// client is ignored by the decoder.
type CreatePurchaseRequest struct {
	ProductID    int64    `json:"product_id"`
	ClientID     int64    `json:"client_id"`
	Quantity     int      `json:"quantity"`
	UnitPrice    *float64 `json:"unit_price,omitempty"`
	PurchaseDate *string  `json:"purchase_date,omitempty"`
	Status       string   `json:"status,omitempty"`
}

type PurchaseAdministratorDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type PurchaseProductDTO struct {
	ID            int64                    `json:"id"`
	Name          string                   `json:"name"`
	SKU           string                   `json:"sku"`
	Categories    []string                 `json:"categories"`
	Administrator PurchaseAdministratorDTO `json:"administrator"`
}

type PurchaseClientDTO struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PurchaseDTO is one row of the purchase listing.
type PurchaseDTO struct {
	ID           int64              `json:"id"`
	Quantity     int                `json:"quantity"`
	UnitPrice    float64            `json:"unit_price"`
	TotalAmount  float64            `json:"total_amount"`
	PurchaseDate time.Time          `json:"purchase_date"`
	Status       string             `json:"status"`
	Product      PurchaseProductDTO `json:"product"`
	Client       PurchaseClientDTO  `json:"client"`
}

// PurchaseRecordDTO is a purchase as just written by the ledger.
type PurchaseRecordDTO struct {
	ID           int64     `json:"id"`
	ProductID    int64     `json:"product_id"`
	ClientID     int64     `json:"client_id"`
	Quantity     int       `json:"quantity"`
	UnitPrice    float64   `json:"unit_price"`
	TotalAmount  float64   `json:"total_amount"`
	PurchaseDate time.Time `json:"purchase_date"`
	Status       string    `json:"status"`
}

func toPurchaseDTO(d commerce.PurchaseDetail) PurchaseDTO {
	categories := d.Product.Categories
	if categories == nil {
		categories = []string{}
	}
	return PurchaseDTO{
		ID:           int64(d.ID),
		Quantity:     d.Quantity,
		UnitPrice:    d.UnitPrice.Float64(),
		TotalAmount:  d.TotalAmount.Float64(),
		PurchaseDate: d.PurchaseDate.UTC(),
		Status:       string(d.Status),
		Product: PurchaseProductDTO{
			ID:         int64(d.Product.ID),
			Name:       d.Product.Name,
			SKU:        d.Product.SKU,
			Categories: categories,
			Administrator: PurchaseAdministratorDTO{
				ID:   int64(d.Product.Administrator.ID),
				Name: d.Product.Administrator.Name,
			},
		},
		Client: PurchaseClientDTO{
			ID:    int64(d.Client.ID),
			Name:  d.Client.Name,
			Email: d.Client.Email,
		},
	}
}

func toPurchaseRecordDTO(p commerce.Purchase) PurchaseRecordDTO {
	return PurchaseRecordDTO{
		ID:           int64(p.ID),
		ProductID:    int64(p.ProductID),
		ClientID:     int64(p.ClientID),
		Quantity:     p.Quantity,
		UnitPrice:    p.UnitPrice.Float64(),
		TotalAmount:  p.TotalAmount.Float64(),
		PurchaseDate: p.PurchaseDate.UTC(),
		Status:       string(p.Status),
	}
}
