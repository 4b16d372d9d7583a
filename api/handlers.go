/*
handlers.go - HTTP handlers for the back-office API

PURPOSE:
  Exposes the purchase ledger and the analytics engine over JSON. Handlers
  parse input, call one domain operation and serialize the result; business
  rules live in commerce and analytics.

ENDPOINTS:
  Auth:
    POST   /api/v1/auth/login                             Issue a token
    GET    /api/v1/auth/validate                          Echo the caller
    DELETE /api/v1/auth/logout                            Stateless no-op

  Analytics:
    GET    /api/v1/analytics/most_purchased_by_category   Cached 1h
    GET    /api/v1/analytics/top_revenue_by_category      Cached 1h
    GET    /api/v1/analytics/purchases                    Never cached
    GET    /api/v1/analytics/purchases_by_granularity     Cached 30m per filter set

  Purchases:
    POST   /api/v1/purchases                              Record a purchase
    GET    /api/v1/purchases/{id}                         Purchase detail
    POST   /api/v1/purchases/{id}/complete                Complete a pending purchase

ERROR HANDLING:
  Every failure goes through writeError (errors.go), the single mapping from
  the commerce error taxonomy to HTTP status codes.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/commerce-engine/analytics"
	"github.com/warp/commerce-engine/auth"
	"github.com/warp/commerce-engine/commerce"
	"github.com/warp/commerce-engine/logging"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the slice of persistence the handlers use directly.
type Store interface {
	Ping(ctx context.Context) error
	GetPurchaseDetail(ctx context.Context, id commerce.PurchaseID) (*commerce.PurchaseDetail, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	store       Store
	engine      *analytics.Engine
	ledger      *commerce.PurchaseLedger
	auth        *auth.Service
	environment string
	now         func() time.Time
}

func NewHandler(store Store, engine *analytics.Engine, ledger *commerce.PurchaseLedger, authService *auth.Service, environment string) *Handler {
	return &Handler{
		store:       store,
		engine:      engine,
		ledger:      ledger,
		auth:        authService,
		environment: environment,
		now:         time.Now,
	}
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	timestamp := h.now().UTC().Format(time.RFC3339)
	if err := h.store.Ping(ctx); err != nil {
		logging.Error(r.Context()).Err(err).Msg("health check failed")
		message := "Database unavailable"
		if h.exposeErrors() {
			message = err.Error()
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":    "error",
			"message":   message,
			"timestamp": timestamp,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"timestamp":   timestamp,
		"environment": h.environment,
	})
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Administrator.Email == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Missing required parameter",
			Message: "administrator.email and administrator.password are required",
		})
		return
	}

	token, admin, err := h.auth.Login(r.Context(), req.Administrator.Email, req.Administrator.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "Invalid credentials or inactive account",
		})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"token":         token,
		"administrator": toAdministratorDTO(admin),
	})
}

func (h *Handler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	admin, ok := auth.Administrator(r.Context())
	if !ok {
		h.writeError(w, r, &commerce.UnauthorizedError{Message: "Token not provided"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"administrator": toAdministratorDTO(admin),
	})
}

// Logout is a no-op: tokens are stateless and dropped by the client.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}

// =============================================================================
// ANALYTICS HANDLERS
// =============================================================================

func (h *Handler) MostPurchasedByCategory(w http.ResponseWriter, r *http.Request) {
	rows, err := h.engine.MostPurchasedByCategory(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": toCategoryTopProductDTOs(rows)})
}

func (h *Handler) TopRevenueByCategory(w http.ResponseWriter, r *http.Request) {
	rows, err := h.engine.TopRevenueByCategory(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": toCategoryRevenueDTOs(rows)})
}

func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := parsePage(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.engine.ListPurchases(r.Context(), filter, page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rows := make([]PurchaseDTO, len(result.Purchases))
	for i, p := range result.Purchases {
		rows[i] = toPurchaseDTO(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    rows,
		"pagination": PaginationDTO{
			CurrentPage: result.Page,
			TotalPages:  result.TotalPages,
			TotalCount:  result.TotalCount,
			PerPage:     result.PerPage,
		},
	})
}

func (h *Handler) PurchasesByGranularity(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	raw := r.URL.Query().Get("granularity")
	g, ok := commerce.ParseGranularity(raw)
	if !ok && raw != "" {
		logging.Warn(r.Context()).Str("granularity", raw).Msg("unknown granularity, using default")
	}

	report, err := h.engine.PurchasesByGranularity(r.Context(), g, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	data := report.Data
	if data == nil {
		data = commerce.BucketCounts{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"granularity": report.Granularity.String(),
		"start_date":  report.StartDate.Format(commerce.DateLayout),
		"end_date":    report.EndDate.Format(commerce.DateLayout),
		"data":        data,
	})
}

// =============================================================================
// PURCHASE HANDLERS
// =============================================================================

func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var body CreatePurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, &paramError{name: "body", value: "request", want: "valid JSON"})
		return
	}

	req := commerce.PurchaseRequest{
		ProductID: commerce.ProductID(body.ProductID),
		ClientID:  commerce.ClientID(body.ClientID),
		Quantity:  body.Quantity,
		Status:    commerce.PurchaseStatus(body.Status),
	}
	if body.UnitPrice != nil {
		price := commerce.NewMoney(*body.UnitPrice)
		req.UnitPrice = &price
	}
	if body.PurchaseDate != nil {
		at, err := parseTimestamp(*body.PurchaseDate)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		req.PurchaseDate = &at
	}

	result, err := h.ledger.RecordPurchase(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":        true,
		"data":           toPurchaseRecordDTO(result.Purchase),
		"first_purchase": result.FirstPurchase,
	})
}

func (h *Handler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	detail, err := h.store.GetPurchaseDetail(r.Context(), commerce.PurchaseID(id))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": toPurchaseDTO(*detail)})
}

func (h *Handler) CompletePurchase(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.ledger.CompletePurchase(r.Context(), commerce.PurchaseID(id))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"data":           toPurchaseRecordDTO(result.Purchase),
		"first_purchase": result.FirstPurchase,
	})
}

// =============================================================================
// PARAMETER PARSING
// =============================================================================

func parseFilter(r *http.Request) (commerce.PurchaseFilter, error) {
	q := r.URL.Query()
	var f commerce.PurchaseFilter

	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"start_date", &f.Range.From}, {"end_date", &f.Range.To}} {
		if v := q.Get(p.name); v != "" {
			t, err := commerce.ParseDate(v)
			if err != nil {
				return f, &paramError{name: p.name, value: v, want: "a date (YYYY-MM-DD)"}
			}
			*p.dst = t
		}
	}

	if id, ok, err := parseID(q.Get("category_id"), "category_id"); err != nil {
		return f, err
	} else if ok {
		v := commerce.CategoryID(id)
		f.CategoryID = &v
	}
	if id, ok, err := parseID(q.Get("client_id"), "client_id"); err != nil {
		return f, err
	} else if ok {
		v := commerce.ClientID(id)
		f.ClientID = &v
	}
	if id, ok, err := parseID(q.Get("administrator_id"), "administrator_id"); err != nil {
		return f, err
	} else if ok {
		v := commerce.AdministratorID(id)
		f.AdministratorID = &v
	}
	return f, nil
}

func parsePage(r *http.Request) (commerce.PageRequest, error) {
	q := r.URL.Query()
	var page commerce.PageRequest
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &page.Page}, {"per_page", &page.PerPage}} {
		if v := q.Get(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return page, &paramError{name: p.name, value: v, want: "an integer"}
			}
			*p.dst = n
		}
	}
	return page.Normalize(), nil
}

func parseID(raw, name string) (int64, bool, error) {
	if raw == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false, &paramError{name: name, value: raw, want: "a positive integer"}
	}
	return id, true, nil
}

func parsePathID(r *http.Request) (int64, error) {
	id, _, err := parseID(chi.URLParam(r, "id"), "id")
	return id, err
}

// parseTimestamp accepts RFC 3339 or a bare date.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := commerce.ParseDate(s); err == nil {
		return t, nil
	}
	return time.Time{}, &paramError{name: "purchase_date", value: s, want: "an RFC 3339 timestamp or YYYY-MM-DD date"}
}
