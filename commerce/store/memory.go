// Package store provides an in-memory commerce.TxStore.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/warp/commerce-engine/commerce"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.Mutex
	products  map[commerce.ProductID]commerce.Product
	clients   map[commerce.ClientID]commerce.Client
	purchases map[commerce.PurchaseID]commerce.Purchase
	nextID    commerce.PurchaseID
}

func NewMemory() *Memory {
	return &Memory{
		products:  make(map[commerce.ProductID]commerce.Product),
		clients:   make(map[commerce.ClientID]commerce.Client),
		purchases: make(map[commerce.PurchaseID]commerce.Purchase),
	}
}

// PutProduct inserts or replaces a product.
func (m *Memory) PutProduct(p commerce.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// PutClient inserts or replaces a client.
func (m *Memory) PutClient(c commerce.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = c
}

// Purchases returns every stored purchase of a product.
func (m *Memory) Purchases(productID commerce.ProductID) []commerce.Purchase {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []commerce.Purchase
	for _, p := range m.purchases {
		if p.ProductID == productID {
			out = append(out, p)
		}
	}
	return out
}

func (m *Memory) GetProduct(ctx context.Context, id commerce.ProductID) (*commerce.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetProduct(ctx, id)
}

func (m *Memory) GetClient(ctx context.Context, id commerce.ClientID) (*commerce.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetClient(ctx, id)
}

func (m *Memory) GetPurchase(ctx context.Context, id commerce.PurchaseID) (*commerce.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetPurchase(ctx, id)
}

// LockProduct is a no-op outside a transaction.
func (m *Memory) LockProduct(context.Context, commerce.ProductID) error { return nil }

func (m *Memory) InsertPurchase(ctx context.Context, p *commerce.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().InsertPurchase(ctx, p)
}

func (m *Memory) UpdatePurchaseStatus(ctx context.Context, id commerce.PurchaseID, from, to commerce.PurchaseStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpdatePurchaseStatus(ctx, id, from, to)
}

func (m *Memory) DecrementStock(ctx context.Context, id commerce.ProductID, quantity int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().DecrementStock(ctx, id, quantity)
}

func (m *Memory) FirstCompletedPurchase(ctx context.Context, id commerce.ProductID) (commerce.PurchaseID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().FirstCompletedPurchase(ctx, id)
}

// WithTx executes fn while holding the store lock, so transactions are
// serializable. State is snapshotted and restored when fn fails.
func (m *Memory) WithTx(ctx context.Context, fn func(commerce.PurchaseStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(m.view()); err != nil {
		m.restore(snapshot)
		return err
	}
	if err := ctx.Err(); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

func (m *Memory) view() *memoryView { return &memoryView{parent: m} }

type memorySnapshot struct {
	products  map[commerce.ProductID]commerce.Product
	purchases map[commerce.PurchaseID]commerce.Purchase
	nextID    commerce.PurchaseID
}

func (m *Memory) snapshot() memorySnapshot {
	products := make(map[commerce.ProductID]commerce.Product, len(m.products))
	for k, v := range m.products {
		products[k] = v
	}
	purchases := make(map[commerce.PurchaseID]commerce.Purchase, len(m.purchases))
	for k, v := range m.purchases {
		purchases[k] = v
	}
	return memorySnapshot{products: products, purchases: purchases, nextID: m.nextID}
}

func (m *Memory) restore(s memorySnapshot) {
	m.products = s.products
	m.purchases = s.purchases
	m.nextID = s.nextID
}

// =============================================================================
// VIEW - Operates on parent state; caller holds parent.mu
// =============================================================================

type memoryView struct {
	parent *Memory
}

func (v *memoryView) GetProduct(_ context.Context, id commerce.ProductID) (*commerce.Product, error) {
	p, ok := v.parent.products[id]
	if !ok {
		return nil, &commerce.NotFoundError{Resource: "Product", ID: id}
	}
	return &p, nil
}

func (v *memoryView) GetClient(_ context.Context, id commerce.ClientID) (*commerce.Client, error) {
	c, ok := v.parent.clients[id]
	if !ok {
		return nil, &commerce.NotFoundError{Resource: "Client", ID: id}
	}
	return &c, nil
}

func (v *memoryView) GetPurchase(_ context.Context, id commerce.PurchaseID) (*commerce.Purchase, error) {
	p, ok := v.parent.purchases[id]
	if !ok {
		return nil, &commerce.NotFoundError{Resource: "Purchase", ID: id}
	}
	return &p, nil
}

// LockProduct is covered by the store lock held for the whole transaction.
func (v *memoryView) LockProduct(context.Context, commerce.ProductID) error { return nil }

func (v *memoryView) InsertPurchase(_ context.Context, p *commerce.Purchase) error {
	v.parent.nextID++
	p.ID = v.parent.nextID
	p.CreatedAt = time.Now().UTC()
	v.parent.purchases[p.ID] = *p
	return nil
}

func (v *memoryView) UpdatePurchaseStatus(_ context.Context, id commerce.PurchaseID, from, to commerce.PurchaseStatus) (bool, error) {
	p, ok := v.parent.purchases[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	v.parent.purchases[id] = p
	return true, nil
}

func (v *memoryView) DecrementStock(_ context.Context, id commerce.ProductID, quantity int) (bool, error) {
	p, ok := v.parent.products[id]
	if !ok || p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	v.parent.products[id] = p
	return true, nil
}

func (v *memoryView) FirstCompletedPurchase(_ context.Context, id commerce.ProductID) (commerce.PurchaseID, bool, error) {
	var first *commerce.Purchase
	for _, p := range v.parent.purchases {
		if p.ProductID != id || p.Status != commerce.StatusCompleted {
			continue
		}
		if first == nil || p.PurchaseDate.Before(first.PurchaseDate) ||
			(p.PurchaseDate.Equal(first.PurchaseDate) && p.ID < first.ID) {
			p := p
			first = &p
		}
	}
	if first == nil {
		return 0, false, nil
	}
	return first.ID, true, nil
}
