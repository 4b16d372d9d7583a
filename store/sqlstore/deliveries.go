package sqlstore

import (
	"context"
	"fmt"
)

// =============================================================================
// DELIVERY LOG (commerce.DeliveryLog interface)
// =============================================================================
// One row per sent notification, keyed by (kind, ref). Consumers check it
// before sending so a redelivered job does not mail twice.

func (s *Store) DeliveryRecorded(ctx context.Context, kind, ref string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		s.db.Rebind(`SELECT COUNT(*) FROM notification_deliveries WHERE kind = ? AND ref = ?`),
		kind, ref,
	)
	if err != nil {
		return false, fmt.Errorf("failed to check delivery %s/%s: %w", kind, ref, err)
	}
	return count > 0, nil
}

// RecordDelivery is idempotent.
func (s *Store) RecordDelivery(ctx context.Context, kind, ref string) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO notification_deliveries (kind, ref, delivered_at) VALUES (?, ?, ?) ON CONFLICT (kind, ref) DO NOTHING`),
		kind, ref, s.timeArg(s.now()),
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery %s/%s: %w", kind, ref, err)
	}
	return nil
}
