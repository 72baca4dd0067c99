package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/checkout"
)

// ErrInvalidOrderID is returned for order IDs that cannot form a key
var ErrInvalidOrderID = errors.New("invalid order id")

const orderMetaPrefix = "order_meta:"

func orderPrefix(orderID string) string {
	return orderMetaPrefix + orderID + ":"
}

func orderMetaKey(orderID, key string) string {
	return orderPrefix(orderID) + key
}

func validOrderID(orderID string) error {
	if orderID == "" || strings.ContainsAny(orderID, ":\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidOrderID, orderID)
	}
	return nil
}

// OrderStore keeps per-order metadata in a RawKVStore under
// order_meta:<order>:<key>
type OrderStore struct {
	kv     RawKVStore
	logger *logrus.Logger
}

// NewOrderStore wraps kv
func NewOrderStore(kv RawKVStore, logger *logrus.Logger) *OrderStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &OrderStore{kv: kv, logger: logger}
}

// For returns the metadata accessor of one order
func (s *OrderStore) For(orderID string) checkout.OrderMeta {
	return &orderMeta{store: s, orderID: orderID}
}

// List returns every metadata entry of an order
func (s *OrderStore) List(ctx context.Context, orderID string) (map[string]string, error) {
	if err := validOrderID(orderID); err != nil {
		return nil, err
	}

	prefix := orderPrefix(orderID)
	out := map[string]string{}
	err := s.kv.RawScan(ctx, prefix, "", func(key string, val []byte) bool {
		out[strings.TrimPrefix(key, prefix)] = string(val)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list order %s metadata: %w", orderID, err)
	}
	return out, nil
}

// Delete removes every metadata entry of an order
func (s *OrderStore) Delete(ctx context.Context, orderID string) error {
	if err := validOrderID(orderID); err != nil {
		return err
	}

	var keys []string
	err := s.kv.RawScan(ctx, orderPrefix(orderID), "", func(key string, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	if err := s.kv.RawBatch(ctx, nil, keys); err != nil {
		return fmt.Errorf("failed to delete order %s metadata: %w", orderID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"keys":     len(keys),
	}).Debug("Order metadata deleted")
	return nil
}

type orderMeta struct {
	store   *OrderStore
	orderID string
}

func (m *orderMeta) GetMeta(ctx context.Context, key string) (string, bool, error) {
	if err := validOrderID(m.orderID); err != nil {
		return "", false, err
	}

	val, err := m.store.kv.GetRaw(ctx, orderMetaKey(m.orderID, key))
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(val), true, nil
}

func (m *orderMeta) SetMeta(ctx context.Context, key, value string) error {
	if err := validOrderID(m.orderID); err != nil {
		return err
	}
	return m.store.kv.PutRaw(ctx, orderMetaKey(m.orderID, key), []byte(value))
}

var _ checkout.OrderMeta = (*orderMeta)(nil)
