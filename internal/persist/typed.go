package persist

import (
	"encoding/json"
	"fmt"
)

// TypedStore wraps Store with JSON marshaling for one row type.
type TypedStore[T any] struct {
	store *Store
	kind  string
	key   func(T) int
}

// NewTypedStore creates a typed wrapper for kind. key extracts the row uid.
func NewTypedStore[T any](store *Store, kind string, key func(T) int) *TypedStore[T] {
	return &TypedStore[T]{store: store, kind: kind, key: key}
}

// Kind returns the table kind this store handles.
func (s *TypedStore[T]) Kind() string {
	return s.kind
}

// Replace marshals and stores values, replacing the previous contents.
func (s *TypedStore[T]) Replace(values []T) error {
	records := make([]Record, 0, len(values))
	for _, v := range values {
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %s row: %w", s.kind, err)
		}
		records = append(records, Record{UID: s.key(v), Payload: payload})
	}
	return s.store.Replace(s.kind, records)
}

// All loads and unmarshals every stored row in order.
func (s *TypedStore[T]) All() ([]T, error) {
	records, err := s.store.All(s.kind)
	if err != nil {
		return nil, err
	}
	values := make([]T, 0, len(records))
	for _, rec := range records {
		var v T
		if err := json.Unmarshal(rec.Payload, &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s row %d: %w", s.kind, rec.UID, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// Clear removes every row of this kind.
func (s *TypedStore[T]) Clear() error {
	return s.store.Clear(s.kind)
}
