package reconcile

import (
	"shopsync/internal/model"
)

// MutationSet describes the remote mutations needed to bring a current
// collection in line with a desired one.
// Operations should be applied in order: Remove → Update → Add
// to prevent conflicts (e.g., updating a removed item).
type MutationSet struct {
	ToAdd    []model.LineItem // Products in desired but not current
	ToRemove []string         // Product IDs in current but not desired
	ToUpdate []QuantityChange // Products in both with different quantities
}

// QuantityChange specifies a quantity change for an existing item.
type QuantityChange struct {
	ProductID   string
	OldQuantity int // Current quantity (informational)
	NewQuantity int // Desired quantity
}

// IsEmpty returns true if no mutations are needed.
func (s *MutationSet) IsEmpty() bool {
	return len(s.ToAdd) == 0 && len(s.ToRemove) == 0 && len(s.ToUpdate) == 0
}

// Diff computes the delta between current and desired line items,
// matching by product ID.
//
// Algorithm:
//  1. Build lookup maps for O(1) access
//  2. For each desired item: if exists in current with different qty → update; if not exists → add
//  3. For each current item: if not in desired → remove
//
// Desired order is preserved for adds so the remote collection keeps the
// merged ordering.
func Diff(current, desired []model.LineItem) *MutationSet {
	set := &MutationSet{}

	currentByID := make(map[string]model.LineItem, len(current))
	for _, item := range current {
		currentByID[item.ProductID] = item
	}
	desiredByID := make(map[string]model.LineItem, len(desired))
	for _, item := range desired {
		desiredByID[item.ProductID] = item
	}

	for _, want := range desired {
		have, exists := currentByID[want.ProductID]
		if !exists {
			set.ToAdd = append(set.ToAdd, want)
			continue
		}
		if have.Quantity != want.Quantity {
			set.ToUpdate = append(set.ToUpdate, QuantityChange{
				ProductID:   want.ProductID,
				OldQuantity: have.Quantity,
				NewQuantity: want.Quantity,
			})
		}
		// Same quantity = no change needed
	}

	for _, have := range current {
		if _, exists := desiredByID[have.ProductID]; !exists {
			set.ToRemove = append(set.ToRemove, have.ProductID)
		}
	}

	return set
}
