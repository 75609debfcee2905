package model

import (
	"fmt"

	"github.com/google/uuid"
)

// NoticeCode classifies a user-facing notification emitted by the
// reconciler. Every corrective or rejected action produces exactly one.
type NoticeCode string

const (
	// NoticeOutOfStock rejects an add because the product has no stock.
	NoticeOutOfStock NoticeCode = "out_of_stock"

	// NoticeAtCapacity rejects an add because the collection already
	// holds the maximum available quantity.
	NoticeAtCapacity NoticeCode = "at_capacity"

	// NoticeItemRemoved reports an item dropped during revalidation
	// because it is no longer available or its stock reached zero.
	NoticeItemRemoved NoticeCode = "item_removed"

	// NoticeQuantityAdjusted reports a quantity clamped down to the
	// available stock during revalidation.
	NoticeQuantityAdjusted NoticeCode = "quantity_adjusted"
)

// Notice is a user-facing notification about a rejected or corrective
// action. Notices ride on the API response for the request that caused
// them; they are never persisted.
type Notice struct {
	ID        string     `json:"id"`
	Code      NoticeCode `json:"code"`
	ProductID string     `json:"product_id,omitempty"`
	Message   string     `json:"message"`
}

// NewNotice builds a notice with a fresh ID.
func NewNotice(code NoticeCode, productID, message string) Notice {
	return Notice{
		ID:        uuid.NewString(),
		Code:      code,
		ProductID: productID,
		Message:   message,
	}
}

// RemovedNotice reports a hard removal during revalidation. The wording
// differs for "no longer available" versus "out of stock", but both are
// the same corrective action.
func RemovedNotice(item LineItem, available bool) Notice {
	msg := fmt.Sprintf("%s is now out of stock and has been removed", item.Name)
	if !available {
		msg = fmt.Sprintf("%s is no longer available and has been removed", item.Name)
	}
	return NewNotice(NoticeItemRemoved, item.ProductID, msg)
}

// AdjustedNotice reports a quantity clamped to the available stock.
func AdjustedNotice(item LineItem, stock int) Notice {
	return NewNotice(NoticeQuantityAdjusted, item.ProductID,
		fmt.Sprintf("%s quantity reduced to %d (available stock)", item.Name, stock))
}
