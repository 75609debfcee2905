// Package model defines the domain types shared across shopsync:
// products, line items, collections, stock snapshots, and the error
// and notice vocabulary used by the reconciler and the API layer.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies which collection a request targets.
type Kind string

const (
	KindCart     Kind = "cart"
	KindWishlist Kind = "wishlist"
)

// Valid reports whether k is a known collection kind.
func (k Kind) Valid() bool {
	return k == KindCart || k == KindWishlist
}

// Product is the catalog view of an item as presented to the reconciler
// by the storefront UI. Stock and InStock are the caller's snapshot; the
// reconciler may refresh them from the stock oracle before acting.
type Product struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Image   string          `json:"image,omitempty"`
	Stock   int             `json:"stock"`
	InStock bool            `json:"in_stock"`
}

// LineItem is one entry in a collection.
//
// For carts, UnitPrice is a snapshot taken at add time. For wishlists it
// tracks the live catalog price and Quantity is always 1. Stock and
// InStock are the last values observed from the stock oracle; they are
// advisory until the next revalidation pass confirms them.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Image     string          `json:"image,omitempty"`
	Quantity  int             `json:"quantity"`
	Stock     int             `json:"stock"`
	InStock   bool            `json:"in_stock"`
}

// Collection is an ordered set of line items keyed by product ID.
// Version is a generation counter bumped on every saved mutation; the
// reconciler uses it to detect a collection that moved underneath an
// in-flight revalidation pass.
type Collection struct {
	Kind    Kind       `json:"kind"`
	Items   []LineItem `json:"items"`
	Version int64      `json:"version"`
}

// NewCollection returns an empty collection of the given kind.
func NewCollection(kind Kind) *Collection {
	return &Collection{Kind: kind, Items: []LineItem{}}
}

// IsEmpty reports whether the collection has no items.
func (c *Collection) IsEmpty() bool {
	return len(c.Items) == 0
}

// IndexOf returns the position of the item with the given product ID,
// or -1 if absent.
func (c *Collection) IndexOf(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Get returns the line item for productID, or nil if absent.
func (c *Collection) Get(productID string) *LineItem {
	if i := c.IndexOf(productID); i >= 0 {
		return &c.Items[i]
	}
	return nil
}

// RemoveAt deletes the item at index i, preserving order.
func (c *Collection) RemoveAt(i int) {
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
}

// Clone returns a deep copy. The reconciler mutates copies so a failed
// pass never leaves a half-applied collection behind.
func (c *Collection) Clone() *Collection {
	items := make([]LineItem, len(c.Items))
	copy(items, c.Items)
	return &Collection{Kind: c.Kind, Items: items, Version: c.Version}
}

// StockInfo is the availability pair returned by the stock oracle.
type StockInfo struct {
	Stock   int  `json:"stock"`
	InStock bool `json:"in_stock"`
}

// StockSnapshot is a cached oracle reading. Snapshots live only for the
// process lifetime and are read-only to the reconciler.
type StockSnapshot struct {
	ProductID string
	StockInfo
	FetchedAt time.Time
}
