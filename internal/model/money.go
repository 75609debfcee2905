package model

import (
	"github.com/shopspring/decimal"
)

// ParsePrice converts a decimal string amount in major currency units
// (e.g., "99.00") into a decimal.Decimal. Shared by the remote collection
// and catalog transforms so price handling stays consistent.
// Malformed or empty strings parse as zero rather than failing the whole
// payload; a zero price is harmless for display and never used for charging.
func ParsePrice(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Subtotal returns the sum of UnitPrice * Quantity over all items.
func (c *Collection) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for i := range c.Items {
		line := c.Items[i].UnitPrice.Mul(decimal.NewFromInt(int64(c.Items[i].Quantity)))
		total = total.Add(line)
	}
	return total
}

// TotalQuantity returns the number of units across all items.
func (c *Collection) TotalQuantity() int {
	n := 0
	for i := range c.Items {
		n += c.Items[i].Quantity
	}
	return n
}
