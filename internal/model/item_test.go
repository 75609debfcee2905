package model

import (
	"testing"
)

func TestKind_Valid(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindCart, true},
		{KindWishlist, true},
		{Kind("orders"), false},
		{Kind(""), false},
	}

	for _, tt := range tests {
		if got := tt.kind.Valid(); got != tt.want {
			t.Errorf("Kind(%q).Valid() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestCollection_IndexOf(t *testing.T) {
	c := &Collection{
		Kind: KindCart,
		Items: []LineItem{
			{ProductID: "p1"},
			{ProductID: "p2"},
		},
	}

	if got := c.IndexOf("p2"); got != 1 {
		t.Errorf("IndexOf(p2) = %d, want 1", got)
	}
	if got := c.IndexOf("missing"); got != -1 {
		t.Errorf("IndexOf(missing) = %d, want -1", got)
	}
}

func TestCollection_RemoveAt_PreservesOrder(t *testing.T) {
	c := &Collection{
		Kind: KindCart,
		Items: []LineItem{
			{ProductID: "p1"},
			{ProductID: "p2"},
			{ProductID: "p3"},
		},
	}

	c.RemoveAt(1)

	if len(c.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(c.Items))
	}
	if c.Items[0].ProductID != "p1" || c.Items[1].ProductID != "p3" {
		t.Errorf("Items = %v, want [p1 p3]", c.Items)
	}
}

func TestCollection_Clone_Independent(t *testing.T) {
	c := &Collection{
		Kind:    KindCart,
		Items:   []LineItem{{ProductID: "p1", Quantity: 2}},
		Version: 7,
	}

	clone := c.Clone()
	clone.Items[0].Quantity = 99
	clone.Items = append(clone.Items, LineItem{ProductID: "p2"})

	if c.Items[0].Quantity != 2 {
		t.Errorf("original mutated: Quantity = %d, want 2", c.Items[0].Quantity)
	}
	if len(c.Items) != 1 {
		t.Errorf("original mutated: len = %d, want 1", len(c.Items))
	}
	if clone.Version != 7 {
		t.Errorf("clone Version = %d, want 7", clone.Version)
	}
}
