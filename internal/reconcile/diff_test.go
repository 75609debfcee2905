package reconcile

import (
	"testing"

	"shopsync/internal/model"
)

func li(id string, qty int) model.LineItem {
	return model.LineItem{ProductID: id, Name: "Item " + id, Quantity: qty}
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name       string
		current    []model.LineItem
		desired    []model.LineItem
		wantAdd    []string
		wantRemove []string
		wantUpdate map[string]int
	}{
		{
			name:    "identical collections produce empty set",
			current: []model.LineItem{li("p1", 2), li("p2", 1)},
			desired: []model.LineItem{li("p1", 2), li("p2", 1)},
		},
		{
			name:    "novel items are added in desired order",
			current: []model.LineItem{li("p1", 1)},
			desired: []model.LineItem{li("p1", 1), li("p2", 3), li("p3", 1)},
			wantAdd: []string{"p2", "p3"},
		},
		{
			name:       "missing items are removed",
			current:    []model.LineItem{li("p1", 1), li("p2", 2)},
			desired:    []model.LineItem{li("p2", 2)},
			wantRemove: []string{"p1"},
		},
		{
			name:       "quantity differences become updates",
			current:    []model.LineItem{li("p1", 1), li("p2", 5)},
			desired:    []model.LineItem{li("p1", 4), li("p2", 5)},
			wantUpdate: map[string]int{"p1": 4},
		},
		{
			name:       "mixed delta",
			current:    []model.LineItem{li("p1", 1), li("p2", 2)},
			desired:    []model.LineItem{li("p2", 6), li("p3", 1)},
			wantAdd:    []string{"p3"},
			wantRemove: []string{"p1"},
			wantUpdate: map[string]int{"p2": 6},
		},
		{
			name:    "empty current adds everything",
			desired: []model.LineItem{li("p1", 1), li("p2", 2)},
			wantAdd: []string{"p1", "p2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := Diff(tt.current, tt.desired)

			if len(tt.wantAdd) == 0 && len(tt.wantRemove) == 0 && len(tt.wantUpdate) == 0 {
				if !set.IsEmpty() {
					t.Fatalf("IsEmpty() = false, set = %+v", set)
				}
				return
			}

			if len(set.ToAdd) != len(tt.wantAdd) {
				t.Fatalf("ToAdd = %v, want ids %v", set.ToAdd, tt.wantAdd)
			}
			for i, id := range tt.wantAdd {
				if set.ToAdd[i].ProductID != id {
					t.Errorf("ToAdd[%d] = %s, want %s", i, set.ToAdd[i].ProductID, id)
				}
			}

			if len(set.ToRemove) != len(tt.wantRemove) {
				t.Fatalf("ToRemove = %v, want %v", set.ToRemove, tt.wantRemove)
			}
			for i, id := range tt.wantRemove {
				if set.ToRemove[i] != id {
					t.Errorf("ToRemove[%d] = %s, want %s", i, set.ToRemove[i], id)
				}
			}

			if len(set.ToUpdate) != len(tt.wantUpdate) {
				t.Fatalf("ToUpdate = %v, want %v", set.ToUpdate, tt.wantUpdate)
			}
			for _, change := range set.ToUpdate {
				want, ok := tt.wantUpdate[change.ProductID]
				if !ok {
					t.Errorf("unexpected update for %s", change.ProductID)
					continue
				}
				if change.NewQuantity != want {
					t.Errorf("update %s: NewQuantity = %d, want %d", change.ProductID, change.NewQuantity, want)
				}
			}
		})
	}
}
