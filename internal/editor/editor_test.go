package editor

import (
	"errors"
	"testing"

	"github.com/mizutanik/kakeibo/internal/extract"
)

func TestBuildValidationGate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(b *Buffer)
		wantErr error
	}{
		{
			name:    "empty store name",
			mutate:  func(b *Buffer) { b.StoreName = "   " },
			wantErr: ErrStoreRequired,
		},
		{
			name:    "zero items",
			mutate:  func(b *Buffer) { b.Items = nil },
			wantErr: ErrNoItems,
		},
		{
			name:    "blank item name",
			mutate:  func(b *Buffer) { b.SetItem(0, "  ", "100") },
			wantErr: ErrItemNameRequired,
		},
		{
			name:    "non-numeric price",
			mutate:  func(b *Buffer) { b.SetItem(0, "milk", "abc") },
			wantErr: ErrInvalidPrice,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuffer(extract.Receipt{
				PurchaseDate: "2025-04-01",
				StoreName:    "Seiyu",
				Items:        []extract.ReceiptItem{{ItemName: "milk", Price: 238}},
			})
			tc.mutate(b)

			before := len(b.Items)
			_, err := b.Build()
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
			// Failed validation must not touch the buffer.
			if len(b.Items) != before {
				t.Errorf("buffer mutated on failed build: %d items, had %d", len(b.Items), before)
			}
		})
	}
}

func TestBuildRecomputesTotal(t *testing.T) {
	b := NewBuffer(extract.Receipt{
		PurchaseDate: "2025-04-01",
		StoreName:    "Seiyu",
		// Extraction carried a total that no longer matches the items.
		TotalAmount: 9999,
		Items: []extract.ReceiptItem{
			{ItemName: "milk", Price: 238},
			{ItemName: "bread", Price: 162},
		},
	})

	r, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if r.TotalAmount != 400 {
		t.Errorf("total: got %d, want 400 (sum of items)", r.TotalAmount)
	}
}

func TestBlankPriceCoercedAtSubmit(t *testing.T) {
	b := NewBlankBuffer()
	b.StoreName = "Lawson"
	b.SetItem(0, "onigiri", "")

	if got := b.Total(); got != 0 {
		t.Errorf("running total with blank price: got %d, want 0", got)
	}

	r, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if r.Items[0].Price != 0 {
		t.Errorf("blank price: got %d, want 0", r.Items[0].Price)
	}
	if r.PaymentMethod != extract.PaymentUnknown {
		t.Errorf("payment method: got %q, want %q", r.PaymentMethod, extract.PaymentUnknown)
	}
}

func TestItemEditing(t *testing.T) {
	b := NewBlankBuffer()
	b.AddItem()
	b.SetItem(0, "milk", "238")
	b.SetItem(1, "bread", "162")

	if got := b.Total(); got != 400 {
		t.Errorf("total: got %d, want 400", got)
	}

	b.RemoveItem(0)
	if len(b.Items) != 1 || b.Items[0].Name != "bread" {
		t.Errorf("unexpected items after removal: %+v", b.Items)
	}

	// Out-of-range edits are ignored.
	b.SetItem(5, "x", "1")
	b.RemoveItem(-1)
	if len(b.Items) != 1 {
		t.Errorf("out-of-range edit changed buffer: %+v", b.Items)
	}
}
