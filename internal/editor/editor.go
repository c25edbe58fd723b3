// Package editor holds the local, uncommitted edit buffer for one receipt
// under review, and gates its submission. Nothing here touches the network;
// the task manager persists whatever Build returns.
package editor

import (
	"errors"
	"strconv"
	"strings"

	"github.com/mizutanik/kakeibo/internal/extract"
)

// Validation errors returned by Build. A failed Build leaves the buffer
// untouched so the user can correct it and retry.
var (
	ErrStoreRequired    = errors.New("editor: store name is required")
	ErrNoItems          = errors.New("editor: at least one item is required")
	ErrItemNameRequired = errors.New("editor: item name is required")
	ErrInvalidPrice     = errors.New("editor: item price is not a number")
)

// Item is one line item as it is being edited. Price stays a raw string
// so the field may be blank mid-edit; it is coerced to zero at submit
// time, not at keystroke time.
type Item struct {
	Name  string
	Price string
}

// Buffer is the edit buffer for one structured record.
type Buffer struct {
	PurchaseDate  string
	StoreName     string
	PaymentMethod string
	Items         []Item
}

// NewBuffer seeds a buffer from an extracted record.
func NewBuffer(r extract.Receipt) *Buffer {
	b := &Buffer{
		PurchaseDate:  r.PurchaseDate,
		StoreName:     r.StoreName,
		PaymentMethod: r.PaymentMethod,
		Items:         make([]Item, 0, len(r.Items)),
	}
	if b.PaymentMethod == "" {
		b.PaymentMethod = extract.PaymentUnknown
	}
	for _, it := range r.Items {
		b.Items = append(b.Items, Item{Name: it.ItemName, Price: strconv.FormatInt(it.Price, 10)})
	}
	return b
}

// NewBlankBuffer returns an empty buffer for manual entry, with one
// blank item row ready for input.
func NewBlankBuffer() *Buffer {
	return &Buffer{
		PaymentMethod: extract.PaymentUnknown,
		Items:         []Item{{}},
	}
}

// AddItem appends a blank item row.
func (b *Buffer) AddItem() {
	b.Items = append(b.Items, Item{})
}

// SetItem replaces the item at index i. Out-of-range indices are ignored.
func (b *Buffer) SetItem(i int, name, price string) {
	if i < 0 || i >= len(b.Items) {
		return
	}
	b.Items[i] = Item{Name: name, Price: price}
}

// RemoveItem deletes the item at index i. Out-of-range indices are ignored.
func (b *Buffer) RemoveItem(i int) {
	if i < 0 || i >= len(b.Items) {
		return
	}
	b.Items = append(b.Items[:i], b.Items[i+1:]...)
}

// Total returns the running sum of the current item prices for display.
// Blank and unparseable prices count as zero.
func (b *Buffer) Total() int64 {
	var sum int64
	for _, it := range b.Items {
		p, err := parsePrice(it.Price)
		if err != nil {
			continue
		}
		sum += p
	}
	return sum
}

// Build validates the buffer and produces the record to persist. The
// persisted total is always the recomputed sum of the line items, never
// the total carried over from extraction.
func (b *Buffer) Build() (extract.Receipt, error) {
	store := strings.TrimSpace(b.StoreName)
	if store == "" {
		return extract.Receipt{}, ErrStoreRequired
	}
	if len(b.Items) == 0 {
		return extract.Receipt{}, ErrNoItems
	}

	items := make([]extract.ReceiptItem, 0, len(b.Items))
	var total int64
	for _, it := range b.Items {
		if strings.TrimSpace(it.Name) == "" {
			return extract.Receipt{}, ErrItemNameRequired
		}
		price, err := parsePrice(it.Price)
		if err != nil {
			return extract.Receipt{}, err
		}
		items = append(items, extract.ReceiptItem{ItemName: it.Name, Price: price})
		total += price
	}

	payment := b.PaymentMethod
	if payment == "" {
		payment = extract.PaymentUnknown
	}

	return extract.Receipt{
		PurchaseDate:  b.PurchaseDate,
		StoreName:     store,
		Items:         items,
		TotalAmount:   total,
		PaymentMethod: payment,
	}, nil
}

// parsePrice coerces a blank price to zero and rejects non-numeric input.
func parsePrice(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	p, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrInvalidPrice
	}
	return p, nil
}
