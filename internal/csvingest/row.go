package csvingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mizutanik/kakeibo/internal/extract"
)

// Row is one statement row under review. Price stays a raw string while
// the row is being edited so it may be blank mid-edit; blank and
// unparseable prices are coerced to zero when the save batch is built.
type Row struct {
	Date  string
	Store string
	Price string
}

// rowJSON is the wire shape of a Row. Price is accepted as either a JSON
// number (as the backend returns it) or a string (as an edit in progress).
type rowJSON struct {
	Date  string          `json:"date"`
	Store string          `json:"store"`
	Price json.RawMessage `json:"price"`
}

// UnmarshalJSON accepts a price that is a number, a string, or absent.
func (r *Row) UnmarshalJSON(data []byte) error {
	var raw rowJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("csvingest: decoding row: %w", err)
	}
	r.Date = raw.Date
	r.Store = raw.Store

	switch {
	case len(raw.Price) == 0 || string(raw.Price) == "null":
		r.Price = ""
	case raw.Price[0] == '"':
		var s string
		if err := json.Unmarshal(raw.Price, &s); err != nil {
			return fmt.Errorf("csvingest: decoding row price: %w", err)
		}
		r.Price = s
	default:
		r.Price = string(raw.Price)
	}
	return nil
}

// MarshalJSON emits the price as a number when it parses as one, and as
// a string otherwise, so a half-edited row round-trips unchanged.
func (r Row) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"date":  r.Date,
		"store": r.Store,
	}
	if d, err := decimal.NewFromString(strings.TrimSpace(r.Price)); err == nil {
		out["price"] = json.RawMessage(d.String())
	} else {
		out["price"] = r.Price
	}
	return json.Marshal(out)
}

// priceDecimal coerces the row's price for persistence: blank or
// unparseable values become zero.
func (r Row) priceDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(r.Price))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// RowsFromTransactions converts backend-extracted transactions into
// editable rows.
func RowsFromTransactions(txs []extract.Transaction) []Row {
	rows := make([]Row, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, Row{
			Date:  t.Date,
			Store: t.Store,
			Price: decimal.NewFromFloat(t.Price).String(),
		})
	}
	return rows
}

// CoerceRows builds the final transaction list to persist, applying the
// blank-price-to-zero coercion to every row.
func CoerceRows(rows []Row) []extract.Transaction {
	txs := make([]extract.Transaction, 0, len(rows))
	for _, r := range rows {
		txs = append(txs, extract.Transaction{
			Date:  r.Date,
			Store: r.Store,
			Price: r.priceDecimal().InexactFloat64(),
		})
	}
	return txs
}
