package extract

// ReceiptItem is one purchased line item on a receipt.
type ReceiptItem struct {
	ItemName string `json:"item_name"`
	Price    int64  `json:"price"`
}

// Receipt is one structured record extracted from a receipt image, or
// entered manually. TotalAmount is the amount printed on the receipt;
// the editor recomputes it from the line items before save.
type Receipt struct {
	PurchaseDate  string        `json:"purchase_date"`
	StoreName     string        `json:"store_name"`
	Items         []ReceiptItem `json:"items"`
	TotalAmount   int64         `json:"total_amount"`
	PaymentMethod string        `json:"payment_method"`
}

// Payment methods recognised by the extraction backend.
const (
	PaymentCash     = "cash"
	PaymentCashless = "cashless"
	PaymentUnknown  = "unknown"
)

// CSVMapping is the column-index assignment inferred from a CSV sample,
// plus the backend's confidence in it. Indices are zero-based.
type CSVMapping struct {
	DateColIdx  int     `json:"date_col_idx"`
	ItemColIdx  int     `json:"item_col_idx"`
	StoreColIdx int     `json:"store_col_idx"`
	PriceColIdx int     `json:"price_col_idx"`
	Confidence  float64 `json:"confidence"`
}

// Transaction is one minimal row extracted from a CSV statement.
type Transaction struct {
	Date  string  `json:"date"`
	Store string  `json:"store"`
	Price float64 `json:"price"`
}

// CSVAnalysis is the result of analyzing a CSV statement: the extracted
// rows and the column mapping that produced them (inferred, or echoed
// back when a preset mapping was supplied).
type CSVAnalysis struct {
	Transactions []Transaction `json:"transactions"`
	Mapping      CSVMapping    `json:"mapping"`
}

// ImageFile is one receipt image to analyze.
type ImageFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// SearchRequest is a natural-language query over saved spending data.
type SearchRequest struct {
	Query    string `json:"query"`
	DataType string `json:"data_type,omitempty"`
	Period   string `json:"period,omitempty"`
}
