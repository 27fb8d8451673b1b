package receipt

// Item is a single line item on a receipt
type Item struct {
	Name     string   `json:"name"`
	Quantity *float64 `json:"quantity"`
	Price    *float64 `json:"price"`
	Category string   `json:"category"`
	Total    *float64 `json:"total"`
	Discount *float64 `json:"discount"`
}

// Normalized is a validated, canonicalized receipt record. Date is
// always YYYY-MM-DD, Total is always present and free-text fields have
// been cleaned up by the extraction layer.
type Normalized struct {
	StoreCategory string   `json:"store_category"`
	StoreName     string   `json:"store_name"`
	Date          string   `json:"date"`
	Total         *float64 `json:"total"`
	TaxAmount     *float64 `json:"tax_amount"`
	TotalDiscount *float64 `json:"total_discount"`
	Items         []Item   `json:"items"`
}

// Submitted is the outcome of a successful ingestion
type Submitted struct {
	ID          int64      `json:"id"`
	Receipt     Normalized `json:"receipt"`
	Fingerprint string     `json:"fingerprint"`
}

// Stored is a receipt row as returned by the backend list endpoint
type Stored struct {
	ID            int64    `json:"id"`
	StoreCategory string   `json:"store_category"`
	StoreName     string   `json:"store_name"`
	Date          string   `json:"date"`
	Total         *float64 `json:"total"`
	Currency      string   `json:"currency"`
	TaxAmount     *float64 `json:"tax_amount"`
	TotalDiscount *float64 `json:"total_discount"`
	Items         []Item   `json:"items"`
	Timestamp     int64    `json:"timestamp"`
}
