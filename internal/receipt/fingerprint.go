package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// canonical mirrors Normalized with keys in alphabetical order so the
// serialization is byte-stable. Only content fields participate; local
// identifiers and timestamps never enter the digest. Item order is
// preserved: the same items in a different order are different content.
type canonical struct {
	Date          string          `json:"date"`
	Items         []canonicalItem `json:"items"`
	StoreCategory string          `json:"store_category"`
	StoreName     string          `json:"store_name"`
	TaxAmount     *float64        `json:"tax_amount"`
	Total         *float64        `json:"total"`
	TotalDiscount *float64        `json:"total_discount"`
}

type canonicalItem struct {
	Category string   `json:"category"`
	Discount *float64 `json:"discount"`
	Name     string   `json:"name"`
	Price    *float64 `json:"price"`
	Quantity *float64 `json:"quantity"`
	Total    *float64 `json:"total"`
}

// Fingerprint computes the SHA-256 hex digest of the canonical JSON
// serialization of a normalized receipt's content fields. It is the
// idempotency key the backend uses for duplicate suppression.
func Fingerprint(n *Normalized) string {
	c := canonical{
		Date:          n.Date,
		Items:         make([]canonicalItem, 0, len(n.Items)),
		StoreCategory: n.StoreCategory,
		StoreName:     n.StoreName,
		TaxAmount:     n.TaxAmount,
		Total:         n.Total,
		TotalDiscount: n.TotalDiscount,
	}
	for _, item := range n.Items {
		c.Items = append(c.Items, canonicalItem{
			Category: item.Category,
			Discount: item.Discount,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
			Total:    item.Total,
		})
	}

	// Marshaling a struct of strings and numbers cannot fail
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
