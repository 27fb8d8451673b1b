package extraction

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/snapceipt/snapceipt/internal/receipt"
)

// defaultItemCategory is assigned when the model omits an item category
const defaultItemCategory = "Other"

// looseNumber unmarshals a numeric field the model may emit as a
// number, a formatted string ("$1,299.00") or garbage. Anything that
// cannot be coerced becomes null rather than a parse failure.
type looseNumber struct {
	value *float64
}

func (n *looseNumber) UnmarshalJSON(data []byte) error {
	// Unmarshaling null into a float64 is a silent no-op success, so an
	// explicit null would come out as 0. It has to stay absent.
	if string(data) == "null" {
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		n.value = &f
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.TrimSpace(s)
		s = strings.TrimLeft(s, "$€£")
		s = strings.ReplaceAll(s, ",", "")
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			n.value = &f
		}
	}
	return nil
}

type rawItem struct {
	Name     string      `json:"name"`
	Quantity looseNumber `json:"quantity"`
	Price    looseNumber `json:"price"`
	Category string      `json:"category"`
	Total    looseNumber `json:"total"`
	Discount looseNumber `json:"discount"`
}

type rawResult struct {
	Error         string          `json:"error"`
	StoreCategory string          `json:"store_category"`
	StoreName     string          `json:"store_name"`
	Date          string          `json:"date"`
	Total         looseNumber     `json:"total"`
	TaxAmount     looseNumber     `json:"tax_amount"`
	TotalDiscount looseNumber     `json:"total_discount"`
	Items         json.RawMessage `json:"items"`
}

// parseReceipt parses the text response from an extraction provider
// into a normalized receipt. A nil, nil return means the service
// explicitly flagged the image as not being a receipt.
func parseReceipt(text string) (*receipt.Normalized, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Models occasionally wrap the JSON in prose; keep only the object
	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")
	if startIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrInvalidReceipt)
	}
	text = text[startIdx : endIdx+1]

	var raw rawResult
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling response: %v", ErrInvalidReceipt, err)
	}

	// Explicit negative signal from the service, not an error
	if raw.Error != "" {
		return nil, nil
	}

	if raw.Date == "" {
		return nil, fmt.Errorf("%w: missing date", ErrInvalidReceipt)
	}
	date, err := normalizeDate(raw.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}

	if raw.Total.value == nil {
		return nil, fmt.Errorf("%w: missing total", ErrInvalidReceipt)
	}

	var rawItems []rawItem
	if err := json.Unmarshal(raw.Items, &rawItems); err != nil {
		return nil, fmt.Errorf("%w: items is not a list", ErrInvalidReceipt)
	}
	if len(rawItems) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrInvalidReceipt)
	}

	items := make([]receipt.Item, 0, len(rawItems))
	usable := false
	for _, item := range rawItems {
		name := normalizeText(item.Name)
		if name != "" || item.Price.value != nil {
			usable = true
		}
		category := normalizeText(item.Category)
		if category == "" {
			category = defaultItemCategory
		}
		items = append(items, receipt.Item{
			Name:     name,
			Quantity: item.Quantity.value,
			Price:    item.Price.value,
			Category: category,
			Total:    item.Total.value,
			Discount: item.Discount.value,
		})
	}
	if !usable {
		return nil, fmt.Errorf("%w: no item has a name or a price", ErrInvalidReceipt)
	}

	return &receipt.Normalized{
		StoreCategory: normalizeText(raw.StoreCategory),
		StoreName:     normalizeText(raw.StoreName),
		Date:          date,
		Total:         raw.Total.value,
		TaxAmount:     raw.TaxAmount.value,
		TotalDiscount: raw.TotalDiscount.value,
		Items:         items,
	}, nil
}

// normalizeText trims, collapses whitespace and title-cases the first
// word only. Later words keep their casing, so an already-normalized
// value like "Organic Apples" passes through unchanged.
func normalizeText(s string) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}

	first := []rune(words[0])
	first[0] = unicode.ToUpper(first[0])
	for i := 1; i < len(first); i++ {
		first[i] = unicode.ToLower(first[i])
	}
	words[0] = string(first)

	return strings.Join(words, " ")
}

// dateFormats are the source layouts seen in model output, most
// specific first
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02.01.2006",
	"02-01-2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// normalizeDate canonicalizes a date string to YYYY-MM-DD
func normalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, format := range dateFormats {
		if d, err := time.Parse(format, s); err == nil {
			return d.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}
