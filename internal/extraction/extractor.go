package extraction

import (
	"context"

	"github.com/snapceipt/snapceipt/internal/receipt"
)

// Extractor defines the interface for receipt extraction providers
type Extractor interface {
	// Extract analyzes a receipt photograph and returns the normalized
	// record. A nil record with a nil error means the image is readable
	// but is not a receipt.
	Extract(ctx context.Context, image []byte, contentType string) (*receipt.Normalized, error)

	// Close closes the extractor and releases resources
	Close() error
}
