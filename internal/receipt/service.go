package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/snapceipt/snapceipt/internal/gateway"
)

// Extractor turns a receipt photograph into a normalized record. A nil
// record with a nil error means the image is not a receipt.
type Extractor interface {
	Extract(ctx context.Context, image []byte, contentType string) (*Normalized, error)
}

// Sender performs authenticated backend calls
type Sender interface {
	Send(ctx context.Context, req gateway.Request) (*gateway.Response, error)
}

// LimitError reports that the account's scan quota is exhausted. The
// message is the backend's, forwarded verbatim.
type LimitError struct {
	Message string
}

func (e *LimitError) Error() string { return e.Message }

// Service coordinates receipt ingestion: extract, fingerprint, submit
type Service struct {
	extractor Extractor
	gw        Sender
}

// NewService creates a new Service
func NewService(extractor Extractor, gw Sender) *Service {
	return &Service{
		extractor: extractor,
		gw:        gw,
	}
}

// submission is the create-receipt payload: the normalized record plus
// its fingerprint as the deduplication key
type submission struct {
	Normalized
	Fingerprint string `json:"fingerprint"`
}

// Ingest runs the full pipeline for one capture. It returns nil, nil
// both when the image is not a receipt and when the backend already
// holds a record with the same fingerprint: in either case there is
// nothing new to display and no error worth raising.
func (s *Service) Ingest(ctx context.Context, image []byte, contentType string) (*Submitted, error) {
	normalized, err := s.extractor.Extract(ctx, image, contentType)
	if err != nil {
		return nil, fmt.Errorf("extracting receipt: %w", err)
	}
	if normalized == nil {
		slog.Info("Image is not a receipt, skipping submission")
		return nil, nil
	}

	fingerprint := Fingerprint(normalized)

	resp, err := s.gw.Send(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "/api/receipts",
		Body:   submission{Normalized: *normalized, Fingerprint: fingerprint},
	})
	if err != nil {
		return nil, fmt.Errorf("submitting receipt: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusCreated:
		var created struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(resp.Body, &created); err != nil {
			return nil, fmt.Errorf("decoding create response: %w", err)
		}
		return &Submitted{
			ID:          created.ID,
			Receipt:     *normalized,
			Fingerprint: fingerprint,
		}, nil
	case http.StatusConflict:
		// Double capture of content the backend already holds
		slog.Info("Duplicate receipt fingerprint, nothing new to store", "fingerprint", fingerprint)
		return nil, nil
	case http.StatusForbidden:
		return nil, &LimitError{Message: gateway.APIMessage(resp.Body)}
	default:
		return nil, fmt.Errorf("submitting receipt (status %d): %s", resp.StatusCode, gateway.APIMessage(resp.Body))
	}
}

// List returns all receipts stored for the account
func (s *Service) List(ctx context.Context) ([]Stored, error) {
	resp, err := s.gw.Send(ctx, gateway.Request{
		Method: http.MethodGet,
		Path:   "/api/receipts",
	})
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing receipts (status %d): %s", resp.StatusCode, gateway.APIMessage(resp.Body))
	}

	var payload struct {
		Receipts []Stored `json:"receipts"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("decoding receipt list: %w", err)
	}
	return payload.Receipts, nil
}

// Delete removes a stored receipt by ID
func (s *Service) Delete(ctx context.Context, id int64) error {
	resp, err := s.gw.Send(ctx, gateway.Request{
		Method: http.MethodDelete,
		Path:   fmt.Sprintf("/api/receipts/%d", id),
	})
	if err != nil {
		return fmt.Errorf("deleting receipt: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deleting receipt (status %d): %s", resp.StatusCode, gateway.APIMessage(resp.Body))
	}
	return nil
}
