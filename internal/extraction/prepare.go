package extraction

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

const (
	// Standard path: bound the longest side, keep decent quality
	normalMaxDimension = 1600
	normalQuality      = 85

	// Aggressive path for suspect captures: tighter bound, stronger
	// compression
	aggressiveMaxDimension = 1280
	aggressiveQuality      = 60

	// A source below smallSourceDimension looks like a low-resolution
	// original; above largeSourceDimension like an oversized capture.
	// Both get the aggressive treatment.
	smallSourceDimension = 640
	largeSourceDimension = 4096
)

// prepareImage normalizes a capture before it goes to the extraction
// service: PDFs are rendered, HEIC is decoded, EXIF orientation is
// applied, and the result is resized toward a bounded resolution and
// recompressed as JPEG. It is a pure per-image transform with no retry
// semantics of its own.
func prepareImage(data []byte, contentType string) ([]byte, error) {
	img, err := decodeCapture(data, contentType)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	maxDimension, quality := normalMaxDimension, normalQuality
	if min(width, height) < smallSourceDimension || max(width, height) > largeSourceDimension {
		maxDimension, quality = aggressiveMaxDimension, aggressiveQuality
	}

	if width > maxDimension || height > maxDimension {
		img = imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encoding prepared image: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeCapture turns raw capture bytes into an image, with
// orientation already corrected
func decodeCapture(data []byte, contentType string) (image.Image, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = "image/jpeg" // default
	}

	if mimeType == "application/pdf" {
		return pdfToImage(data)
	}

	// HEIC/HEIF (common on iPhones) is not covered by the standard
	// image package. iPhones record orientation as irot/imir transform
	// properties in the container, and the libheif-backed decoder
	// applies those during decode, so the pixels arrive upright and no
	// separate orientation pass is needed here.
	if isHEICFormat(data) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// pdfToImage renders the first page of a PDF receipt
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Most receipts are single page
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// isHEICFormat checks the ftyp box for HEIC/HEIF brands
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1"
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
