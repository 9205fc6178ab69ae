package scanning

import (
	"context"
	"errors"
)

// ErrScanningDisabled is returned by NopScanner
var ErrScanningDisabled = errors.New("challan scanning is not configured")

// ChallanItem is one row read off a paper challan
type ChallanItem struct {
	ChNo        string `json:"chNo"`
	LotNo       string `json:"lotNo"`
	Description string `json:"description"`
	Pieces      string `json:"pieces"` // as written, e.g. "12" or "12 pcs"
}

// ChallanData contains the fields read off a paper challan
type ChallanData struct {
	Ms     string        `json:"ms"`
	Tone   string        `json:"tone"`
	Charak string        `json:"charak"`
	ChNo   string        `json:"chNo"`
	Date   string        `json:"date"` // DD/MM/YYYY
	Items  []ChallanItem `json:"items"`
}

// Scanner defines the interface for challan scanning operations
type Scanner interface {
	// ScanChallan reads a photo or PDF of a challan
	ScanChallan(ctx context.Context, imageData []byte, contentType string) (*ChallanData, error)
	// Close closes the scanner and releases resources
	Close() error
}

// NopScanner is used when no scanning backend is configured
type NopScanner struct{}

func (NopScanner) ScanChallan(context.Context, []byte, string) (*ChallanData, error) {
	return nil, ErrScanningDisabled
}

func (NopScanner) Close() error {
	return nil
}
