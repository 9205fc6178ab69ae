package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/zombor/challan-book/internal/scanning"
)

// Exporter renders receipts as a downloadable document
type Exporter interface {
	Export(receipts []*Receipt) ([]byte, error)
}

// ExporterFunc adapts a function to Exporter
type ExporterFunc func(receipts []*Receipt) ([]byte, error)

func (f ExporterFunc) Export(receipts []*Receipt) ([]byte, error) {
	return f(receipts)
}

// Service ties the record store, the form session and the scanning
// backend together for the HTTP layer.
type Service struct {
	repo     Repository
	session  *Session
	scanner  scanning.Scanner
	storage  Storage
	exporter Exporter
}

// NewService creates a new Service
func NewService(repo Repository, session *Session, scanner scanning.Scanner, storage Storage, exporter Exporter) *Service {
	if scanner == nil {
		scanner = scanning.NopScanner{}
	}
	// the session deletes scans that drafts drop
	session.files = storage
	return &Service{
		repo:     repo,
		session:  session,
		scanner:  scanner,
		storage:  storage,
		exporter: exporter,
	}
}

// Session returns the form session
func (s *Service) Session() *Session {
	return s.session
}

// ListReceipts returns the saved receipts matching query
func (s *Service) ListReceipts(query string) []*Receipt {
	return Filter(s.repo.List(), query)
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	return s.repo.Get(id)
}

// NextVoucherNumber suggests the next Ch. No.
func (s *Service) NextVoucherNumber() int {
	return s.repo.NextVoucherNumber()
}

// DeleteReceipt removes a receipt and its scanned challan
func (s *Service) DeleteReceipt(id string) error {
	return s.session.Delete(id)
}

// GetAttachment returns the scanned challan stored with a receipt
func (s *Service) GetAttachment(id string) ([]byte, string, error) {
	r, err := s.repo.Get(id)
	if err != nil {
		return nil, "", err
	}
	if r.Attachment == "" || s.storage == nil {
		return nil, "", notFoundErrorf("attachment for receipt %s", id)
	}
	data, err := s.storage.Get(r.Attachment)
	if err != nil {
		return nil, "", fmt.Errorf("getting attachment: %w", err)
	}
	return data, r.Attachment, nil
}

// ScanIntoDraft reads an uploaded photo or PDF of a paper challan, keeps
// the file, and copies what was read into the form.
func (s *Service) ScanIntoDraft(ctx context.Context, filename string, data []byte, contentType string) (*Draft, error) {
	if mode := s.session.Mode(); mode != ModeCreate && mode != ModeEdit {
		return nil, fmt.Errorf("scanning in %s mode: %w", mode, ErrInvalidMode)
	}

	challan, err := s.scanner.ScanChallan(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to scan challan",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		if errors.Is(err, scanning.ErrScanningDisabled) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning challan: %w", err)
	}

	if s.storage != nil {
		saved, err := s.storage.Save(uuid.NewString()+"_"+sanitizeFilename(filename), data)
		if err != nil {
			return nil, fmt.Errorf("saving scan: %w", err)
		}
		if err := s.session.Attach(saved); err != nil {
			if delErr := s.storage.Delete(saved); delErr != nil {
				slog.Warn("Failed to delete attachment", "attachment", saved, "error", delErr)
			}
			return nil, err
		}
	}

	items := make([]LineItem, 0, len(challan.Items))
	for _, it := range challan.Items {
		items = append(items, LineItem{
			ChNo:        it.ChNo,
			LotNo:       it.LotNo,
			Description: it.Description,
			Pieces:      it.Pieces,
		})
	}

	info := CustomerInfo{
		Ms:     challan.Ms,
		Tone:   challan.Tone,
		Charak: challan.Charak,
		ChNo:   challan.ChNo,
		Date:   challan.Date,
	}
	if err := s.session.Prefill(info, items); err != nil {
		return nil, err
	}

	slog.Info("challan scanned into draft", "filename", filename, "items", len(items))
	return s.session.Draft(), nil
}

// ExportReceipts renders the receipts matching query
func (s *Service) ExportReceipts(query string) ([]byte, error) {
	if s.exporter == nil {
		return nil, fmt.Errorf("no exporter configured")
	}
	data, err := s.exporter.Export(s.ListReceipts(query))
	if err != nil {
		return nil, fmt.Errorf("exporting receipts: %w", err)
	}
	return data, nil
}
