package receipt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository is the record store as seen by the session and the server
type Repository interface {
	List() []*Receipt
	Get(id string) (*Receipt, error)
	Create(draft *Draft) (*Receipt, error)
	Update(id string, draft *Draft) (*Receipt, error)
	Delete(id string) error
	NextVoucherNumber() int
}

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Store owns the saved receipts and the voucher counter. All reads are
// served from memory; every change rewrites the whole list in the DB.
type Store struct {
	mu          sync.Mutex
	db          DB
	receipts    []*Receipt
	lastChNo    int
	hasCounter  bool
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewStore loads the persisted receipts from db
func NewStore(db DB) (*Store, error) {
	return NewStoreWithDeps(db, &uuidGenerator{}, &defaultTimeSource{})
}

// NewStoreWithDeps creates a Store with custom dependencies for testing
func NewStoreWithDeps(db DB, idGen IDGenerator, timeSrc TimeSource) (*Store, error) {
	s := &Store{
		db:          db,
		receipts:    make([]*Receipt, 0),
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := s.db.Get(KeyReceipts)
	if err != nil {
		return &StorageError{Op: "load receipts", Err: err}
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.receipts); err != nil {
			return &StorageError{Op: "load receipts", Err: fmt.Errorf("unmarshaling receipts: %w", err)}
		}
	}

	counter, err := s.db.Get(KeyLastChNo)
	if err != nil {
		return &StorageError{Op: "load counter", Err: err}
	}
	if n, ok := ParseVoucher(string(counter)); ok {
		s.lastChNo = n
		s.hasCounter = true
	}
	return nil
}

// List returns the receipts, most recently created first
func (s *Store) List() []*Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Receipt, len(s.receipts))
	for i, r := range s.receipts {
		out[i] = r.clone()
	}
	return out
}

// Get returns one receipt
func (s *Store) Get(id string) (*Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return nil, notFoundErrorf("receipt %s", id)
	}
	return s.receipts[idx].clone(), nil
}

// Create saves a new receipt from draft and advances the voucher counter
func (s *Store) Create(draft *Draft) (*Receipt, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timeSource.Now()
	items := keptItems(draft.Items)
	r := &Receipt{
		ID:           s.idGenerator.Generate(),
		CustomerInfo: draft.CustomerInfo,
		Items:        items,
		Total:        SumPieces(items),
		Attachment:   draft.Attachment,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	next := make([]*Receipt, 0, len(s.receipts)+1)
	next = append(next, r)
	next = append(next, s.receipts...)

	lastChNo, hasCounter := s.lastChNo, s.hasCounter
	if n, ok := ParseVoucher(draft.CustomerInfo.ChNo); ok {
		if !hasCounter || n > lastChNo {
			lastChNo = n
		}
		hasCounter = true
	}

	if err := s.persist(next, lastChNo, hasCounter); err != nil {
		return nil, err
	}
	s.receipts = next
	s.lastChNo, s.hasCounter = lastChNo, hasCounter

	slog.Info("receipt created", "id", r.ID, "ch_no", r.CustomerInfo.ChNo, "total", r.Total)
	return r.clone(), nil
}

// Update replaces the contents of an existing receipt in place
func (s *Store) Update(id string, draft *Draft) (*Receipt, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return nil, notFoundErrorf("receipt %s", id)
	}

	items := keptItems(draft.Items)
	r := s.receipts[idx].clone()
	r.CustomerInfo = draft.CustomerInfo
	r.Items = items
	r.Total = SumPieces(items)
	if draft.Attachment != "" {
		r.Attachment = draft.Attachment
	}
	r.UpdatedAt = s.timeSource.Now()

	next := append([]*Receipt(nil), s.receipts...)
	next[idx] = r

	if err := s.persist(next, s.lastChNo, s.hasCounter); err != nil {
		return nil, err
	}
	s.receipts = next

	slog.Info("receipt updated", "id", r.ID, "ch_no", r.CustomerInfo.ChNo, "total", r.Total)
	return r.clone(), nil
}

// Delete removes a receipt
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return notFoundErrorf("receipt %s", id)
	}

	next := make([]*Receipt, 0, len(s.receipts)-1)
	next = append(next, s.receipts[:idx]...)
	next = append(next, s.receipts[idx+1:]...)

	if err := s.persist(next, s.lastChNo, s.hasCounter); err != nil {
		return err
	}
	s.receipts = next

	slog.Info("receipt deleted", "id", id)
	return nil
}

// NextVoucherNumber suggests the voucher number for a new challan. Data
// saved before the counter existed is scanned for the highest number.
func (s *Store) NextVoucherNumber() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasCounter {
		return s.lastChNo + 1
	}

	found := false
	highest := 0
	for _, r := range s.receipts {
		if n, ok := ParseVoucher(r.CustomerInfo.ChNo); ok && (!found || n > highest) {
			highest = n
			found = true
		}
	}
	if found {
		return highest + 1
	}
	return 1
}

func (s *Store) indexOf(id string) int {
	for i, r := range s.receipts {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) persist(receipts []*Receipt, lastChNo int, hasCounter bool) error {
	data, err := json.Marshal(receipts)
	if err != nil {
		return &StorageError{Op: "save receipts", Err: fmt.Errorf("marshaling receipts: %w", err)}
	}

	values := map[string][]byte{KeyReceipts: data}
	if hasCounter {
		values[KeyLastChNo] = []byte(strconv.Itoa(lastChNo))
	}
	if err := s.db.Put(values); err != nil {
		return &StorageError{Op: "save receipts", Err: err}
	}
	return nil
}

func validateDraft(draft *Draft) error {
	if draft == nil || strings.TrimSpace(draft.CustomerInfo.Ms) == "" {
		return validationErrorf("customer name (M/s.) is required")
	}
	return nil
}
