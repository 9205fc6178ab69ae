package receipt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Mode is the screen the single user is currently on
type Mode string

const (
	ModeCreate     Mode = "create"
	ModeEdit       Mode = "edit"
	ModeListView   Mode = "list"
	ModeDetailView Mode = "detail"
)

// ParseMode maps a tab name to a Mode
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeCreate, ModeEdit, ModeListView, ModeDetailView:
		return m, nil
	}
	return "", validationErrorf("unknown mode %q", s)
}

// SessionState is a snapshot of the session for rendering
type SessionState struct {
	Mode       Mode     `json:"mode"`
	Draft      *Draft   `json:"draft"`
	Total      int      `json:"total"`
	SelectedID string   `json:"selectedId,omitempty"`
	Selected   *Receipt `json:"selected,omitempty"`
	Query      string   `json:"query"`
	RawQuery   string   `json:"rawQuery"`
}

// Session holds the in-progress draft and screen state of the one user of
// the book. Create and Edit share the same draft.
type Session struct {
	mu         sync.Mutex
	repo       Repository
	files      Storage
	timeSource TimeSource
	debouncer  *Debouncer

	mode       Mode
	draft      *Draft
	selectedID string
	rawQuery   string
	query      string
}

// NewSession starts in Create mode with a blank draft
func NewSession(repo Repository, searchDelay time.Duration) *Session {
	return NewSessionWithDeps(repo, searchDelay, &defaultTimeSource{})
}

// NewSessionWithDeps creates a Session with a custom time source for testing
func NewSessionWithDeps(repo Repository, searchDelay time.Duration, timeSrc TimeSource) *Session {
	s := &Session{
		repo:       repo,
		timeSource: timeSrc,
		debouncer:  NewDebouncer(searchDelay),
		mode:       ModeCreate,
	}
	s.draft = s.blankDraft()
	return s
}

// State returns a copy of the current session
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := SessionState{
		Mode:       s.mode,
		Draft:      s.draft.Clone(),
		Total:      s.draft.Total(),
		SelectedID: s.selectedID,
		Query:      s.query,
		RawQuery:   s.rawQuery,
	}
	if s.mode == ModeDetailView && s.selectedID != "" {
		if r, err := s.repo.Get(s.selectedID); err == nil {
			state.Selected = r
		}
	}
	return state
}

// Mode returns the current mode
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Draft returns a copy of the draft
func (s *Session) Draft() *Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Clone()
}

// UpdateCustomer sets a customer field on the draft
func (s *Session) UpdateCustomer(key, value string) error {
	return s.editDraft(func(d *Draft) error {
		return d.SetField(key, value)
	})
}

// UpdateItem sets a cell on the draft
func (s *Session) UpdateItem(id int, key, value string) error {
	return s.editDraft(func(d *Draft) error {
		return d.SetItemField(id, key, value)
	})
}

// AddRow appends a blank row to the draft
func (s *Session) AddRow() (LineItem, error) {
	var item LineItem
	err := s.editDraft(func(d *Draft) error {
		item = d.AddRow()
		return nil
	})
	return item, err
}

// RemoveRow removes a row from the draft
func (s *Session) RemoveRow(id int) error {
	return s.editDraft(func(d *Draft) error {
		return d.RemoveRow(id)
	})
}

// Attach records the stored scan of the paper challan on the draft. A
// scan it replaces is deleted unless a saved receipt still uses it.
func (s *Session) Attach(name string) error {
	var previous string
	err := s.editDraft(func(d *Draft) error {
		previous = d.Attachment
		d.Attachment = name
		return nil
	})
	if err != nil {
		return err
	}
	if previous != name {
		s.discard(previous)
	}
	return nil
}

// Prefill overwrites the draft customer fields that are non-empty in
// info and, when items is not empty, replaces the rows.
func (s *Session) Prefill(info CustomerInfo, items []LineItem) error {
	return s.editDraft(func(d *Draft) error {
		for key, value := range map[string]string{
			"ms":     info.Ms,
			"tone":   info.Tone,
			"charak": info.Charak,
			"chNo":   info.ChNo,
			"date":   info.Date,
		} {
			if value != "" {
				if err := d.SetField(key, value); err != nil {
					return err
				}
			}
		}
		if len(items) > 0 {
			d.ReplaceItems(items)
		}
		return nil
	})
}

// Save stores the draft: as a new receipt in Create mode, over the
// source receipt in Edit mode. On success the form is cleared and the
// list is shown.
func (s *Session) Save() (*Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeCreate && s.mode != ModeEdit {
		return nil, fmt.Errorf("saving in %s mode: %w", s.mode, ErrInvalidMode)
	}

	var (
		saved    *Receipt
		replaced string
		err      error
	)
	if s.draft.EditingID != "" {
		if old, getErr := s.repo.Get(s.draft.EditingID); getErr == nil {
			replaced = old.Attachment
		}
		saved, err = s.repo.Update(s.draft.EditingID, s.draft)
	} else {
		saved, err = s.repo.Create(s.draft)
	}
	if err != nil {
		return nil, err
	}
	if replaced != saved.Attachment {
		s.discard(replaced)
	}

	s.draft = s.blankDraft()
	s.mode = ModeListView
	return saved, nil
}

// ShowCreate switches to the form tab, keeping the draft
func (s *Session) ShowCreate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draft.EditingID != "" {
		s.mode = ModeEdit
		return
	}
	s.mode = ModeCreate
}

// ShowList switches to the saved receipts tab
func (s *Session) ShowList() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = ModeListView
}

// Select opens a saved receipt read-only
func (s *Session) Select(id string) (*Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeListView && s.mode != ModeDetailView {
		return nil, fmt.Errorf("selecting in %s mode: %w", s.mode, ErrInvalidMode)
	}
	r, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}
	s.selectedID = id
	s.mode = ModeDetailView
	return r, nil
}

// Edit loads the receipt shown in the detail view into the form
func (s *Session) Edit() (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeDetailView {
		return nil, fmt.Errorf("editing in %s mode: %w", s.mode, ErrInvalidMode)
	}
	r, err := s.repo.Get(s.selectedID)
	if err != nil {
		return nil, err
	}
	s.draft = LoadReceipt(r)
	s.mode = ModeEdit
	return s.draft.Clone(), nil
}

// Cancel drops the draft, including any edit in progress
func (s *Session) Cancel() *Draft {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := s.draft.Attachment
	s.draft = s.blankDraft()
	s.mode = ModeCreate
	s.discard(dropped)
	return s.draft.Clone()
}

// Delete removes a saved receipt with its scan and fixes up any screen
// showing it
func (s *Session) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.repo.Get(id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(id); err != nil {
		return err
	}
	s.discard(r.Attachment)

	if s.selectedID == id {
		s.selectedID = ""
		if s.mode == ModeDetailView {
			s.mode = ModeListView
		}
	}
	if s.draft.EditingID == id {
		if s.draft.Attachment != r.Attachment {
			s.discard(s.draft.Attachment)
		}
		s.draft = s.blankDraft()
		if s.mode == ModeEdit {
			s.mode = ModeCreate
		}
	}
	return nil
}

// Search records the typed query. Results follow once typing pauses.
func (s *Session) Search(raw string) {
	s.mu.Lock()
	s.rawQuery = raw
	s.mu.Unlock()

	s.debouncer.Trigger(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.query = raw
	})
}

// Query returns the settled search query
func (s *Session) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Results filters the saved receipts by the settled query
func (s *Session) Results() []*Receipt {
	return Filter(s.repo.List(), s.Query())
}

// Close stops a pending search
func (s *Session) Close() {
	s.debouncer.Stop()
}

func (s *Session) editDraft(fn func(d *Draft) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeCreate && s.mode != ModeEdit {
		return fmt.Errorf("editing the form in %s mode: %w", s.mode, ErrInvalidMode)
	}

	next := s.draft.Clone()
	if err := fn(next); err != nil {
		return err
	}
	s.draft = next
	return nil
}

// discard deletes a stored scan that no saved receipt refers to
func (s *Session) discard(name string) {
	if name == "" || s.files == nil {
		return
	}
	for _, r := range s.repo.List() {
		if r.Attachment == name {
			return
		}
	}
	if err := s.files.Delete(name); err != nil {
		slog.Warn("Failed to delete attachment", "attachment", name, "error", err)
	}
}

func (s *Session) blankDraft() *Draft {
	return NewDraft(s.repo.NextVoucherNumber(), s.timeSource.Now())
}
