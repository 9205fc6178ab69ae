package receipt

import (
	"strconv"
	"time"
)

// BlankRows is the number of rows a fresh form shows, matching the
// printed challan layout.
const BlankRows = 8

// DateLayout is the day/month/year format used for the date field
const DateLayout = "02/01/2006"

// Draft is a receipt being composed or edited
type Draft struct {
	CustomerInfo CustomerInfo `json:"customerInfo"`
	Items        []LineItem   `json:"items"`
	EditingID    string       `json:"editingId,omitempty"` // set when saving should update this receipt
	Attachment   string       `json:"attachment,omitempty"`

	lastRowID int
}

// NewDraft creates an empty form with BlankRows rows
func NewDraft(voucher int, date time.Time) *Draft {
	d := &Draft{
		CustomerInfo: CustomerInfo{
			ChNo: strconv.Itoa(voucher),
			Date: date.Format(DateLayout),
		},
		Items: make([]LineItem, 0, BlankRows),
	}
	d.pad()
	return d
}

// LoadReceipt fills a draft from a saved receipt for editing
func LoadReceipt(r *Receipt) *Draft {
	d := &Draft{
		CustomerInfo: r.CustomerInfo,
		Items:        make([]LineItem, 0, max(len(r.Items), BlankRows)),
		EditingID:    r.ID,
		Attachment:   r.Attachment,
	}
	for _, item := range r.Items {
		d.lastRowID++
		item.ID = d.lastRowID
		d.Items = append(d.Items, item)
	}
	d.pad()
	return d
}

// Clone returns an independent copy
func (d *Draft) Clone() *Draft {
	c := *d
	c.Items = append([]LineItem(nil), d.Items...)
	return &c
}

// SetField updates one customer field by its key
func (d *Draft) SetField(key, value string) error {
	switch key {
	case "ms":
		d.CustomerInfo.Ms = value
	case "tone":
		d.CustomerInfo.Tone = value
	case "charak":
		d.CustomerInfo.Charak = value
	case "chNo":
		d.CustomerInfo.ChNo = value
	case "date":
		d.CustomerInfo.Date = value
	default:
		return validationErrorf("unknown customer field %q", key)
	}
	return nil
}

// SetItemField updates one cell of the items table
func (d *Draft) SetItemField(id int, key, value string) error {
	idx := d.rowIndex(id)
	if idx < 0 {
		return notFoundErrorf("row %d", id)
	}

	item := &d.Items[idx]
	switch key {
	case "chNo":
		item.ChNo = value
	case "lotNo":
		item.LotNo = value
	case "description":
		item.Description = value
	case "pieces":
		item.Pieces = value
	default:
		return validationErrorf("unknown item field %q", key)
	}
	return nil
}

// AddRow appends a blank row
func (d *Draft) AddRow() LineItem {
	d.syncRowID()
	d.lastRowID++
	item := LineItem{ID: d.lastRowID}
	d.Items = append(d.Items, item)
	return item
}

// RemoveRow deletes a row. The last remaining row cannot be removed.
func (d *Draft) RemoveRow(id int) error {
	idx := d.rowIndex(id)
	if idx < 0 {
		return notFoundErrorf("row %d", id)
	}
	if len(d.Items) <= 1 {
		return ErrLastRow
	}
	d.Items = append(d.Items[:idx], d.Items[idx+1:]...)
	return nil
}

// Total sums the pieces column, counting unreadable cells as zero
func (d *Draft) Total() int {
	return SumPieces(d.Items)
}

// Preview shows the form as a receipt for printing, blank rows included
func (d *Draft) Preview() *Receipt {
	return &Receipt{
		ID:           d.EditingID,
		CustomerInfo: d.CustomerInfo,
		Items:        append([]LineItem(nil), d.Items...),
		Total:        d.Total(),
		Attachment:   d.Attachment,
	}
}

// ReplaceItems swaps in a new set of rows, renumbered and padded
func (d *Draft) ReplaceItems(items []LineItem) {
	d.Items = make([]LineItem, 0, max(len(items), BlankRows))
	d.lastRowID = 0
	for _, item := range items {
		d.lastRowID++
		item.ID = d.lastRowID
		d.Items = append(d.Items, item)
	}
	d.pad()
}

func (d *Draft) pad() {
	for len(d.Items) < BlankRows {
		d.AddRow()
	}
}

// syncRowID keeps new ids clear of any id already present, e.g. after
// the draft was decoded from JSON.
func (d *Draft) syncRowID() {
	for _, item := range d.Items {
		if item.ID > d.lastRowID {
			d.lastRowID = item.ID
		}
	}
}

func (d *Draft) rowIndex(id int) int {
	for i, item := range d.Items {
		if item.ID == id {
			return i
		}
	}
	return -1
}
