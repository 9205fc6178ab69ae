package receipt

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// CustomerInfo holds the header fields of a challan
type CustomerInfo struct {
	Ms     string `json:"ms"` // customer name (M/s.)
	Tone   string `json:"tone"`
	Charak string `json:"charak"`
	ChNo   string `json:"chNo"` // voucher number
	Date   string `json:"date"` // display formatted, free text
}

// LineItem is one row of the items table
type LineItem struct {
	ID          int    `json:"id"` // unique within a draft only
	ChNo        string `json:"chNo"`
	LotNo       string `json:"lotNo"`
	Description string `json:"description"`
	Pieces      string `json:"pieces"`
}

// IsBlank reports whether the row carries neither a description nor pieces
func (i LineItem) IsBlank() bool {
	return strings.TrimSpace(i.Description) == "" && strings.TrimSpace(i.Pieces) == ""
}

// Receipt is a saved challan
type Receipt struct {
	ID           string       `json:"id"`
	CustomerInfo CustomerInfo `json:"customerInfo"`
	Items        []LineItem   `json:"items"`
	Total        int          `json:"total"`                // sum of pieces at save time
	Attachment   string       `json:"attachment,omitempty"` // stored scan of the paper challan
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

func (r *Receipt) clone() *Receipt {
	c := *r
	c.Items = append([]LineItem(nil), r.Items...)
	return &c
}

// ParsePieces reads the leading integer of s. Blank, non-numeric and
// negative values count as zero.
func ParsePieces(s string) int {
	n, ok := leadingInt(s)
	if !ok || n < 0 {
		return 0
	}
	return n
}

// SumPieces totals the pieces column
func SumPieces(items []LineItem) int {
	total := 0
	for _, item := range items {
		total += ParsePieces(item.Pieces)
	}
	return total
}

// ParseVoucher reads the leading integer of a voucher number. Numbers
// that leave no room for a successor are rejected.
func ParseVoucher(s string) (int, bool) {
	n, ok := leadingInt(s)
	if !ok || n >= math.MaxInt {
		return 0, false
	}
	return n, true
}

// keptItems drops blank rows
func keptItems(items []LineItem) []LineItem {
	kept := make([]LineItem, 0, len(items))
	for _, item := range items {
		if !item.IsBlank() {
			kept = append(kept, item)
		}
	}
	return kept
}

// leadingInt parses an optional sign followed by digits after leading
// whitespace, ignoring anything that follows the digits.
func leadingInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t\r\n")
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
