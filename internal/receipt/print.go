package receipt

import (
	"fmt"
	"html/template"
	"io"
)

// Letterhead is the fixed header and footer text of the printed challan
type Letterhead struct {
	Name        string
	Tagline     string
	Blessing    string
	PhonesLeft  []string
	PhonesRight []string
	Address     string
}

// DefaultLetterhead is the business the book was made for
var DefaultLetterhead = Letterhead{
	Name:        "BHAGAT CREATION",
	Tagline:     "Specialist in All Type of Hand Work",
	Blessing:    "|| Shree Ganeshay Namh ||",
	PhonesLeft:  []string{"98253 45258", "82005 83692"},
	PhonesRight: []string{"99788 25558", "91041 53558"},
	Address:     "A-168, Sitaram Society Part-1, Nr. Archana School, Puna-Bombay Market Road, Surat.",
}

type printPage struct {
	Letterhead
	Receipt *Receipt
	Rows    []LineItem
	Total   string
}

var printTemplate = template.Must(template.New("print").Parse(string(printHTML)))

// RenderPrint writes the printable page for a saved receipt
func RenderPrint(w io.Writer, lh Letterhead, r *Receipt) error {
	rows := append([]LineItem(nil), r.Items...)
	for len(rows) < BlankRows {
		rows = append(rows, LineItem{})
	}

	page := printPage{
		Letterhead: lh,
		Receipt:    r,
		Rows:       rows,
	}
	if r.Total != 0 {
		page.Total = fmt.Sprint(r.Total)
	}

	if err := printTemplate.Execute(w, page); err != nil {
		return fmt.Errorf("rendering print page: %w", err)
	}
	return nil
}
