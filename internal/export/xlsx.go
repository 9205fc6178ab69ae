// Package export renders saved receipts as spreadsheets for the accountant.
package export

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/challan-book/internal/receipt"
)

const (
	receiptsSheet = "Receipts"
	itemsSheet    = "Items"
	timeLayout    = "02/01/2006 15:04"
)

var (
	receiptHeaders = []string{"Date", "Ch. No.", "M/s.", "Tone", "Charak", "Total", "Created", "Updated"}
	itemHeaders    = []string{"Receipt Ch. No.", "M/s.", "Item Ch. No.", "Lot No.", "Description", "Pieces"}
)

// XLSX writes one row per receipt on the Receipts sheet and one row per
// line item on the Items sheet, in the order given.
func XLSX(receipts []*receipt.Receipt) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// NewFile starts with Sheet1
	if err := f.SetSheetName("Sheet1", receiptsSheet); err != nil {
		return nil, fmt.Errorf("renaming sheet: %w", err)
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, fmt.Errorf("creating items sheet: %w", err)
	}

	if err := writeRow(f, receiptsSheet, 1, toAny(receiptHeaders)); err != nil {
		return nil, err
	}
	if err := writeRow(f, itemsSheet, 1, toAny(itemHeaders)); err != nil {
		return nil, err
	}

	itemRow := 2
	for i, r := range receipts {
		info := r.CustomerInfo
		err := writeRow(f, receiptsSheet, i+2, []any{
			info.Date,
			voucherCell(info.ChNo),
			info.Ms,
			info.Tone,
			info.Charak,
			r.Total,
			r.CreatedAt.Local().Format(timeLayout),
			r.UpdatedAt.Local().Format(timeLayout),
		})
		if err != nil {
			return nil, err
		}

		for _, item := range r.Items {
			err := writeRow(f, itemsSheet, itemRow, []any{
				voucherCell(info.ChNo),
				info.Ms,
				item.ChNo,
				item.LotNo,
				item.Description,
				receipt.ParsePieces(item.Pieces),
			})
			if err != nil {
				return nil, err
			}
			itemRow++
		}
	}

	_ = f.SetColWidth(receiptsSheet, "A", "B", 12)
	_ = f.SetColWidth(receiptsSheet, "C", "C", 32)
	_ = f.SetColWidth(receiptsSheet, "D", "E", 16)
	_ = f.SetColWidth(receiptsSheet, "G", "H", 18)
	_ = f.SetColWidth(itemsSheet, "A", "A", 16)
	_ = f.SetColWidth(itemsSheet, "B", "B", 32)
	_ = f.SetColWidth(itemsSheet, "E", "E", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing %s row %d: %w", sheet, row, err)
	}
	return nil
}

// voucherCell keeps numeric voucher numbers sortable in the sheet
func voucherCell(chNo string) any {
	if n, err := strconv.Atoi(chNo); err == nil {
		return n
	}
	return chNo
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
