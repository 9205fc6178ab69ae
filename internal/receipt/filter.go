package receipt

import "strings"

// Filter returns the receipts whose customer name, voucher number or
// charak contains query, ignoring case. A blank query matches everything.
func Filter(records []*Receipt, query string) []*Receipt {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return records
	}

	matched := make([]*Receipt, 0, len(records))
	for _, r := range records {
		info := r.CustomerInfo
		if strings.Contains(strings.ToLower(info.Ms), q) ||
			strings.Contains(strings.ToLower(info.ChNo), q) ||
			strings.Contains(strings.ToLower(info.Charak), q) {
			matched = append(matched, r)
		}
	}
	return matched
}
