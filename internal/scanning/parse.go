package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const challanSchemaJSON = `{
  "type": "object",
  "properties": {
    "ms": {"type": ["string", "null"]},
    "tone": {"type": ["string", "null"]},
    "charak": {"type": ["string", "null"]},
    "chNo": {"type": ["string", "number", "null"]},
    "date": {"type": ["string", "null"]},
    "items": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "chNo": {"type": ["string", "number", "null"]},
          "lotNo": {"type": ["string", "number", "null"]},
          "description": {"type": ["string", "null"]},
          "pieces": {"type": ["integer", "string", "null"], "minimum": 0}
        }
      }
    }
  }
}`

var challanSchema = jsonschema.MustCompileString("challan.json", challanSchemaJSON)

// rawChallan accepts numbers where models sometimes emit them instead of strings
type rawChallan struct {
	Ms     *string        `json:"ms"`
	Tone   *string        `json:"tone"`
	Charak *string        `json:"charak"`
	ChNo   flexibleString `json:"chNo"`
	Date   *string        `json:"date"`
	Items  []struct {
		ChNo        flexibleString `json:"chNo"`
		LotNo       flexibleString `json:"lotNo"`
		Description *string        `json:"description"`
		Pieces      flexibleString `json:"pieces"`
	} `json:"items"`
}

type flexibleString string

func (f *flexibleString) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*f = ""
	case string:
		*f = flexibleString(t)
	case float64:
		*f = flexibleString(fmt.Sprintf("%.0f", t))
	default:
		return fmt.Errorf("unexpected value %v", t)
	}
	return nil
}

var dateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
	"2006-01-02",
	"02/01/06",
}

// parseChallanJSON parses a model response into ChallanData
func parseChallanJSON(text string) (*ChallanData, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	start := strings.Index(text, "{")
	if start == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[start : end+1]

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}
	if err := challanSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("json does not match challan schema: %w", err)
	}

	var raw rawChallan
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling challan: %w", err)
	}

	data := &ChallanData{
		Ms:     deref(raw.Ms),
		Tone:   deref(raw.Tone),
		Charak: deref(raw.Charak),
		ChNo:   strings.TrimSpace(string(raw.ChNo)),
		Date:   normalizeDate(deref(raw.Date)),
		Items:  make([]ChallanItem, 0, len(raw.Items)),
	}
	for _, it := range raw.Items {
		item := ChallanItem{
			ChNo:        strings.TrimSpace(string(it.ChNo)),
			LotNo:       strings.TrimSpace(string(it.LotNo)),
			Description: deref(it.Description),
			Pieces:      strings.TrimSpace(string(it.Pieces)),
		}
		if item.Description == "" && noPieces(item.Pieces) {
			continue
		}
		data.Items = append(data.Items, item)
	}

	return data, nil
}

// normalizeDate rewrites a recognised date as DD/MM/YYYY and otherwise
// keeps the text as read, since the field is free text.
func normalizeDate(s string) string {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format("02/01/2006")
		}
	}
	return s
}

// noPieces reports a blank or zero pieces cell
func noPieces(s string) bool {
	return strings.Trim(s, "0") == ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
