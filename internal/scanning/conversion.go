package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// challanScanPrompt is shared by all model backends
const challanScanPrompt = `You are reading a handwritten or printed delivery challan from a textile hand-work business in Surat, India.
The header has customer fields and the body is a table of items.

Extract:
1. "ms": the customer name written after "M/s."
2. "tone": the value after "Tone"
3. "charak": the value after "Charak"
4. "chNo": the challan number written after "Ch. No." in the header
5. "date": the date after "Date", formatted DD/MM/YYYY
6. "items": one entry per filled table row with "chNo", "lotNo", "description" and "pieces" (a whole number, as written)

Return ONLY valid JSON in this exact format:
{
  "ms": "",
  "tone": "",
  "charak": "",
  "chNo": "",
  "date": "DD/MM/YYYY",
  "items": [{"chNo": "", "lotNo": "", "description": "", "pieces": 0}]
}

Important:
- Skip empty table rows
- Do not add up the pieces yourself, the total is calculated later
- If you cannot read a field, use null for that field
- Do not include any text before or after the JSON`

// pdfFirstPage renders page one of a PDF challan
func pdfFirstPage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// decodeImage decodes HEIC/HEIF phone photos and the formats registered
// with the image package.
func decodeImage(data []byte, mimeType string) (image.Image, error) {
	if isHEIC(data, mimeType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("unsupported image format, use JPEG, PNG, GIF, HEIC or PDF: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// isHEIC checks the ftyp brand and the declared MIME type
func isHEIC(data []byte, mimeType string) bool {
	if strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif") {
		return true
	}
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// toPNG returns the upload as PNG bytes, the one format every backend accepts
func toPNG(data []byte, contentType string) ([]byte, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	if mimeType == "image/png" && !isHEIC(data, mimeType) {
		return data, nil
	}

	var (
		img image.Image
		err error
	)
	if mimeType == "application/pdf" {
		img, err = pdfFirstPage(data)
	} else {
		img, err = decodeImage(data, mimeType)
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
