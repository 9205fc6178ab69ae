package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zombor/challan-book/internal/scanning"
)

const (
	maxScanSize = int64(20 << 20)
	xlsxType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeErrorMessage(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeError maps an error to a status code. Storage failures are not
// shown to the user in detail.
func writeError(w http.ResponseWriter, err error) {
	var storageErr *StorageError
	switch {
	case errors.Is(err, ErrValidation):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrLastRow), errors.Is(err, ErrInvalidMode):
		writeErrorMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, scanning.ErrScanningDisabled):
		writeErrorMessage(w, http.StatusNotImplemented, err.Error())
	case errors.As(err, &storageErr):
		slog.Error("Storage failure", "op", storageErr.Op, "error", storageErr.Err)
		writeErrorMessage(w, http.StatusInternalServerError, "Could not save, please try again")
	default:
		slog.Error("Request failed", "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

type fieldUpdate struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return validationErrorf("invalid request body")
	}
	return nil
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}

// handleListReceipts returns the saved receipts matching ?q=
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts := s.service.ListReceipts(r.URL.Query().Get("q"))
	if receipts == nil {
		receipts = []*Receipt{}
	}
	writeJSON(w, http.StatusOK, receipts)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleDeleteReceipt deletes a receipt. Confirmation happens in the browser.
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteReceipt(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetAttachment returns the scanned paper challan
func (s *Server) handleGetAttachment(w http.ResponseWriter, r *http.Request) {
	data, name, err := s.service.GetAttachment(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	contentType := http.DetectContentType(data)
	if strings.EqualFold(filepath.Ext(name), ".heic") {
		contentType = "image/heic"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleExportReceipts downloads the receipts matching ?q= as XLSX
func (s *Server) handleExportReceipts(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.ExportReceipts(r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", xlsxType)
	w.Header().Set("Content-Disposition", `attachment; filename="challans.xlsx"`)
	w.Write(data)
}

// handleNextVoucher suggests the next Ch. No.
func (s *Server) handleNextVoucher(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"next": s.service.NextVoucherNumber()})
}

// handleGetSession returns the current form and screen
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Session().State())
}

// handleUpdateCustomer sets one customer field
func (s *Server) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req fieldUpdate
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.service.Session().UpdateCustomer(req.Field, req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Session().State())
}

// handleAddRow appends a blank row
func (s *Server) handleAddRow(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.Session().AddRow()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleUpdateItem sets one cell of a row
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Row ID must be a number")
		return
	}
	var req fieldUpdate
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.service.Session().UpdateItem(id, req.Field, req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Session().State())
}

// handleRemoveRow removes a row unless it is the last one
func (s *Server) handleRemoveRow(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Row ID must be a number")
		return
	}
	if err := s.service.Session().RemoveRow(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Session().State())
}

// handleSave saves the draft as a new or updated receipt
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	status := http.StatusCreated
	if s.service.Session().Draft().EditingID != "" {
		status = http.StatusOK
	}
	receipt, err := s.service.Session().Save()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, receipt)
}

// handlePrintDraft renders the form as it stands, saved or not
func (s *Server) handlePrintDraft(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := RenderPrint(w, s.letterhead, s.service.Session().Draft().Preview()); err != nil {
		slog.Error("Error rendering print page", "error", err)
	}
}

// handleCancel clears the form
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.service.Session().Cancel()
	writeJSON(w, http.StatusOK, s.service.Session().State())
}

// handleSwitchMode switches between the form and list tabs. Detail and
// edit are reached through select and edit.
func (s *Server) handleSwitchMode(w http.ResponseWriter, r *http.Request) {
	mode, err := ParseMode(r.PathValue("mode"))
	if err != nil {
		writeError(w, err)
		return
	}
	switch mode {
	case ModeCreate, ModeEdit:
		s.service.Session().ShowCreate()
	case ModeListView:
		s.service.Session().ShowList()
	default:
		writeErrorMessage(w, http.StatusConflict, "Select a receipt to view it")
		return
	}
	writeJSON(w, http.StatusOK, s.service.Session().State())
}

// handleSelect opens a receipt read-only
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if _, err := s.service.Session().Select(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Session().State())
}

// handleEdit loads the selected receipt into the form
func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	if _, err := s.service.Session().Edit(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Session().State())
}

// handleSearch records a keystroke in the search box
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.service.Session().Search(req.Query)
	writeJSON(w, http.StatusAccepted, map[string]string{"rawQuery": req.Query})
}

// handleResults returns the list filtered by the settled search
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	results := s.service.Session().Results()
	if results == nil {
		results = []*Receipt{}
	}
	writeJSON(w, http.StatusOK, results)
}

// handleScan reads an uploaded paper challan into the form
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxScanSize)
	if err := r.ParseMultipartForm(maxScanSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeErrorMessage(w, http.StatusRequestEntityTooLarge, "File is too large. Maximum size is 20MB.")
			return
		}
		writeErrorMessage(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "No file was selected. Please choose a photo or PDF of the challan.")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeErrorMessage(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFromExt(header.Filename)
	}

	draft, err := s.service.ScanIntoDraft(r.Context(), header.Filename, data, contentType)
	if err != nil {
		if errors.Is(err, ErrInvalidMode) || errors.Is(err, scanning.ErrScanningDisabled) {
			writeError(w, err)
			return
		}
		slog.Error("Error scanning challan", "filename", header.Filename, "error", err)
		writeErrorMessage(w, http.StatusUnprocessableEntity, "Could not read the challan. Please fill the form by hand.")
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// handlePrint renders a saved receipt on the letterhead for printing
func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Receipt not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := RenderPrint(w, s.letterhead, receipt); err != nil {
		slog.Error("Error rendering print page", "id", receipt.ID, "error", err)
	}
}

func contentTypeFromExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}
