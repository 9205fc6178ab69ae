package receipt

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Server handles HTTP requests for the challan book
type Server struct {
	service    *Service
	basicAuth  BasicAuth
	letterhead Letterhead
	mux        *http.ServeMux
	httpServer *http.Server
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, basicAuth BasicAuth, letterhead Letterhead) *Server {
	return NewServerWithMux(service, basicAuth, letterhead, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, basicAuth BasicAuth, letterhead Letterhead, mux *http.ServeMux) *Server {
	s := &Server{
		service:    service,
		basicAuth:  basicAuth,
		letterhead: letterhead,
		mux:        mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}
	return user == s.basicAuth.Username && pass == s.basicAuth.Password
}

// corsMiddleware adds CORS headers and answers preflight requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Challan Book"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /static/app.css", s.requireAuth(s.handleStaticCSS))
	s.mux.HandleFunc("GET /static/app.js", s.requireAuth(s.handleStaticJS))

	// Saved receipts
	s.mux.HandleFunc("GET /api/receipts/export.xlsx", s.requireAuth(s.handleExportReceipts))
	s.mux.HandleFunc("GET /api/receipts/{id}/file", s.requireAuth(s.handleGetAttachment))
	s.mux.HandleFunc("GET /api/receipts/{id}", s.requireAuth(s.handleGetReceipt))
	s.mux.HandleFunc("DELETE /api/receipts/{id}", s.requireAuth(s.handleDeleteReceipt))
	s.mux.HandleFunc("GET /api/receipts", s.requireAuth(s.handleListReceipts))
	s.mux.HandleFunc("GET /api/voucher/next", s.requireAuth(s.handleNextVoucher))

	// Form session
	s.mux.HandleFunc("GET /api/session", s.requireAuth(s.handleGetSession))
	s.mux.HandleFunc("PUT /api/session/customer", s.requireAuth(s.handleUpdateCustomer))
	s.mux.HandleFunc("POST /api/session/items", s.requireAuth(s.handleAddRow))
	s.mux.HandleFunc("PUT /api/session/items/{id}", s.requireAuth(s.handleUpdateItem))
	s.mux.HandleFunc("DELETE /api/session/items/{id}", s.requireAuth(s.handleRemoveRow))
	s.mux.HandleFunc("POST /api/session/save", s.requireAuth(s.handleSave))
	s.mux.HandleFunc("POST /api/session/cancel", s.requireAuth(s.handleCancel))
	s.mux.HandleFunc("POST /api/session/mode/{mode}", s.requireAuth(s.handleSwitchMode))
	s.mux.HandleFunc("POST /api/session/select/{id}", s.requireAuth(s.handleSelect))
	s.mux.HandleFunc("POST /api/session/edit", s.requireAuth(s.handleEdit))
	s.mux.HandleFunc("PUT /api/session/search", s.requireAuth(s.handleSearch))
	s.mux.HandleFunc("GET /api/session/results", s.requireAuth(s.handleResults))
	s.mux.HandleFunc("POST /api/session/scan", s.requireAuth(s.handleScan))

	s.mux.HandleFunc("GET /receipts/{id}/print", s.requireAuth(s.handlePrint))
	s.mux.HandleFunc("GET /session/print", s.requireAuth(s.handlePrintDraft))

	// Catch-all goes last
	s.mux.HandleFunc("GET /index.html", s.requireAuth(s.handleIndex))
	s.mux.HandleFunc("GET /{$}", s.requireAuth(s.handleIndex))
}

// Start serves until Shutdown is called
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.corsMiddleware(s.mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops a server started with Start
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.corsMiddleware(s.mux).ServeHTTP(w, r)
}
