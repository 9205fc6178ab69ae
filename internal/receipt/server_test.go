package receipt

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		store       *Store
		session     *Session
		files       *mockStorage
		scanner     *mockScanner
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		service = NewService(store, session, scanner, files, ExporterFunc(func(receipts []*Receipt) ([]byte, error) {
			return []byte("PK"), nil
		}))
		server = NewServerWithMux(service, auth, DefaultLetterhead, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		for _, method := range []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(".*"), server.ServeHTTP)
		}
	}

	do := func(method, path string, body any) *http.Response {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(data)
		}
		req, err := http.NewRequest(method, ghttpServer.URL()+path, reader)
		Expect(err).NotTo(HaveOccurred())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response, v any) {
		defer resp.Body.Close()
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	saveReceipt := func(ms string, pieces string) *Receipt {
		Expect(session.UpdateCustomer("ms", ms)).To(Succeed())
		Expect(session.UpdateItem(1, "pieces", pieces)).To(Succeed())
		r, err := session.Save()
		Expect(err).NotTo(HaveOccurred())
		session.ShowCreate()
		return r
	}

	BeforeEach(func() {
		db = newMockDB()
		var err error
		store, err = NewStoreWithDeps(db, &mockIDGenerator{}, &mockTimeSource{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)})
		Expect(err).NotTo(HaveOccurred())
		session = NewSession(store, 0)
		files = newMockStorage()
		scanner = newMockScanner()
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	Describe("handleIndex", func() {
		It("should return HTML containing Challan Book", func() {
			resp := do("GET", "/", nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("Challan Book"))
		})

		It("should not serve unknown paths", func() {
			resp := do("GET", "/nope", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "bhagat", Password: "secret"}
			setupServer()
		})

		It("rejects requests without credentials", func() {
			resp := do("GET", "/api/receipts", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("accepts the right credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("bhagat:secret")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("answers preflight requests without credentials", func() {
			resp := do("OPTIONS", "/api/receipts", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("handleListReceipts", func() {
		When("receipts exist", func() {
			BeforeEach(func() {
				saveReceipt("Anand Textiles", "4")
				saveReceipt("Suresh", "6")
			})

			It("should return all receipts newest first", func() {
				resp := do("GET", "/api/receipts", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
				var receipts []*Receipt
				decode(resp, &receipts)
				Expect(receipts).To(HaveLen(2))
				Expect(receipts[0].CustomerInfo.Ms).To(Equal("Suresh"))
			})

			It("should filter by q", func() {
				resp := do("GET", "/api/receipts?q=ANAND", nil)
				var receipts []*Receipt
				decode(resp, &receipts)
				Expect(receipts).To(HaveLen(1))
			})
		})

		When("no receipts exist", func() {
			It("should return an empty array", func() {
				resp := do("GET", "/api/receipts", nil)
				defer resp.Body.Close()
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(strings.TrimSpace(string(body))).To(Equal("[]"))
			})
		})
	})

	Describe("handleGetReceipt", func() {
		It("returns the receipt", func() {
			saved := saveReceipt("Ramesh", "12")
			resp := do("GET", "/api/receipts/"+saved.ID, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var got Receipt
			decode(resp, &got)
			Expect(got.Total).To(Equal(12))
		})

		It("returns 404 for an unknown id", func() {
			resp := do("GET", "/api/receipts/missing", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleDeleteReceipt", func() {
		It("deletes the receipt", func() {
			saved := saveReceipt("Ramesh", "12")
			resp := do("DELETE", "/api/receipts/"+saved.ID, nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(store.List()).To(BeEmpty())
		})

		It("returns 404 for an unknown id", func() {
			resp := do("DELETE", "/api/receipts/missing", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleNextVoucher", func() {
		It("suggests one past the last voucher", func() {
			saveReceipt("Ramesh", "1")
			resp := do("GET", "/api/voucher/next", nil)
			var body map[string]int
			decode(resp, &body)
			Expect(body["next"]).To(Equal(2))
		})
	})

	Describe("form session", func() {
		It("returns a blank form in create mode", func() {
			resp := do("GET", "/api/session", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var state SessionState
			decode(resp, &state)
			Expect(state.Mode).To(Equal(ModeCreate))
			Expect(state.Draft.Items).To(HaveLen(BlankRows))
		})

		It("fills and saves the form", func() {
			resp := do("PUT", "/api/session/customer", fieldUpdate{Field: "ms", Value: "Ramesh"})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp = do("PUT", "/api/session/items/2", fieldUpdate{Field: "pieces", Value: "9"})
			var state SessionState
			decode(resp, &state)
			Expect(state.Total).To(Equal(9))

			resp = do("POST", "/api/session/save", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			var saved Receipt
			decode(resp, &saved)
			Expect(saved.Total).To(Equal(9))
			Expect(session.Mode()).To(Equal(ModeListView))
		})

		It("rejects a save without a customer name", func() {
			resp := do("POST", "/api/session/save", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("hides storage details", func() {
			Expect(session.UpdateCustomer("ms", "Ramesh")).To(Succeed())
			db.putErr = io.ErrShortWrite

			resp := do("POST", "/api/session/save", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			var body map[string]string
			decode(resp, &body)
			Expect(body["error"]).To(Equal("Could not save, please try again"))
		})

		It("rejects unknown fields", func() {
			resp := do("PUT", "/api/session/customer", fieldUpdate{Field: "gst", Value: "x"})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects a malformed body", func() {
			req, err := http.NewRequest("PUT", ghttpServer.URL()+"/api/session/customer", strings.NewReader("{"))
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("adds and removes rows", func() {
			resp := do("POST", "/api/session/items", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			var item LineItem
			decode(resp, &item)
			Expect(item.ID).To(Equal(BlankRows + 1))

			resp = do("DELETE", "/api/session/items/1", nil)
			var state SessionState
			decode(resp, &state)
			Expect(state.Draft.Items).To(HaveLen(BlankRows))
		})

		It("refuses to remove the last row", func() {
			for id := 1; id < BlankRows; id++ {
				Expect(session.RemoveRow(id)).To(Succeed())
			}
			resp := do("DELETE", "/api/session/items/8", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("rejects a non-numeric row id", func() {
			resp := do("DELETE", "/api/session/items/abc", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("clears the form on cancel", func() {
			Expect(session.UpdateCustomer("ms", "Ramesh")).To(Succeed())
			resp := do("POST", "/api/session/cancel", nil)
			var state SessionState
			decode(resp, &state)
			Expect(state.Draft.CustomerInfo.Ms).To(BeEmpty())
		})

		It("walks from the list to an edit", func() {
			saved := saveReceipt("Ramesh", "3")

			resp := do("POST", "/api/session/mode/list", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp = do("POST", "/api/session/select/"+saved.ID, nil)
			var state SessionState
			decode(resp, &state)
			Expect(state.Mode).To(Equal(ModeDetailView))
			Expect(state.Selected.ID).To(Equal(saved.ID))

			resp = do("POST", "/api/session/edit", nil)
			decode(resp, &state)
			Expect(state.Mode).To(Equal(ModeEdit))
			Expect(state.Draft.EditingID).To(Equal(saved.ID))
		})

		It("answers OK rather than Created when saving an edit", func() {
			saved := saveReceipt("Ramesh", "3")
			session.ShowList()
			_, err := session.Select(saved.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = session.Edit()
			Expect(err).NotTo(HaveOccurred())

			resp := do("POST", "/api/session/save", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var updated Receipt
			decode(resp, &updated)
			Expect(updated.ID).To(Equal(saved.ID))
			Expect(store.List()).To(HaveLen(1))
		})

		It("does not switch straight to the detail view", func() {
			resp := do("POST", "/api/session/mode/detail", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("rejects an unknown mode", func() {
			resp := do("POST", "/api/session/mode/settings", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("refuses to edit outside the detail view", func() {
			resp := do("POST", "/api/session/edit", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("searches the saved receipts", func() {
			saveReceipt("Anand Textiles", "1")
			saveReceipt("Suresh", "1")

			resp := do("PUT", "/api/session/search", map[string]string{"query": "sur"})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

			resp = do("GET", "/api/session/results", nil)
			var results []*Receipt
			decode(resp, &results)
			Expect(results).To(HaveLen(1))
			Expect(results[0].CustomerInfo.Ms).To(Equal("Suresh"))
		})
	})

	Describe("handleScan", func() {
		upload := func(filename string, data []byte) *http.Response {
			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			part, err := writer.CreateFormFile("file", filename)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).To(Succeed())

			req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/session/scan", body)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", writer.FormDataContentType())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		It("fills the form from the scan", func() {
			resp := upload("challan.jpg", []byte("photo"))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var draft Draft
			decode(resp, &draft)
			Expect(draft.CustomerInfo.Ms).To(Equal("Anand Textiles"))
			Expect(draft.Total()).To(Equal(20))
			Expect(files.files).To(HaveLen(1))
		})

		It("requires a file", func() {
			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			Expect(writer.WriteField("note", "none")).To(Succeed())
			Expect(writer.Close()).To(Succeed())
			req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/session/scan", body)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", writer.FormDataContentType())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("asks for manual entry when the scan fails", func() {
			scanner.scanErr = io.ErrUnexpectedEOF
			resp := upload("challan.jpg", []byte("photo"))
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
		})

		When("scanning is disabled", func() {
			BeforeEach(func() {
				ghttpServer.Close()
				service = NewService(store, session, nil, files, nil)
				server = NewServerWithMux(service, auth, DefaultLetterhead, http.NewServeMux())
				ghttpServer = ghttp.NewServer()
				ghttpServer.AppendHandlers(server.ServeHTTP)
			})

			It("returns Not Implemented", func() {
				resp := upload("challan.jpg", []byte("photo"))
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotImplemented))
			})
		})
	})

	Describe("handleExportReceipts", func() {
		It("downloads a spreadsheet", func() {
			resp := do("GET", "/api/receipts/export.xlsx", nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal(xlsxType))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("challans.xlsx"))
		})
	})

	Describe("handlePrintDraft", func() {
		It("prints the form before it is saved", func() {
			Expect(session.UpdateCustomer("ms", "Unsaved Mills")).To(Succeed())
			Expect(session.UpdateItem(2, "pieces", "7")).To(Succeed())

			resp := do("GET", "/session/print", nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("Unsaved Mills"))
			Expect(string(body)).To(MatchRegexp(`class="total-value">7</span>`))
			Expect(strings.Count(string(body), "<tr><td>")).To(Equal(BlankRows))
			Expect(store.List()).To(BeEmpty())
		})
	})

	Describe("handlePrint", func() {
		It("renders the receipt on the letterhead", func() {
			saved := saveReceipt("Ramesh & Sons", "12")
			resp := do("GET", "/receipts/"+saved.ID+"/print", nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("BHAGAT CREATION"))
			Expect(string(body)).To(ContainSubstring("Ramesh &amp; Sons"))
			Expect(string(body)).To(ContainSubstring("window.print()"))
		})

		It("returns 404 for an unknown receipt", func() {
			resp := do("GET", "/receipts/missing/print", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})
})

var _ = Describe("RenderPrint", func() {
	It("pads to eight rows and leaves a zero total blank", func() {
		var buf bytes.Buffer
		r := &Receipt{CustomerInfo: CustomerInfo{Ms: "A", ChNo: "3"}, Items: []LineItem{}}
		Expect(RenderPrint(&buf, DefaultLetterhead, r)).To(Succeed())
		Expect(strings.Count(buf.String(), "<tr><td>")).To(Equal(BlankRows))
		Expect(buf.String()).To(MatchRegexp(`class="total-value"></span>`))
	})
})
