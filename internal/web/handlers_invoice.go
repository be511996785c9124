package web

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-desk/internal/account"
	"github.com/zombor/invoice-desk/internal/invoice"
	"github.com/zombor/invoice-desk/internal/scanning"
)

const maxDocumentSize = 20 << 20 // 20MB

const documentGoneMessage = "The attached document is no longer available. Scan it again."

// ReceivablesView is the data behind the receivables page
type ReceivablesView struct {
	Layout
	Invoices []invoice.Summary
	Total    decimal.Decimal
}

// invoiceID parses the {id} path segment
func invoiceID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid invoice id %q", r.PathValue("id"))
	}
	return id, nil
}

// binderError answers a failed binder call; nothing but a missing invoice is recoverable
func binderError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, invoice.ErrNotFound) {
		http.Error(w, "Invoice not found", http.StatusNotFound)
		return
	}
	slog.Error("Invoice operation failed", "method", r.Method, "path", r.URL.Path, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// withBinder resolves the shared binder before calling next
func (s *Server) withBinder(w http.ResponseWriter, r *http.Request, next func(*invoice.Binder)) {
	b, err := s.binder()
	if err != nil {
		binderError(w, r, fmt.Errorf("resolving binder: %w", err))
		return
	}
	next(b)
}

func (s *Server) renderForm(w http.ResponseWriter, r *http.Request, status int, vm InvoiceViewModel) {
	vm.Layout = s.layout(r)
	s.views.render(w, status, "invoice_form", vm)
}

// handleAddInvoiceForm renders a blank invoice form
func (s *Server) handleAddInvoiceForm(w http.ResponseWriter, r *http.Request) {
	s.renderForm(w, r, http.StatusOK, InvoiceViewModel{Scope: ScopeAdd})
}

// handleAddInvoice saves a new invoice and returns to a blank form for the next one
func (s *Server) handleAddInvoice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	form := formFromRequest(r)
	form.ID = ""
	errs := form.Validate()
	if _, bad := errs["document"]; !bad && form.Document != "" {
		docType, ok := issuedUpload(r, form.Document)
		if ok {
			form.DocumentType = docType
		} else {
			slog.Warn("Rejected document not issued to this session", "document", form.Document)
			if errs == nil {
				errs = make(map[string]string)
			}
			errs["document"] = documentGoneMessage
			form.Document = ""
		}
	}
	if errs != nil {
		s.renderForm(w, r, http.StatusUnprocessableEntity, InvoiceViewModel{Scope: ScopeAdd, Form: form, Errors: errs})
		return
	}

	inv, err := form.Invoice(s.timeSource.Now())
	if err != nil {
		binderError(w, r, err)
		return
	}

	s.withBinder(w, r, func(b *invoice.Binder) {
		if err := b.AddInvoice(r.Context(), inv); err != nil {
			binderError(w, r, err)
			return
		}
		slog.Info("Invoice added", "id", inv.ID, "payer", inv.Payer, "amount", inv.Amount.StringFixed(2))
		sess := s.ensureSession(w, r)
		if inv.Document != "" {
			sess.RemoveUpload(inv.Document)
		}
		sess.PutTemp(noticeKey, fmt.Sprintf("Invoice #%d for %s saved.", inv.ID, inv.Payer))
		http.Redirect(w, r, "/invoices/new", http.StatusSeeOther)
	})
}

// handleScanInvoice reads an uploaded invoice document and pre-fills the add form with it
func (s *Server) handleScanInvoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentSize+1<<20)
	if err := r.ParseMultipartForm(maxDocumentSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		s.scanFailed(w, r, "The upload could not be read. Documents may be at most 20MB.")
		return
	}

	f, header, err := r.FormFile("document")
	if err != nil {
		s.scanFailed(w, r, "Choose a document to scan.")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading upload", "filename", header.Filename, "error", err)
		s.scanFailed(w, r, "The upload could not be read.")
		return
	}

	// The type is taken from the bytes; the client's Content-Type is only logged
	contentType := invoice.DetectDocumentType(data)
	if contentType == "" {
		slog.Warn("Rejected unsupported document",
			"filename", header.Filename,
			"claimed_type", header.Header.Get("Content-Type"),
			"file_size", len(data),
		)
		s.scanFailed(w, r, "Upload a PDF, PNG, JPEG, GIF or HEIC document.")
		return
	}

	name, err := s.documents.Save(invoice.DocumentName(header.Filename), data)
	if err != nil {
		slog.Error("Error storing document", "filename", header.Filename, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	scanned, err := s.scanner.ScanInvoice(r.Context(), data, contentType)
	if err != nil {
		slog.Error("Failed to scan invoice",
			"filename", header.Filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		if delErr := s.documents.Delete(name); delErr != nil {
			slog.Warn("Failed to delete document", "document", name, "error", delErr)
		}
		s.scanFailed(w, r, "The document could not be read. Please enter the invoice by hand.")
		return
	}

	s.ensureSession(w, r).AddUpload(name, contentType)

	form := formFromScan(scanned)
	form.Document = name
	form.DocumentType = contentType
	s.renderForm(w, r, http.StatusOK, InvoiceViewModel{Scope: ScopeAdd, Form: form})
}

// issuedUpload returns the detected type of a document scanned earlier in this session
func issuedUpload(r *http.Request, name string) (string, bool) {
	sess := stateFrom(r.Context()).session
	if sess == nil {
		return "", false
	}
	return sess.Upload(name)
}

// DiscardUploads returns a session expiry callback that deletes the documents the
// session scanned but never attached to an invoice
func DiscardUploads(docs invoice.DocumentStore) func(*account.Session) {
	return func(sess *account.Session) {
		discardUploads(docs, sess)
	}
}

func discardUploads(docs invoice.DocumentStore, sess *account.Session) {
	for name := range sess.Uploads() {
		if err := docs.Delete(name); err != nil {
			slog.Warn("Failed to delete abandoned document", "document", name, "error", err)
		}
		sess.RemoveUpload(name)
	}
}

func (s *Server) scanFailed(w http.ResponseWriter, r *http.Request, msg string) {
	vm := InvoiceViewModel{Scope: ScopeAdd}
	vm.Layout = s.layout(r)
	vm.Error = msg
	s.views.render(w, http.StatusUnprocessableEntity, "invoice_form", vm)
}

func formFromScan(d *scanning.InvoiceData) InvoiceForm {
	form := InvoiceForm{
		Payer:       d.Payer,
		Description: d.Description,
		IssuedOn:    d.IssuedOn,
		DueOn:       d.DueOn,
	}
	if d.Amount > 0 {
		form.Amount = decimal.NewFromFloat(d.Amount).StringFixed(2)
	}
	return form
}

// renderReceivables renders the receivables page
func (s *Server) renderReceivables(w http.ResponseWriter, r *http.Request, b *invoice.Binder) {
	summaries, err := b.Receivables(r.Context())
	if err != nil {
		binderError(w, r, err)
		return
	}

	view := ReceivablesView{Layout: s.layout(r), Invoices: summaries, Total: decimal.Zero}
	for _, sum := range summaries {
		view.Total = view.Total.Add(sum.Amount)
	}
	s.views.render(w, http.StatusOK, "receivables", view)
}

// handleReceivables lists the outstanding invoices
func (s *Server) handleReceivables(w http.ResponseWriter, r *http.Request) {
	s.withBinder(w, r, func(b *invoice.Binder) {
		s.renderReceivables(w, r, b)
	})
}

// handleEditInvoiceForm renders the form pre-filled with a stored invoice
func (s *Server) handleEditInvoiceForm(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.withBinder(w, r, func(b *invoice.Binder) {
		inv, err := b.GetInvoice(r.Context(), id)
		if err != nil {
			binderError(w, r, err)
			return
		}
		s.renderForm(w, r, http.StatusOK, InvoiceViewModel{Scope: ScopeEdit, Invoice: inv, Form: formFromInvoice(inv)})
	})
}

// handleEditInvoice saves an edited invoice and shows the receivables page in the same response
func (s *Server) handleEditInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	form := formFromRequest(r)
	form.ID = strconv.FormatUint(id, 10)
	// The document stays the one attached when the invoice was added
	form.Document = ""
	if errs := form.Validate(); errs != nil {
		s.renderForm(w, r, http.StatusUnprocessableEntity, InvoiceViewModel{Scope: ScopeEdit, Form: form, Errors: errs})
		return
	}

	inv, err := form.Invoice(s.timeSource.Now())
	if err != nil {
		binderError(w, r, err)
		return
	}

	s.withBinder(w, r, func(b *invoice.Binder) {
		if err := b.UpdateInvoice(r.Context(), inv); err != nil {
			binderError(w, r, err)
			return
		}
		slog.Info("Invoice updated", "id", inv.ID, "user", currentUser(r).Username)
		s.renderReceivables(w, r, b)
	})
}

// handleInvoicePaid marks an invoice paid and goes back to the receivables
func (s *Server) handleInvoicePaid(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.withBinder(w, r, func(b *invoice.Binder) {
		if err := b.PayInvoice(r.Context(), id); err != nil {
			binderError(w, r, err)
			return
		}
		slog.Info("Invoice paid", "id", id, "user", currentUser(r).Username)
		s.ensureSession(w, r).PutTemp(noticeKey, fmt.Sprintf("Invoice #%d marked paid.", id))
		http.Redirect(w, r, "/invoices/receivables", http.StatusSeeOther)
	})
}

// handleInvoiceDocument streams the source document of an invoice
func (s *Server) handleInvoiceDocument(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.withBinder(w, r, func(b *invoice.Binder) {
		inv, err := b.GetInvoice(r.Context(), id)
		if err != nil {
			binderError(w, r, err)
			return
		}
		if inv.Document == "" {
			http.Error(w, "Document not found", http.StatusNotFound)
			return
		}

		data, err := s.documents.Get(inv.Document)
		if err != nil {
			slog.Error("Error reading document", "id", id, "document", inv.Document, "error", err)
			http.Error(w, "Document not found", http.StatusNotFound)
			return
		}

		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		if invoice.IsAllowedDocumentType(inv.DocumentType) {
			h.Set("Content-Type", inv.DocumentType)
			h.Set("Content-Disposition", "inline")
		} else {
			slog.Warn("Serving document of unexpected type as a download", "id", id, "document_type", inv.DocumentType)
			h.Set("Content-Type", "application/octet-stream")
			h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": inv.Document}))
		}
		w.Write(data)
	})
}
