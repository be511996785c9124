package invoice

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an invoice id is unknown to the repository
	ErrNotFound = errors.New("invoice not found")

	// ErrAlreadyPersisted is returned when adding an invoice that already has an id
	ErrAlreadyPersisted = errors.New("invoice already has an id")
)

// Invoice represents an invoice issued to a payer
type Invoice struct {
	ID           uint64          `json:"id"`
	Payer        string          `json:"payer"`
	Description  string          `json:"description,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	IssuedOn     time.Time       `json:"issued_on"`
	DueOn        time.Time       `json:"due_on"`
	Paid         bool            `json:"paid"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
	Document     string          `json:"document,omitempty"`      // stored file name of the scanned source document
	DocumentType string          `json:"document_type,omitempty"` // MIME type of Document
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IsNew reports whether the invoice has not been persisted yet
func (i *Invoice) IsNew() bool {
	return i.ID == 0
}

// applyEdits copies the editable fields of src onto i. Paid state, timestamps and the
// attached document are fixed once the invoice is added.
func (i *Invoice) applyEdits(src *Invoice) {
	i.Payer = src.Payer
	i.Description = src.Description
	i.Amount = src.Amount
	i.IssuedOn = src.IssuedOn
	i.DueOn = src.DueOn
}

// Summary is the read-only projection of an outstanding invoice shown on the receivables page
type Summary struct {
	ID          uint64
	Payer       string
	Amount      decimal.Decimal
	IssuedOn    time.Time
	DueOn       time.Time
	Overdue     bool
	HasDocument bool
}

// ListFilter narrows ListInvoices results
type ListFilter struct {
	UnpaidOnly bool
}

// Match reports whether inv passes the filter
func (f ListFilter) Match(inv *Invoice) bool {
	return !f.UnpaidOnly || !inv.Paid
}
