package web

import (
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-desk/internal/invoice"
)

const (
	dateLayout     = "2006-01-02"
	defaultDueDays = 30
)

// amounts must fit numeric(14,2)
var maxAmount = decimal.New(1, 12)

// Scope selects which affordances the shared invoice form shows
type Scope int

const (
	ScopeAdd Scope = iota
	ScopeEdit
)

// IsEdit reports whether the form edits an existing invoice
func (s Scope) IsEdit() bool {
	return s == ScopeEdit
}

func (s Scope) String() string {
	if s == ScopeEdit {
		return "edit"
	}
	return "add"
}

// InvoiceForm holds the raw submitted invoice fields
type InvoiceForm struct {
	ID           string `form:"id" validate:"omitempty,number"`
	Payer        string `form:"payer" validate:"required,max=120"`
	Description  string `form:"description" validate:"max=500"`
	Amount       string `form:"amount" validate:"required,amount"`
	IssuedOn     string `form:"issued_on" validate:"omitempty,datetime=2006-01-02"`
	DueOn        string `form:"due_on" validate:"omitempty,datetime=2006-01-02"`
	Document     string `form:"document" validate:"omitempty,max=200,excludesall=/\\"`
	// DocumentType is filled in from the session's issued uploads, never from the request
	DocumentType string `form:"document_type" validate:"omitempty,max=100"`
}

// InvoiceViewModel is the request-scoped model behind the invoice form
type InvoiceViewModel struct {
	Layout
	Scope   Scope
	Invoice *invoice.Invoice
	Form    InvoiceForm
	Errors  map[string]string
}

// Action is the URL the form posts to
func (vm InvoiceViewModel) Action() string {
	if vm.Scope.IsEdit() {
		return "/invoices/" + vm.Form.ID + "/edit"
	}
	return "/invoices/new"
}

// SubmitLabel is the text of the submit button
func (vm InvoiceViewModel) SubmitLabel() string {
	if vm.Scope.IsEdit() {
		return "Save changes"
	}
	return "Add invoice"
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("form"); name != "" {
			return name
		}
		return f.Name
	})
	v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		_, err := parseAmount(fl.Field().String())
		return err == nil
	})
	v.RegisterStructValidation(validateInvoiceDates, InvoiceForm{})
	return v
}

// validateInvoiceDates rejects a due date before the issue date
func validateInvoiceDates(sl validator.StructLevel) {
	f := sl.Current().Interface().(InvoiceForm)
	if f.IssuedOn == "" || f.DueOn == "" {
		return
	}
	issued, err1 := time.Parse(dateLayout, f.IssuedOn)
	due, err2 := time.Parse(dateLayout, f.DueOn)
	if err1 != nil || err2 != nil {
		return
	}
	if due.Before(issued) {
		sl.ReportError(f.DueOn, "due_on", "DueOn", "duebeforeissue", "")
	}
}

// parseAmount accepts a positive amount with at most two decimals; thousands separators are ignored
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount: %w", err)
	}
	if !d.IsPositive() || d.Exponent() < -2 || d.GreaterThanOrEqual(maxAmount) {
		return decimal.Zero, fmt.Errorf("amount %s out of range", s)
	}
	return d, nil
}

// formFromRequest reads the invoice fields from a parsed POST form
func formFromRequest(r *http.Request) InvoiceForm {
	field := func(name string) string {
		return strings.TrimSpace(r.PostFormValue(name))
	}
	return InvoiceForm{
		ID:          field("id"),
		Payer:       field("payer"),
		Description: field("description"),
		Amount:      field("amount"),
		IssuedOn:    field("issued_on"),
		DueOn:       field("due_on"),
		Document:    field("document"),
	}
}

// formFromInvoice pre-fills the form with a stored invoice
func formFromInvoice(inv *invoice.Invoice) InvoiceForm {
	return InvoiceForm{
		ID:           strconv.FormatUint(inv.ID, 10),
		Payer:        inv.Payer,
		Description:  inv.Description,
		Amount:       inv.Amount.StringFixed(2),
		IssuedOn:     formatDate(inv.IssuedOn),
		DueOn:        formatDate(inv.DueOn),
		Document:     inv.Document,
		DocumentType: inv.DocumentType,
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// Validate returns field name -> message for every invalid field, or nil
func (f InvoiceForm) Validate() map[string]string {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"form": "The form could not be validated."}
	}

	errs := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		if _, seen := errs[fe.Field()]; !seen {
			errs[fe.Field()] = fieldMessage(fe)
		}
	}
	return errs
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Must be at most %s characters.", fe.Param())
	case "amount":
		return "Enter a positive amount with at most two decimals."
	case "datetime":
		return "Use the format YYYY-MM-DD."
	case "duebeforeissue":
		return "The due date cannot be before the issue date."
	case "number":
		return "Invalid invoice number."
	default:
		return "Invalid value."
	}
}

// Invoice converts a validated form. Blank dates default to today and 30 days after issue.
func (f InvoiceForm) Invoice(now time.Time) (*invoice.Invoice, error) {
	amount, err := parseAmount(f.Amount)
	if err != nil {
		return nil, err
	}

	inv := &invoice.Invoice{
		Payer:        f.Payer,
		Description:  f.Description,
		Amount:       amount,
		Document:     f.Document,
		DocumentType: f.DocumentType,
	}

	if f.ID != "" {
		inv.ID, err = strconv.ParseUint(f.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing id: %w", err)
		}
	}

	y, m, d := now.Date()
	inv.IssuedOn = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if f.IssuedOn != "" {
		if inv.IssuedOn, err = time.Parse(dateLayout, f.IssuedOn); err != nil {
			return nil, fmt.Errorf("parsing issue date: %w", err)
		}
	}
	inv.DueOn = inv.IssuedOn.AddDate(0, 0, defaultDueDays)
	if f.DueOn != "" {
		if inv.DueOn, err = time.Parse(dateLayout, f.DueOn); err != nil {
			return nil, fmt.Errorf("parsing due date: %w", err)
		}
	}

	return inv, nil
}
