package scanning

import "context"

// InvoiceData contains the fields read off an invoice document
type InvoiceData struct {
	Payer       string  `json:"payer"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	IssuedOn    string  `json:"issued_on"` // YYYY-MM-DD, blank when unknown
	DueOn       string  `json:"due_on"`    // YYYY-MM-DD, blank when unknown
}

// Scanner reads invoice fields out of an uploaded document
type Scanner interface {
	// ScanInvoice analyzes an invoice image or PDF and extracts its fields
	ScanInvoice(ctx context.Context, data []byte, contentType string) (*InvoiceData, error)
	// Close releases the scanner's resources
	Close() error
}

// invoiceScanPrompt is shared by every LLM backed scanner
const invoiceScanPrompt = `You are reading an invoice that a business has issued to a customer. Read all of the text in the image and extract:

1. **Payer**: the customer being billed ("Bill to", "Invoice to", "Customer"). Not the business issuing the invoice.
2. **Description**: a short summary of what is being billed, at most one sentence.
3. **Amount**: the total amount due as a number (e.g. 1250.00 for $1,250.00).
4. **Issue date**: the invoice date, formatted YYYY-MM-DD.
5. **Due date**: the payment due date, formatted YYYY-MM-DD.

Return ONLY valid JSON in this exact format:
{
  "payer": "Customer Name",
  "description": "Short description",
  "amount": 0.00,
  "issued_on": "YYYY-MM-DD",
  "due_on": "YYYY-MM-DD"
}

If a field cannot be found use an empty string (or 0 for amount). Do not include any text before or after the JSON and do not use markdown code blocks.`
