package invoice

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Binder is the single access point the web layer uses for invoice operations.
// It keeps no invoice state of its own, so one instance can serve every request.
type Binder struct {
	repo       Repository
	timeSource TimeSource
}

// NewBinder creates a Binder over repo
func NewBinder(repo Repository) *Binder {
	return NewBinderWithDeps(repo, &defaultTimeSource{})
}

// NewBinderWithDeps creates a Binder with a custom time source for testing
func NewBinderWithDeps(repo Repository, timeSrc TimeSource) *Binder {
	return &Binder{
		repo:       repo,
		timeSource: timeSrc,
	}
}

// AddInvoice persists a new invoice; the repository assigns its ID
func (b *Binder) AddInvoice(ctx context.Context, inv *Invoice) error {
	if !inv.IsNew() {
		return fmt.Errorf("adding invoice %d: %w", inv.ID, ErrAlreadyPersisted)
	}
	if err := b.repo.AddInvoice(ctx, inv); err != nil {
		return fmt.Errorf("adding invoice: %w", err)
	}
	return nil
}

// GetInvoice retrieves an invoice by ID
func (b *Binder) GetInvoice(ctx context.Context, id uint64) (*Invoice, error) {
	inv, err := b.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	return inv, nil
}

// UpdateInvoice overwrites the editable fields of an existing invoice
func (b *Binder) UpdateInvoice(ctx context.Context, inv *Invoice) error {
	if inv.IsNew() {
		return fmt.Errorf("updating invoice: %w: missing id", ErrNotFound)
	}
	if err := b.repo.UpdateInvoice(ctx, inv); err != nil {
		return fmt.Errorf("updating invoice: %w", err)
	}
	return nil
}

// PayInvoice marks an invoice paid
func (b *Binder) PayInvoice(ctx context.Context, id uint64) error {
	if err := b.repo.PayInvoice(ctx, id, b.timeSource.Now().UTC()); err != nil {
		return fmt.Errorf("paying invoice: %w", err)
	}
	return nil
}

// Receivables returns the unpaid invoices, earliest due first
func (b *Binder) Receivables(ctx context.Context) ([]Summary, error) {
	invoices, err := b.repo.ListInvoices(ctx, ListFilter{UnpaidOnly: true})
	if err != nil {
		return nil, fmt.Errorf("listing receivables: %w", err)
	}

	today := truncateDay(b.timeSource.Now())
	summaries := make([]Summary, 0, len(invoices))
	for _, inv := range invoices {
		summaries = append(summaries, Summary{
			ID:          inv.ID,
			Payer:       inv.Payer,
			Amount:      inv.Amount,
			IssuedOn:    inv.IssuedOn,
			DueOn:       inv.DueOn,
			Overdue:     truncateDay(inv.DueOn).Before(today),
			HasDocument: inv.Document != "",
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if !summaries[i].DueOn.Equal(summaries[j].DueOn) {
			return summaries[i].DueOn.Before(summaries[j].DueOn)
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries, nil
}

// truncateDay drops the clock part of t in UTC
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
