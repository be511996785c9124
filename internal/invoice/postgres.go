package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS invoices (
	id            BIGSERIAL PRIMARY KEY,
	payer         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	amount        NUMERIC(14,2) NOT NULL,
	issued_on     DATE NOT NULL,
	due_on        DATE NOT NULL,
	paid          BOOLEAN NOT NULL DEFAULT FALSE,
	paid_at       TIMESTAMPTZ,
	document      TEXT NOT NULL DEFAULT '',
	document_type TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS invoices_unpaid_due_on ON invoices (due_on) WHERE NOT paid;
`

const selectColumns = `id, payer, description, amount::text, issued_on, due_on, paid, paid_at,
	document, document_type, created_at, updated_at`

// PostgresDB implements Repository on PostgreSQL
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB connects to url and verifies the connection
func NewPostgresDB(ctx context.Context, url string) (*PostgresDB, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// EnsureSchema creates the invoices table when missing
func (p *PostgresDB) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating invoice schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (p *PostgresDB) Close() {
	p.pool.Close()
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var (
		inv    Invoice
		amount string
	)
	err := row.Scan(&inv.ID, &inv.Payer, &inv.Description, &amount, &inv.IssuedOn, &inv.DueOn,
		&inv.Paid, &inv.PaidAt, &inv.Document, &inv.DocumentType, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inv.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parsing amount %q: %w", amount, err)
	}
	return &inv, nil
}

// AddInvoice inserts inv and assigns its ID
func (p *PostgresDB) AddInvoice(ctx context.Context, inv *Invoice) error {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO invoices (payer, description, amount, issued_on, due_on, document, document_type)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
		RETURNING `+selectColumns,
		inv.Payer, inv.Description, inv.Amount.String(), inv.IssuedOn, inv.DueOn, inv.Document, inv.DocumentType)

	stored, err := scanInvoice(row)
	if err != nil {
		return fmt.Errorf("inserting invoice: %w", err)
	}
	*inv = *stored
	return nil
}

// GetInvoice retrieves an invoice by ID
func (p *PostgresDB) GetInvoice(ctx context.Context, id uint64) (*Invoice, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("selecting invoice %d: %w", id, err)
	}
	return inv, nil
}

// UpdateInvoice overwrites the editable fields of the stored invoice
func (p *PostgresDB) UpdateInvoice(ctx context.Context, inv *Invoice) error {
	row := p.pool.QueryRow(ctx, `
		UPDATE invoices
		SET payer = $2, description = $3, amount = $4::numeric, issued_on = $5, due_on = $6,
			updated_at = now()
		WHERE id = $1
		RETURNING `+selectColumns,
		inv.ID, inv.Payer, inv.Description, inv.Amount.String(), inv.IssuedOn, inv.DueOn)

	stored, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrNotFound, inv.ID)
	}
	if err != nil {
		return fmt.Errorf("updating invoice %d: %w", inv.ID, err)
	}
	*inv = *stored
	return nil
}

// PayInvoice marks the invoice paid, keeping paid_at from the first call
func (p *PostgresDB) PayInvoice(ctx context.Context, id uint64, paidAt time.Time) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE invoices
		SET paid = TRUE, paid_at = COALESCE(paid_at, $2), updated_at = now()
		WHERE id = $1
	`, id, paidAt)
	if err != nil {
		return fmt.Errorf("paying invoice %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// ListInvoices returns the invoices matching filter
func (p *PostgresDB) ListInvoices(ctx context.Context, filter ListFilter) ([]*Invoice, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+selectColumns+` FROM invoices
		WHERE NOT ($1 AND paid)
		ORDER BY id
	`, filter.UnpaidOnly)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]*Invoice, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	return invoices, nil
}
