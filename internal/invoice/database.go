package invoice

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "invoices"

// Repository defines the persistence operations for invoices
type Repository interface {
	// AddInvoice persists a new invoice and assigns its ID
	AddInvoice(ctx context.Context, inv *Invoice) error

	// GetInvoice retrieves an invoice by ID
	GetInvoice(ctx context.Context, id uint64) (*Invoice, error)

	// UpdateInvoice overwrites the editable fields of a stored invoice
	UpdateInvoice(ctx context.Context, inv *Invoice) error

	// PayInvoice marks an invoice paid; paying twice keeps the first paidAt
	PayInvoice(ctx context.Context, id uint64, paidAt time.Time) error

	// ListInvoices returns the invoices matching filter ordered by ID
	ListInvoices(ctx context.Context, filter ListFilter) ([]*Invoice, error)
}

// BoltDB implements Repository on top of a bbolt database
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates the invoice bucket on db if needed. The caller keeps ownership of db.
func NewBoltDB(db *bbolt.DB) (*BoltDB, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating invoice bucket: %w", err)
	}
	return &BoltDB{db: db}, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func put(bucket *bbolt.Bucket, inv *Invoice) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshaling invoice: %w", err)
	}
	return bucket.Put(itob(inv.ID), data)
}

func get(bucket *bbolt.Bucket, id uint64) (*Invoice, error) {
	data := bucket.Get(itob(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	var inv Invoice
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("unmarshaling invoice %d: %w", id, err)
	}
	return &inv, nil
}

// AddInvoice stores inv under the next bucket sequence
func (b *BoltDB) AddInvoice(ctx context.Context, inv *Invoice) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		id, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating invoice id: %w", err)
		}

		now := time.Now().UTC()
		stored := *inv
		stored.ID = id
		stored.CreatedAt = now
		stored.UpdatedAt = now
		if err := put(bucket, &stored); err != nil {
			return err
		}
		*inv = stored
		return nil
	})
}

// GetInvoice retrieves an invoice by ID
func (b *BoltDB) GetInvoice(ctx context.Context, id uint64) (*Invoice, error) {
	var inv *Invoice
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		inv, err = get(tx.Bucket([]byte(bucketName)), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// UpdateInvoice overwrites the editable fields of the stored invoice
func (b *BoltDB) UpdateInvoice(ctx context.Context, inv *Invoice) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		stored, err := get(bucket, inv.ID)
		if err != nil {
			return err
		}
		stored.applyEdits(inv)
		stored.UpdatedAt = time.Now().UTC()
		if err := put(bucket, stored); err != nil {
			return err
		}
		*inv = *stored
		return nil
	})
}

// PayInvoice marks the invoice paid
func (b *BoltDB) PayInvoice(ctx context.Context, id uint64, paidAt time.Time) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		stored, err := get(bucket, id)
		if err != nil {
			return err
		}
		if stored.Paid {
			return nil
		}
		stored.Paid = true
		stored.PaidAt = &paidAt
		stored.UpdatedAt = paidAt
		return put(bucket, stored)
	})
}

// ListInvoices returns all invoices matching filter
func (b *BoltDB) ListInvoices(ctx context.Context, filter ListFilter) ([]*Invoice, error) {
	invoices := make([]*Invoice, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var inv Invoice
			if err := json.Unmarshal(v, &inv); err != nil {
				return fmt.Errorf("unmarshaling invoice: %w", err)
			}
			if filter.Match(&inv) {
				invoices = append(invoices, &inv)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return invoices, nil
}
