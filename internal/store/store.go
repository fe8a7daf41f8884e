package store

import (
	"context"
	"errors"
	"time"

	"github.com/punchamoorthee/classfund/internal/domain"
	"github.com/punchamoorthee/classfund/internal/models"
)

var ErrNotFound = errors.New("record not found")

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)

// LockedFunc runs while the payment and its invoice are locked. p and inv are
// the current committed rows read under the lock. Returning an error rolls
// back every write made through tx.
type LockedFunc func(ctx context.Context, tx Tx, p *domain.Payment, inv *domain.Invoice) error

// Tx is the write surface available inside WithPaymentLock.
type Tx interface {
	// SavePayment writes the review fields: status, verifier, verified time
	// and the extraction text, JSON and confidence.
	SavePayment(ctx context.Context, p *domain.Payment) error
	// VerifiedTotal sums the amounts of verified payments on an invoice,
	// including writes made earlier in this transaction.
	VerifiedTotal(ctx context.Context, invoiceID int64) (int64, error)
	SaveInvoiceStatus(ctx context.Context, invoiceID int64, status domain.InvoiceStatus) error
}

// Store persists payments and invoices and the read-only class context
// around them.
type Store interface {
	Member(ctx context.Context, classID, userID int64) (*domain.Member, error)
	InvoiceInClass(ctx context.Context, classID, invoiceID int64) (*domain.Invoice, error)
	PaymentInClass(ctx context.Context, classID, paymentID int64) (*domain.Payment, error)
	GetPayment(ctx context.Context, id int64) (*domain.Payment, error)

	// CreatePayment inserts a submitted payment and advances its invoice from
	// unpaid to submitted in the same transaction. ID and CreatedAt are set
	// on p.
	CreatePayment(ctx context.Context, p *domain.Payment) error
	SetProof(ctx context.Context, paymentID int64, path string) error

	ListPayments(ctx context.Context, f models.PaymentFilter) ([]models.PaymentRow, error)
	PaymentDetail(ctx context.Context, classID, paymentID int64) (*models.PaymentDetail, error)
	SumIncome(ctx context.Context, f models.SummaryFilter) (int64, error)
	SumExpense(ctx context.Context, f models.SummaryFilter) (int64, error)

	// WithPaymentLock locks the payment's invoice, then the payment, and runs
	// fn. All transitions on an invoice's payments serialize here.
	WithPaymentLock(ctx context.Context, paymentID int64, fn LockedFunc) error

	Close()
}

// inRange applies the inclusive date window used by listings and summaries.
func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && !t.Before(to.AddDate(0, 0, 1)) {
		return false
	}
	return true
}
