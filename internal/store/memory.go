package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/punchamoorthee/classfund/internal/domain"
	"github.com/punchamoorthee/classfund/internal/models"
)

// Memory is an in-process Store. A single mutex stands in for the row locks
// of the Postgres backend, so WithPaymentLock callbacks must only use the
// Tx they are given.
type Memory struct {
	mu       sync.Mutex
	users    map[int64]User
	members  map[int64]domain.Member
	cycles   map[int64]domain.FeeCycle
	invoices map[int64]domain.Invoice
	payments map[int64]domain.Payment
	expenses []domain.Expense
	lastID   int64

	// Now stamps created payments. Tests may replace it.
	Now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[int64]User),
		members:  make(map[int64]domain.Member),
		cycles:   make(map[int64]domain.FeeCycle),
		invoices: make(map[int64]domain.Invoice),
		payments: make(map[int64]domain.Payment),
		Now:      time.Now,
	}
}

// Load adds every record of f. Invoices take their class from their cycle.
func (m *Memory) Load(f Fixtures) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range f.Users {
		m.users[u.ID] = u
	}
	for _, c := range f.Cycles {
		m.cycles[c.ID] = c
	}
	for _, mem := range f.Members {
		if u, ok := m.users[mem.UserID]; ok {
			mem.Name, mem.Email = u.Name, u.Email
		}
		m.members[mem.ID] = mem
	}
	for _, inv := range f.Invoices {
		if c, ok := m.cycles[inv.CycleID]; ok {
			inv.ClassID = c.ClassID
		}
		if inv.Status == "" {
			inv.Status = domain.InvoiceUnpaid
		}
		m.invoices[inv.ID] = inv
	}
	m.expenses = append(m.expenses, f.Expenses...)
}

// Invoice returns a copy of an invoice regardless of class.
func (m *Memory) Invoice(id int64) (domain.Invoice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	return inv, ok
}

// PaymentCount is the number of stored payments.
func (m *Memory) PaymentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

func (m *Memory) Close() {}

func (m *Memory) Member(_ context.Context, classID, userID int64) (*domain.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range m.members {
		if mem.ClassID == classID && mem.UserID == userID {
			out := mem
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) InvoiceInClass(_ context.Context, classID, invoiceID int64) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[invoiceID]
	if !ok || inv.ClassID != classID {
		return nil, ErrNotFound
	}
	return &inv, nil
}

func (m *Memory) PaymentInClass(_ context.Context, classID, paymentID int64) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok || m.invoices[p.InvoiceID].ClassID != classID {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) GetPayment(_ context.Context, id int64) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) CreatePayment(_ context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[p.InvoiceID]
	if !ok {
		return fmt.Errorf("insert payment: %w", ErrNotFound)
	}
	if _, ok := m.members[p.PayerID]; !ok {
		return fmt.Errorf("insert payment: %w", ErrNotFound)
	}

	m.lastID++
	p.ID = m.lastID
	p.Status = domain.PaymentSubmitted
	p.CreatedAt = m.Now()
	m.payments[p.ID] = *p

	inv.Status = domain.InvoiceOnSubmit(inv.Status)
	m.invoices[inv.ID] = inv
	return nil
}

func (m *Memory) SetProof(_ context.Context, paymentID int64, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return ErrNotFound
	}
	p.ProofPath = &path
	m.payments[paymentID] = p
	return nil
}

func (m *Memory) row(p domain.Payment) models.PaymentRow {
	inv := m.invoices[p.InvoiceID]
	cycle := m.cycles[inv.CycleID]
	payer := m.members[p.PayerID]
	r := models.PaymentRow{
		ID:            p.ID,
		InvoiceID:     p.InvoiceID,
		Amount:        p.Amount,
		Status:        p.Status,
		Method:        p.Method,
		TxnRef:        p.TxnRef,
		ProofPath:     p.ProofPath,
		CreatedAt:     p.CreatedAt,
		PayerName:     payer.Name,
		PayerEmail:    payer.Email,
		InvoiceAmount: inv.Amount,
		InvoiceStatus: inv.Status,
		CycleID:       cycle.ID,
		CycleName:     cycle.Name,
	}
	if p.VerifiedBy != nil {
		if u, ok := m.users[*p.VerifiedBy]; ok {
			name := u.Name
			r.VerifiedByName = &name
		}
	}
	return r
}

func (m *Memory) ListPayments(_ context.Context, f models.PaymentFilter) ([]models.PaymentRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.PaymentRow{}
	for _, p := range m.payments {
		inv := m.invoices[p.InvoiceID]
		switch {
		case inv.ClassID != f.ClassID:
			continue
		case f.Status != "" && p.Status != f.Status:
			continue
		case f.CycleID != 0 && inv.CycleID != f.CycleID:
			continue
		case f.PayerID != 0 && p.PayerID != f.PayerID:
			continue
		case !inRange(p.CreatedAt, f.From, f.To):
			continue
		}
		out = append(out, m.row(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) PaymentDetail(_ context.Context, classID, paymentID int64) (*models.PaymentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok || m.invoices[p.InvoiceID].ClassID != classID {
		return nil, ErrNotFound
	}
	return &models.PaymentDetail{
		PaymentRow:    m.row(p),
		VerifiedAt:    p.VerifiedAt,
		OCRText:       p.OCRText,
		OCRConfidence: p.OCRConfidence,
	}, nil
}

func (m *Memory) SumIncome(_ context.Context, f models.SummaryFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, p := range m.payments {
		inv := m.invoices[p.InvoiceID]
		if inv.ClassID != f.ClassID || p.Status != domain.PaymentVerified {
			continue
		}
		if f.CycleID != 0 && inv.CycleID != f.CycleID {
			continue
		}
		if !inRange(p.CreatedAt, f.From, f.To) {
			continue
		}
		total += p.Amount
	}
	return total, nil
}

func (m *Memory) SumExpense(_ context.Context, f models.SummaryFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, e := range m.expenses {
		if e.ClassID != f.ClassID {
			continue
		}
		if f.CycleID != 0 && (e.CycleID == nil || *e.CycleID != f.CycleID) {
			continue
		}
		if !inRange(e.CreatedAt, f.From, f.To) {
			continue
		}
		total += e.Amount
	}
	return total, nil
}

func (m *Memory) WithPaymentLock(ctx context.Context, paymentID int64, fn LockedFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[paymentID]
	if !ok {
		return ErrNotFound
	}
	inv, ok := m.invoices[p.InvoiceID]
	if !ok {
		return fmt.Errorf("lock invoice: %w", ErrNotFound)
	}

	tx := &memTx{
		m:        m,
		payments: make(map[int64]domain.Payment),
		invoices: make(map[int64]domain.InvoiceStatus),
	}
	if err := fn(ctx, tx, &p, &inv); err != nil {
		return err
	}

	// commit
	for id, staged := range tx.payments {
		cur := m.payments[id]
		cur.Status = staged.Status
		cur.VerifiedBy = staged.VerifiedBy
		cur.VerifiedAt = staged.VerifiedAt
		cur.OCRText = staged.OCRText
		cur.OCRJSON = staged.OCRJSON
		cur.OCRConfidence = staged.OCRConfidence
		m.payments[id] = cur
	}
	for id, status := range tx.invoices {
		cur := m.invoices[id]
		cur.Status = status
		m.invoices[id] = cur
	}
	return nil
}

// memTx buffers writes until the callback returns without error.
type memTx struct {
	m        *Memory
	payments map[int64]domain.Payment
	invoices map[int64]domain.InvoiceStatus
}

func (t *memTx) SavePayment(_ context.Context, p *domain.Payment) error {
	if _, ok := t.m.payments[p.ID]; !ok {
		return fmt.Errorf("save payment: %w", ErrNotFound)
	}
	t.payments[p.ID] = *p
	return nil
}

func (t *memTx) VerifiedTotal(_ context.Context, invoiceID int64) (int64, error) {
	var total int64
	for id, p := range t.m.payments {
		if staged, ok := t.payments[id]; ok {
			p.Status = staged.Status
		}
		if p.InvoiceID == invoiceID && p.Status == domain.PaymentVerified {
			total += p.Amount
		}
	}
	return total, nil
}

func (t *memTx) SaveInvoiceStatus(_ context.Context, invoiceID int64, status domain.InvoiceStatus) error {
	if _, ok := t.m.invoices[invoiceID]; !ok {
		return fmt.Errorf("save invoice status: %w", ErrNotFound)
	}
	t.invoices[invoiceID] = status
	return nil
}
