package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/punchamoorthee/classfund/internal/domain"
	"github.com/punchamoorthee/classfund/internal/models"
	"github.com/punchamoorthee/classfund/internal/store"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR-receipt")

// MockExtractor returns whatever ExtractFunc returns.
type MockExtractor struct {
	ExtractFunc func(ctx context.Context, image []byte, contentType string) (*domain.Extraction, error)
}

func (m *MockExtractor) Extract(ctx context.Context, image []byte, contentType string) (*domain.Extraction, error) {
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, image, contentType)
	}
	return nil, errors.New("no extraction configured")
}

func reads(v int64) func(context.Context, []byte, string) (*domain.Extraction, error) {
	return func(context.Context, []byte, string) (*domain.Extraction, error) {
		return &domain.Extraction{
			Amount:     v,
			RawText:    fmt.Sprintf("CK %d", v),
			Confidence: 90,
			Raw:        []byte(fmt.Sprintf(`{"amount":%d}`, v)),
		}, nil
	}
}

// MockProofs keeps proofs in memory.
type MockProofs struct {
	mu   sync.Mutex
	data map[string][]byte
	puts int
}

func (m *MockProofs) Put(_ context.Context, filename, _ string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.puts++
	ref := fmt.Sprintf("proofs/%d-%s", m.puts, filename)
	m.data[ref] = data
	return ref, nil
}

func (m *MockProofs) Get(_ context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[ref]
	if !ok {
		return nil, errors.New("proof not found")
	}
	return b, nil
}

func (m *MockProofs) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// MockQueue records enqueued payment ids.
type MockQueue struct {
	mu  sync.Mutex
	ids []int64
}

func (m *MockQueue) Enqueue(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
	return nil
}

func (m *MockQueue) IDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.ids...)
}

var (
	owner   = &domain.Actor{UserID: 1, ClassID: 1, MemberID: 1, Role: domain.RoleOwner}
	member1 = &domain.Actor{UserID: 2, ClassID: 1, MemberID: 2, Role: domain.RoleMember}
	member2 = &domain.Actor{UserID: 3, ClassID: 1, MemberID: 3, Role: domain.RoleMember}
)

// otherOwner owns a second class that holds none of class 1's data.
var otherOwner = &domain.Actor{UserID: 1, ClassID: 2, MemberID: 4, Role: domain.RoleOwner}

var fixedNow = time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	store    *store.Memory
	proofs   *MockProofs
	queue    *MockQueue
	ex       *MockExtractor
	engine   *Engine
	payments *PaymentService
	summary  *SummaryService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := store.NewMemory()
	st.Now = func() time.Time { return fixedNow }
	f := store.DemoFixtures()
	f.Classes = append(f.Classes, store.Class{ID: 2, Name: "12A2"})
	f.Members = append(f.Members, domain.Member{ID: 4, ClassID: 2, UserID: 1, Role: domain.RoleOwner})
	f.Cycles = append(f.Cycles, domain.FeeCycle{ID: 2, ClassID: 2, Name: "Fund 12A2", AmountPerMember: 100000})
	f.Invoices = append(f.Invoices, domain.Invoice{ID: 3, CycleID: 2, MemberID: 4, Amount: 100000})
	cycle := int64(1)
	f.Expenses = []domain.Expense{{ID: 1, ClassID: 1, CycleID: &cycle, Amount: 30000, Description: "Banner", CreatedAt: fixedNow}}
	st.Load(f)

	h := &harness{store: st, proofs: &MockProofs{}, queue: &MockQueue{}, ex: &MockExtractor{}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.engine = NewEngine(st, h.ex, h.proofs, time.Second, log)
	h.engine.Now = func() time.Time { return fixedNow }
	h.payments = NewPaymentService(st, h.proofs, h.queue, h.engine)
	h.summary = NewSummaryService(st)
	return h
}

func (h *harness) submit(t *testing.T, actor *domain.Actor, invoiceID, amount int64, withProof bool) *domain.Payment {
	t.Helper()
	var up *models.Upload
	if withProof {
		up = &models.Upload{Filename: "r.png", ContentType: "image/png", Data: pngBytes}
	}
	p, err := h.payments.Submit(context.Background(), actor, invoiceID, models.SubmitPaymentRequest{Amount: amount}, up)
	require.NoError(t, err)
	return p
}

func (h *harness) payment(t *testing.T, id int64) *domain.Payment {
	t.Helper()
	p, err := h.store.GetPayment(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (h *harness) invoiceStatus(t *testing.T, id int64) domain.InvoiceStatus {
	t.Helper()
	inv, ok := h.store.Invoice(id)
	require.True(t, ok)
	return inv.Status
}
