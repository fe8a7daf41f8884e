package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/punchamoorthee/classfund/internal/domain"
	"github.com/punchamoorthee/classfund/internal/models"
	"github.com/punchamoorthee/classfund/internal/store"
)

const (
	MaxProofBytes  = 4 << 20
	MaxTxnRefChars = 100
)

// ProofStore saves receipt images.
type ProofStore interface {
	Put(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

// Enqueuer schedules the automatic pass for a payment.
type Enqueuer interface {
	Enqueue(ctx context.Context, paymentID int64) error
}

// PaymentService is the member and treasurer facing side of payments. Every
// call is scoped to the actor's class.
type PaymentService struct {
	store  store.Store
	proofs ProofStore
	queue  Enqueuer
	engine *Engine
}

func NewPaymentService(st store.Store, proofs ProofStore, q Enqueuer, engine *Engine) *PaymentService {
	return &PaymentService{store: st, proofs: proofs, queue: q, engine: engine}
}

// Actor resolves userID's membership in classID.
func (s *PaymentService) Actor(ctx context.Context, classID, userID int64) (*domain.Actor, error) {
	m, err := s.store.Member(ctx, classID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}
	return &domain.Actor{UserID: userID, ClassID: classID, MemberID: m.ID, Role: m.Role}, nil
}

// Submit records a member's payment against their own invoice. The invoice
// moves from unpaid to submitted in the same transaction, and with an image
// attached the automatic pass is queued.
func (s *PaymentService) Submit(ctx context.Context, actor *domain.Actor, invoiceID int64, req models.SubmitPaymentRequest, up *models.Upload) (*domain.Payment, error) {
	if actor == nil {
		return nil, ErrNotMember
	}
	inv, err := s.store.InvoiceInClass(ctx, actor.ClassID, invoiceID)
	if err != nil {
		return nil, notFound("invoice", err)
	}
	if inv.MemberID != actor.MemberID {
		return nil, fmt.Errorf("invoice %d belongs to another member: %w", invoiceID, ErrForbidden)
	}

	v := violations{}
	if req.Amount < 0 {
		v["amount"] = "must_not_be_negative"
	}
	method, err := domain.ParseMethod(req.Method)
	if err != nil {
		v["method"] = "invalid"
	}
	if len([]rune(req.TxnRef)) > MaxTxnRefChars {
		v["txn_ref"] = "too_long"
	}
	if up != nil {
		checkUpload(up, v)
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	p := &domain.Payment{
		InvoiceID: inv.ID,
		PayerID:   actor.MemberID,
		Amount:    req.Amount,
		Method:    method,
	}
	if ref := strings.TrimSpace(req.TxnRef); ref != "" {
		p.TxnRef = &ref
	}
	if up != nil {
		ref, err := s.proofs.Put(ctx, up.Filename, up.ContentType, up.Data)
		if err != nil {
			return nil, fmt.Errorf("store proof: %w", err)
		}
		p.ProofPath = &ref
	}

	if err := s.store.CreatePayment(ctx, p); err != nil {
		return nil, notFound("invoice", err)
	}
	slog.Info("payment submitted", "payment_id", p.ID, "invoice_id", p.InvoiceID, "amount", p.Amount, "has_proof", p.HasProof())

	if p.HasProof() {
		s.schedule(ctx, p.ID)
	}
	return p, nil
}

// AttachProof replaces the receipt image of the actor's own payment.
func (s *PaymentService) AttachProof(ctx context.Context, actor *domain.Actor, paymentID int64, up *models.Upload) (*domain.Payment, error) {
	if actor == nil {
		return nil, ErrNotMember
	}
	p, err := s.store.PaymentInClass(ctx, actor.ClassID, paymentID)
	if err != nil {
		return nil, notFound("payment", err)
	}
	if p.PayerID != actor.MemberID {
		return nil, fmt.Errorf("payment %d belongs to another member: %w", paymentID, ErrForbidden)
	}

	v := violations{}
	if up == nil {
		v["image"] = "required"
	} else {
		checkUpload(up, v)
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	ref, err := s.proofs.Put(ctx, up.Filename, up.ContentType, up.Data)
	if err != nil {
		return nil, fmt.Errorf("store proof: %w", err)
	}
	if err := s.store.SetProof(ctx, p.ID, ref); err != nil {
		return nil, notFound("payment", err)
	}
	p.ProofPath = &ref

	if p.Status == domain.PaymentSubmitted {
		s.schedule(ctx, p.ID)
	}
	return p, nil
}

// schedule queues the automatic pass. A failure leaves the payment for
// manual review and does not fail the request.
func (s *PaymentService) schedule(ctx context.Context, paymentID int64) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(ctx, paymentID); err != nil {
		slog.Error("failed to enqueue reconciliation", "payment_id", paymentID, "error", err)
	}
}

func checkUpload(up *models.Upload, v violations) {
	switch {
	case len(up.Data) == 0:
		v["image"] = "required"
	case len(up.Data) > MaxProofBytes:
		v["image"] = "too_large"
	case !isImage(up):
		v["image"] = "must_be_image"
	}
}

// isImage trusts the sniffed type over the declared one.
func isImage(up *models.Upload) bool {
	sniffed := http.DetectContentType(up.Data)
	if strings.HasPrefix(sniffed, "image/") {
		up.ContentType = sniffed
		return true
	}
	// formats the sniffer does not know, such as HEIC
	return sniffed == "application/octet-stream" && strings.HasPrefix(up.ContentType, "image/")
}

// List is the treasurer review queue. An empty status means submitted.
func (s *PaymentService) List(ctx context.Context, actor *domain.Actor, status string) ([]models.PaymentRow, error) {
	if !actor.TreasurerLike() {
		return nil, ErrForbidden
	}
	st := domain.PaymentSubmitted
	if status != "" {
		var err error
		if st, err = domain.ParsePaymentStatus(status); err != nil {
			return nil, &ValidationError{Fields: map[string]string{"status": "invalid"}}
		}
	}
	rows, err := s.store.ListPayments(ctx, models.PaymentFilter{ClassID: actor.ClassID, Status: st})
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return rows, nil
}

// ApprovedList lists verified payments. Plain members only ever see their
// own and asking for someone else is forbidden.
func (s *PaymentService) ApprovedList(ctx context.Context, actor *domain.Actor, q models.ApprovedQuery) ([]models.PaymentRow, error) {
	if actor == nil {
		return nil, ErrNotMember
	}
	f := models.PaymentFilter{
		ClassID: actor.ClassID,
		Status:  domain.PaymentVerified,
		CycleID: q.CycleID,
		From:    q.From,
		To:      q.To,
	}

	if !actor.TreasurerLike() {
		if (q.MemberID != 0 && q.MemberID != actor.MemberID) || (q.UserID != 0 && q.UserID != actor.UserID) {
			return nil, ErrForbidden
		}
		f.PayerID = actor.MemberID
	} else {
		f.PayerID = q.MemberID
		if q.UserID != 0 {
			m, err := s.store.Member(ctx, actor.ClassID, q.UserID)
			if errors.Is(err, store.ErrNotFound) {
				return []models.PaymentRow{}, nil
			}
			if err != nil {
				return nil, fmt.Errorf("load member: %w", err)
			}
			if f.PayerID != 0 && f.PayerID != m.ID {
				return []models.PaymentRow{}, nil
			}
			f.PayerID = m.ID
		}
	}

	rows, err := s.store.ListPayments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list approved payments: %w", err)
	}
	return rows, nil
}

func (s *PaymentService) Detail(ctx context.Context, actor *domain.Actor, paymentID int64) (*models.PaymentDetail, error) {
	if !actor.TreasurerLike() {
		return nil, ErrForbidden
	}
	d, err := s.store.PaymentDetail(ctx, actor.ClassID, paymentID)
	if err != nil {
		return nil, notFound("payment", err)
	}
	return d, nil
}

// Verify is the treasurer's manual approve or reject.
func (s *PaymentService) Verify(ctx context.Context, actor *domain.Actor, paymentID int64, action string) (*domain.Payment, error) {
	if !actor.TreasurerLike() {
		return nil, ErrForbidden
	}
	a, err := domain.ParseReviewAction(action)
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{"action": "invalid"}}
	}
	if _, err := s.store.PaymentInClass(ctx, actor.ClassID, paymentID); err != nil {
		return nil, notFound("payment", err)
	}
	return s.engine.Review(ctx, actor, paymentID, a)
}
