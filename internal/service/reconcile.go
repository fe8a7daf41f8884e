package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/punchamoorthee/classfund/internal/domain"
	"github.com/punchamoorthee/classfund/internal/store"
)

// Extractor reads a payment amount off a receipt image.
type Extractor interface {
	Extract(ctx context.Context, image []byte, contentType string) (*domain.Extraction, error)
}

// ProofReader loads a stored receipt image.
type ProofReader interface {
	Get(ctx context.Context, ref string) ([]byte, error)
}

// Engine moves payments through their review states, automatically from
// extracted receipt amounts or manually on a treasurer's decision. It keeps
// no state between calls; every transition re-reads the payment under the
// store lock.
type Engine struct {
	store     store.Store
	extractor Extractor
	proofs    ProofReader
	timeout   time.Duration
	log       *slog.Logger

	// Now stamps verified_at. Tests may replace it.
	Now func() time.Time
}

func NewEngine(st store.Store, ex Extractor, proofs ProofReader, timeout time.Duration, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:     st,
		extractor: ex,
		proofs:    proofs,
		timeout:   timeout,
		log:       log,
		Now:       time.Now,
	}
}

// Reconcile is the automatic pass for one payment. It verifies the payment
// when the receipt amount is within tolerance of the invoice amount and
// otherwise leaves it for manual review. Extraction problems are logged and
// swallowed; only store failures are returned, so the job can be retried.
func (e *Engine) Reconcile(ctx context.Context, paymentID int64) error {
	log := e.log.With("payment_id", paymentID)

	// 1. Cheap pre-check outside any transaction.
	p, err := e.store.GetPayment(ctx, paymentID)
	if errors.Is(err, store.ErrNotFound) {
		e.outcome(log, outcomeSkipped, "reason", "missing")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load payment: %w", err)
	}
	if !p.HasProof() || p.Status.Terminal() {
		e.outcome(log, outcomeSkipped, "status", p.Status, "has_proof", p.HasProof())
		return nil
	}

	// 2. Extraction, with no locks held.
	ex, err := e.extract(ctx, *p.ProofPath)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.outcome(log, outcomeNoResult, "error", err)
		return nil
	}

	// 3. Apply under the lock, re-checking the status read there.
	outcome := outcomeUnmatched
	err = e.store.WithPaymentLock(ctx, paymentID, func(ctx context.Context, tx store.Tx, cur *domain.Payment, inv *domain.Invoice) error {
		if cur.Status != domain.PaymentSubmitted {
			outcome = outcomeSuperseded
			return nil
		}

		action := domain.ActionAutoMiss
		if domain.Matches(inv.Amount, ex.Amount) {
			action = domain.ActionAutoMatch
		}
		next, err := domain.NextStatus(cur.Status, action)
		if err != nil {
			return err
		}

		text, conf := ex.RawText, ex.Confidence
		cur.OCRText, cur.OCRConfidence = &text, &conf
		if len(ex.Raw) > 0 {
			cur.OCRJSON = ex.Raw
		}
		if next == domain.PaymentVerified {
			now := e.Now()
			cur.Status = next
			cur.VerifiedAt = &now
			outcome = outcomeMatched
		}
		if err := tx.SavePayment(ctx, cur); err != nil {
			return err
		}
		if next == domain.PaymentVerified {
			return syncInvoice(ctx, tx, inv)
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		e.outcome(log, outcomeSkipped, "reason", "missing")
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply extraction: %w", err)
	}

	e.outcome(log, outcome, "invoice_id", p.InvoiceID, "extracted", ex.Amount, "confidence", ex.Confidence)
	return nil
}

func (e *Engine) extract(ctx context.Context, ref string) (*domain.Extraction, error) {
	image, err := e.proofs.Get(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("read proof: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	ex, err := e.extractor.Extract(ctx, image, http.DetectContentType(image))
	extractorDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("extract amount: %w", err)
	}
	return ex, nil
}

func (e *Engine) outcome(log *slog.Logger, outcome string, args ...any) {
	reconcileOutcomes.WithLabelValues(outcome).Inc()
	log.Info("reconcile", append([]any{"outcome", outcome}, args...)...)
}

// Review applies a treasurer's approve or reject. It fails with ErrConflict
// when the payment already left submitted, whoever moved it.
func (e *Engine) Review(ctx context.Context, actor *domain.Actor, paymentID int64, action domain.Action) (*domain.Payment, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	if action != domain.ActionApprove && action != domain.ActionReject {
		return nil, &ValidationError{Fields: map[string]string{"action": "invalid"}}
	}

	var out *domain.Payment
	err := e.store.WithPaymentLock(ctx, paymentID, func(ctx context.Context, tx store.Tx, cur *domain.Payment, inv *domain.Invoice) error {
		next, err := domain.NextStatus(cur.Status, action)
		if err != nil {
			if errors.Is(err, domain.ErrTransition) {
				return ErrConflict
			}
			return err
		}

		now := e.Now()
		verifier := actor.UserID
		cur.Status = next
		cur.VerifiedBy = &verifier
		cur.VerifiedAt = &now
		if err := tx.SavePayment(ctx, cur); err != nil {
			return err
		}
		if next == domain.PaymentVerified {
			if err := syncInvoice(ctx, tx, inv); err != nil {
				return err
			}
		}
		out = cur
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, notFound("payment", err)
	}

	e.log.Info("payment reviewed", "payment_id", paymentID, "action", action, "status", out.Status, "user_id", actor.UserID)
	return out, nil
}

// syncInvoice promotes the invoice to verified once its verified payments
// cover the amount due. It runs inside the payment lock after every
// transition to verified.
func syncInvoice(ctx context.Context, tx store.Tx, inv *domain.Invoice) error {
	total, err := tx.VerifiedTotal(ctx, inv.ID)
	if err != nil {
		return err
	}
	next, changed := domain.SyncInvoice(inv.Status, inv.Amount, total)
	if !changed {
		return nil
	}
	if err := tx.SaveInvoiceStatus(ctx, inv.ID, next); err != nil {
		return err
	}
	inv.Status = next
	return nil
}
