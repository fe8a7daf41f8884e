package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/punchamoorthee/classfund/internal/domain"
	"github.com/punchamoorthee/classfund/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, err := h.payments.Actor(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, member2, a)

	_, err = h.payments.Actor(ctx, 1, 42)
	assert.ErrorIs(t, err, ErrNotMember)
	_, err = h.payments.Actor(ctx, 2, 2)
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestSubmit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p, err := h.payments.Submit(ctx, member1, 1,
		models.SubmitPaymentRequest{Amount: 200000, Method: "momo", TxnRef: " MM123 "},
		&models.Upload{Filename: "r.png", ContentType: "application/octet-stream", Data: pngBytes})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentSubmitted, p.Status)
	assert.Equal(t, domain.MethodMomo, p.Method)
	require.NotNil(t, p.TxnRef)
	assert.Equal(t, "MM123", *p.TxnRef)
	assert.True(t, p.HasProof())
	assert.Equal(t, []int64{p.ID}, h.queue.IDs())
	assert.Equal(t, domain.InvoiceSubmitted, h.invoiceStatus(t, 1))

	plain := h.submit(t, member1, 1, 50000, false)
	assert.Equal(t, domain.MethodBank, plain.Method)
	assert.Nil(t, plain.TxnRef)
	assert.Len(t, h.queue.IDs(), 1, "no proof, nothing to reconcile")
}

func TestSubmit_OwnershipGuardCreatesNothing(t *testing.T) {
	h := newHarness(t)
	up := &models.Upload{Filename: "r.png", ContentType: "image/png", Data: pngBytes}

	_, err := h.payments.Submit(context.Background(), member2, 1, models.SubmitPaymentRequest{Amount: 200000}, up)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Zero(t, h.store.PaymentCount())
	assert.Zero(t, h.proofs.Puts())
	assert.Empty(t, h.queue.IDs())
	assert.Equal(t, domain.InvoiceUnpaid, h.invoiceStatus(t, 1))
}

func TestSubmit_InvoiceOfAnotherClass(t *testing.T) {
	h := newHarness(t)
	_, err := h.payments.Submit(context.Background(), member1, 3, models.SubmitPaymentRequest{Amount: 1}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmit_Validation(t *testing.T) {
	h := newHarness(t)
	req := models.SubmitPaymentRequest{Amount: -1, Method: "crypto", TxnRef: strings.Repeat("x", 101)}
	up := &models.Upload{Filename: "r.txt", ContentType: "text/plain", Data: []byte("hello")}

	_, err := h.payments.Submit(context.Background(), member1, 1, req, up)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{
		"amount":  "must_not_be_negative",
		"method":  "invalid",
		"txn_ref": "too_long",
		"image":   "must_be_image",
	}, verr.Fields)
	assert.Zero(t, h.store.PaymentCount())
}

func TestSubmit_UploadLimits(t *testing.T) {
	h := newHarness(t)
	big := append(append([]byte{}, pngBytes...), make([]byte, MaxProofBytes)...)

	_, err := h.payments.Submit(context.Background(), member1, 1, models.SubmitPaymentRequest{Amount: 1},
		&models.Upload{Filename: "big.png", ContentType: "image/png", Data: big})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "too_large", verr.Fields["image"])

	_, err = h.payments.Submit(context.Background(), member1, 1,
		models.SubmitPaymentRequest{Amount: 0, TxnRef: strings.Repeat("đ", 100)}, nil)
	assert.NoError(t, err, "zero amount and a 100 character reference are accepted")
}

func TestAttachProof(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.submit(t, member1, 1, 200000, false)
	up := &models.Upload{Filename: "late.png", ContentType: "image/png", Data: pngBytes}

	_, err := h.payments.AttachProof(ctx, member2, p.ID, up)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.payments.AttachProof(ctx, member1, p.ID, nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "required", verr.Fields["image"])

	_, err = h.payments.AttachProof(ctx, otherOwner, p.ID, up)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := h.payments.AttachProof(ctx, member1, p.ID, up)
	require.NoError(t, err)
	assert.True(t, got.HasProof())
	assert.Equal(t, *got.ProofPath, *h.payment(t, p.ID).ProofPath)
	assert.Equal(t, []int64{p.ID}, h.queue.IDs())
}

func TestAttachProof_ReviewedPaymentIsNotRequeued(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.submit(t, member1, 1, 200000, false)
	_, err := h.engine.Review(ctx, owner, p.ID, domain.ActionApprove)
	require.NoError(t, err)

	_, err = h.payments.AttachProof(ctx, member1, p.ID, &models.Upload{Filename: "x.png", ContentType: "image/png", Data: pngBytes})
	require.NoError(t, err)
	assert.Empty(t, h.queue.IDs())
}

func TestList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.submit(t, member1, 1, 200000, false)
	b := h.submit(t, member2, 2, 200000, false)
	_, err := h.engine.Review(ctx, owner, b.ID, domain.ActionReject)
	require.NoError(t, err)

	_, err = h.payments.List(ctx, member1, "")
	assert.ErrorIs(t, err, ErrForbidden)

	rows, err := h.payments.List(ctx, owner, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, a.ID, rows[0].ID)
	assert.Equal(t, "Member One", rows[0].PayerName)

	rows, err = h.payments.List(ctx, owner, "rejected")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, b.ID, rows[0].ID)

	_, err = h.payments.List(ctx, owner, "lost")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestApprovedList_MemberScoping(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mine := h.submit(t, member1, 1, 200000, false)
	theirs := h.submit(t, member2, 2, 200000, false)
	for _, id := range []int64{mine.ID, theirs.ID} {
		_, err := h.engine.Review(ctx, owner, id, domain.ActionApprove)
		require.NoError(t, err)
	}

	rows, err := h.payments.ApprovedList(ctx, member1, models.ApprovedQuery{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, mine.ID, rows[0].ID)
	require.NotNil(t, rows[0].VerifiedByName)
	assert.Equal(t, "Class Owner", *rows[0].VerifiedByName)

	_, err = h.payments.ApprovedList(ctx, member1, models.ApprovedQuery{MemberID: 3})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.payments.ApprovedList(ctx, member1, models.ApprovedQuery{UserID: 3})
	assert.ErrorIs(t, err, ErrForbidden)

	rows, err = h.payments.ApprovedList(ctx, member1, models.ApprovedQuery{MemberID: 2})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = h.payments.ApprovedList(ctx, owner, models.ApprovedQuery{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = h.payments.ApprovedList(ctx, owner, models.ApprovedQuery{UserID: 3})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, theirs.ID, rows[0].ID)

	rows, err = h.payments.ApprovedList(ctx, owner, models.ApprovedQuery{UserID: 99})
	require.NoError(t, err)
	assert.Empty(t, rows)

	later := fixedNow.AddDate(0, 0, 1)
	rows, err = h.payments.ApprovedList(ctx, owner, models.ApprovedQuery{From: &later})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDetail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.submit(t, member1, 1, 200000, false)

	_, err := h.payments.Detail(ctx, member1, p.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.payments.Detail(ctx, otherOwner, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	d, err := h.payments.Detail(ctx, owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fund HK1/2025", d.CycleName)
	assert.Equal(t, int64(200000), d.InvoiceAmount)
	assert.Nil(t, d.VerifiedAt)
}

func TestVerify(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.submit(t, member1, 1, 200000, false)

	_, err := h.payments.Verify(ctx, member1, p.ID, "approve")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.payments.Verify(ctx, owner, p.ID, "auto_match")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = h.payments.Verify(ctx, otherOwner, p.ID, "approve")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, domain.PaymentSubmitted, h.payment(t, p.ID).Status)

	got, err := h.payments.Verify(ctx, owner, p.ID, "approve")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentVerified, got.Status)

	_, err = h.payments.Verify(ctx, owner, p.ID, "reject")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSummary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.submit(t, member1, 1, 100000, false)
	b := h.submit(t, member2, 2, 50000, false)
	c := h.submit(t, member1, 1, 75000, false)
	for _, id := range []int64{a.ID, b.ID} {
		_, err := h.engine.Review(ctx, owner, id, domain.ActionApprove)
		require.NoError(t, err)
	}
	_, err := h.engine.Review(ctx, owner, c.ID, domain.ActionReject)
	require.NoError(t, err)

	got, err := h.summary.Summary(ctx, member2, models.SummaryFilter{})
	require.NoError(t, err)
	assert.Equal(t, &models.Summary{TotalIncome: 150000, TotalExpense: 30000, Balance: 120000}, got)

	got, err = h.summary.Summary(ctx, member2, models.SummaryFilter{CycleID: 2})
	require.NoError(t, err)
	assert.Equal(t, &models.Summary{}, got, "cycle of another class")

	day := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	got, err = h.summary.Summary(ctx, owner, models.SummaryFilter{From: &day, To: &day})
	require.NoError(t, err)
	assert.Equal(t, int64(120000), got.Balance, "to covers the whole day")

	before := day.AddDate(0, 0, -1)
	_, err = h.summary.Summary(ctx, owner, models.SummaryFilter{From: &day, To: &before})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = h.summary.Summary(ctx, nil, models.SummaryFilter{})
	assert.ErrorIs(t, err, ErrNotMember)
}
