package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStatus(t *testing.T) {
	cases := []struct {
		cur     PaymentStatus
		action  Action
		want    PaymentStatus
		wantErr bool
	}{
		{PaymentSubmitted, ActionApprove, PaymentVerified, false},
		{PaymentSubmitted, ActionReject, PaymentRejected, false},
		{PaymentSubmitted, ActionAutoMatch, PaymentVerified, false},
		{PaymentSubmitted, ActionAutoMiss, PaymentSubmitted, false},
		{PaymentVerified, ActionApprove, PaymentVerified, true},
		{PaymentVerified, ActionAutoMiss, PaymentVerified, true},
		{PaymentRejected, ActionApprove, PaymentRejected, true},
		{PaymentRejected, ActionAutoMatch, PaymentRejected, true},
	}
	for _, tc := range cases {
		got, err := NextStatus(tc.cur, tc.action)
		if tc.wantErr {
			assert.ErrorIs(t, err, ErrTransition, "%s/%s", tc.cur, tc.action)
		} else {
			assert.NoError(t, err, "%s/%s", tc.cur, tc.action)
		}
		assert.Equal(t, tc.want, got, "%s/%s", tc.cur, tc.action)
	}
}

func TestNextStatus_AutoNeverRejects(t *testing.T) {
	for _, a := range []Action{ActionAutoMatch, ActionAutoMiss} {
		got, _ := NextStatus(PaymentSubmitted, a)
		assert.NotEqual(t, PaymentRejected, got)
	}
}

func TestSyncInvoice_Idempotent(t *testing.T) {
	first, changed := SyncInvoice(InvoiceSubmitted, 200000, 200000)
	assert.True(t, changed)
	assert.Equal(t, InvoiceVerified, first)

	second, changed := SyncInvoice(first, 200000, 200000)
	assert.False(t, changed)
	assert.Equal(t, first, second)
}

func TestSyncInvoice_Thresholds(t *testing.T) {
	got, changed := SyncInvoice(InvoiceSubmitted, 200000, 100000)
	assert.False(t, changed)
	assert.Equal(t, InvoiceSubmitted, got)

	// overpayment is still just verified
	got, _ = SyncInvoice(InvoiceSubmitted, 200000, 350000)
	assert.Equal(t, InvoiceVerified, got)

	got, changed = SyncInvoice(InvoicePaid, 200000, 500000)
	assert.False(t, changed)
	assert.Equal(t, InvoicePaid, got)
}

func TestInvoiceOnSubmit(t *testing.T) {
	assert.Equal(t, InvoiceSubmitted, InvoiceOnSubmit(InvoiceUnpaid))
	assert.Equal(t, InvoiceSubmitted, InvoiceOnSubmit(InvoiceSubmitted))
	assert.Equal(t, InvoiceVerified, InvoiceOnSubmit(InvoiceVerified))
	assert.Equal(t, InvoicePaid, InvoiceOnSubmit(InvoicePaid))
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodBank, m)

	m, err = ParseMethod("zalopay")
	require.NoError(t, err)
	assert.Equal(t, MethodZaloPay, m)

	_, err = ParseMethod("paypal")
	assert.Error(t, err)
}

func TestParseReviewAction(t *testing.T) {
	_, err := ParseReviewAction("auto_match")
	assert.Error(t, err)

	a, err := ParseReviewAction("reject")
	require.NoError(t, err)
	assert.Equal(t, ActionReject, a)
}

func TestMatches(t *testing.T) {
	const due = 200000
	assert.True(t, Matches(due, 201000))
	assert.True(t, Matches(due, 199000))
	assert.True(t, Matches(due, due))
	assert.False(t, Matches(due, 201001))
	assert.False(t, Matches(due, 198999))
	assert.False(t, Matches(due, 0))
	assert.False(t, Matches(500, 0), "zero extraction never matches even within tolerance")
	assert.False(t, Matches(500, -200))
}
