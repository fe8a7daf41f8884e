package models

import (
	"time"

	"github.com/punchamoorthee/classfund/internal/domain"
)

// SubmitPaymentRequest is the payload from a member submitting a payment.
type SubmitPaymentRequest struct {
	Amount int64  `json:"amount"`
	Method string `json:"method"`
	TxnRef string `json:"txn_ref"`
}

// VerifyRequest is the payload from a treasurer reviewing a payment.
type VerifyRequest struct {
	Action string `json:"action"`
}

// Upload is a receipt image received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// PaymentFilter narrows payment listings. Zero values mean no filter.
type PaymentFilter struct {
	ClassID int64
	Status  domain.PaymentStatus
	CycleID int64
	PayerID int64
	From    *time.Time
	To      *time.Time
}

// ApprovedQuery narrows the approved payments listing. MemberID and UserID
// select one payer by class member id or by user id.
type ApprovedQuery struct {
	CycleID  int64
	MemberID int64
	UserID   int64
	From     *time.Time
	To       *time.Time
}

// SummaryFilter narrows the fund summary. To is inclusive of the whole day.
type SummaryFilter struct {
	ClassID int64
	CycleID int64
	From    *time.Time
	To      *time.Time
}

// PaymentRow is one payment in a class listing, joined with its payer,
// invoice and cycle.
type PaymentRow struct {
	ID             int64                `json:"id"`
	InvoiceID      int64                `json:"invoice_id"`
	Amount         int64                `json:"amount"`
	Status         domain.PaymentStatus `json:"status"`
	Method         domain.Method        `json:"method"`
	TxnRef         *string              `json:"txn_ref"`
	ProofPath      *string              `json:"proof_path"`
	CreatedAt      time.Time            `json:"created_at"`
	PayerName      string               `json:"payer_name"`
	PayerEmail     string               `json:"payer_email"`
	InvoiceAmount  int64                `json:"invoice_amount"`
	InvoiceStatus  domain.InvoiceStatus `json:"invoice_status"`
	CycleID        int64                `json:"cycle_id"`
	CycleName      string               `json:"cycle_name"`
	VerifiedByName *string              `json:"verified_by_name,omitempty"`
}

// CycleGroup is a listing grouped by fee cycle.
type CycleGroup struct {
	CycleID   int64        `json:"cycle_id"`
	CycleName string       `json:"cycle_name"`
	Payments  []PaymentRow `json:"payments"`
}

// PaymentDetail is the treasurer view of a single payment.
type PaymentDetail struct {
	PaymentRow
	VerifiedAt    *time.Time `json:"verified_at"`
	OCRText       *string    `json:"proof_ocr_text,omitempty"`
	OCRConfidence *int       `json:"proof_ocr_confidence,omitempty"`
}

// Summary is the income, expense and balance of a class fund.
type Summary struct {
	TotalIncome  int64 `json:"total_income"`
	TotalExpense int64 `json:"total_expense"`
	Balance      int64 `json:"balance"`
}

// GroupByCycle groups rows by fee cycle, keeping the order in which cycles
// first appear.
func GroupByCycle(rows []PaymentRow) []CycleGroup {
	groups := []CycleGroup{}
	index := make(map[int64]int)
	for _, r := range rows {
		i, ok := index[r.CycleID]
		if !ok {
			i = len(groups)
			index[r.CycleID] = i
			groups = append(groups, CycleGroup{CycleID: r.CycleID, CycleName: r.CycleName})
		}
		groups[i].Payments = append(groups[i].Payments, r)
	}
	return groups
}
