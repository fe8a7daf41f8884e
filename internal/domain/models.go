package domain

import (
	"encoding/json"
	"time"
)

// Member is a user's membership in one class. Payments reference members,
// never global users.
type Member struct {
	ID      int64  `json:"id"`
	ClassID int64  `json:"class_id"`
	UserID  int64  `json:"user_id"`
	Role    Role   `json:"role"`
	Name    string `json:"name"`
	Email   string `json:"email"`
}

// FeeCycle is a collection period scoping a set of invoices to a class.
type FeeCycle struct {
	ID              int64  `json:"id"`
	ClassID         int64  `json:"class_id"`
	Name            string `json:"name"`
	AmountPerMember int64  `json:"amount_per_member"`
}

// Invoice is the amount one member owes for one fee cycle.
type Invoice struct {
	ID       int64         `json:"id"`
	CycleID  int64         `json:"fee_cycle_id"`
	ClassID  int64         `json:"class_id"`
	MemberID int64         `json:"member_id"`
	Amount   int64         `json:"amount"`
	Status   InvoiceStatus `json:"status"`
}

// Payment is a single proof-of-payment submission against one invoice.
// Amounts are in the smallest currency unit.
type Payment struct {
	ID            int64           `json:"id"`
	InvoiceID     int64           `json:"invoice_id"`
	PayerID       int64           `json:"payer_id"`
	Amount        int64           `json:"amount"`
	Method        Method          `json:"method"`
	TxnRef        *string         `json:"txn_ref,omitempty"`
	ProofPath     *string         `json:"proof_path,omitempty"`
	OCRText       *string         `json:"proof_ocr_text,omitempty"`
	OCRJSON       json.RawMessage `json:"proof_ocr_json,omitempty"`
	OCRConfidence *int            `json:"proof_ocr_confidence,omitempty"`
	Status        PaymentStatus   `json:"status"`
	VerifiedBy    *int64          `json:"verified_by,omitempty"`
	VerifiedAt    *time.Time      `json:"verified_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// HasProof reports whether a receipt image is attached.
func (p *Payment) HasProof() bool {
	return p.ProofPath != nil && *p.ProofPath != ""
}

// Expense is money spent out of a class fund.
type Expense struct {
	ID          int64     `json:"id"`
	ClassID     int64     `json:"class_id"`
	CycleID     *int64    `json:"fee_cycle_id,omitempty"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Extraction is the result returned by the amount extractor for one image.
// Only Amount takes part in matching; RawText, Raw and Confidence are kept
// on the payment for review.
type Extraction struct {
	Amount     int64
	RawText    string
	Confidence int
	Raw        json.RawMessage
}

// Actor is the acting identity and class scope threaded through every
// engine and service entry point. A nil *Actor means the background worker.
type Actor struct {
	UserID   int64
	ClassID  int64
	MemberID int64
	Role     Role
}

// TreasurerLike reports whether the actor may review payments.
func (a *Actor) TreasurerLike() bool {
	return a != nil && a.Role.TreasurerLike()
}
