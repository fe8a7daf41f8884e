package domain

import (
	"errors"
	"fmt"
)

type PaymentStatus string

const (
	PaymentSubmitted PaymentStatus = "submitted"
	PaymentVerified  PaymentStatus = "verified"
	PaymentRejected  PaymentStatus = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentVerified || s == PaymentRejected
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentSubmitted, PaymentVerified, PaymentRejected:
		return PaymentStatus(s), nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

type InvoiceStatus string

const (
	InvoiceUnpaid    InvoiceStatus = "unpaid"
	InvoiceSubmitted InvoiceStatus = "submitted"
	InvoiceVerified  InvoiceStatus = "verified"
	InvoicePaid      InvoiceStatus = "paid"
)

func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	switch InvoiceStatus(s) {
	case InvoiceUnpaid, InvoiceSubmitted, InvoiceVerified, InvoicePaid:
		return InvoiceStatus(s), nil
	}
	return "", fmt.Errorf("unknown invoice status %q", s)
}

// Method is how the member says the money was sent.
type Method string

const (
	MethodBank    Method = "bank"
	MethodMomo    Method = "momo"
	MethodZaloPay Method = "zalopay"
	MethodCash    Method = "cash"
)

// ParseMethod accepts the closed set of methods. An empty string means bank.
func ParseMethod(s string) (Method, error) {
	if s == "" {
		return MethodBank, nil
	}
	switch Method(s) {
	case MethodBank, MethodMomo, MethodZaloPay, MethodCash:
		return Method(s), nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

type Role string

const (
	RoleOwner     Role = "owner"
	RoleTreasurer Role = "treasurer"
	RoleMember    Role = "member"
)

func (r Role) TreasurerLike() bool {
	return r == RoleOwner || r == RoleTreasurer
}

// Action drives a payment transition.
type Action string

const (
	ActionApprove   Action = "approve"
	ActionReject    Action = "reject"
	ActionAutoMatch Action = "auto_match"
	ActionAutoMiss  Action = "auto_miss"
)

// ParseReviewAction accepts only the actions a treasurer may take.
func ParseReviewAction(s string) (Action, error) {
	switch Action(s) {
	case ActionApprove, ActionReject:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown review action %q", s)
}

// ErrTransition is returned when a payment is no longer awaiting review.
var ErrTransition = errors.New("payment is not awaiting review")

// NextStatus is the payment state machine. Every (status, action) pair has
// an answer: a new status or ErrTransition. The automatic path can verify
// or leave a payment submitted but never reject it.
func NextStatus(cur PaymentStatus, a Action) (PaymentStatus, error) {
	if cur != PaymentSubmitted {
		return cur, ErrTransition
	}
	switch a {
	case ActionApprove, ActionAutoMatch:
		return PaymentVerified, nil
	case ActionReject:
		return PaymentRejected, nil
	case ActionAutoMiss:
		return PaymentSubmitted, nil
	}
	return cur, fmt.Errorf("unknown action %q", a)
}

// InvoiceOnSubmit is the invoice status after a payment is submitted.
func InvoiceOnSubmit(cur InvoiceStatus) InvoiceStatus {
	if cur == InvoiceUnpaid {
		return InvoiceSubmitted
	}
	return cur
}

// SyncInvoice recomputes the verified projection of an invoice from the sum
// of its verified payments. It only ever advances to verified and never
// touches a paid invoice, so running it again yields the same answer.
func SyncInvoice(cur InvoiceStatus, due, sumVerified int64) (InvoiceStatus, bool) {
	if cur == InvoicePaid || cur == InvoiceVerified {
		return cur, false
	}
	if sumVerified >= due {
		return InvoiceVerified, true
	}
	return cur, false
}
