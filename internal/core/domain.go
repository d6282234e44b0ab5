package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Cash         PaymentMethod = "cash"
	Card         PaymentMethod = "card"
	UPI          PaymentMethod = "upi"
	BankTransfer PaymentMethod = "bank_transfer"
	Wallet       PaymentMethod = "wallet"
	OtherMethod  PaymentMethod = "other"
)

// DefaultCurrency is applied to transactions saved without a currency code.
const DefaultCurrency = "INR"

type (
	TransactionType string

	PaymentMethod string

	// Transaction is a single income or expense record. AmountMinor is always
	// expressed in currency minor units.
	Transaction struct {
		ID            string          `json:"id"`
		UserID        string          `json:"userId"`
		Type          TransactionType `json:"type"`
		AmountMinor   int64           `json:"amountMinor"`
		CategoryID    string          `json:"categoryId"`
		Note          string          `json:"note,omitempty"`
		Date          time.Time       `json:"date"`
		PaymentMethod PaymentMethod   `json:"paymentMethod,omitempty"`
		Currency      string          `json:"currency,omitempty"`
		IsDeleted     bool            `json:"isDeleted"`
		CreatedAt     time.Time       `json:"createdAt"`
		UpdatedAt     time.Time       `json:"updatedAt"`
	}

	// TransactionInput carries the caller-supplied fields of a save. On update,
	// zero-valued fields keep the stored value; Note is a pointer so it can be
	// cleared explicitly.
	TransactionInput struct {
		ID            string
		Type          TransactionType
		AmountMinor   int64
		CategoryID    string
		Note          *string
		Date          time.Time
		PaymentMethod PaymentMethod
		Currency      string
	}

	// Category is reference data. A nil UserID marks a global category.
	Category struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Type      TransactionType `json:"type"`
		UserID    *string         `json:"userId"`
		IsDeleted bool            `json:"isDeleted"`
		CreatedAt time.Time       `json:"createdAt"`
	}
)

var (
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrInvalidType          = errors.New("type must be income or expense")
	ErrEmptyCategory        = errors.New("empty category")
	ErrZeroDate             = errors.New("date cannot be zero")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrNoteTooLong          = errors.New("note too long (max 500 characters)")
	ErrMissingOwner         = errors.New("owner is required")
	ErrNotFound             = errors.New("not found")
)

// ValidationError ties a validation failure to the field that caused it.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (p PaymentMethod) Valid() bool {
	switch p {
	case Cash, Card, UPI, BankTransfer, Wallet, OtherMethod:
		return true
	default:
		return false
	}
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return invalid("type", ErrInvalidType)
	}
	if err := (Money{Cents: t.AmountMinor}).Validate(); err != nil {
		return invalid("amountMinor", err)
	}
	if strings.TrimSpace(t.CategoryID) == "" {
		return invalid("categoryId", ErrEmptyCategory)
	}
	if t.Date.IsZero() {
		return invalid("date", ErrZeroDate)
	}
	// Records written before payment methods existed carry none.
	if t.PaymentMethod != "" && !t.PaymentMethod.Valid() {
		return invalid("paymentMethod", ErrInvalidPaymentMethod)
	}
	if len(t.Note) > 500 {
		return invalid("note", ErrNoteTooLong)
	}
	return nil
}

// Merge applies the non-zero fields of in on top of t. Identity, ownership,
// deletion state and timestamps are never taken from the input.
func (t Transaction) Merge(in TransactionInput) Transaction {
	if in.Type != "" {
		t.Type = in.Type
	}
	if in.AmountMinor != 0 {
		t.AmountMinor = in.AmountMinor
	}
	if in.CategoryID != "" {
		t.CategoryID = in.CategoryID
	}
	if in.Note != nil {
		t.Note = *in.Note
	}
	if !in.Date.IsZero() {
		t.Date = in.Date
	}
	if in.PaymentMethod != "" {
		t.PaymentMethod = in.PaymentMethod
	}
	if in.Currency != "" {
		t.Currency = in.Currency
	}
	return t
}

// Amount returns the transaction amount as Money.
func (t Transaction) Amount() Money {
	return Money{Cents: t.AmountMinor}
}

// IsGlobal reports whether the category is shared by every user.
func (c Category) IsGlobal() bool {
	return c.UserID == nil
}
