package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type SupplierPaymentType string

const (
	SupplierAdvance     SupplierPaymentType = "ADVANCE"
	SupplierAgainstBill SupplierPaymentType = "AGAINST_BILL"
	SupplierOnAccount   SupplierPaymentType = "ON_ACCOUNT"
)

func (t SupplierPaymentType) Valid() bool {
	switch t {
	case SupplierAdvance, SupplierAgainstBill, SupplierOnAccount:
		return true
	}
	return false
}

// SupplierPayment is money paid out to a supplier, optionally allocated to
// specific credit purchases.
type SupplierPayment struct {
	ID              int                 `json:"id"`
	PaymentNumber   string              `json:"payment_number"`
	SupplierID      int                 `json:"supplier_id"`
	SupplierName    string              `json:"supplier_name"`
	PaymentDate     time.Time           `json:"payment_date"`
	PaymentType     SupplierPaymentType `json:"payment_type"`
	PaymentMethod   PaymentMethod       `json:"payment_method"`
	Amount          decimal.Decimal     `json:"amount"`
	BankAccountCode *string             `json:"bank_account_code,omitempty"`
	ChequeNumber    *string             `json:"cheque_number,omitempty"`
	ChequeDate      *time.Time          `json:"cheque_date,omitempty"`
	Reference       *string             `json:"transaction_reference,omitempty"`
	Remarks         *string             `json:"remarks,omitempty"`
	LedgerBatchID   *int                `json:"ledger_batch_id,omitempty"`
	CreatedBy       string              `json:"created_by"`
	CreatedAt       time.Time           `json:"created_at"`

	Allocations []SupplierPaymentAllocation `json:"allocations"`
}

type SupplierPaymentAllocation struct {
	ID             int             `json:"id"`
	PaymentID      int             `json:"payment_id"`
	PurchaseID     int             `json:"purchase_id"`
	PurchaseNumber string          `json:"purchase_number"`
	Amount         decimal.Decimal `json:"amount"`
}

type AllocationInput struct {
	PurchaseID int
	Amount     decimal.Decimal
}

type SupplierPaymentInput struct {
	SupplierID  int
	PaymentDate time.Time
	PaymentType SupplierPaymentType
	Method      PaymentMethod
	// Amount must equal the sum of Allocations when any are given.
	Amount          decimal.Decimal
	BankAccountCode string
	ChequeNumber    string
	ChequeDate      *time.Time
	Reference       string
	Remarks         string
	CreatedBy       string
	Allocations     []AllocationInput
}

// OutstandingPurchase is a posted credit purchase with money still owed on it.
type OutstandingPurchase struct {
	PurchaseID     int             `json:"purchase_id"`
	PurchaseNumber string          `json:"purchase_number"`
	PurchaseDate   time.Time       `json:"purchase_date"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Paid           decimal.Decimal `json:"paid"`
	Returned       decimal.Decimal `json:"returned"`
	Outstanding    decimal.Decimal `json:"outstanding"`
}

// SupplierPaymentService pays suppliers and settles their credit purchases.
type SupplierPaymentService interface {
	// OutstandingPurchases lists a supplier's ledger-posted credit purchases
	// that still carry a balance, oldest first.
	OutstandingPurchases(ctx context.Context, supplierID int) ([]OutstandingPurchase, error)
	// PaySupplier records the payment and books DR supplier payable / CR cash or
	// bank in one transaction. Each allocation may settle at most the
	// purchase's outstanding balance.
	PaySupplier(ctx context.Context, in SupplierPaymentInput) (*SupplierPayment, error)
	GetSupplierPayment(ctx context.Context, paymentID int) (*SupplierPayment, error)
}
