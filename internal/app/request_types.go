package app

import (
	"github.com/shopspring/decimal"
)

// Dates are YYYY-MM-DD strings; an empty date means today.

// CreateBillRequest is the input for creating a sales bill.
type CreateBillRequest struct {
	BillBookID         int               `json:"bill_book_id" validate:"required,gt=0"`
	CustomerID         int               `json:"customer_id" validate:"required,gt=0"`
	BillDate           string            `json:"bill_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate            string            `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	AgentID            *int              `json:"agent_id,omitempty" validate:"omitempty,gt=0"`
	TransportName      string            `json:"transport_name" validate:"max=100"`
	DiscountPercentage decimal.Decimal   `json:"discount_percentage" validate:"gte=0"`
	AdjustmentAmount   decimal.Decimal   `json:"adjustment_amount"`
	SaleType           string            `json:"sale_type" validate:"omitempty,oneof=REGULAR WHOLESALE RETAIL B2B EXPORT"`
	ReferenceNumber    string            `json:"reference_number" validate:"max=50"`
	Remarks            string            `json:"remarks"`
	PaidBy             string            `json:"paid_by" validate:"omitempty,oneof=CASH BANK CHEQUE ONLINE UPI CARD"`
	Items              []BillLineRequest `json:"items" validate:"required,min=1,dive"`
}

// BillLineRequest is a single line within a CreateBillRequest. An omitted rate
// or tax percentage falls back to the variant's defaults; a rate that is sent
// must be positive.
type BillLineRequest struct {
	ProductVariantID   int              `json:"product_variant_id" validate:"required,gt=0"`
	Quantity           decimal.Decimal  `json:"quantity" validate:"gt=0"`
	Rate               *decimal.Decimal `json:"rate,omitempty" validate:"omitempty,gt=0"`
	DiscountPercentage decimal.Decimal  `json:"discount_percentage" validate:"gte=0"`
	TaxPercentage      *decimal.Decimal `json:"tax_percentage,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=DRAFT CONFIRMED SHIPPED DELIVERED COMPLETED CANCELLED"`
	Reason string `json:"reason"`
}

type CancelBillRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// PaymentRequest records money received against a bill.
type PaymentRequest struct {
	PaymentDate     string          `json:"payment_date" validate:"omitempty,datetime=2006-01-02"`
	PaymentAmount   decimal.Decimal `json:"payment_amount" validate:"gt=0"`
	PaymentMethod   string          `json:"payment_method" validate:"required,oneof=CASH BANK CHEQUE ONLINE UPI CARD"`
	Reference       string          `json:"payment_reference" validate:"max=100"`
	BankAccountCode string          `json:"bank_account_code" validate:"max=30"`
	ChequeNumber    string          `json:"cheque_number" validate:"required_if=PaymentMethod CHEQUE,max=30"`
	ChequeDate      string          `json:"cheque_date" validate:"omitempty,datetime=2006-01-02"`
	Remarks         string          `json:"remarks"`
}

// CreatePurchaseRequest is the input for recording a supplier bill.
type CreatePurchaseRequest struct {
	SupplierID       int                   `json:"supplier_id" validate:"required,gt=0"`
	PurchaseDate     string                `json:"purchase_date" validate:"omitempty,datetime=2006-01-02"`
	PurchaseType     string                `json:"purchase_type" validate:"required,oneof=CASH CREDIT"`
	PaymentMode      string                `json:"payment_mode" validate:"omitempty,oneof=CASH BANK CHEQUE ONLINE UPI CARD"`
	TaxAmount        decimal.Decimal       `json:"tax_amount" validate:"gte=0"`
	TransportCharges decimal.Decimal       `json:"transport_charges" validate:"gte=0"`
	OtherCharges     decimal.Decimal       `json:"other_charges" validate:"gte=0"`
	DiscountAmount   decimal.Decimal       `json:"discount_amount" validate:"gte=0"`
	AmountPaid       decimal.Decimal       `json:"amount_paid" validate:"gte=0"`
	Remarks          string                `json:"remarks"`
	Items            []PurchaseItemRequest `json:"items" validate:"required,min=1,dive"`
}

type PurchaseItemRequest struct {
	VariantID   int             `json:"product_variant_id" validate:"required,gt=0"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
	RejectedQty decimal.Decimal `json:"rejected_qty" validate:"gte=0"`
	Rate        decimal.Decimal `json:"rate" validate:"gte=0"`
}

// PostPurchaseRequest selects the effects to apply. Omitted flags default to true.
type PostPurchaseRequest struct {
	ToStock  *bool `json:"to_stock,omitempty"`
	ToLedger *bool `json:"to_ledger,omitempty"`
}

type CreatePurchaseReturnRequest struct {
	PurchaseID   int                 `json:"purchase_id" validate:"required,gt=0"`
	ReturnDate   string              `json:"return_date" validate:"omitempty,datetime=2006-01-02"`
	RefundMode   string              `json:"refund_mode" validate:"required,oneof=CASH BANK ADJUST"`
	RefundAmount decimal.Decimal     `json:"refund_amount" validate:"gte=0"`
	Reason       string              `json:"reason"`
	Items        []ReturnItemRequest `json:"items" validate:"required,min=1,dive"`
}

type ReturnItemRequest struct {
	PurchaseItemID int             `json:"purchase_item_id" validate:"required,gt=0"`
	Quantity       decimal.Decimal `json:"quantity" validate:"gt=0"`
}

type ReverseBatchRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// JournalRequest posts a manual journal as one balanced batch, however many
// entries it carries. A reference makes the posting idempotent; without one
// the ledger assigns a JNL number.
type JournalRequest struct {
	Date        string                `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Reference   string                `json:"reference" validate:"max=50"`
	Description string                `json:"description" validate:"required,max=500"`
	PartyType   string                `json:"party_type" validate:"omitempty,oneof=CUSTOMER SUPPLIER"`
	PartyID     string                `json:"party_id" validate:"required_with=PartyType,max=50"`
	PartyName   string                `json:"party_name" validate:"max=200"`
	Entries     []JournalEntryRequest `json:"entries" validate:"required,min=2,dive"`
}

type JournalEntryRequest struct {
	AccountCode string          `json:"account_code" validate:"required,max=30"`
	Debit       decimal.Decimal `json:"debit" validate:"gte=0"`
	Credit      decimal.Decimal `json:"credit" validate:"gte=0"`
	Description string          `json:"description" validate:"max=500"`
}

// StockAdjustmentRequest moves stock outside any document. OPENING entries
// must be IN movements.
type StockAdjustmentRequest struct {
	ProductVariantID int             `json:"product_variant_id" validate:"required,gt=0"`
	MovementType     string          `json:"movement_type" validate:"required,oneof=IN OUT"`
	AdjustmentType   string          `json:"adjustment_type" validate:"omitempty,oneof=OPENING ADJUSTMENT"`
	Quantity         decimal.Decimal `json:"quantity" validate:"gt=0"`
	Rate             decimal.Decimal `json:"rate" validate:"gte=0"`
	Date             string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Reference        string          `json:"reference" validate:"max=50"`
	Remarks          string          `json:"remarks" validate:"max=500"`
}

// SupplierPaymentRequest pays a supplier. With allocations the payment type
// defaults to AGAINST_BILL and a zero amount to the allocated total.
type SupplierPaymentRequest struct {
	SupplierID      int                 `json:"supplier_id" validate:"required,gt=0"`
	PaymentDate     string              `json:"payment_date" validate:"omitempty,datetime=2006-01-02"`
	PaymentType     string              `json:"payment_type" validate:"omitempty,oneof=ADVANCE AGAINST_BILL ON_ACCOUNT"`
	PaymentAmount   decimal.Decimal     `json:"payment_amount" validate:"gte=0"`
	PaymentMethod   string              `json:"payment_method" validate:"required,oneof=CASH BANK CHEQUE ONLINE UPI CARD"`
	Reference       string              `json:"payment_reference" validate:"max=100"`
	BankAccountCode string              `json:"bank_account_code" validate:"max=30"`
	ChequeNumber    string              `json:"cheque_number" validate:"required_if=PaymentMethod CHEQUE,max=30"`
	ChequeDate      string              `json:"cheque_date" validate:"omitempty,datetime=2006-01-02"`
	Remarks         string              `json:"remarks"`
	Allocations     []AllocationRequest `json:"allocations" validate:"dive"`
}

type AllocationRequest struct {
	PurchaseID int             `json:"purchase_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
}
