package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseType string

const (
	PurchaseCash   PurchaseType = "CASH"
	PurchaseCredit PurchaseType = "CREDIT"
)

type DocumentStatus string

const (
	DocDraft     DocumentStatus = "DRAFT"
	DocPosted    DocumentStatus = "POSTED"
	DocCancelled DocumentStatus = "CANCELLED"
)

type RefundMode string

const (
	RefundCash   RefundMode = "CASH"
	RefundBank   RefundMode = "BANK"
	RefundAdjust RefundMode = "ADJUST" // set off against the supplier's payable
)

// Purchase is a supplier bill. Accepted quantities go into stock on posting.
type Purchase struct {
	ID               int             `json:"id"`
	PurchaseNumber   string          `json:"purchase_number"`
	SupplierID       int             `json:"supplier_id"`
	SupplierName     string          `json:"supplier_name"`
	PurchaseDate     time.Time       `json:"purchase_date"`
	PurchaseType     PurchaseType    `json:"purchase_type"`
	PaymentMode      *PaymentMethod  `json:"payment_mode,omitempty"`
	SubTotal         decimal.Decimal `json:"sub_total"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	TransportCharges decimal.Decimal `json:"transport_charges"`
	OtherCharges     decimal.Decimal `json:"other_charges"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	AmountPaid       decimal.Decimal `json:"amount_paid"`
	Status           DocumentStatus  `json:"status"`
	IsStockUpdated   bool            `json:"is_stock_updated"`
	IsLedgerPosted   bool            `json:"is_ledger_posted"`
	LedgerBatchID    *int            `json:"ledger_batch_id,omitempty"`
	Remarks          *string         `json:"remarks,omitempty"`
	CreatedBy        string          `json:"created_by"`
	PostedBy         *string         `json:"posted_by,omitempty"`
	PostedAt         *time.Time      `json:"posted_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`

	Items []PurchaseItem `json:"items"`
}

type PurchaseItem struct {
	ID             int             `json:"id"`
	PurchaseID     int             `json:"purchase_id"`
	LineNumber     int             `json:"line_number"`
	VariantID      int             `json:"variant_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	RejectedQty    decimal.Decimal `json:"rejected_qty"`
	AcceptedQty    decimal.Decimal `json:"accepted_qty"`
	Rate           decimal.Decimal `json:"rate"`
	Amount         decimal.Decimal `json:"amount"`
	IsStockUpdated bool            `json:"is_stock_updated"`
	StockLedgerID  *int            `json:"stock_ledger_id,omitempty"`
}

type PurchaseItemInput struct {
	VariantID   int
	Quantity    decimal.Decimal
	RejectedQty decimal.Decimal
	Rate        decimal.Decimal
}

type CreatePurchaseInput struct {
	SupplierID       int
	PurchaseDate     time.Time
	PurchaseType     PurchaseType
	PaymentMode      *PaymentMethod
	TaxAmount        decimal.Decimal
	TransportCharges decimal.Decimal
	OtherCharges     decimal.Decimal
	DiscountAmount   decimal.Decimal
	// AmountPaid is ignored for CASH purchases, which are paid in full.
	AmountPaid       decimal.Decimal
	Remarks          string
	CreatedBy        string
	Items            []PurchaseItemInput
}

// PostOptions select which effects PostPurchase applies. Effects already
// applied are skipped.
type PostOptions struct {
	ToStock  bool
	ToLedger bool
}

type PurchaseReturn struct {
	ID             int             `json:"id"`
	ReturnNumber   string          `json:"return_number"`
	PurchaseID     int             `json:"purchase_id"`
	SupplierID     int             `json:"supplier_id"`
	ReturnDate     time.Time       `json:"return_date"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	RefundMode     *RefundMode     `json:"refund_mode,omitempty"`
	RefundAmount   decimal.Decimal `json:"refund_amount"`
	Reason         *string         `json:"reason,omitempty"`
	Status         DocumentStatus  `json:"status"`
	IsStockUpdated bool            `json:"is_stock_updated"`
	IsLedgerPosted bool            `json:"is_ledger_posted"`
	LedgerBatchID  *int            `json:"ledger_batch_id,omitempty"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`

	Items []PurchaseReturnItem `json:"items"`
}

type PurchaseReturnItem struct {
	ID             int             `json:"id"`
	ReturnID       int             `json:"return_id"`
	PurchaseItemID int             `json:"purchase_item_id"`
	VariantID      int             `json:"variant_id"`
	ReturnQuantity decimal.Decimal `json:"return_quantity"`
	Rate           decimal.Decimal `json:"rate"`
	Amount         decimal.Decimal `json:"amount"`
	IsStockUpdated bool            `json:"is_stock_updated"`
	StockLedgerID  *int            `json:"stock_ledger_id,omitempty"`
}

type PurchaseReturnItemInput struct {
	PurchaseItemID int
	Quantity       decimal.Decimal
}

type CreatePurchaseReturnInput struct {
	PurchaseID   int
	ReturnDate   time.Time
	RefundMode   RefundMode
	// RefundAmount defaults to the return total for CASH and BANK refunds.
	RefundAmount decimal.Decimal
	Reason       string
	CreatedBy    string
	Items        []PurchaseReturnItemInput
}

// PurchaseService records supplier purchases and returns and posts them to
// stock and the ledger.
type PurchaseService interface {
	CreatePurchase(ctx context.Context, in CreatePurchaseInput) (*Purchase, error)
	// PostPurchase receives accepted quantities into stock and books
	// DR Purchase / CR supplier or cash. A fully posted purchase returns AlreadyPosted.
	PostPurchase(ctx context.Context, purchaseID int, opts PostOptions, actor string) (*Purchase, error)
	GetPurchase(ctx context.Context, purchaseID int) (*Purchase, error)

	CreatePurchaseReturn(ctx context.Context, in CreatePurchaseReturnInput) (*PurchaseReturn, error)
	// PostPurchaseReturn sends goods back without the availability check and
	// credits Purchase against the refund account and the supplier.
	PostPurchaseReturn(ctx context.Context, returnID int, actor string) (*PurchaseReturn, error)
	GetPurchaseReturn(ctx context.Context, returnID int) (*PurchaseReturn, error)
}
