package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxMode selects how a line's rate relates to tax.
type TaxMode string

const (
	TaxIncluded TaxMode = "INCLUDE_TAX" // rate already contains tax; tax is backed out
	TaxExcluded TaxMode = "EXCLUDE_TAX" // tax is added on top of the rate
	TaxNone     TaxMode = "WITHOUT_TAX"
)

func (m TaxMode) Valid() bool {
	switch m {
	case TaxIncluded, TaxExcluded, TaxNone:
		return true
	}
	return false
}

type BillBookStatus string

const (
	BookActive   BillBookStatus = "ACTIVE"
	BookInactive BillBookStatus = "INACTIVE"
	BookClosed   BillBookStatus = "CLOSED"
)

// BillBook is a numbering series for sales bills.
type BillBook struct {
	ID             int            `json:"id"`
	BookName       string         `json:"book_name"`
	BookCode       string         `json:"book_code"`
	Prefix         string         `json:"prefix"`
	TaxType        TaxMode        `json:"tax_type"`
	StartingNumber int            `json:"starting_number"`
	LastBillNo     int            `json:"last_bill_no"`
	Status         BillBookStatus `json:"status"`
}

// BillNumber is an issued (or previewed) number from a bill book.
type BillNumber struct {
	Full  string `json:"full"`
	Value int    `json:"value"`
}

// BillStatus is the lifecycle state of a sales bill:
//
//	DRAFT → CONFIRMED → (SHIPPED → DELIVERED →) COMPLETED
//	any pre-COMPLETED state → CANCELLED
type BillStatus string

const (
	BillDraft     BillStatus = "DRAFT"
	BillConfirmed BillStatus = "CONFIRMED"
	BillShipped   BillStatus = "SHIPPED"
	BillDelivered BillStatus = "DELIVERED"
	BillCompleted BillStatus = "COMPLETED"
	BillCancelled BillStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentOverdue PaymentStatus = "OVERDUE"
)

type PaymentMethod string

const (
	MethodCash   PaymentMethod = "CASH"
	MethodBank   PaymentMethod = "BANK"
	MethodCheque PaymentMethod = "CHEQUE"
	MethodOnline PaymentMethod = "ONLINE"
	MethodUPI    PaymentMethod = "UPI"
	MethodCard   PaymentMethod = "CARD"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodBank, MethodCheque, MethodOnline, MethodUPI, MethodCard:
		return true
	}
	return false
}

// SettlementRule returns the account rule that receives money paid by this method.
func (m PaymentMethod) SettlementRule() string {
	if m == MethodCash {
		return RuleCash
	}
	return RuleBank
}

type SaleType string

const (
	SaleRegular   SaleType = "REGULAR"
	SaleWholesale SaleType = "WHOLESALE"
	SaleRetail    SaleType = "RETAIL"
	SaleB2B       SaleType = "B2B"
	SaleExport    SaleType = "EXPORT"
)

type SalesBill struct {
	ID                 int             `json:"id"`
	BillNumber         string          `json:"bill_number"`
	BillDate           time.Time       `json:"bill_date"`
	DueDate            *time.Time      `json:"due_date,omitempty"`
	BillBookID         int             `json:"bill_book_id"`
	TaxType            TaxMode         `json:"tax_type"`
	CustomerID         int             `json:"customer_id"`
	CustomerName       string          `json:"customer_name"`
	AgentID            *int            `json:"agent_id,omitempty"`
	TransportName      *string         `json:"transport_name,omitempty"`
	TotalItemCount     int             `json:"total_item_count"`
	TotalQuantity      decimal.Decimal `json:"total_quantity"`
	GrossAmount        decimal.Decimal `json:"gross_amount"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	TaxableAmount      decimal.Decimal `json:"taxable_amount"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	AdjustmentAmount   decimal.Decimal `json:"adjustment_amount"`
	NetAmount          decimal.Decimal `json:"net_amount"`
	PaymentStatus      PaymentStatus   `json:"payment_status"`
	PaidAmount         decimal.Decimal `json:"paid_amount"`
	BalanceAmount      decimal.Decimal `json:"balance_amount"`
	SaleType           SaleType        `json:"sale_type"`
	SettlementAccount  *string         `json:"settlement_account,omitempty"`
	ReferenceNumber    *string         `json:"reference_number,omitempty"`
	Remarks            *string         `json:"remarks,omitempty"`
	Status             BillStatus      `json:"status"`
	AccountsUpdated    bool            `json:"accounts_updated"`
	StockUpdated       bool            `json:"stock_updated"`
	LedgerBatchID      *int            `json:"ledger_batch_id,omitempty"`
	PostingAttempts    int             `json:"posting_attempts"`
	LastPostingError   *string         `json:"last_posting_error,omitempty"`
	CreatedBy          string          `json:"created_by"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`

	Items    []SalesBillItem    `json:"items"`
	Payments []SalesBillPayment `json:"payments"`
}

type SalesBillItem struct {
	ID                 int             `json:"id"`
	BillID             int             `json:"bill_id"`
	ItemSequence       int             `json:"item_sequence"`
	ProductVariantID   int             `json:"product_variant_id"`
	SKUCode            string          `json:"sku_code"`
	ProductName        string          `json:"product_name"`
	HSNCode            *string         `json:"hsn_code,omitempty"`
	Unit               string          `json:"unit"`
	Quantity           decimal.Decimal `json:"quantity"`
	Rate               decimal.Decimal `json:"rate"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	GrossAmount        decimal.Decimal `json:"gross_amount"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	TaxableAmount      decimal.Decimal `json:"taxable_amount"`
	TaxPercentage      decimal.Decimal `json:"tax_percentage"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	CostPrice          decimal.Decimal `json:"cost_price"`
	StockDeducted      bool            `json:"stock_deducted"`
	StockLedgerID      *int            `json:"stock_ledger_id,omitempty"`
}

type SalesBillPayment struct {
	ID               int             `json:"id"`
	BillID           int             `json:"bill_id"`
	ReceiptNumber    string          `json:"receipt_number"`
	PaymentDate      time.Time       `json:"payment_date"`
	PaymentAmount    decimal.Decimal `json:"payment_amount"`
	PaymentMethod    PaymentMethod   `json:"payment_method"`
	PaymentReference *string         `json:"payment_reference,omitempty"`
	BankAccountCode  *string         `json:"bank_account_code,omitempty"`
	ChequeNumber     *string         `json:"cheque_number,omitempty"`
	ChequeDate       *time.Time      `json:"cheque_date,omitempty"`
	LedgerBatchID    *int            `json:"ledger_batch_id,omitempty"`
	AccountsUpdated  bool            `json:"accounts_updated"`
	Remarks          *string         `json:"remarks,omitempty"`
	CreatedBy        string          `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
}

// BillLineInput is one requested line of a new bill. A nil Rate or
// TaxPercentage falls back to the variant's sale price and tax rate.
type BillLineInput struct {
	ProductVariantID   int
	Quantity           decimal.Decimal
	Rate               *decimal.Decimal
	DiscountPercentage decimal.Decimal
	TaxPercentage      *decimal.Decimal
}

type CreateBillInput struct {
	BillBookID         int
	CustomerID         int
	BillDate           time.Time
	DueDate            *time.Time
	AgentID            *int
	TransportName      string
	DiscountPercentage decimal.Decimal
	AdjustmentAmount   decimal.Decimal
	SaleType           SaleType
	ReferenceNumber    string
	Remarks            string
	// PaidBy, when set, records the bill as settled at creation: the receivable
	// is skipped and the net amount is debited to the method's cash or bank account.
	PaidBy             *PaymentMethod
	CreatedBy          string
	Lines              []BillLineInput
}

type PaymentInput struct {
	PaymentDate     time.Time
	Amount          decimal.Decimal
	Method          PaymentMethod
	Reference       string
	BankAccountCode string
	ChequeNumber    string
	ChequeDate      *time.Time
	Remarks         string
	CreatedBy       string
}

// UnpostedBill is a bill in a posted state whose posting flags are not both true.
type UnpostedBill struct {
	ID              int
	Number          string
	AccountsUpdated bool
	StockUpdated    bool
	Attempts        int
}
