package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	Asset     AccountType = "asset"
	Liability AccountType = "liability"
	Equity    AccountType = "equity"
	Revenue   AccountType = "revenue"
	Expense   AccountType = "expense"
)

type Account struct {
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Type     AccountType     `json:"type"`
	Balance  decimal.Decimal `json:"balance"`
	IsActive bool            `json:"is_active"`
}

// ReferenceType names the kind of source document a batch or stock row belongs to.
type ReferenceType string

const (
	RefSale            ReferenceType = "SALE"
	RefPayment         ReferenceType = "PAYMENT" // customer receipt
	RefPurchase        ReferenceType = "PURCHASE"
	RefPurchaseReturn  ReferenceType = "PURCHASE_RETURN"
	RefSupplierPayment ReferenceType = "SUPPLIER_PAYMENT"
	RefJournal         ReferenceType = "JOURNAL"
	RefAdjustment      ReferenceType = "ADJUSTMENT"
)

// Reversal returns the reference type used for the batch that reverses r.
func (r ReferenceType) Reversal() ReferenceType {
	return r + "_REVERSAL"
}

type VoucherType string

const (
	VoucherSales          VoucherType = "SV"
	VoucherReceipt        VoucherType = "RV"
	VoucherPayment        VoucherType = "PV"
	VoucherPurchase       VoucherType = "PurchaseV"
	VoucherPurchaseReturn VoucherType = "PRV"
	VoucherJournal        VoucherType = "JV"
)

// Party identifies the customer or supplier a posting is made against.
type Party struct {
	Type string `json:"party_type,omitempty"` // CUSTOMER, SUPPLIER
	ID   string `json:"party_id,omitempty"`
	Name string `json:"party_name,omitempty"`
}

// EntryLine is one side of a posting request. Exactly one of Debit and Credit is non-zero.
type EntryLine struct {
	AccountCode string          `json:"account_code"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

// PostingRequest is a complete double-entry posting for one business event.
type PostingRequest struct {
	Date          time.Time
	Description   string
	ReferenceType ReferenceType
	ReferenceID   string
	VoucherType   VoucherType
	VoucherNumber string
	Party         *Party
	CreatedBy     string
	Entries       []EntryLine
}

type TransactionBatch struct {
	ID              int             `json:"id"`
	BatchNumber     string          `json:"batch_number"`
	BatchDate       time.Time       `json:"batch_date"`
	Description     string          `json:"description"`
	ReferenceType   ReferenceType   `json:"reference_type"`
	ReferenceID     string          `json:"reference_id"`
	TotalDebit      decimal.Decimal `json:"total_debit"`
	TotalCredit     decimal.Decimal `json:"total_credit"`
	IsBalanced      bool            `json:"is_balanced"`
	IsPosted        bool            `json:"is_posted"`
	ReversesBatchID *int            `json:"reverses_batch_id,omitempty"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	Entries         []LedgerEntry   `json:"entries,omitempty"`
}

type LedgerEntry struct {
	ID                int             `json:"id"`
	BatchID           int             `json:"batch_id"`
	TransactionNumber string          `json:"transaction_number"`
	TransactionDate   time.Time       `json:"transaction_date"`
	AccountCode       string          `json:"account_code"`
	Description       string          `json:"description"`
	ReferenceType     ReferenceType   `json:"reference_type"`
	ReferenceID       string          `json:"reference_id"`
	DebitAmount       decimal.Decimal `json:"debit_amount"`
	CreditAmount      decimal.Decimal `json:"credit_amount"`
	VoucherType       VoucherType     `json:"voucher_type"`
	VoucherNumber     string          `json:"voucher_number"`
	PartyType         *string         `json:"party_type,omitempty"`
	PartyID           *string         `json:"party_id,omitempty"`
	PartyName         *string         `json:"party_name,omitempty"`
	IsReconciled      bool            `json:"is_reconciled"`
	IsPosted          bool            `json:"is_posted"`
	CreatedBy         string          `json:"created_by"`
}

type AccountBalance struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Type    AccountType     `json:"type"`
	Balance decimal.Decimal `json:"balance"`
}

// AccountCheck compares an account's cached balance with the sum of its entries.
type AccountCheck struct {
	Code       string          `json:"code"`
	Cached     decimal.Decimal `json:"cached"`
	Recomputed decimal.Decimal `json:"recomputed"`
}

func (c AccountCheck) Consistent() bool {
	return c.Cached.Equal(c.Recomputed)
}
