package app

import (
	"github.com/shopspring/decimal"

	"garments-erp/internal/core"
)

// BillResult is a bill with its read-time payment status.
type BillResult struct {
	*core.SalesBill
	// EffectivePaymentStatus is OVERDUE for unpaid bills past their due date.
	EffectivePaymentStatus core.PaymentStatus `json:"effective_payment_status"`
}

// TrialBalanceResult is returned by GetTrialBalance.
type TrialBalanceResult struct {
	Accounts    []core.AccountBalance `json:"accounts"`
	TotalDebit  decimal.Decimal       `json:"total_debit"`
	TotalCredit decimal.Decimal       `json:"total_credit"`
	Balanced    bool                  `json:"balanced"`
}

// StockResult is returned by GetStock.
type StockResult struct {
	Level     *core.StockLevel        `json:"level"`
	Movements []core.StockLedgerEntry `json:"movements"`
}
