package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementIn  MovementType = "IN"
	MovementOut MovementType = "OUT"
)

// StockReference ties a stock movement to its source document line.
type StockReference struct {
	Type   ReferenceType
	ID     string
	LineID *int
}

// Movement is a request to move a positive quantity of one variant in or out.
type Movement struct {
	VariantID       int
	Type            MovementType
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	Date            time.Time
	TransactionType string // Sale, Purchase, Purchase Return, Sale Cancel, Opening, Adjustment
	Reference       StockReference
	Remarks         string
	// Enforce rejects an OUT movement that would leave a negative balance.
	Enforce         bool
	CreatedBy       string
}

// StockLedgerEntry is one persisted movement row.
type StockLedgerEntry struct {
	ID              int             `json:"id"`
	VariantID       int             `json:"variant_id"`
	TransactionDate time.Time       `json:"transaction_date"`
	MovementType    MovementType    `json:"movement_type"`
	TransactionType string          `json:"transaction_type"`
	QtyIn           decimal.Decimal `json:"qty_in"`
	QtyOut          decimal.Decimal `json:"qty_out"`
	Rate            decimal.Decimal `json:"rate"`
	BalanceAfter    decimal.Decimal `json:"balance_after"`
	ReferenceType   ReferenceType   `json:"reference_type"`
	ReferenceID     string          `json:"reference_id"`
	ReferenceLineID *int            `json:"reference_line_id,omitempty"`
	Remarks         *string         `json:"remarks,omitempty"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NetQuantity is qty_in − qty_out.
func (e StockLedgerEntry) NetQuantity() decimal.Decimal {
	return e.QtyIn.Sub(e.QtyOut)
}

// Amount is the signed value of the movement at its rate.
func (e StockLedgerEntry) Amount() decimal.Decimal {
	return e.NetQuantity().Mul(e.Rate).Round(2)
}

// StockLevel is the cached balance for one variant.
type StockLevel struct {
	VariantID   int             `json:"variant_id"`
	SKUCode     string          `json:"sku_code"`
	ProductName string          `json:"product_name"`
	Balance     decimal.Decimal `json:"balance"`
}

// StockCheck compares the cached balance with a recomputation from the ledger.
type StockCheck struct {
	VariantID    int             `json:"variant_id"`
	Cached       decimal.Decimal `json:"cached"`
	Recomputed   decimal.Decimal `json:"recomputed"`
	// ChainOK is false when some row's balance_after differs from the previous
	// row's balance_after plus that row's net quantity.
	ChainOK      bool            `json:"chain_ok"`
	BrokenAtID   *int            `json:"broken_at_id,omitempty"`
	EntriesCount int             `json:"entries_count"`
}

func (c StockCheck) Consistent() bool {
	return c.ChainOK && c.Cached.Equal(c.Recomputed)
}
