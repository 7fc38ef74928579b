package app

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"garments-erp/internal/config"
	"garments-erp/internal/core"
)

// NewServices builds the core services over pool with the posting and stock
// policies from cfg.
func NewServices(pool *pgxpool.Pool, cfg *config.Configuration) Services {
	ledger := core.NewLedger(pool)
	stock := core.NewStockService(pool)
	rules := core.NewRuleEngine(pool)
	books := core.NewBillBookService(pool)

	opts := core.PostingOptions{
		Deferred:     cfg.Posting.Mode == config.PostingDeferred,
		OnCreate:     cfg.Posting.OnCreate,
		EnforceStock: cfg.Stock.EnforceNonNegative,
	}

	return Services{
		Bills:     core.NewSalesBillService(pool, books, ledger, stock, rules, opts),
		Books:     books,
		Purchases: core.NewPurchaseService(pool, ledger, stock, rules),
		Suppliers: core.NewSupplierPaymentService(pool, ledger, rules),
		Ledger:    ledger,
		Stock:     stock,
		Reports:   core.NewReportingService(pool),

		EnforceStock: cfg.Stock.EnforceNonNegative,
	}
}
