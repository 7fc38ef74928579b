// Package cli is the operator command tree for tasks that run against the
// database directly: migrations, reconciliation, integrity checks and manual
// journal, stock and supplier-payment entries.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"garments-erp/internal/app"
	"garments-erp/internal/config"
	"garments-erp/internal/core"
	"garments-erp/internal/db"
	"garments-erp/internal/logger"
	"garments-erp/internal/worker"
	"garments-erp/migrations"
)

const operator = "erpctl"

// env is populated by the root command before any subcommand runs.
type env struct {
	cfg  *config.Configuration
	pool *pgxpool.Pool
	svc  app.Services
}

// NewRootCommand returns the erpctl command tree.
func NewRootCommand() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:           "erpctl",
		Short:         "Operator tools for the garments ERP",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return err
			}
			if err := logger.Setup(logger.LogConfig{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				Output: "stderr",
			}); err != nil {
				return err
			}
			pool, err := db.NewPool(cmd.Context(), cfg.Postgres)
			if err != nil {
				return err
			}
			e.cfg, e.pool, e.svc = cfg, pool, app.NewServices(pool, cfg)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if e.pool != nil {
				e.pool.Close()
			}
		},
	}

	root.AddCommand(
		e.migrateCmd(),
		e.reconcileCmd(),
		e.nextNumberCmd(),
		e.balancesCmd(),
		e.stockCmd(),
		e.postBillCmd(),
		e.purchaseCmd(),
		e.journalCmd(),
		e.supplierCmd(),
	)
	return root
}

func (e *env) appService() app.ApplicationService {
	return app.NewAppService(e.pool, e.svc)
}

func (e *env) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applied, err := migrations.Apply(cmd.Context(), e.pool)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}

func (e *env) reconcileCmd() *cobra.Command {
	var loop bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Complete ledger and stock posting for confirmed bills",
		Long: `Reconcile finds bills in a posted state whose ledger or stock posting is
missing and posts them. By default one round runs and its summary is printed;
--loop keeps running every reconciler.interval until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := worker.NewReconciler(e.svc.Bills, e.cfg.Reconciler)
			if loop {
				r.Run(cmd.Context())
				return nil
			}
			summary, err := r.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().BoolVar(&loop, "loop", false, "keep reconciling until interrupted")
	return cmd
}

func (e *env) nextNumberCmd() *cobra.Command {
	var reserve bool
	cmd := &cobra.Command{
		Use:   "next-number <book-id>",
		Short: "Preview (or reserve) the next bill number of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := positiveID("book-id", args[0])
			if err != nil {
				return err
			}
			next := e.svc.Books.PreviewNext
			if reserve {
				next = e.svc.Books.ReserveNext
			}
			n, err := next(cmd.Context(), bookID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n.Full)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reserve, "reserve", false, "consume the number instead of previewing it")
	return cmd
}

func (e *env) balancesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "balances",
		Aliases: []string{"bal"},
		Short:   "Print the trial balance",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tb, err := e.appService().GetTrialBalance(cmd.Context())
			if err != nil {
				return err
			}
			printTrialBalance(cmd.OutOrStdout(), tb)
			return nil
		},
	}
}

func (e *env) stockCmd() *cobra.Command {
	stock := &cobra.Command{
		Use:   "stock",
		Short: "Stock ledger tools",
	}
	stock.AddCommand(&cobra.Command{
		Use:   "verify <variant-id>",
		Short: "Recompute a variant's balance from its movements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variantID, err := positiveID("variant-id", args[0])
			if err != nil {
				return err
			}
			check, err := e.svc.Stock.Recompute(cmd.Context(), variantID)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), check); err != nil {
				return err
			}
			if !check.Consistent() {
				return fmt.Errorf("stock for variant %d is inconsistent", variantID)
			}
			return nil
		},
	})

	var f adjustFlags
	adjust := &cobra.Command{
		Use:   "adjust <variant-id>",
		Short: "Record opening stock or a manual stock correction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variantID, err := positiveID("variant-id", args[0])
			if err != nil {
				return err
			}
			req, err := f.request(variantID)
			if err != nil {
				return err
			}
			entry, err := e.appService().AdjustStock(cmd.Context(), req, operator)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Variant %d %s %s (%s), balance %s\n",
				entry.VariantID, entry.MovementType, req.Quantity, entry.ReferenceID, entry.BalanceAfter)
			return nil
		},
	}
	adjust.Flags().StringVar(&f.quantity, "qty", "", "quantity to move (required)")
	adjust.Flags().StringVar(&f.rate, "rate", "0", "unit value of the movement")
	adjust.Flags().BoolVar(&f.out, "out", false, "move stock out instead of in")
	adjust.Flags().BoolVar(&f.opening, "opening", false, "record as opening stock")
	adjust.Flags().StringVar(&f.date, "date", "", "movement date, YYYY-MM-DD (default today)")
	adjust.Flags().StringVar(&f.remarks, "remarks", "", "reason for the adjustment")
	_ = adjust.MarkFlagRequired("qty")

	stock.AddCommand(adjust)
	return stock
}

type adjustFlags struct {
	quantity, rate string
	out, opening   bool
	date, remarks  string
}

func (f adjustFlags) request(variantID int) (app.StockAdjustmentRequest, error) {
	qty, err := decimal.NewFromString(f.quantity)
	if err != nil {
		return app.StockAdjustmentRequest{}, fmt.Errorf("--qty must be a number, got %q", f.quantity)
	}
	rate, err := decimal.NewFromString(f.rate)
	if err != nil {
		return app.StockAdjustmentRequest{}, fmt.Errorf("--rate must be a number, got %q", f.rate)
	}
	req := app.StockAdjustmentRequest{
		ProductVariantID: variantID,
		MovementType:     string(core.MovementIn),
		AdjustmentType:   "ADJUSTMENT",
		Quantity:         qty,
		Rate:             rate,
		Date:             f.date,
		Remarks:          f.remarks,
	}
	if f.out {
		req.MovementType = string(core.MovementOut)
	}
	if f.opening {
		req.AdjustmentType = "OPENING"
	}
	return req, nil
}

func (e *env) postBillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "post-bill <bill-id>",
		Short: "Retry ledger and stock posting for one bill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			billID, err := positiveID("bill-id", args[0])
			if err != nil {
				return err
			}
			bill, err := e.svc.Bills.PostBill(cmd.Context(), billID, operator)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bill %s posted (accounts=%t, stock=%t)\n",
				bill.BillNumber, bill.AccountsUpdated, bill.StockUpdated)
			return nil
		},
	}
}

func (e *env) purchaseCmd() *cobra.Command {
	purchase := &cobra.Command{
		Use:   "purchase",
		Short: "Supplier purchase tools",
	}

	var toStock, toLedger bool
	post := &cobra.Command{
		Use:   "post <purchase-id>",
		Short: "Receive a purchase into stock and/or book it to the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			purchaseID, err := positiveID("purchase-id", args[0])
			if err != nil {
				return err
			}
			p, err := e.svc.Purchases.PostPurchase(cmd.Context(), purchaseID,
				core.PostOptions{ToStock: toStock, ToLedger: toLedger}, operator)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purchase %s %s (stock=%t, ledger=%t)\n",
				p.PurchaseNumber, p.Status, p.IsStockUpdated, p.IsLedgerPosted)
			return nil
		},
	}
	post.Flags().BoolVar(&toStock, "stock", true, "receive accepted quantities into stock")
	post.Flags().BoolVar(&toLedger, "ledger", true, "book the purchase to the ledger")

	purchase.AddCommand(post)
	return purchase
}

func (e *env) journalCmd() *cobra.Command {
	journal := &cobra.Command{
		Use:   "journal",
		Short: "Manual journal entries",
	}

	var file string
	post := &cobra.Command{
		Use:   "post",
		Short: "Post a journal of any number of balanced entries from a JSON file",
		Long: `Post reads {date, reference, description, entries: [{account_code, debit, credit}]}
from --file ("-" for stdin) and books every entry in one batch. Without a
reference the journal is numbered from the JNL series.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req app.JournalRequest
			if err := readJSON(cmd.InOrStdin(), file, &req); err != nil {
				return err
			}
			batch, err := e.appService().PostJournal(cmd.Context(), req, operator)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Journal %s posted as %s (%s)\n",
				batch.ReferenceID, batch.BatchNumber, batch.TotalDebit.StringFixed(2))
			return nil
		},
	}
	post.Flags().StringVarP(&file, "file", "f", "-", "JSON journal file")

	journal.AddCommand(post)
	return journal
}

func (e *env) supplierCmd() *cobra.Command {
	supplier := &cobra.Command{
		Use:   "supplier",
		Short: "Supplier payment tools",
	}

	supplier.AddCommand(&cobra.Command{
		Use:   "outstanding <supplier-id>",
		Short: "List credit purchases still owed to a supplier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			supplierID, err := positiveID("supplier-id", args[0])
			if err != nil {
				return err
			}
			open, err := e.appService().GetSupplierOutstanding(cmd.Context(), supplierID)
			if err != nil {
				return err
			}
			printOutstanding(cmd.OutOrStdout(), open)
			return nil
		},
	})

	var file string
	pay := &cobra.Command{
		Use:   "pay",
		Short: "Record a supplier payment from a JSON file",
		Long: `Pay reads {supplier_id, payment_method, payment_amount, allocations: [{purchase_id, amount}]}
from --file ("-" for stdin). Allocations settle specific credit purchases.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req app.SupplierPaymentRequest
			if err := readJSON(cmd.InOrStdin(), file, &req); err != nil {
				return err
			}
			p, err := e.appService().PaySupplier(cmd.Context(), req, operator)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
	pay.Flags().StringVarP(&file, "file", "f", "-", "JSON payment file")

	supplier.AddCommand(pay)
	return supplier
}

// readJSON decodes path, or stdin when path is "-", into v. Unknown fields are rejected.
func readJSON(stdin io.Reader, path string, v any) error {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON in %s: %w", path, err)
	}
	return nil
}

func printOutstanding(w io.Writer, open []core.OutstandingPurchase) {
	if len(open) == 0 {
		fmt.Fprintln(w, "Nothing outstanding.")
		return
	}
	total := decimal.Zero
	fmt.Fprintf(w, "%-18s %-10s %12s %12s %12s\n", "PURCHASE", "DATE", "TOTAL", "SETTLED", "OUTSTANDING")
	for _, o := range open {
		fmt.Fprintf(w, "%-18s %-10s %12s %12s %12s\n", o.PurchaseNumber, o.PurchaseDate.Format("2006-01-02"),
			o.TotalAmount.StringFixed(2), o.Paid.Add(o.Returned).StringFixed(2), o.Outstanding.StringFixed(2))
		total = total.Add(o.Outstanding)
	}
	fmt.Fprintf(w, "%-18s %-10s %12s %12s %12s\n", "", "", "", "Total", total.StringFixed(2))
}

func positiveID(name, arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, arg)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTrialBalance(w io.Writer, tb *app.TrialBalanceResult) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 62))
	fmt.Fprintf(w, "  %-58s\n", "TRIAL BALANCE")
	fmt.Fprintln(w, strings.Repeat("=", 62))
	fmt.Fprintf(w, "  %-10s %-30s %15s\n", "CODE", "NAME", "BALANCE")
	fmt.Fprintln(w, strings.Repeat("-", 62))
	for _, b := range tb.Accounts {
		fmt.Fprintf(w, "  %-10s %-30s %15s\n", b.Code, b.Name, b.Balance.StringFixed(2))
	}
	fmt.Fprintln(w, strings.Repeat("-", 62))
	fmt.Fprintf(w, "  %-41s %15s\n", "Total debit", tb.TotalDebit.StringFixed(2))
	fmt.Fprintf(w, "  %-41s %15s\n", "Total credit", tb.TotalCredit.StringFixed(2))
	if !tb.Balanced {
		fmt.Fprintln(w, "  ** LEDGER DOES NOT BALANCE **")
	}
	fmt.Fprintln(w, strings.Repeat("=", 62))
}
