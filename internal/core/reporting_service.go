package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ── Report types ──────────────────────────────────────────────────────────────

// StatementLine is a single ledger entry in an account statement.
// RunningBalance is the cumulative net-debit position after this line
// (positive = net debit, negative = net credit), starting from the opening balance.
type StatementLine struct {
	TransactionNumber string          `json:"transaction_number"`
	TransactionDate   time.Time       `json:"transaction_date"`
	Description       string          `json:"description"`
	VoucherType       VoucherType     `json:"voucher_type"`
	VoucherNumber     string          `json:"voucher_number"`
	ReferenceType     ReferenceType   `json:"reference_type"`
	ReferenceID       string          `json:"reference_id"`
	Debit             decimal.Decimal `json:"debit"`
	Credit            decimal.Decimal `json:"credit"`
	RunningBalance    decimal.Decimal `json:"running_balance"`
}

type AccountStatement struct {
	AccountCode    string          `json:"account_code"`
	From           *time.Time      `json:"from,omitempty"`
	To             *time.Time      `json:"to,omitempty"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	Lines          []StatementLine `json:"lines"`
}

// AccountLine is a single account in a P&L or balance sheet section.
// Balance uses the section's natural sign:
//   - Revenue, Liabilities, Equity: positive = net credit
//   - Expenses, Assets: positive = net debit
type AccountLine struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

type PLReport struct {
	From      time.Time       `json:"from"`
	To        time.Time       `json:"to"`
	Revenue   []AccountLine   `json:"revenue"`
	Expenses  []AccountLine   `json:"expenses"`
	NetIncome decimal.Decimal `json:"net_income"`
}

// BSReport is the balance sheet as of a date. Revenue and expense are not
// closed to equity, so the unclosed result appears as RetainedEarnings and
// IsBalanced holds for any correctly posted ledger.
type BSReport struct {
	AsOf             time.Time       `json:"as_of"`
	Assets           []AccountLine   `json:"assets"`
	Liabilities      []AccountLine   `json:"liabilities"`
	Equity           []AccountLine   `json:"equity"`
	RetainedEarnings decimal.Decimal `json:"retained_earnings"`
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	TotalEquity      decimal.Decimal `json:"total_equity"`
	IsBalanced       bool            `json:"is_balanced"`
}

// ── Interface ─────────────────────────────────────────────────────────────────

// ReportingService provides read-only reports computed from ledger entries,
// not from cached account balances.
type ReportingService interface {
	// AccountStatement returns the entries for an account between the optional
	// bounds, ordered by date then entry id, with a running balance.
	AccountStatement(ctx context.Context, accountCode string, from, to *time.Time) (*AccountStatement, error)
	ProfitAndLoss(ctx context.Context, from, to time.Time) (*PLReport, error)
	BalanceSheet(ctx context.Context, asOf time.Time) (*BSReport, error)
}

// ── Implementation ────────────────────────────────────────────────────────────

type reportingService struct {
	pool *pgxpool.Pool
}

// NewReportingService constructs a ReportingService backed by the given pool.
func NewReportingService(pool *pgxpool.Pool) ReportingService {
	return &reportingService{pool: pool}
}

// ── AccountStatement ──────────────────────────────────────────────────────────

func (s *reportingService) AccountStatement(ctx context.Context, accountCode string, from, to *time.Time) (*AccountStatement, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, invalidInput("statement end %s is before start %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM accounts WHERE code = $1)", accountCode).Scan(&exists); err != nil {
		return nil, dbError(err, "failed to look up account %s", accountCode)
	}
	if !exists {
		return nil, notFound("account %s not found", accountCode)
	}

	st := &AccountStatement{AccountCode: accountCode, From: from, To: to, OpeningBalance: decimal.Zero}
	if from != nil {
		if err := s.pool.QueryRow(ctx, `
			SELECT COALESCE(SUM(debit_amount - credit_amount), 0)
			FROM ledger_entries
			WHERE account_code = $1 AND transaction_date < $2::date
		`, accountCode, *from).Scan(&st.OpeningBalance); err != nil {
			return nil, dbError(err, "failed to compute opening balance for %s", accountCode)
		}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT transaction_number, transaction_date, description, voucher_type, voucher_number,
		       reference_type, reference_id, debit_amount, credit_amount
		FROM ledger_entries
		WHERE account_code = $1
		  AND ($2::date IS NULL OR transaction_date >= $2::date)
		  AND ($3::date IS NULL OR transaction_date <= $3::date)
		ORDER BY transaction_date, id
	`, accountCode, from, to)
	if err != nil {
		return nil, dbError(err, "failed to query statement for %s", accountCode)
	}
	defer rows.Close()

	running := st.OpeningBalance
	for rows.Next() {
		var sl StatementLine
		if err := rows.Scan(&sl.TransactionNumber, &sl.TransactionDate, &sl.Description,
			&sl.VoucherType, &sl.VoucherNumber, &sl.ReferenceType, &sl.ReferenceID,
			&sl.Debit, &sl.Credit); err != nil {
			return nil, dbError(err, "failed to scan statement line")
		}
		running = running.Add(sl.Debit).Sub(sl.Credit)
		sl.RunningBalance = running
		st.Lines = append(st.Lines, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "statement row iteration")
	}
	st.ClosingBalance = running
	return st, nil
}

// ── ProfitAndLoss ─────────────────────────────────────────────────────────────

func (s *reportingService) ProfitAndLoss(ctx context.Context, from, to time.Time) (*PLReport, error) {
	if to.Before(from) {
		return nil, invalidInput("period end %s is before start %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}

	rows, err := s.pool.Query(ctx, `
		SELECT a.code, a.name, a.type,
		       COALESCE(SUM(e.debit_amount), 0), COALESCE(SUM(e.credit_amount), 0)
		FROM accounts a
		LEFT JOIN ledger_entries e
		       ON e.account_code = a.code AND e.transaction_date BETWEEN $1::date AND $2::date
		WHERE a.type IN ('revenue', 'expense')
		GROUP BY a.code, a.name, a.type
		ORDER BY a.type DESC, a.code
	`, from, to)
	if err != nil {
		return nil, dbError(err, "failed to query profit and loss")
	}

	report := &PLReport{From: from, To: to, NetIncome: decimal.Zero}
	err = scanTypedBalances(rows, func(line AccountLine, typ AccountType, debit, credit decimal.Decimal) {
		switch typ {
		case Revenue:
			line.Balance = credit.Sub(debit)
			report.Revenue = append(report.Revenue, line)
			report.NetIncome = report.NetIncome.Add(line.Balance)
		case Expense:
			line.Balance = debit.Sub(credit)
			report.Expenses = append(report.Expenses, line)
			report.NetIncome = report.NetIncome.Sub(line.Balance)
		}
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ── BalanceSheet ──────────────────────────────────────────────────────────────

func (s *reportingService) BalanceSheet(ctx context.Context, asOf time.Time) (*BSReport, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.code, a.name, a.type,
		       COALESCE(SUM(e.debit_amount), 0), COALESCE(SUM(e.credit_amount), 0)
		FROM accounts a
		LEFT JOIN ledger_entries e
		       ON e.account_code = a.code AND e.transaction_date <= $1::date
		GROUP BY a.code, a.name, a.type
		ORDER BY a.type, a.code
	`, asOf)
	if err != nil {
		return nil, dbError(err, "failed to query balance sheet")
	}

	report := &BSReport{
		AsOf:             asOf,
		RetainedEarnings: decimal.Zero,
		TotalAssets:      decimal.Zero,
		TotalLiabilities: decimal.Zero,
		TotalEquity:      decimal.Zero,
	}
	err = scanTypedBalances(rows, func(line AccountLine, typ AccountType, debit, credit decimal.Decimal) {
		net := debit.Sub(credit)
		switch typ {
		case Asset:
			line.Balance = net
			report.Assets = append(report.Assets, line)
			report.TotalAssets = report.TotalAssets.Add(net)
		case Liability:
			line.Balance = net.Neg()
			report.Liabilities = append(report.Liabilities, line)
			report.TotalLiabilities = report.TotalLiabilities.Add(line.Balance)
		case Equity:
			line.Balance = net.Neg()
			report.Equity = append(report.Equity, line)
			report.TotalEquity = report.TotalEquity.Add(line.Balance)
		case Revenue, Expense:
			report.RetainedEarnings = report.RetainedEarnings.Sub(net)
		}
	})
	if err != nil {
		return nil, err
	}

	report.TotalEquity = report.TotalEquity.Add(report.RetainedEarnings)
	report.IsBalanced = report.TotalAssets.Equal(report.TotalLiabilities.Add(report.TotalEquity))
	return report, nil
}

func scanTypedBalances(rows pgx.Rows, add func(line AccountLine, typ AccountType, debit, credit decimal.Decimal)) error {
	defer rows.Close()
	for rows.Next() {
		var (
			line          AccountLine
			typ           AccountType
			debit, credit decimal.Decimal
		)
		if err := rows.Scan(&line.Code, &line.Name, &typ, &debit, &credit); err != nil {
			return dbError(err, "failed to scan account totals")
		}
		add(line, typ, debit, credit)
	}
	if err := rows.Err(); err != nil {
		return dbError(err, "account totals row iteration")
	}
	return nil
}
