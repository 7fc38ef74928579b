package core

import (
	"strings"

	"github.com/shopspring/decimal"

	ierr "garments-erp/internal/errors"
)

// Debit returns an entry line debiting code.
func Debit(code string, amount decimal.Decimal, description string) EntryLine {
	return EntryLine{AccountCode: code, Debit: amount, Description: description}
}

// Credit returns an entry line crediting code.
func Credit(code string, amount decimal.Decimal, description string) EntryLine {
	return EntryLine{AccountCode: code, Credit: amount, Description: description}
}

// Normalize trims codes and rounds every amount to the stored precision.
func (r *PostingRequest) Normalize() {
	r.ReferenceID = strings.TrimSpace(r.ReferenceID)
	r.VoucherNumber = strings.TrimSpace(r.VoucherNumber)
	if r.VoucherNumber == "" {
		r.VoucherNumber = r.ReferenceID
	}
	for i := range r.Entries {
		e := &r.Entries[i]
		e.AccountCode = strings.ToUpper(strings.TrimSpace(e.AccountCode))
		e.Debit = round2(e.Debit)
		e.Credit = round2(e.Credit)
		if e.Description == "" {
			e.Description = r.Description
		}
	}
}

// Totals returns Σdebit and Σcredit.
func (r *PostingRequest) Totals() (debit, credit decimal.Decimal) {
	for _, e := range r.Entries {
		debit = debit.Add(e.Debit)
		credit = credit.Add(e.Credit)
	}
	return debit, credit
}

// Validate enforces double entry before anything is written. Each entry has
// exactly one positive side and the batch balances to the paisa.
func (r *PostingRequest) Validate() error {
	if r.ReferenceType == "" || r.ReferenceID == "" {
		return fail(ierr.ErrInvalidEntry, "posting must reference a source document")
	}
	if r.VoucherType == "" {
		return fail(ierr.ErrInvalidEntry, "posting must specify a voucher type")
	}
	if r.Date.IsZero() {
		return fail(ierr.ErrInvalidEntry, "posting must specify a date")
	}
	if len(r.Entries) < 2 {
		return fail(ierr.ErrInvalidEntry, "transaction must have at least 2 entries, got %d", len(r.Entries))
	}

	for i, e := range r.Entries {
		if e.AccountCode == "" {
			return fail(ierr.ErrInvalidEntry, "entry %d has no account", i+1)
		}
		if e.Debit.IsNegative() || e.Credit.IsNegative() {
			return fail(ierr.ErrInvalidEntry, "entry %d (%s): amounts cannot be negative", i+1, e.AccountCode)
		}
		if e.Debit.IsPositive() == e.Credit.IsPositive() {
			return fail(ierr.ErrInvalidEntry, "entry %d (%s): exactly one of debit and credit must be non-zero", i+1, e.AccountCode)
		}
	}

	debit, credit := r.Totals()
	if !debit.Equal(credit) {
		return ierr.NewErrorf("unbalanced posting %s/%s: debits %s != credits %s",
			r.ReferenceType, r.ReferenceID, debit.StringFixed(2), credit.StringFixed(2)).
			WithHint("Posting is not balanced").
			WithReportableDetails(map[string]any{
				"total_debit":  debit.StringFixed(2),
				"total_credit": credit.StringFixed(2),
			}).
			Mark(ierr.ErrUnbalancedBatch)
	}
	return nil
}
