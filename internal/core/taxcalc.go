package core

import (
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// round2 rounds half away from zero, which is half-up for the non-negative
// amounts stored on bills.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// LineInput is the numeric input for one bill line.
type LineInput struct {
	Quantity        decimal.Decimal
	Rate            decimal.Decimal
	LineDiscountPct decimal.Decimal
	BillDiscountPct decimal.Decimal
	TaxPct          decimal.Decimal
}

// LineAmounts are the stored amounts of one line. Total = Taxable + Tax.
type LineAmounts struct {
	Gross    decimal.Decimal `json:"gross"`
	Discount decimal.Decimal `json:"discount"`
	Taxable  decimal.Decimal `json:"taxable"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// BillAmounts aggregates line amounts. Net = Taxable + Tax + Adjustment.
type BillAmounts struct {
	Lines         []LineAmounts   `json:"lines"`
	ItemCount     int             `json:"item_count"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	Gross         decimal.Decimal `json:"gross"`
	Discount      decimal.Decimal `json:"discount"`
	Taxable       decimal.Decimal `json:"taxable"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	Adjustment    decimal.Decimal `json:"adjustment"`
	Net           decimal.Decimal `json:"net"`
}

// problem returns a description of what makes the input unusable, or "".
func (in LineInput) problem(mode TaxMode) string {
	switch {
	case !mode.Valid():
		return "unknown tax mode " + string(mode)
	case !in.Quantity.IsPositive():
		return "quantity must be greater than 0, got " + in.Quantity.String()
	case !in.Rate.IsPositive():
		return "rate must be greater than 0, got " + in.Rate.String()
	case in.LineDiscountPct.IsNegative() || in.BillDiscountPct.IsNegative():
		return "discount percentage cannot be negative"
	case in.LineDiscountPct.Add(in.BillDiscountPct).GreaterThan(hundred):
		return "combined discount cannot exceed 100%"
	case in.TaxPct.IsNegative():
		return "tax percentage cannot be negative"
	case mode == TaxIncluded && in.TaxPct.GreaterThanOrEqual(hundred):
		return "tax percentage must be below 100% for tax-inclusive rates"
	}
	return ""
}

// CalculateLine computes the stored amounts for one line.
//
// Both discounts apply to the undiscounted gross and are summed. Each stored
// field is rounded once; the amount after discount is taken from the stored
// gross and discount so that gross − discount always equals the line total
// before tax is added (or the total itself for tax-inclusive rates).
func CalculateLine(in LineInput, mode TaxMode) (LineAmounts, error) {
	if p := in.problem(mode); p != "" {
		return LineAmounts{}, invalidInput("%s", p)
	}
	return calculateLine(in, mode), nil
}

func calculateLine(in LineInput, mode TaxMode) LineAmounts {
	gross := round2(in.Quantity.Mul(in.Rate))
	discount := round2(gross.Mul(in.LineDiscountPct).Div(hundred).
		Add(gross.Mul(in.BillDiscountPct).Div(hundred)))
	after := gross.Sub(discount)

	var taxable, tax decimal.Decimal
	switch mode {
	case TaxIncluded:
		taxable = round2(after.Div(one.Add(in.TaxPct.Div(hundred))))
		tax = after.Sub(taxable)
	case TaxExcluded:
		taxable = after
		tax = round2(taxable.Mul(in.TaxPct).Div(hundred))
	default:
		taxable = after
		tax = decimal.Zero
	}

	return LineAmounts{
		Gross:    gross,
		Discount: discount,
		Taxable:  taxable,
		Tax:      tax,
		Total:    taxable.Add(tax),
	}
}

// CalculateBill computes every line and the bill aggregate. The adjustment is
// signed and applied once to the bill, never to a line.
func CalculateBill(lines []LineInput, mode TaxMode, adjustment decimal.Decimal) (BillAmounts, error) {
	if len(lines) == 0 {
		return BillAmounts{}, invalidInput("bill must have at least one line")
	}
	for i, in := range lines {
		if p := in.problem(mode); p != "" {
			return BillAmounts{}, invalidInput("line %d: %s", i+1, p)
		}
	}

	out := BillAmounts{
		Lines:      make([]LineAmounts, len(lines)),
		ItemCount:  len(lines),
		Adjustment: round2(adjustment),
	}
	for i, in := range lines {
		la := calculateLine(in, mode)
		out.Lines[i] = la
		out.TotalQuantity = out.TotalQuantity.Add(in.Quantity)
		out.Gross = out.Gross.Add(la.Gross)
		out.Discount = out.Discount.Add(la.Discount)
		out.Taxable = out.Taxable.Add(la.Taxable)
		out.Tax = out.Tax.Add(la.Tax)
		out.Total = out.Total.Add(la.Total)
	}
	out.Net = out.Taxable.Add(out.Tax).Add(out.Adjustment)

	if out.Net.IsNegative() {
		return BillAmounts{}, invalidInput("net amount cannot be negative, got %s", out.Net.StringFixed(2))
	}
	return out, nil
}
