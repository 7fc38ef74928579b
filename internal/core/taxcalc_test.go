package core_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garments-erp/internal/core"
	ierr "garments-erp/internal/errors"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "%s: want %s, got %s", field, want, got.StringFixed(2))
}

func TestCalculateLine_TaxExcluded(t *testing.T) {
	la, err := core.CalculateLine(core.LineInput{
		Quantity: d("2"),
		Rate:     d("500.00"),
		TaxPct:   d("18"),
	}, core.TaxExcluded)
	require.NoError(t, err)

	assertMoney(t, "1000.00", la.Gross, "gross")
	assertMoney(t, "0", la.Discount, "discount")
	assertMoney(t, "1000.00", la.Taxable, "taxable")
	assertMoney(t, "180.00", la.Tax, "tax")
	assertMoney(t, "1180.00", la.Total, "total")
}

func TestCalculateLine_TaxIncluded(t *testing.T) {
	la, err := core.CalculateLine(core.LineInput{
		Quantity: d("1"),
		Rate:     d("590.00"),
		TaxPct:   d("18"),
	}, core.TaxIncluded)
	require.NoError(t, err)

	assertMoney(t, "590.00", la.Gross, "gross")
	assertMoney(t, "500.00", la.Taxable, "taxable")
	assertMoney(t, "90.00", la.Tax, "tax")
	assertMoney(t, "590.00", la.Total, "total")
}

func TestCalculateLine_WithoutTaxIgnoresRate(t *testing.T) {
	la, err := core.CalculateLine(core.LineInput{
		Quantity: d("3"),
		Rate:     d("99.99"),
		TaxPct:   d("12"),
	}, core.TaxNone)
	require.NoError(t, err)

	assertMoney(t, "299.97", la.Taxable, "taxable")
	assert.True(t, la.Tax.IsZero())
	assertMoney(t, "299.97", la.Total, "total")
}

func TestCalculateLine_DiscountsAreSummedNotCompounded(t *testing.T) {
	la, err := core.CalculateLine(core.LineInput{
		Quantity:        d("10"),
		Rate:            d("100"),
		LineDiscountPct: d("10"),
		BillDiscountPct: d("5"),
		TaxPct:          d("5"),
	}, core.TaxExcluded)
	require.NoError(t, err)

	// compounded would be 1000 − 100 − 45 = 855
	assertMoney(t, "150.00", la.Discount, "discount")
	assertMoney(t, "850.00", la.Taxable, "taxable")
	assertMoney(t, "42.50", la.Tax, "tax")
	assertMoney(t, "892.50", la.Total, "total")
}

func TestCalculateLine_RoundsHalfUp(t *testing.T) {
	// 1.30 × 5% = 0.065
	la, err := core.CalculateLine(core.LineInput{Quantity: d("1"), Rate: d("1.30"), TaxPct: d("5")}, core.TaxExcluded)
	require.NoError(t, err)
	assertMoney(t, "0.07", la.Tax, "tax")
}

func TestCalculateLine_Rejections(t *testing.T) {
	tests := []struct {
		name string
		in   core.LineInput
		mode core.TaxMode
	}{
		{"zero quantity", core.LineInput{Quantity: d("0"), Rate: d("10")}, core.TaxExcluded},
		{"negative quantity", core.LineInput{Quantity: d("-1"), Rate: d("10")}, core.TaxExcluded},
		{"zero rate", core.LineInput{Quantity: d("1"), Rate: d("0")}, core.TaxExcluded},
		{"negative tax", core.LineInput{Quantity: d("1"), Rate: d("10"), TaxPct: d("-5")}, core.TaxExcluded},
		{"negative discount", core.LineInput{Quantity: d("1"), Rate: d("10"), LineDiscountPct: d("-1")}, core.TaxExcluded},
		{"discount over 100", core.LineInput{Quantity: d("1"), Rate: d("10"), LineDiscountPct: d("60"), BillDiscountPct: d("41")}, core.TaxExcluded},
		{"inclusive tax at 100", core.LineInput{Quantity: d("1"), Rate: d("10"), TaxPct: d("100")}, core.TaxIncluded},
		{"unknown mode", core.LineInput{Quantity: d("1"), Rate: d("10")}, core.TaxMode("GST")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := core.CalculateLine(tc.in, tc.mode)
			require.Error(t, err)
			assert.True(t, ierr.Is(err, ierr.ErrInvalidInput), "got kind %s", ierr.KindOf(err))
		})
	}
}

func TestCalculateLine_ExclusiveTaxAt100IsAllowed(t *testing.T) {
	la, err := core.CalculateLine(core.LineInput{Quantity: d("1"), Rate: d("10"), TaxPct: d("100")}, core.TaxExcluded)
	require.NoError(t, err)
	assertMoney(t, "20.00", la.Total, "total")
}

func TestCalculateLine_InclusiveTaxRecoversAmountAfterDiscount(t *testing.T) {
	rates := []string{"0.01", "1.00", "9.99", "105.50", "333.33", "590.00", "1234.56"}
	taxes := []string{"0", "3", "5", "12", "18", "28", "99.99"}
	tolerance := d("0.01")

	for _, r := range rates {
		for _, tp := range taxes {
			for _, q := range []string{"1", "3", "7.5"} {
				in := core.LineInput{Quantity: d(q), Rate: d(r), LineDiscountPct: d("2.5"), TaxPct: d(tp)}
				la, err := core.CalculateLine(in, core.TaxIncluded)
				require.NoError(t, err)

				after := la.Gross.Sub(la.Discount)
				rebuilt := la.Taxable.Mul(d("1").Add(d(tp).Div(d("100"))))
				assert.Truef(t, rebuilt.Sub(after).Abs().LessThanOrEqual(tolerance),
					"rate=%s tax=%s qty=%s: taxable×(1+t) = %s, after discount = %s", r, tp, q, rebuilt, after)
				assert.True(t, la.Total.Equal(after))
			}
		}
	}
}

func TestCalculateLine_ExclusiveTaxIsRoundedTaxableTimesRate(t *testing.T) {
	for _, r := range []string{"0.33", "17.17", "250.05", "999.99"} {
		for _, tp := range []string{"5", "12", "18", "28"} {
			la, err := core.CalculateLine(core.LineInput{Quantity: d("3"), Rate: d(r), TaxPct: d(tp)}, core.TaxExcluded)
			require.NoError(t, err)
			want := la.Taxable.Mul(d(tp)).Div(d("100")).Round(2)
			assert.Truef(t, want.Equal(la.Tax), "rate=%s tax=%s: want %s got %s", r, tp, want, la.Tax)
			assert.True(t, la.Total.Equal(la.Taxable.Add(la.Tax)))
		}
	}
}

func TestCalculateBill_Aggregates(t *testing.T) {
	lines := []core.LineInput{
		{Quantity: d("2"), Rate: d("500"), TaxPct: d("18")},
		{Quantity: d("1.5"), Rate: d("200"), TaxPct: d("5"), LineDiscountPct: d("10")},
	}
	bill, err := core.CalculateBill(lines, core.TaxExcluded, d("-0.50"))
	require.NoError(t, err)

	assert.Equal(t, 2, bill.ItemCount)
	assertMoney(t, "3.5", bill.TotalQuantity, "quantity")
	assertMoney(t, "1300.00", bill.Gross, "gross")
	assertMoney(t, "30.00", bill.Discount, "discount")
	assertMoney(t, "1270.00", bill.Taxable, "taxable")
	assertMoney(t, "193.50", bill.Tax, "tax")
	assertMoney(t, "1463.50", bill.Total, "total")
	assertMoney(t, "1463.00", bill.Net, "net")
	assert.True(t, bill.Net.Equal(bill.Taxable.Add(bill.Tax).Add(bill.Adjustment)))
}

func TestCalculateBill_Rejections(t *testing.T) {
	_, err := core.CalculateBill(nil, core.TaxExcluded, decimal.Zero)
	assert.True(t, ierr.Is(err, ierr.ErrInvalidInput))

	_, err = core.CalculateBill([]core.LineInput{
		{Quantity: d("1"), Rate: d("10")},
		{Quantity: d("1"), Rate: d("0")},
	}, core.TaxExcluded, decimal.Zero)
	require.Error(t, err)
	assert.Contains(t, ierr.DisplayMessage(err), "line 2")

	_, err = core.CalculateBill([]core.LineInput{{Quantity: d("1"), Rate: d("10")}}, core.TaxNone, d("-10.01"))
	assert.True(t, ierr.Is(err, ierr.ErrInvalidInput))
}
