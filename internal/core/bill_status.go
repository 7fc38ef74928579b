package core

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var billTransitions = map[BillStatus][]BillStatus{
	BillDraft:     {BillConfirmed, BillCancelled},
	BillConfirmed: {BillShipped, BillCompleted, BillCancelled},
	BillShipped:   {BillDelivered, BillCancelled},
	BillDelivered: {BillCompleted, BillCancelled},
	BillCompleted: nil,
	BillCancelled: nil,
}

func (s BillStatus) Valid() bool {
	_, ok := billTransitions[s]
	return ok
}

// CanTransitionTo reports whether the transition table allows s → next.
func (s BillStatus) CanTransitionTo(next BillStatus) bool {
	return lo.Contains(billTransitions[s], next)
}

func (s BillStatus) Terminal() bool {
	return s.Valid() && len(billTransitions[s]) == 0
}

// Posted reports whether a bill in this state must carry ledger and stock effects.
func (s BillStatus) Posted() bool {
	switch s {
	case BillConfirmed, BillShipped, BillDelivered, BillCompleted:
		return true
	}
	return false
}

// postedStatuses lists Posted states for SQL filters.
var postedStatuses = []string{string(BillConfirmed), string(BillShipped), string(BillDelivered), string(BillCompleted)}

func checkTransition(number string, from, to BillStatus) error {
	if !to.Valid() {
		return invalidInput("unknown bill status %q", to)
	}
	if from.CanTransitionTo(to) {
		return nil
	}
	allowed := lo.Map(billTransitions[from], func(s BillStatus, _ int) string { return string(s) })
	if len(allowed) == 0 {
		return badTransition("bill %s cannot change status: %s is final", number, from)
	}
	return badTransition("bill %s cannot move from %s to %s (allowed: %v)", number, from, to, allowed)
}

// PaymentStatusFor derives the stored payment status from the amounts.
func PaymentStatusFor(net, paid decimal.Decimal) PaymentStatus {
	switch {
	case !net.Sub(paid).IsPositive():
		return PaymentPaid
	case paid.IsPositive():
		return PaymentPartial
	default:
		return PaymentPending
	}
}

// EffectivePaymentStatus adds the read-time OVERDUE state for unpaid bills past their due date.
func (b *SalesBill) EffectivePaymentStatus(now time.Time) PaymentStatus {
	if b.PaymentStatus == PaymentPaid || b.Status == BillCancelled || b.DueDate == nil {
		return b.PaymentStatus
	}
	y, m, d := b.DueDate.Date()
	if !now.Before(time.Date(y, m, d+1, 0, 0, 0, 0, b.DueDate.Location())) {
		return PaymentOverdue
	}
	return b.PaymentStatus
}

// ApplyPayment returns the bill amounts after receiving amount.
func ApplyPayment(net, paid, amount decimal.Decimal) (newPaid, balance decimal.Decimal, status PaymentStatus) {
	newPaid = paid.Add(amount)
	balance = net.Sub(newPaid)
	return newPaid, balance, PaymentStatusFor(net, newPaid)
}
