package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// InvoiceTotals is the fully derived financial state of an invoice. It is
// recomputed from the invoice and its loaded lines/payments/allocations on
// every read and never stored.
type InvoiceTotals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxableAmount  decimal.Decimal `json:"taxable_amount"`
	TotalWithTax   decimal.Decimal `json:"total_with_tax"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	AdvanceApplied decimal.Decimal `json:"advance_applied"`
	AmountSettled  decimal.Decimal `json:"amount_settled"`
	Outstanding    decimal.Decimal `json:"outstanding"`
}

// ComputeInvoiceTotals derives subtotal, discount, tax and outstanding from an
// invoice and its settlements. All intermediate amounts are rounded to 2
// decimal places. The discount is clamped to [0, subtotal] so a discount
// percent above 100 cannot drive the taxable amount negative.
func ComputeInvoiceTotals(inv *Invoice) InvoiceTotals {
	subtotal := decimal.Zero
	for _, line := range inv.Lines {
		subtotal = subtotal.Add(line.LineTotal())
	}
	if subtotal.IsZero() {
		subtotal = inv.Amount.Round(2)
	}

	discount := subtotal.Mul(inv.DiscountPercent).Div(hundred).Round(2)
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	taxable := subtotal.Sub(discount)
	tax := taxable.Mul(inv.TaxPercent).Div(hundred).Round(2)
	total := taxable.Add(tax)

	received := decimal.Zero
	for _, p := range inv.Payments {
		received = received.Add(p.Amount)
	}
	advance := decimal.Zero
	for _, a := range inv.Allocations {
		advance = advance.Add(a.Amount)
	}
	settled := received.Add(advance)

	outstanding := total.Sub(settled)
	if outstanding.IsNegative() {
		outstanding = decimal.Zero
	}

	return InvoiceTotals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TaxableAmount:  taxable,
		TotalWithTax:   total,
		AmountReceived: received,
		AdvanceApplied: advance,
		AmountSettled:  settled,
		Outstanding:    outstanding,
	}
}

// ComputeInvoiceStatus re-evaluates an invoice's status from its outstanding
// balance and due date. Priority: paid, then overdue, then draft promotes to
// sent; otherwise the current status stands. Statuses are not sticky: an
// overdue invoice whose outstanding later reaches zero flips to paid.
func ComputeInvoiceStatus(current InvoiceStatus, outstanding decimal.Decimal, dueDate, today time.Time) InvoiceStatus {
	switch {
	case outstanding.LessThanOrEqual(decimal.Zero):
		return InvoicePaid
	case dueDate.Before(dateOnly(today)):
		return InvoiceOverdue
	case current == InvoiceDraft:
		return InvoiceSent
	default:
		return current
	}
}

// ComputeBillStatus re-evaluates a vendor bill's status. Priority differs from
// invoices: partial is checked before overdue, so a bill that is both partly
// paid and past due reports partial.
func ComputeBillStatus(amount, outstanding decimal.Decimal, dueDate, today time.Time) BillStatus {
	switch {
	case outstanding.LessThanOrEqual(decimal.Zero):
		return BillPaid
	case outstanding.LessThan(amount):
		return BillPartial
	case dueDate.Before(dateOnly(today)):
		return BillOverdue
	default:
		return BillUnpaid
	}
}

// BillOutstanding derives the unpaid remainder of a bill, floored at zero.
func BillOutstanding(amount, amountPaid decimal.Decimal) decimal.Decimal {
	outstanding := amount.Sub(amountPaid)
	if outstanding.IsNegative() {
		return decimal.Zero
	}
	return outstanding
}

// dateOnly truncates a time to its calendar date in UTC.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func padNumber(n, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}
