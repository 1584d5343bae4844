package core_test

import (
	"context"
	"testing"

	"studioflow/internal/core"

	"github.com/shopspring/decimal"
)

func TestBillService_PaymentLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	cashbook := core.NewCashbook(pool)
	svc := core.NewBillService(pool, cashbook)
	accountID, actor := 1, 1

	// Seeded bill 1: 40000 due 2025-07-05, status unpaid.
	bp, err := svc.RecordBillPayment(ctx, 1, core.PaymentInput{
		PaymentDate: testDate(t, "2025-06-15"),
		Amount:      decimal.NewFromInt(15000),
		AccountID:   &accountID,
	}, &actor)
	if err != nil {
		t.Fatalf("RecordBillPayment failed: %v", err)
	}

	bill, err := svc.GetBill(ctx, 1)
	if err != nil {
		t.Fatalf("GetBill failed: %v", err)
	}
	if bill.Status != core.BillPartial {
		t.Errorf("Expected status partial, got %s", bill.Status)
	}
	if !bill.Outstanding.Equal(decimal.NewFromInt(25000)) {
		t.Errorf("Expected outstanding 25000, got %s", bill.Outstanding)
	}

	entry, err := cashbook.FindByOrigin(ctx, core.LedgerOrigin{Kind: core.OriginBillPayment, ID: bp.ID})
	if err != nil {
		t.Fatalf("FindByOrigin failed: %v", err)
	}
	if entry == nil || !entry.Debit.Equal(decimal.NewFromInt(15000)) {
		t.Errorf("Expected cashbook debit 15000 for the bill payment, got %+v", entry)
	}

	// A payment above outstanding is rejected.
	_, err = svc.RecordBillPayment(ctx, 1, core.PaymentInput{
		PaymentDate: testDate(t, "2025-06-16"),
		Amount:      decimal.NewFromInt(30000),
	}, &actor)
	if err == nil {
		t.Error("Expected overpayment to be rejected")
	}

	// Settling the rest flips the bill to paid.
	_, err = svc.RecordBillPayment(ctx, 1, core.PaymentInput{
		PaymentDate: testDate(t, "2025-06-20"),
		Amount:      decimal.NewFromInt(25000),
	}, &actor)
	if err != nil {
		t.Fatalf("Final RecordBillPayment failed: %v", err)
	}
	bill, err = svc.GetBill(ctx, 1)
	if err != nil {
		t.Fatalf("GetBill failed: %v", err)
	}
	if bill.Status != core.BillPaid {
		t.Errorf("Expected status paid, got %s", bill.Status)
	}

	if err := svc.DeleteBill(ctx, 1); err == nil {
		t.Error("Expected delete of bill with payments to be refused")
	}
}

func TestBillService_PartialBeatsOverdue(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	svc := core.NewBillService(pool, core.NewCashbook(pool))
	actor := 1

	bill, err := svc.CreateBill(ctx, core.BillInput{
		VendorID: 1,
		BillDate: testDate(t, "2025-04-01"),
		DueDate:  testDate(t, "2025-04-30"),
		Amount:   decimal.NewFromInt(10000),
	})
	if err != nil {
		t.Fatalf("CreateBill failed: %v", err)
	}

	// No payments, past due: overdue.
	status, err := svc.RefreshStatus(ctx, bill.ID, testDate(t, "2025-06-01"))
	if err != nil {
		t.Fatalf("RefreshStatus failed: %v", err)
	}
	if status != core.BillOverdue {
		t.Errorf("Expected overdue with no payments past due, got %s", status)
	}

	// A partial payment wins over overdue even past the due date.
	_, err = svc.RecordBillPayment(ctx, bill.ID, core.PaymentInput{
		PaymentDate: testDate(t, "2025-06-05"),
		Amount:      decimal.NewFromInt(4000),
	}, &actor)
	if err != nil {
		t.Fatalf("RecordBillPayment failed: %v", err)
	}
	status, err = svc.RefreshStatus(ctx, bill.ID, testDate(t, "2025-06-10"))
	if err != nil {
		t.Fatalf("RefreshStatus failed: %v", err)
	}
	if status != core.BillPartial {
		t.Errorf("Expected partial to beat overdue, got %s", status)
	}
}
