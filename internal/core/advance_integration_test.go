package core_test

import (
	"context"
	"testing"

	"studioflow/internal/core"

	"github.com/shopspring/decimal"
)

func TestAdvanceService_RecordAndAllocate(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	cashbook := core.NewCashbook(pool)
	svc := core.NewAdvanceService(pool, cashbook)
	invoices := core.NewInvoiceService(pool, cashbook)
	accountID, actor := 1, 1

	adv, err := svc.RecordAdvance(ctx, core.AdvanceInput{
		ClientID:     1,
		ReceivedDate: testDate(t, "2025-06-01"),
		Amount:       decimal.NewFromInt(80000),
		AccountID:    &accountID,
	}, &actor)
	if err != nil {
		t.Fatalf("RecordAdvance failed: %v", err)
	}
	if !adv.AvailableAmount.Equal(decimal.NewFromInt(80000)) {
		t.Errorf("Expected full amount available, got %s", adv.AvailableAmount)
	}

	// The advance is mirrored into the cashbook as a credit.
	entry, err := cashbook.FindByOrigin(ctx, core.LedgerOrigin{Kind: core.OriginClientAdvance, ID: adv.ID})
	if err != nil {
		t.Fatalf("FindByOrigin failed: %v", err)
	}
	if entry == nil || !entry.Credit.Equal(decimal.NewFromInt(80000)) {
		t.Errorf("Expected cashbook credit 80000 for the advance, got %+v", entry)
	}
	if entry.Category != core.CategoryClientAdvance {
		t.Errorf("Expected category client_advance, got %s", entry.Category)
	}

	// Over-allocation against the invoice outstanding is rejected.
	// Seeded invoice 1 totals 118000; allocate within both caps.
	_, err = svc.Allocate(ctx, adv.ID, 1, decimal.NewFromInt(90000), "", &actor)
	if err == nil {
		t.Error("Expected allocation above available balance to be rejected")
	}

	alloc, err := svc.Allocate(ctx, adv.ID, 1, decimal.NewFromInt(50000), "", &actor)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if !alloc.Amount.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("Expected allocation of 50000, got %s", alloc.Amount)
	}

	adv, err = svc.GetAdvance(ctx, adv.ID)
	if err != nil {
		t.Fatalf("GetAdvance failed: %v", err)
	}
	if !adv.AvailableAmount.Equal(decimal.NewFromInt(30000)) {
		t.Errorf("Expected 30000 left available, got %s", adv.AvailableAmount)
	}

	// The allocation counts toward invoice settlement.
	_, totals, err := invoices.GetInvoice(ctx, 1)
	if err != nil {
		t.Fatalf("GetInvoice failed: %v", err)
	}
	if !totals.AdvanceApplied.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("Expected 50000 advance applied, got %s", totals.AdvanceApplied)
	}
	if !totals.Outstanding.Equal(decimal.NewFromInt(68000)) {
		t.Errorf("Expected outstanding 68000 after allocation, got %s", totals.Outstanding)
	}

	// An allocated advance cannot be deleted.
	if err := svc.DeleteAdvance(ctx, adv.ID); err == nil {
		t.Error("Expected delete of allocated advance to be refused")
	}
}

func TestAdvanceService_AllocationSettlesInvoice(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	cashbook := core.NewCashbook(pool)
	svc := core.NewAdvanceService(pool, cashbook)
	invoices := core.NewInvoiceService(pool, cashbook)
	actor := 1
	projectID := 1

	inv, err := invoices.CreateInvoice(ctx, core.InvoiceInput{
		ProjectID:   &projectID,
		InvoiceDate: testDate(t, "2025-06-01"),
		DueDate:     testDate(t, "2025-06-30"),
		Amount:      decimal.NewFromInt(10000),
		Status:      core.InvoiceSent,
	})
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}

	adv, err := svc.RecordAdvance(ctx, core.AdvanceInput{
		ClientID:     1,
		ReceivedDate: testDate(t, "2025-06-01"),
		Amount:       decimal.NewFromInt(10000),
	}, &actor)
	if err != nil {
		t.Fatalf("RecordAdvance failed: %v", err)
	}

	if _, err := svc.Allocate(ctx, adv.ID, inv.ID, decimal.NewFromInt(10000), "full settlement", &actor); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	settled, totals, err := invoices.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetInvoice failed: %v", err)
	}
	if settled.Status != core.InvoicePaid {
		t.Errorf("Expected fully allocated invoice to be paid, got %s", settled.Status)
	}
	if !totals.Outstanding.IsZero() {
		t.Errorf("Expected zero outstanding, got %s", totals.Outstanding)
	}
}

func TestAdvanceService_ConcurrentAllocationsCannotOverdraw(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	cashbook := core.NewCashbook(pool)
	svc := core.NewAdvanceService(pool, cashbook)
	invoices := core.NewInvoiceService(pool, cashbook)
	actor := 1

	adv, err := svc.RecordAdvance(ctx, core.AdvanceInput{
		ClientID:     1,
		ReceivedDate: testDate(t, "2025-06-01"),
		Amount:       decimal.NewFromInt(50000),
	}, &actor)
	if err != nil {
		t.Fatalf("RecordAdvance failed: %v", err)
	}

	// A second invoice so each allocation targets a different invoice row.
	projectID := 1
	second, err := invoices.CreateInvoice(ctx, core.InvoiceInput{
		ProjectID:   &projectID,
		InvoiceDate: testDate(t, "2025-06-01"),
		DueDate:     testDate(t, "2025-06-30"),
		Amount:      decimal.NewFromInt(60000),
	})
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}

	// Both allocations pass the availability check in isolation; together
	// they exceed the advance. The advance row lock must serialize them so
	// exactly one commits.
	targets := []int{1, second.ID}
	errs := make(chan error, len(targets))
	for _, invoiceID := range targets {
		go func(invoiceID int) {
			_, err := svc.Allocate(ctx, adv.ID, invoiceID, decimal.NewFromInt(40000), "", &actor)
			errs <- err
		}(invoiceID)
	}

	var failures int
	for range targets {
		if err := <-errs; err != nil {
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("Expected exactly one allocation to be rejected, got %d failures", failures)
	}

	adv, err = svc.GetAdvance(ctx, adv.ID)
	if err != nil {
		t.Fatalf("GetAdvance failed: %v", err)
	}
	if !adv.AllocatedAmount.Equal(decimal.NewFromInt(40000)) {
		t.Errorf("Expected allocated total 40000 after the race, got %s", adv.AllocatedAmount)
	}
}
