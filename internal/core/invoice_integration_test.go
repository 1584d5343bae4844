package core_test

import (
	"context"
	"fmt"
	"testing"

	"studioflow/internal/core"

	"github.com/shopspring/decimal"
)

func TestInvoiceService_CreateValidation(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	svc := core.NewInvoiceService(pool, core.NewCashbook(pool))
	projectID := 1

	base := core.InvoiceInput{
		ProjectID:   &projectID,
		InvoiceDate: testDate(t, "2025-06-01"),
		DueDate:     testDate(t, "2025-06-30"),
		Amount:      decimal.NewFromInt(50000),
		TaxPercent:  decimal.NewFromInt(18),
	}

	t.Run("rejects invoice with neither project nor lead", func(t *testing.T) {
		input := base
		input.ProjectID = nil
		if _, err := svc.CreateInvoice(ctx, input); err == nil {
			t.Error("Expected validation error")
		}
	})

	t.Run("rejects due date before invoice date", func(t *testing.T) {
		input := base
		input.DueDate = testDate(t, "2025-05-20")
		if _, err := svc.CreateInvoice(ctx, input); err == nil {
			t.Error("Expected validation error")
		}
	})

	t.Run("lines sum overrides flat amount", func(t *testing.T) {
		input := base
		input.Amount = decimal.NewFromInt(1)
		input.Lines = []core.InvoiceLineInput{
			{Description: "Concept design", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(30000)},
			{Description: "Site visits", Quantity: decimal.NewFromInt(4), UnitPrice: decimal.NewFromInt(2500)},
		}
		inv, err := svc.CreateInvoice(ctx, input)
		if err != nil {
			t.Fatalf("CreateInvoice failed: %v", err)
		}
		if !inv.Amount.Equal(decimal.NewFromInt(40000)) {
			t.Errorf("Expected stored amount 40000 from lines, got %s", inv.Amount)
		}
		if len(inv.Lines) != 2 {
			t.Errorf("Expected 2 lines loaded, got %d", len(inv.Lines))
		}
	})
}

func TestInvoiceService_RecordPaymentFlow(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	cashbook := core.NewCashbook(pool)
	svc := core.NewInvoiceService(pool, cashbook)
	accountID, actor := 1, 1

	// Seeded invoice 1: 100000 + 18% tax = 118000 due 2025-06-30, status sent.
	payment, receipt, err := svc.RecordPayment(ctx, 1, core.PaymentInput{
		PaymentDate: testDate(t, "2025-06-10"),
		Amount:      decimal.NewFromInt(50000),
		AccountID:   &accountID,
		Method:      "bank_transfer",
	}, &actor)
	if err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}

	// Partial payment: overdue-ness is evaluated as of now, not the payment
	// date, so backdating the payment does not hide the blown due date.
	inv, totals, err := svc.GetInvoice(ctx, 1)
	if err != nil {
		t.Fatalf("GetInvoice failed: %v", err)
	}
	if inv.Status != core.InvoiceOverdue {
		t.Errorf("Expected status overdue after partial backdated payment, got %s", inv.Status)
	}
	if inv.UpdatedAt.IsZero() {
		t.Error("Expected updated_at to be populated")
	}
	if !totals.Outstanding.Equal(decimal.NewFromInt(68000)) {
		t.Errorf("Expected outstanding 68000, got %s", totals.Outstanding)
	}
	entry, err := cashbook.FindByOrigin(ctx, core.LedgerOrigin{Kind: core.OriginPayment, ID: payment.ID})
	if err != nil {
		t.Fatalf("FindByOrigin failed: %v", err)
	}
	if entry == nil || !entry.Credit.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("Expected cashbook credit 50000 for the payment, got %+v", entry)
	}

	// Receipt is issued with a scoped number.
	if receipt == nil {
		t.Fatal("Expected a receipt")
	}
	want := "RCP-MRV01-20250610-1"
	if receipt.ReceiptNumber != want {
		t.Errorf("Expected receipt number %s, got %s", want, receipt.ReceiptNumber)
	}
	if receipt.ClientID == nil || *receipt.ClientID != 1 {
		t.Errorf("Expected client denormalized onto receipt, got %v", receipt.ClientID)
	}

	// Second payment same scope and date gets the next number.
	_, receipt2, err := svc.RecordPayment(ctx, 1, core.PaymentInput{
		PaymentDate: testDate(t, "2025-06-10"),
		Amount:      decimal.NewFromInt(8000),
		AccountID:   &accountID,
	}, &actor)
	if err != nil {
		t.Fatalf("Second RecordPayment failed: %v", err)
	}
	if receipt2.ReceiptNumber != "RCP-MRV01-20250610-2" {
		t.Errorf("Expected sequence to advance within scope, got %s", receipt2.ReceiptNumber)
	}

	// Settle the rest: status flips to paid.
	_, _, err = svc.RecordPayment(ctx, 1, core.PaymentInput{
		PaymentDate: testDate(t, "2025-06-20"),
		Amount:      decimal.NewFromInt(60000),
		AccountID:   &accountID,
	}, &actor)
	if err != nil {
		t.Fatalf("Final RecordPayment failed: %v", err)
	}
	inv, totals, err = svc.GetInvoice(ctx, 1)
	if err != nil {
		t.Fatalf("GetInvoice after settlement failed: %v", err)
	}
	if inv.Status != core.InvoicePaid {
		t.Errorf("Expected status paid after full settlement, got %s", inv.Status)
	}
	if !totals.Outstanding.IsZero() {
		t.Errorf("Expected zero outstanding, got %s", totals.Outstanding)
	}

	// Deleting a paid-against invoice is refused.
	if err := svc.DeleteInvoice(ctx, 1); err == nil {
		t.Error("Expected delete of invoice with payments to be refused")
	}
}

func TestInvoiceService_RefreshStatus(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	svc := core.NewInvoiceService(pool, core.NewCashbook(pool))
	projectID := 1

	inv, err := svc.CreateInvoice(ctx, core.InvoiceInput{
		ProjectID:   &projectID,
		InvoiceDate: testDate(t, "2025-05-01"),
		DueDate:     testDate(t, "2025-05-31"),
		Amount:      decimal.NewFromInt(20000),
	})
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	if inv.Status != core.InvoiceDraft {
		t.Fatalf("Expected new invoice to start draft, got %s", inv.Status)
	}

	// Before the due date a draft promotes to sent.
	status, err := svc.RefreshStatus(ctx, inv.ID, testDate(t, "2025-05-15"), true)
	if err != nil {
		t.Fatalf("RefreshStatus failed: %v", err)
	}
	if status != core.InvoiceSent {
		t.Errorf("Expected draft to promote to sent, got %s", status)
	}

	// Past the due date it becomes overdue.
	status, err = svc.RefreshStatus(ctx, inv.ID, testDate(t, "2025-06-15"), true)
	if err != nil {
		t.Fatalf("RefreshStatus failed: %v", err)
	}
	if status != core.InvoiceOverdue {
		t.Errorf("Expected overdue past due date, got %s", status)
	}

	// save=false computes without persisting.
	fresh, err := svc.CreateInvoice(ctx, core.InvoiceInput{
		ProjectID:   &projectID,
		InvoiceDate: testDate(t, "2025-06-01"),
		DueDate:     testDate(t, "2025-06-30"),
		Amount:      decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	if _, err := svc.RefreshStatus(ctx, fresh.ID, testDate(t, "2025-06-10"), false); err != nil {
		t.Fatalf("RefreshStatus failed: %v", err)
	}
	stored, _, err := svc.GetInvoice(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("GetInvoice failed: %v", err)
	}
	if stored.Status != core.InvoiceDraft {
		t.Errorf("Expected dry-run refresh to leave status draft, got %s", stored.Status)
	}
}

func TestInvoiceService_LeadInvoiceReceiptScope(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	svc := core.NewInvoiceService(pool, core.NewCashbook(pool))

	var leadID int
	err := pool.QueryRow(ctx, `
		INSERT INTO leads (client_id, title, status) VALUES (1, 'Hillside bungalow', 'proposal') RETURNING id
	`).Scan(&leadID)
	if err != nil {
		t.Fatalf("Failed to insert lead: %v", err)
	}

	inv, err := svc.CreateInvoice(ctx, core.InvoiceInput{
		LeadID:      &leadID,
		InvoiceDate: testDate(t, "2025-06-01"),
		DueDate:     testDate(t, "2025-06-15"),
		Amount:      decimal.NewFromInt(5000),
		Status:      core.InvoiceSent,
	})
	if err != nil {
		t.Fatalf("CreateInvoice for lead failed: %v", err)
	}

	_, receipt, err := svc.RecordPayment(ctx, inv.ID, core.PaymentInput{
		PaymentDate: testDate(t, "2025-06-05"),
		Amount:      decimal.NewFromInt(5000),
	}, nil)
	if err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	want := fmt.Sprintf("RCP-LEAD%d-20250605-1", leadID)
	if receipt.ReceiptNumber != want {
		t.Errorf("Expected lead-scoped receipt number %s, got %s", want, receipt.ReceiptNumber)
	}
}
