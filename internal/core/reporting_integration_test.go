package core_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"studioflow/internal/core"

	"github.com/shopspring/decimal"
)

func TestReporting_ReceivablesAging(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	cashbook := core.NewCashbook(pool)
	reporting := core.NewReportingService(pool, cashbook)
	invoices := core.NewInvoiceService(pool, cashbook)
	projectID := 1

	// Seeded invoice 1: 118000 gross, due 2025-06-30. Add one older invoice.
	old, err := invoices.CreateInvoice(ctx, core.InvoiceInput{
		ProjectID:   &projectID,
		InvoiceDate: testDate(t, "2025-02-01"),
		DueDate:     testDate(t, "2025-03-01"),
		Amount:      decimal.NewFromInt(20000),
		Status:      core.InvoiceSent,
	})
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	_ = old

	report, err := reporting.GetReceivablesAging(ctx, testDate(t, "2025-07-15"))
	if err != nil {
		t.Fatalf("GetReceivablesAging failed: %v", err)
	}

	// Invoice 1 is 15 days past due, the old one 136 days.
	if !report.Days30.Amount.Equal(decimal.NewFromInt(118000)) {
		t.Errorf("Expected 118000 in the 1-30 bucket, got %s", report.Days30.Amount)
	}
	if report.Days30.Count != 1 {
		t.Errorf("Expected 1 invoice in the 1-30 bucket, got %d", report.Days30.Count)
	}
	if !report.Days90up.Amount.Equal(decimal.NewFromInt(20000)) {
		t.Errorf("Expected 20000 in the 90+ bucket, got %s", report.Days90up.Amount)
	}
	if !report.Total.Equal(decimal.NewFromInt(138000)) {
		t.Errorf("Expected total receivable 138000, got %s", report.Total)
	}

	// Partial payment shrinks the bucket, not the count.
	accountID, actor := 1, 1
	if _, _, err := invoices.RecordPayment(ctx, 1, core.PaymentInput{
		PaymentDate: testDate(t, "2025-07-01"),
		Amount:      decimal.NewFromInt(100000),
		AccountID:   &accountID,
	}, &actor); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	report, err = reporting.GetReceivablesAging(ctx, testDate(t, "2025-07-15"))
	if err != nil {
		t.Fatalf("GetReceivablesAging failed: %v", err)
	}
	if !report.Days30.Amount.Equal(decimal.NewFromInt(18000)) {
		t.Errorf("Expected 18000 left in the 1-30 bucket, got %s", report.Days30.Amount)
	}
}

func TestReporting_ProjectFinancials(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	cashbook := core.NewCashbook(pool)
	reporting := core.NewReportingService(pool, cashbook)
	invoices := core.NewInvoiceService(pool, cashbook)
	bills := core.NewBillService(pool, cashbook)
	accountID, actor := 1, 1

	if _, _, err := invoices.RecordPayment(ctx, 1, core.PaymentInput{
		PaymentDate: testDate(t, "2025-06-10"),
		Amount:      decimal.NewFromInt(50000),
		AccountID:   &accountID,
	}, &actor); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	if _, err := bills.RecordBillPayment(ctx, 1, core.PaymentInput{
		PaymentDate: testDate(t, "2025-06-12"),
		Amount:      decimal.NewFromInt(15000),
		AccountID:   &accountID,
	}, &actor); err != nil {
		t.Fatalf("RecordBillPayment failed: %v", err)
	}

	fin, err := reporting.GetProjectFinancials(ctx, 1)
	if err != nil {
		t.Fatalf("GetProjectFinancials failed: %v", err)
	}
	if !fin.TotalInvoiced.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("Expected 100000 invoiced, got %s", fin.TotalInvoiced)
	}
	if !fin.TotalReceived.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("Expected 50000 received, got %s", fin.TotalReceived)
	}
	if !fin.TotalExpenses.Equal(decimal.NewFromInt(15000)) {
		t.Errorf("Expected 15000 spent, got %s", fin.TotalExpenses)
	}
	if !fin.NetPosition.Equal(decimal.NewFromInt(35000)) {
		t.Errorf("Expected net position 35000, got %s", fin.NetPosition)
	}

	if _, err := reporting.GetProjectFinancials(ctx, 999); err == nil {
		t.Error("Expected unknown project to error")
	}
}

func TestReporting_PayrollMonth(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	cashbook := core.NewCashbook(pool)
	reporting := core.NewReportingService(pool, cashbook)
	accountID := 1

	// Seeded user 1 earns 90000/month. Pay 60000 in June.
	err := cashbook.RecordSalaryPayment(ctx, testDate(t, "2025-06-28"), 1, decimal.NewFromInt(60000), &accountID, nil)
	if err != nil {
		t.Fatalf("RecordSalaryPayment failed: %v", err)
	}

	lines, err := reporting.GetPayrollMonth(ctx, testDate(t, "2025-06-15"))
	if err != nil {
		t.Fatalf("GetPayrollMonth failed: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("Expected 1 payroll line, got %d", len(lines))
	}
	if !lines[0].PaidThisMonth.Equal(decimal.NewFromInt(60000)) {
		t.Errorf("Expected 60000 paid, got %s", lines[0].PaidThisMonth)
	}
	if !lines[0].Balance.Equal(decimal.NewFromInt(30000)) {
		t.Errorf("Expected 30000 balance, got %s", lines[0].Balance)
	}

	// The payment is month-scoped: July shows nothing paid.
	lines, err = reporting.GetPayrollMonth(ctx, testDate(t, "2025-07-01"))
	if err != nil {
		t.Fatalf("GetPayrollMonth failed: %v", err)
	}
	if !lines[0].PaidThisMonth.IsZero() {
		t.Errorf("Expected nothing paid in July, got %s", lines[0].PaidThisMonth)
	}
}

func TestReporting_ExportTransactionsCSV(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	cashbook := core.NewCashbook(pool)
	reporting := core.NewReportingService(pool, cashbook)

	if err := cashbook.RecordTransfer(ctx, testDate(t, "2025-06-15"), 1, 2, decimal.NewFromInt(3000), "", nil); err != nil {
		t.Fatalf("RecordTransfer failed: %v", err)
	}

	var buf bytes.Buffer
	if err := reporting.ExportTransactionsCSV(ctx, &buf, core.TransactionFilter{}); err != nil {
		t.Fatalf("ExportTransactionsCSV failed: %v", err)
	}

	out := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(out) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %d lines:\n%s", len(out), buf.String())
	}
	if !strings.HasPrefix(out[0], "date,description,category") {
		t.Errorf("Unexpected CSV header %q", out[0])
	}
	if !strings.Contains(buf.String(), "3000.00") {
		t.Errorf("Expected amounts with two decimals, got:\n%s", buf.String())
	}
}
