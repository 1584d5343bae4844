package core_test

import (
	"context"
	"strings"
	"testing"

	"studioflow/internal/core"

	"github.com/shopspring/decimal"
)

const sampleStatement = `Date,Description,Amount,Balance
2025-06-10,NEFT MERIDIAN HOMES,30000,131000
2025-06-12,CHQ 004512 KERALA STEELS,-15000,116000
2025-06-14,ATM WITHDRAWAL,-2000,114000
`

func TestStatementService_ImportAndMatch(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	svc := core.NewStatementService(pool)
	cashbook := core.NewCashbook(pool)
	invoices := core.NewInvoiceService(pool, cashbook)
	bills := core.NewBillService(pool, cashbook)
	accountID, actor := 1, 1

	// Book the two known movements through the normal flows. The payment is
	// dated a day off the statement line to exercise the one-day window.
	_, _, err := invoices.RecordPayment(ctx, 1, core.PaymentInput{
		PaymentDate: testDate(t, "2025-06-11"),
		Amount:      decimal.NewFromInt(30000),
		AccountID:   &accountID,
	}, &actor)
	if err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	_, err = bills.RecordBillPayment(ctx, 1, core.PaymentInput{
		PaymentDate: testDate(t, "2025-06-12"),
		Amount:      decimal.NewFromInt(15000),
		AccountID:   &accountID,
	}, &actor)
	if err != nil {
		t.Fatalf("RecordBillPayment failed: %v", err)
	}

	imp, lines, err := svc.ImportCSV(ctx, accountID, "june.csv", strings.NewReader(sampleStatement), &actor)
	if err != nil {
		t.Fatalf("ImportCSV failed: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines imported, got %d", len(lines))
	}
	if !lines[0].Amount.Equal(decimal.NewFromInt(30000)) {
		t.Errorf("Expected first line amount 30000, got %s", lines[0].Amount)
	}
	if lines[1].Balance == nil || !lines[1].Balance.Equal(decimal.NewFromInt(116000)) {
		t.Errorf("Expected running balance captured, got %v", lines[1].Balance)
	}

	matched, err := svc.MatchLines(ctx, imp.ID)
	if err != nil {
		t.Fatalf("MatchLines failed: %v", err)
	}
	if matched != 2 {
		t.Errorf("Expected 2 lines matched, got %d", matched)
	}

	// Re-running matches nothing new.
	matched, err = svc.MatchLines(ctx, imp.ID)
	if err != nil {
		t.Fatalf("Second MatchLines failed: %v", err)
	}
	if matched != 0 {
		t.Errorf("Expected idempotent re-match, got %d", matched)
	}

	_, lines, err = svc.GetImport(ctx, imp.ID)
	if err != nil {
		t.Fatalf("GetImport failed: %v", err)
	}
	if lines[0].MatchedTransactionID == nil {
		t.Error("Expected inflow line matched to the payment entry")
	}
	if lines[1].MatchedTransactionID == nil {
		t.Error("Expected outflow line matched to the bill payment entry")
	}
	if lines[2].MatchedTransactionID != nil {
		t.Error("Expected ATM withdrawal to stay unmatched")
	}

	// Book the leftover line as a misc expense.
	txn, err := svc.CreateTransactionFromLine(ctx, lines[2].ID, "", &actor)
	if err != nil {
		t.Fatalf("CreateTransactionFromLine failed: %v", err)
	}
	if !txn.Debit.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("Expected debit 2000 from the negative line, got %s", txn.Debit)
	}
	if txn.Category != core.CategoryOtherExpense {
		t.Errorf("Expected default category other_expense, got %s", txn.Category)
	}

	// A booked line cannot be booked twice.
	if _, err := svc.CreateTransactionFromLine(ctx, lines[2].ID, "", &actor); err == nil {
		t.Error("Expected second booking of the same line to be refused")
	}
}

func TestStatementService_RejectsMalformedCSV(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	svc := core.NewStatementService(pool)

	cases := map[string]string{
		"empty":       "",
		"header only": "Date,Description,Amount\n",
		"bad amount":  "2025-06-01,SOMETHING,notmoney\n",
		"bad date":    "June first,SOMETHING,100\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := svc.ImportCSV(ctx, 1, "x.csv", strings.NewReader(body), nil); err == nil {
				t.Error("Expected import to fail")
			}
		})
	}
}

func TestStatementService_ImportsBankHeaderLayouts(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	svc := core.NewStatementService(pool)

	// Split debit/credit columns, bank-style names, thousands separators,
	// and a column order that differs from the positional default.
	const export = `Txn Date,Narration,Withdrawal,Deposit,Running Balance
10/06/2025,NEFT MERIDIAN HOMES,,"1,30,000.00","2,35,000.00"
12/06/2025,CHQ 004512 KERALA STEELS,"15,000.00",,"2,20,000.00"
`
	_, lines, err := svc.ImportCSV(ctx, 1, "hdfc.csv", strings.NewReader(export), nil)
	if err != nil {
		t.Fatalf("ImportCSV failed: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines imported, got %d", len(lines))
	}
	if !lines[0].Amount.Equal(decimal.NewFromInt(130000)) {
		t.Errorf("Expected deposit to import as +130000, got %s", lines[0].Amount)
	}
	if !lines[1].Amount.Equal(decimal.NewFromInt(-15000)) {
		t.Errorf("Expected withdrawal to import as -15000, got %s", lines[1].Amount)
	}
	if lines[1].Balance == nil || !lines[1].Balance.Equal(decimal.NewFromInt(220000)) {
		t.Errorf("Expected running balance 220000, got %v", lines[1].Balance)
	}
	if lines[0].Description != "NEFT MERIDIAN HOMES" {
		t.Errorf("Expected narration mapped to description, got %q", lines[0].Description)
	}

	// A row with neither credit nor debit is rejected.
	const broken = `Txn Date,Narration,Withdrawal,Deposit
10/06/2025,EMPTY ROW,,
`
	if _, _, err := svc.ImportCSV(ctx, 1, "broken.csv", strings.NewReader(broken), nil); err == nil {
		t.Error("Expected import with neither credit nor debit to fail")
	}
}
