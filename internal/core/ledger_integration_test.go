package core_test

import (
	"context"
	"os"
	"testing"
	"time"

	"studioflow/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Clean and seed test DB. Serial ids restart at 1, so the seed rows below
	// get deterministic ids: user 1, client 1, project 1, accounts 1 and 2,
	// vendor 1, invoice 1, bill 1.
	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE bank_statement_lines, bank_statement_imports, transactions,
			recurring_rules, expense_claim_payments, expense_claims,
			client_advance_allocations, client_advances, bill_payments, bills,
			receipt_sequences, receipts, payments, invoice_lines, invoices,
			vendors, accounts, tasks, projects, leads, clients, users
			RESTART IDENTITY CASCADE;

		INSERT INTO users (username, full_name, role, monthly_salary) VALUES
			('priya', 'Priya Nair', 'admin', 90000);

		INSERT INTO clients (name, city) VALUES ('Meridian Homes', 'Kochi');

		INSERT INTO projects (client_id, name, code) VALUES (1, 'Meridian Villa', 'MRV01');

		INSERT INTO accounts (name, account_type, opening_balance) VALUES
			('HDFC Current', 'bank', 100000),
			('Petty Cash', 'cash', 5000);

		INSERT INTO vendors (name) VALUES ('Kerala Steels');

		INSERT INTO invoices (project_id, invoice_date, due_date, amount, tax_percent, status)
			VALUES (1, '2025-06-01', '2025-06-30', 100000, 18, 'sent');

		INSERT INTO bills (vendor_id, project_id, bill_date, due_date, amount, status)
			VALUES (1, 1, '2025-06-05', '2025-07-05', 40000, 'unpaid');
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return pool
}

func testDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("bad test date %q: %v", s, err)
	}
	return d
}

func TestCashbook_SyncPaymentIdempotent(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	cashbook := core.NewCashbook(pool)

	var paymentID int
	err := pool.QueryRow(ctx, `
		INSERT INTO payments (invoice_id, payment_date, amount, account_id)
		VALUES (1, '2025-06-10', 30000, 1) RETURNING id
	`).Scan(&paymentID)
	if err != nil {
		t.Fatalf("Failed to insert payment: %v", err)
	}

	projectID, accountID := 1, 1
	inv := &core.Invoice{ID: 1, ProjectID: &projectID}
	payment := &core.Payment{
		ID:          paymentID,
		InvoiceID:   1,
		PaymentDate: testDate(t, "2025-06-10"),
		Amount:      decimal.NewFromInt(30000),
		AccountID:   &accountID,
	}

	// Sync twice in a row: the second run must not create a second entry.
	for i := 0; i < 2; i++ {
		tx, err := pool.Begin(ctx)
		if err != nil {
			t.Fatalf("Failed to begin tx: %v", err)
		}
		if err := cashbook.SyncPaymentTx(ctx, tx, payment, inv); err != nil {
			t.Fatalf("SyncPaymentTx run %d failed: %v", i+1, err)
		}
		if err := tx.Commit(ctx); err != nil {
			t.Fatalf("Failed to commit: %v", err)
		}
	}

	var count int
	if err := pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM transactions WHERE payment_id = $1", paymentID,
	).Scan(&count); err != nil {
		t.Fatalf("Failed to count entries: %v", err)
	}
	if count != 1 {
		t.Fatalf("Expected exactly 1 ledger entry for payment, got %d", count)
	}

	entry, err := cashbook.FindByOrigin(ctx, core.LedgerOrigin{Kind: core.OriginPayment, ID: paymentID})
	if err != nil {
		t.Fatalf("FindByOrigin failed: %v", err)
	}
	if entry == nil {
		t.Fatal("Expected a ledger entry for the payment")
	}
	if !entry.Credit.Equal(decimal.NewFromInt(30000)) {
		t.Errorf("Expected credit 30000, got %s", entry.Credit)
	}
	if !entry.Debit.IsZero() {
		t.Errorf("Expected zero debit for an inflow, got %s", entry.Debit)
	}
	if entry.Category != core.CategoryClientPayment {
		t.Errorf("Expected category client_payment, got %s", entry.Category)
	}
	if entry.ClientID == nil || *entry.ClientID != 1 {
		t.Errorf("Expected client resolved through the project, got %v", entry.ClientID)
	}

	// A corrected amount overwrites the mirrored row instead of adding one.
	payment.Amount = decimal.NewFromInt(35000)
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("Failed to begin tx: %v", err)
	}
	if err := cashbook.SyncPaymentTx(ctx, tx, payment, inv); err != nil {
		t.Fatalf("Re-sync after edit failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	entry, err = cashbook.FindByOrigin(ctx, core.LedgerOrigin{Kind: core.OriginPayment, ID: paymentID})
	if err != nil {
		t.Fatalf("FindByOrigin after edit failed: %v", err)
	}
	if !entry.Credit.Equal(decimal.NewFromInt(35000)) {
		t.Errorf("Expected updated credit 35000, got %s", entry.Credit)
	}
	if err := pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM transactions WHERE payment_id = $1", paymentID,
	).Scan(&count); err != nil {
		t.Fatalf("Failed to recount entries: %v", err)
	}
	if count != 1 {
		t.Fatalf("Expected still 1 ledger entry after edit, got %d", count)
	}
}

func TestCashbook_SyncBillPaymentIsDebit(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	cashbook := core.NewCashbook(pool)

	var billPaymentID int
	err := pool.QueryRow(ctx, `
		INSERT INTO bill_payments (bill_id, payment_date, amount, account_id)
		VALUES (1, '2025-06-12', 15000, 1) RETURNING id
	`).Scan(&billPaymentID)
	if err != nil {
		t.Fatalf("Failed to insert bill payment: %v", err)
	}

	projectID, accountID := 1, 1
	bill := &core.Bill{ID: 1, VendorID: 1, VendorName: "Kerala Steels", ProjectID: &projectID, BillNumber: "KS-1042"}
	bp := &core.BillPayment{
		ID:          billPaymentID,
		BillID:      1,
		PaymentDate: testDate(t, "2025-06-12"),
		Amount:      decimal.NewFromInt(15000),
		AccountID:   &accountID,
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("Failed to begin tx: %v", err)
	}
	if err := cashbook.SyncBillPaymentTx(ctx, tx, bp, bill); err != nil {
		t.Fatalf("SyncBillPaymentTx failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	entry, err := cashbook.FindByOrigin(ctx, core.LedgerOrigin{Kind: core.OriginBillPayment, ID: billPaymentID})
	if err != nil {
		t.Fatalf("FindByOrigin failed: %v", err)
	}
	if entry == nil {
		t.Fatal("Expected a ledger entry for the bill payment")
	}
	if !entry.Debit.Equal(decimal.NewFromInt(15000)) {
		t.Errorf("Expected debit 15000 for an outflow, got %s", entry.Debit)
	}
	if !entry.Credit.IsZero() {
		t.Errorf("Expected zero credit, got %s", entry.Credit)
	}
	if entry.VendorID == nil || *entry.VendorID != 1 {
		t.Errorf("Expected vendor reference carried over, got %v", entry.VendorID)
	}
}

func TestCashbook_RecurringPeriodsAreDistinct(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	cashbook := core.NewCashbook(pool)

	var ruleID int
	err := pool.QueryRow(ctx, `
		INSERT INTO recurring_rules (name, direction, category, amount, account_id, day_of_month, next_run_date)
		VALUES ('Office rent', 'debit', 'recurring', 25000, 1, 5, '2025-06-05') RETURNING id
	`).Scan(&ruleID)
	if err != nil {
		t.Fatalf("Failed to insert rule: %v", err)
	}

	accountID := 1
	rule := &core.RecurringRule{
		ID:         ruleID,
		Name:       "Office rent",
		Direction:  core.DirectionDebit,
		Category:   core.CategoryRecurring,
		Amount:     decimal.NewFromInt(25000),
		AccountID:  &accountID,
		DayOfMonth: 5,
	}

	june := testDate(t, "2025-06-05")
	july := testDate(t, "2025-07-05")

	runPeriod := func(d time.Time) bool {
		tx, err := pool.Begin(ctx)
		if err != nil {
			t.Fatalf("Failed to begin tx: %v", err)
		}
		created, err := cashbook.SyncRecurringTx(ctx, tx, rule, d, nil)
		if err != nil {
			t.Fatalf("SyncRecurringTx failed for %s: %v", d.Format("2006-01-02"), err)
		}
		if err := tx.Commit(ctx); err != nil {
			t.Fatalf("Failed to commit: %v", err)
		}
		return created
	}

	if !runPeriod(june) {
		t.Error("Expected first June run to create an entry")
	}
	if runPeriod(june) {
		t.Error("Expected repeated June run to be a no-op")
	}
	if !runPeriod(july) {
		t.Error("Expected July run to create a second entry")
	}

	var count int
	if err := pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM transactions WHERE recurring_rule_id = $1", ruleID,
	).Scan(&count); err != nil {
		t.Fatalf("Failed to count entries: %v", err)
	}
	if count != 2 {
		t.Fatalf("Expected one entry per period (2), got %d", count)
	}
}

func TestCashbook_RecordTransfer(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	cashbook := core.NewCashbook(pool)

	err := cashbook.RecordTransfer(ctx, testDate(t, "2025-06-15"), 1, 2, decimal.NewFromInt(3000), "cash top-up", nil)
	if err != nil {
		t.Fatalf("RecordTransfer failed: %v", err)
	}

	rows, err := pool.Query(ctx, `
		SELECT account_id, debit, credit, subcategory FROM transactions
		WHERE category = 'transfer' ORDER BY account_id
	`)
	if err != nil {
		t.Fatalf("Failed to query transfer rows: %v", err)
	}
	defer rows.Close()

	type leg struct {
		account       int
		debit, credit decimal.Decimal
		ref           string
	}
	var legs []leg
	for rows.Next() {
		var l leg
		if err := rows.Scan(&l.account, &l.debit, &l.credit, &l.ref); err != nil {
			t.Fatalf("Failed to scan transfer leg: %v", err)
		}
		legs = append(legs, l)
	}
	if len(legs) != 2 {
		t.Fatalf("Expected a paired debit/credit (2 rows), got %d", len(legs))
	}
	if legs[0].account != 1 || !legs[0].debit.Equal(decimal.NewFromInt(3000)) || !legs[0].credit.IsZero() {
		t.Errorf("Expected debit leg on source account, got %+v", legs[0])
	}
	if legs[1].account != 2 || !legs[1].credit.Equal(decimal.NewFromInt(3000)) || !legs[1].debit.IsZero() {
		t.Errorf("Expected credit leg on destination account, got %+v", legs[1])
	}
	if legs[0].ref == "" || legs[0].ref != legs[1].ref {
		t.Errorf("Expected both legs to share a transfer reference, got %q and %q", legs[0].ref, legs[1].ref)
	}

	if err := cashbook.RecordTransfer(ctx, testDate(t, "2025-06-15"), 1, 1, decimal.NewFromInt(100), "", nil); err == nil {
		t.Error("Expected same-account transfer to be rejected")
	}
}
