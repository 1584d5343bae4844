package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so cashbook helpers
// can run standalone or inside a caller's transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// OriginKind identifies which settlement event a cashbook row mirrors.
type OriginKind string

const (
	OriginPayment             OriginKind = "payment"
	OriginBillPayment         OriginKind = "bill_payment"
	OriginClientAdvance       OriginKind = "client_advance"
	OriginExpenseClaimPayment OriginKind = "expense_claim_payment"
	OriginRecurringRule       OriginKind = "recurring_rule"
)

// LedgerOrigin is the tagged identity of a settlement event. It is the
// idempotency key for ledger sync: one origin maps to exactly one cashbook
// row. Recurring-rule origins repeat monthly, so their identity includes the
// run date.
type LedgerOrigin struct {
	Kind OriginKind
	ID   int
	Date time.Time // recurring-rule origins only
}

func (o LedgerOrigin) column() string {
	switch o.Kind {
	case OriginPayment:
		return "payment_id"
	case OriginBillPayment:
		return "bill_payment_id"
	case OriginClientAdvance:
		return "client_advance_id"
	case OriginExpenseClaimPayment:
		return "expense_claim_payment_id"
	case OriginRecurringRule:
		return "recurring_rule_id"
	}
	return ""
}

// entryFields are the mirrored columns a sync overwrites from the current
// state of the source event.
type entryFields struct {
	Date        time.Time
	Description string
	Category    TransactionCategory
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	AccountID   *int
	ProjectID   *int
	ClientID    *int
	VendorID    *int
	PersonID    *int
	RecordedBy  *int
	Remarks     string
}

// Cashbook maintains the unified transactions ledger: one mirrored row per
// settlement event, plus manual entries, transfers and salary payments.
type Cashbook struct {
	pool *pgxpool.Pool
}

func NewCashbook(pool *pgxpool.Pool) *Cashbook {
	return &Cashbook{pool: pool}
}

// upsert looks up the single cashbook row for the origin and overwrites its
// mirrored fields, inserting if absent. Re-running with an unchanged source
// leaves the row identical; no duplicates are ever created.
func (c *Cashbook) upsert(ctx context.Context, q querier, origin LedgerOrigin, f entryFields) error {
	col := origin.column()
	if col == "" {
		return fmt.Errorf("unknown ledger origin kind %q", origin.Kind)
	}

	var (
		txnID int
		err   error
	)
	if origin.Kind == OriginRecurringRule {
		err = q.QueryRow(ctx,
			"SELECT id FROM transactions WHERE recurring_rule_id = $1 AND date = $2",
			origin.ID, origin.Date,
		).Scan(&txnID)
	} else {
		err = q.QueryRow(ctx,
			fmt.Sprintf("SELECT id FROM transactions WHERE %s = $1", col),
			origin.ID,
		).Scan(&txnID)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		_, err = q.Exec(ctx, fmt.Sprintf(`
			INSERT INTO transactions
				(date, description, category, debit, credit, account_id,
				 project_id, client_id, vendor_id, person_id, recorded_by, remarks, %s)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, col),
			f.Date, f.Description, f.Category, f.Debit, f.Credit, f.AccountID,
			f.ProjectID, f.ClientID, f.VendorID, f.PersonID, f.RecordedBy, f.Remarks, origin.ID)
		if err != nil {
			return fmt.Errorf("failed to insert ledger entry for %s %d: %w", origin.Kind, origin.ID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up ledger entry for %s %d: %w", origin.Kind, origin.ID, err)
	}

	_, err = q.Exec(ctx, `
		UPDATE transactions
		SET date = $1, description = $2, category = $3, debit = $4, credit = $5,
		    account_id = $6, project_id = $7, client_id = $8, vendor_id = $9,
		    person_id = $10, recorded_by = $11, remarks = $12, updated_at = NOW()
		WHERE id = $13
	`, f.Date, f.Description, f.Category, f.Debit, f.Credit, f.AccountID,
		f.ProjectID, f.ClientID, f.VendorID, f.PersonID, f.RecordedBy, f.Remarks, txnID)
	if err != nil {
		return fmt.Errorf("failed to update ledger entry for %s %d: %w", origin.Kind, origin.ID, err)
	}
	return nil
}

// SyncPaymentTx mirrors a client payment into the cashbook as a credit.
// A payment without its invoice is silently skipped: there is nothing to
// sync yet.
func (c *Cashbook) SyncPaymentTx(ctx context.Context, tx pgx.Tx, p *Payment, inv *Invoice) error {
	if p == nil || inv == nil || p.InvoiceID == 0 {
		return nil
	}

	var clientID *int
	if inv.ProjectID != nil {
		if err := tx.QueryRow(ctx,
			"SELECT client_id FROM projects WHERE id = $1", *inv.ProjectID,
		).Scan(&clientID); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to resolve client for invoice %s: %w", inv.DisplayNumber(), err)
		}
	} else if inv.LeadID != nil {
		if err := tx.QueryRow(ctx,
			"SELECT client_id FROM leads WHERE id = $1", *inv.LeadID,
		).Scan(&clientID); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to resolve client for invoice %s: %w", inv.DisplayNumber(), err)
		}
	}

	return c.upsert(ctx, tx, LedgerOrigin{Kind: OriginPayment, ID: p.ID}, entryFields{
		Date:        p.PaymentDate,
		Description: fmt.Sprintf("Payment for invoice %s", inv.DisplayNumber()),
		Category:    CategoryClientPayment,
		Debit:       decimal.Zero,
		Credit:      p.Amount,
		AccountID:   p.AccountID,
		ProjectID:   inv.ProjectID,
		ClientID:    clientID,
		RecordedBy:  p.RecordedBy,
		Remarks:     p.Notes,
	})
}

// SyncBillPaymentTx mirrors a vendor bill payment into the cashbook as a debit.
func (c *Cashbook) SyncBillPaymentTx(ctx context.Context, tx pgx.Tx, bp *BillPayment, bill *Bill) error {
	if bp == nil || bill == nil || bp.BillID == 0 {
		return nil
	}

	desc := fmt.Sprintf("Payment for bill %s", bill.BillNumber)
	if bill.BillNumber == "" {
		desc = fmt.Sprintf("Payment to %s", bill.VendorName)
	}
	vendorID := bill.VendorID

	return c.upsert(ctx, tx, LedgerOrigin{Kind: OriginBillPayment, ID: bp.ID}, entryFields{
		Date:        bp.PaymentDate,
		Description: desc,
		Category:    CategoryVendorPayment,
		Debit:       bp.Amount,
		Credit:      decimal.Zero,
		AccountID:   bp.AccountID,
		ProjectID:   bill.ProjectID,
		VendorID:    &vendorID,
		RecordedBy:  bp.RecordedBy,
		Remarks:     bp.Notes,
	})
}

// SyncAdvanceTx mirrors a client advance (retainer) into the cashbook as a
// credit. The advance is money in hand regardless of later allocations.
func (c *Cashbook) SyncAdvanceTx(ctx context.Context, tx pgx.Tx, adv *ClientAdvance) error {
	if adv == nil || adv.ClientID == 0 {
		return nil
	}
	clientID := adv.ClientID

	return c.upsert(ctx, tx, LedgerOrigin{Kind: OriginClientAdvance, ID: adv.ID}, entryFields{
		Date:        adv.ReceivedDate,
		Description: fmt.Sprintf("Advance from %s", adv.ClientName),
		Category:    CategoryClientAdvance,
		Debit:       decimal.Zero,
		Credit:      adv.Amount,
		AccountID:   adv.AccountID,
		ProjectID:   adv.ProjectID,
		ClientID:    &clientID,
		RecordedBy:  adv.RecordedBy,
		Remarks:     adv.Notes,
	})
}

// SyncClaimPaymentTx mirrors a staff expense reimbursement into the cashbook
// as a debit.
func (c *Cashbook) SyncClaimPaymentTx(ctx context.Context, tx pgx.Tx, cp *ExpenseClaimPayment, claim *ExpenseClaim) error {
	if cp == nil || claim == nil || cp.ClaimID == 0 {
		return nil
	}
	personID := claim.EmployeeID

	return c.upsert(ctx, tx, LedgerOrigin{Kind: OriginExpenseClaimPayment, ID: cp.ID}, entryFields{
		Date:        cp.PaymentDate,
		Description: fmt.Sprintf("Expense reimbursement for claim #%d", claim.ID),
		Category:    CategoryReimbursement,
		Debit:       cp.Amount,
		Credit:      decimal.Zero,
		AccountID:   cp.AccountID,
		ProjectID:   claim.ProjectID,
		PersonID:    &personID,
		RecordedBy:  cp.RecordedBy,
		Remarks:     claim.Description,
	})
}

// SyncRecurringTx writes the cashbook entry for one recurring-rule period.
// The (rule, date) pair is the origin identity, so re-running a period is a
// no-op. Returns true when a new row was created.
func (c *Cashbook) SyncRecurringTx(ctx context.Context, tx pgx.Tx, rule *RecurringRule, runDate time.Time, actor *int) (bool, error) {
	var existing int
	err := tx.QueryRow(ctx,
		"SELECT id FROM transactions WHERE recurring_rule_id = $1 AND date = $2",
		rule.ID, runDate,
	).Scan(&existing)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("failed to check recurring period %s for rule %d: %w",
			runDate.Format("2006-01-02"), rule.ID, err)
	}

	desc := rule.Description
	if desc == "" {
		desc = rule.Name
	}
	debit, credit := decimal.Zero, decimal.Zero
	if rule.Direction == DirectionDebit {
		debit = rule.Amount
	} else {
		credit = rule.Amount
	}

	err = c.upsert(ctx, tx, LedgerOrigin{Kind: OriginRecurringRule, ID: rule.ID, Date: runDate}, entryFields{
		Date:        runDate,
		Description: desc,
		Category:    rule.Category,
		Debit:       debit,
		Credit:      credit,
		AccountID:   rule.AccountID,
		ProjectID:   rule.ProjectID,
		VendorID:    rule.VendorID,
		RecordedBy:  actor,
		Remarks:     fmt.Sprintf("Recurring: %s", rule.Name),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// FindByOrigin returns the single cashbook row mirroring the given origin,
// or nil if none exists.
func (c *Cashbook) FindByOrigin(ctx context.Context, origin LedgerOrigin) (*Transaction, error) {
	col := origin.column()
	if col == "" {
		return nil, fmt.Errorf("unknown ledger origin kind %q", origin.Kind)
	}

	query := fmt.Sprintf(`
		SELECT id, date, description, category, subcategory, debit, credit, account_id,
		       payment_id, bill_payment_id, client_advance_id, expense_claim_payment_id, recurring_rule_id,
		       project_id, client_id, vendor_id, person_id, recorded_by, remarks, created_at
		FROM transactions WHERE %s = $1`, col)
	args := []any{origin.ID}
	if origin.Kind == OriginRecurringRule {
		query += " AND date = $2"
		args = append(args, origin.Date)
	}

	var t Transaction
	err := c.pool.QueryRow(ctx, query, args...).Scan(
		&t.ID, &t.Date, &t.Description, &t.Category, &t.Subcategory, &t.Debit, &t.Credit, &t.AccountID,
		&t.PaymentID, &t.BillPaymentID, &t.ClientAdvanceID, &t.ExpenseClaimPaymentID, &t.RecurringRuleID,
		&t.ProjectID, &t.ClientID, &t.VendorID, &t.PersonID, &t.RecordedBy, &t.Remarks, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ledger entry for %s %d: %w", origin.Kind, origin.ID, err)
	}
	return &t, nil
}

// TransactionFilter narrows GetTransactions. Zero values mean no constraint.
type TransactionFilter struct {
	From      *time.Time
	To        *time.Time
	AccountID *int
	ProjectID *int
	Category  TransactionCategory
}

func (c *Cashbook) GetTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	query := `
		SELECT id, date, description, category, subcategory, debit, credit, account_id,
		       payment_id, bill_payment_id, client_advance_id, expense_claim_payment_id, recurring_rule_id,
		       project_id, client_id, vendor_id, person_id, recorded_by, remarks, created_at
		FROM transactions WHERE 1=1`
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(clause, len(args))
	}
	if filter.From != nil {
		add(" AND date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add(" AND date <= $%d", *filter.To)
	}
	if filter.AccountID != nil {
		add(" AND account_id = $%d", *filter.AccountID)
	}
	if filter.ProjectID != nil {
		add(" AND project_id = $%d", *filter.ProjectID)
	}
	if filter.Category != "" {
		add(" AND category = $%d", filter.Category)
	}
	query += " ORDER BY date DESC, id DESC"

	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(
			&t.ID, &t.Date, &t.Description, &t.Category, &t.Subcategory, &t.Debit, &t.Credit, &t.AccountID,
			&t.PaymentID, &t.BillPaymentID, &t.ClientAdvanceID, &t.ExpenseClaimPaymentID, &t.RecurringRuleID,
			&t.ProjectID, &t.ClientID, &t.VendorID, &t.PersonID, &t.RecordedBy, &t.Remarks, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// RecordTransfer posts a paired debit/credit between two accounts. Both rows
// share a transfer reference in subcategory so they can be reconciled as one
// movement.
func (c *Cashbook) RecordTransfer(ctx context.Context, date time.Time, fromAccountID, toAccountID int, amount decimal.Decimal, notes string, actor *int) error {
	if fromAccountID == toAccountID {
		return fmt.Errorf("transfer requires two different accounts")
	}
	if !amount.IsPositive() {
		return fmt.Errorf("transfer amount must be positive, got %s", amount)
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	var fromName, toName string
	if err := tx.QueryRow(ctx, "SELECT name FROM accounts WHERE id = $1", fromAccountID).Scan(&fromName); err != nil {
		return fmt.Errorf("source account %d not found: %w", fromAccountID, err)
	}
	if err := tx.QueryRow(ctx, "SELECT name FROM accounts WHERE id = $1", toAccountID).Scan(&toName); err != nil {
		return fmt.Errorf("destination account %d not found: %w", toAccountID, err)
	}

	ref := fmt.Sprintf("TXFER-%s-%d-%d", date.Format("20060102"), fromAccountID, toAccountID)
	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (date, description, category, subcategory, debit, credit, account_id, recorded_by, remarks)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8)
	`, date, "Transfer to "+toName, CategoryTransfer, ref, amount, fromAccountID, actor, notes)
	if err != nil {
		return fmt.Errorf("failed to post transfer debit: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (date, description, category, subcategory, debit, credit, account_id, recorded_by, remarks)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8)
	`, date, "Transfer from "+fromName, CategoryTransfer, ref, amount, toAccountID, actor, notes)
	if err != nil {
		return fmt.Errorf("failed to post transfer credit: %w", err)
	}

	return tx.Commit(ctx)
}

// RecordSalaryPayment posts a salary debit against a staff member.
func (c *Cashbook) RecordSalaryPayment(ctx context.Context, date time.Time, personID int, amount decimal.Decimal, accountID *int, actor *int) error {
	if !amount.IsPositive() {
		return fmt.Errorf("salary amount must be positive, got %s", amount)
	}

	var name string
	err := c.pool.QueryRow(ctx,
		"SELECT COALESCE(NULLIF(full_name, ''), username) FROM users WHERE id = $1 AND is_active", personID,
	).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("staff member %d not found or inactive", personID)
		}
		return fmt.Errorf("failed to resolve staff member %d: %w", personID, err)
	}

	_, err = c.pool.Exec(ctx, `
		INSERT INTO transactions (date, description, category, debit, credit, account_id, person_id, recorded_by)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7)
	`, date, "Salary payment: "+name, CategorySalary, amount, accountID, personID, actor)
	if err != nil {
		return fmt.Errorf("failed to post salary payment: %w", err)
	}
	return nil
}
