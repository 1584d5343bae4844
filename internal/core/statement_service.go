package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// StatementService imports bank statement CSVs and reconciles their lines
// against the cashbook.
type StatementService interface {
	// ImportCSV parses a statement export and stores it against an account.
	// Headerless files are read positionally (date, description, signed
	// amount, optional running balance); a header row is mapped by column
	// name and may split the amount into credit/debit columns instead.
	// Signed amounts: positive is money in, negative is money out.
	ImportCSV(ctx context.Context, accountID int, sourceName string, r io.Reader, uploadedBy *int) (*BankStatementImport, []BankStatementLine, error)

	GetImport(ctx context.Context, importID int) (*BankStatementImport, []BankStatementLine, error)

	// MatchLines attempts to pair every unmatched line of an import with a
	// cashbook transaction on the same account: exact amount, date within
	// one day, each transaction used at most once. Returns the number of
	// lines matched.
	MatchLines(ctx context.Context, importID int) (int, error)

	// CreateTransactionFromLine books an unmatched line into the cashbook
	// as a miscellaneous entry and links it.
	CreateTransactionFromLine(ctx context.Context, lineID int, category TransactionCategory, actor *int) (*Transaction, error)
}

type statementService struct {
	pool *pgxpool.Pool
}

func NewStatementService(pool *pgxpool.Pool) StatementService {
	return &statementService{pool: pool}
}

var statementDateFormats = []string{"2006-01-02", "02/01/2006", "02-01-2006"}

func parseStatementDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range statementDateFormats {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseStatementAmount accepts bank-export formatting: thousands separators
// and surrounding whitespace.
func parseStatementAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	return decimal.NewFromString(s)
}

// statementLayout maps statement columns to their meaning. Either amount is
// set (signed single column) or the credit/debit pair is. -1 means absent.
type statementLayout struct {
	date        int
	description int
	amount      int
	credit      int
	debit       int
	balance     int
}

// Positional fallback for headerless exports: date, description, amount and
// an optional running balance.
func defaultStatementLayout() statementLayout {
	return statementLayout{date: 0, description: 1, amount: 2, credit: -1, debit: -1, balance: 3}
}

// Column names banks actually use on their CSV exports.
var statementHeaderNames = map[string]func(*statementLayout, int){
	"date":              func(l *statementLayout, i int) { l.date = i },
	"transaction date":  func(l *statementLayout, i int) { l.date = i },
	"value date":        func(l *statementLayout, i int) { l.date = i },
	"txn date":          func(l *statementLayout, i int) { l.date = i },
	"description":       func(l *statementLayout, i int) { l.description = i },
	"narration":         func(l *statementLayout, i int) { l.description = i },
	"particulars":       func(l *statementLayout, i int) { l.description = i },
	"details":           func(l *statementLayout, i int) { l.description = i },
	"amount":            func(l *statementLayout, i int) { l.amount = i },
	"credit":            func(l *statementLayout, i int) { l.credit = i },
	"deposit":           func(l *statementLayout, i int) { l.credit = i },
	"deposit amount":    func(l *statementLayout, i int) { l.credit = i },
	"cr":                func(l *statementLayout, i int) { l.credit = i },
	"debit":             func(l *statementLayout, i int) { l.debit = i },
	"withdrawal":        func(l *statementLayout, i int) { l.debit = i },
	"withdrawal amount": func(l *statementLayout, i int) { l.debit = i },
	"dr":                func(l *statementLayout, i int) { l.debit = i },
	"balance":           func(l *statementLayout, i int) { l.balance = i },
	"running balance":   func(l *statementLayout, i int) { l.balance = i },
	"closing balance":   func(l *statementLayout, i int) { l.balance = i },
}

// headerStatementLayout resolves a header row by column name. A usable
// layout needs a date column and either an amount column or a credit/debit
// pair; anything less falls back to the positional default.
func headerStatementLayout(header []string) statementLayout {
	layout := statementLayout{date: -1, description: -1, amount: -1, credit: -1, debit: -1, balance: -1}
	for i, name := range header {
		if set, ok := statementHeaderNames[strings.ToLower(strings.TrimSpace(name))]; ok {
			set(&layout, i)
		}
	}
	if layout.date < 0 || (layout.amount < 0 && layout.credit < 0 && layout.debit < 0) {
		return defaultStatementLayout()
	}
	return layout
}

func (l statementLayout) field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// amountOf returns the signed amount of a row: the single amount column, or
// credit minus debit when the export splits the directions.
func (l statementLayout) amountOf(record []string) (decimal.Decimal, error) {
	if l.amount >= 0 {
		raw := l.field(record, l.amount)
		if raw == "" {
			return decimal.Decimal{}, fmt.Errorf("missing amount")
		}
		return parseStatementAmount(raw)
	}

	amount := decimal.Zero
	seen := false
	if raw := l.field(record, l.credit); raw != "" {
		v, err := parseStatementAmount(raw)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("bad credit %q", raw)
		}
		amount = amount.Add(v)
		seen = true
	}
	if raw := l.field(record, l.debit); raw != "" {
		v, err := parseStatementAmount(raw)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("bad debit %q", raw)
		}
		amount = amount.Sub(v)
		seen = true
	}
	if !seen {
		return decimal.Decimal{}, fmt.Errorf("missing credit and debit")
	}
	return amount, nil
}

func (s *statementService) ImportCSV(ctx context.Context, accountID int, sourceName string, r io.Reader, uploadedBy *int) (*BankStatementImport, []BankStatementLine, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // balance column is optional

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse statement CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("statement CSV is empty")
	}

	// A first row that does not start with a date is a header: map columns
	// by name so exports with credit/debit pairs or reordered columns load.
	start := 0
	layout := defaultStatementLayout()
	if _, err := parseStatementDate(records[0][0]); err != nil {
		start = 1
		layout = headerStatementLayout(records[0])
	}
	if start == len(records) {
		return nil, nil, fmt.Errorf("statement CSV has no data rows")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)", accountID,
	).Scan(&exists); err != nil {
		return nil, nil, fmt.Errorf("failed to check account %d: %w", accountID, err)
	}
	if !exists {
		return nil, nil, fmt.Errorf("account %d not found", accountID)
	}

	var imp BankStatementImport
	err = tx.QueryRow(ctx, `
		INSERT INTO bank_statement_imports (account_id, source_name, uploaded_by)
		VALUES ($1, $2, $3)
		RETURNING id, account_id, source_name, uploaded_by, created_at
	`, accountID, sourceName, uploadedBy,
	).Scan(&imp.ID, &imp.AccountID, &imp.SourceName, &imp.UploadedBy, &imp.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create statement import: %w", err)
	}

	var lines []BankStatementLine
	for i, record := range records[start:] {
		rowNum := start + i + 1

		rawDate := layout.field(record, layout.date)
		if rawDate == "" {
			return nil, nil, fmt.Errorf("row %d: missing date", rowNum)
		}
		lineDate, err := parseStatementDate(rawDate)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", rowNum, err)
		}
		amount, err := layout.amountOf(record)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", rowNum, err)
		}
		var balance *decimal.Decimal
		if raw := layout.field(record, layout.balance); raw != "" {
			b, err := parseStatementAmount(raw)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d: bad balance %q", rowNum, raw)
			}
			balance = &b
		}

		var line BankStatementLine
		err = tx.QueryRow(ctx, `
			INSERT INTO bank_statement_lines (statement_id, line_date, description, amount, balance)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, statement_id, line_date, description, amount, balance, matched_transaction_id, created_at
		`, imp.ID, lineDate, layout.field(record, layout.description), amount.Round(2), balance,
		).Scan(&line.ID, &line.StatementID, &line.LineDate, &line.Description, &line.Amount,
			&line.Balance, &line.MatchedTransactionID, &line.CreatedAt)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: failed to store line: %w", rowNum, err)
		}
		lines = append(lines, line)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit statement import: %w", err)
	}
	return &imp, lines, nil
}

func (s *statementService) GetImport(ctx context.Context, importID int) (*BankStatementImport, []BankStatementLine, error) {
	var imp BankStatementImport
	err := s.pool.QueryRow(ctx, `
		SELECT id, account_id, source_name, uploaded_by, created_at
		FROM bank_statement_imports WHERE id = $1
	`, importID).Scan(&imp.ID, &imp.AccountID, &imp.SourceName, &imp.UploadedBy, &imp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("statement import %d not found", importID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch statement import %d: %w", importID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, statement_id, line_date, description, amount, balance, matched_transaction_id, created_at
		FROM bank_statement_lines WHERE statement_id = $1 ORDER BY line_date, id
	`, importID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch statement lines: %w", err)
	}
	defer rows.Close()

	var lines []BankStatementLine
	for rows.Next() {
		var line BankStatementLine
		if err := rows.Scan(&line.ID, &line.StatementID, &line.LineDate, &line.Description, &line.Amount,
			&line.Balance, &line.MatchedTransactionID, &line.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan statement line: %w", err)
		}
		lines = append(lines, line)
	}
	return &imp, lines, rows.Err()
}

func (s *statementService) MatchLines(ctx context.Context, importID int) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var accountID int
	err = tx.QueryRow(ctx,
		"SELECT account_id FROM bank_statement_imports WHERE id = $1", importID,
	).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("statement import %d not found", importID)
		}
		return 0, fmt.Errorf("failed to fetch statement import %d: %w", importID, err)
	}

	lineRows, err := tx.Query(ctx, `
		SELECT id, line_date, amount FROM bank_statement_lines
		WHERE statement_id = $1 AND matched_transaction_id IS NULL
		ORDER BY line_date, id
	`, importID)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch unmatched lines: %w", err)
	}
	type pending struct {
		id     int
		date   time.Time
		amount decimal.Decimal
	}
	var unmatched []pending
	for lineRows.Next() {
		var p pending
		if err := lineRows.Scan(&p.id, &p.date, &p.amount); err != nil {
			lineRows.Close()
			return 0, fmt.Errorf("failed to scan statement line: %w", err)
		}
		unmatched = append(unmatched, p)
	}
	lineRows.Close()
	if err := lineRows.Err(); err != nil {
		return 0, err
	}

	// Match line by line so each transaction is claimed at most once: exact
	// signed amount on the same account, closest date within one day, not
	// already linked by any statement line.
	matched := 0
	for _, p := range unmatched {
		column := "credit"
		if p.amount.IsNegative() {
			column = "debit"
		}

		var txnID int
		err = tx.QueryRow(ctx, fmt.Sprintf(`
			SELECT t.id FROM transactions t
			WHERE t.account_id = $1
			  AND ABS(t.date - $2::date) <= 1
			  AND t.%s = $3
			  AND NOT EXISTS (SELECT 1 FROM bank_statement_lines l WHERE l.matched_transaction_id = t.id)
			ORDER BY ABS(t.date - $2::date), t.id
			LIMIT 1
		`, column), accountID, p.date, p.amount.Abs()).Scan(&txnID)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to find match for line %d: %w", p.id, err)
		}

		if _, err := tx.Exec(ctx,
			"UPDATE bank_statement_lines SET matched_transaction_id = $1 WHERE id = $2",
			txnID, p.id); err != nil {
			return 0, fmt.Errorf("failed to link line %d: %w", p.id, err)
		}
		matched++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit matching: %w", err)
	}
	return matched, nil
}

func (s *statementService) CreateTransactionFromLine(ctx context.Context, lineID int, category TransactionCategory, actor *int) (*Transaction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var line BankStatementLine
	var accountID int
	err = tx.QueryRow(ctx, `
		SELECT l.id, l.line_date, l.description, l.amount, l.matched_transaction_id, i.account_id
		FROM bank_statement_lines l
		JOIN bank_statement_imports i ON i.id = l.statement_id
		WHERE l.id = $1
		FOR UPDATE OF l
	`, lineID).Scan(&line.ID, &line.LineDate, &line.Description, &line.Amount,
		&line.MatchedTransactionID, &accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("statement line %d not found", lineID)
		}
		return nil, fmt.Errorf("failed to fetch statement line %d: %w", lineID, err)
	}
	if line.MatchedTransactionID != nil {
		return nil, fmt.Errorf("statement line %d is already matched to transaction %d", lineID, *line.MatchedTransactionID)
	}

	if category == "" {
		if line.Amount.IsNegative() {
			category = CategoryOtherExpense
		} else {
			category = CategoryOtherIncome
		}
	}
	debit, credit := decimal.Zero, decimal.Zero
	if line.Amount.IsNegative() {
		debit = line.Amount.Neg()
	} else {
		credit = line.Amount
	}

	var t Transaction
	err = tx.QueryRow(ctx, `
		INSERT INTO transactions (date, description, category, debit, credit, account_id, recorded_by, remarks)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, date, description, category, subcategory, debit, credit, account_id,
		          payment_id, bill_payment_id, client_advance_id, expense_claim_payment_id, recurring_rule_id,
		          project_id, client_id, vendor_id, person_id, recorded_by, remarks, created_at
	`, line.LineDate, line.Description, category, debit, credit, accountID, actor, "from bank statement",
	).Scan(&t.ID, &t.Date, &t.Description, &t.Category, &t.Subcategory, &t.Debit, &t.Credit, &t.AccountID,
		&t.PaymentID, &t.BillPaymentID, &t.ClientAdvanceID, &t.ExpenseClaimPaymentID, &t.RecurringRuleID,
		&t.ProjectID, &t.ClientID, &t.VendorID, &t.PersonID, &t.RecordedBy, &t.Remarks, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to book statement line %d: %w", lineID, err)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE bank_statement_lines SET matched_transaction_id = $1 WHERE id = $2",
		t.ID, lineID); err != nil {
		return nil, fmt.Errorf("failed to link statement line %d: %w", lineID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return &t, nil
}
