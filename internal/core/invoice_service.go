package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// InvoiceService manages client invoices: creation, valuation, payment
// recording with receipt generation, and status upkeep.
type InvoiceService interface {
	CreateInvoice(ctx context.Context, input InvoiceInput) (*Invoice, error)
	UpdateInvoice(ctx context.Context, invoiceID int, input InvoiceInput) (*Invoice, error)
	// DeleteInvoice refuses to delete an invoice that has recorded payments.
	DeleteInvoice(ctx context.Context, invoiceID int) error

	GetInvoice(ctx context.Context, invoiceID int) (*Invoice, *InvoiceTotals, error)
	GetInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)

	// RecordPayment atomically records a payment, mirrors it into the
	// cashbook, refreshes the invoice status and issues a receipt.
	RecordPayment(ctx context.Context, invoiceID int, input PaymentInput, actor *int) (*Payment, *Receipt, error)

	// RefreshStatus recomputes the invoice status as of today and persists
	// it when save is true and the status changed.
	RefreshStatus(ctx context.Context, invoiceID int, today time.Time, save bool) (InvoiceStatus, error)

	GetReceipt(ctx context.Context, receiptID int) (*Receipt, error)
	GetReceipts(ctx context.Context, invoiceID *int) ([]Receipt, error)
}

// InvoiceInput carries the writable invoice fields. Exactly one of ProjectID
// and LeadID should be set; when Lines are present the flat Amount is ignored
// and replaced by the lines sum.
type InvoiceInput struct {
	ProjectID       *int               `json:"project_id"`
	LeadID          *int               `json:"lead_id"`
	InvoiceNumber   *string            `json:"invoice_number"`
	InvoiceDate     time.Time          `json:"invoice_date"`
	DueDate         time.Time          `json:"due_date"`
	Amount          decimal.Decimal    `json:"amount"`
	TaxPercent      decimal.Decimal    `json:"tax_percent"`
	DiscountPercent decimal.Decimal    `json:"discount_percent"`
	Status          InvoiceStatus      `json:"status"`
	Description     string             `json:"description"`
	Lines           []InvoiceLineInput `json:"lines"`
}

type InvoiceLineInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type PaymentInput struct {
	PaymentDate time.Time       `json:"payment_date"`
	Amount      decimal.Decimal `json:"amount"`
	AccountID   *int            `json:"account_id"`
	Method      string          `json:"method"`
	Reference   string          `json:"reference"`
	Notes       string          `json:"notes"`
}

// InvoiceFilter narrows GetInvoices. Zero values mean no constraint.
type InvoiceFilter struct {
	ProjectID *int
	LeadID    *int
	Status    InvoiceStatus
}

type invoiceService struct {
	pool     *pgxpool.Pool
	cashbook *Cashbook
}

func NewInvoiceService(pool *pgxpool.Pool, cashbook *Cashbook) InvoiceService {
	return &invoiceService{pool: pool, cashbook: cashbook}
}

func validateInvoiceInput(input InvoiceInput) error {
	if input.ProjectID == nil && input.LeadID == nil {
		return fmt.Errorf("invoice must reference a project or a lead")
	}
	if input.ProjectID != nil && input.LeadID != nil {
		return fmt.Errorf("invoice cannot reference both a project and a lead")
	}
	if input.DueDate.Before(input.InvoiceDate) {
		return fmt.Errorf("due date %s is before invoice date %s",
			input.DueDate.Format("2006-01-02"), input.InvoiceDate.Format("2006-01-02"))
	}
	if input.TaxPercent.IsNegative() {
		return fmt.Errorf("tax percent cannot be negative, got %s", input.TaxPercent)
	}
	if len(input.Lines) == 0 && !input.Amount.IsPositive() {
		return fmt.Errorf("invoice amount must be positive, got %s", input.Amount)
	}
	for i, l := range input.Lines {
		if l.Description == "" {
			return fmt.Errorf("line %d: description is required", i+1)
		}
		if !l.Quantity.IsPositive() {
			return fmt.Errorf("line %d: quantity must be positive, got %s", i+1, l.Quantity)
		}
		if l.UnitPrice.IsNegative() {
			return fmt.Errorf("line %d: unit price cannot be negative, got %s", i+1, l.UnitPrice)
		}
	}
	return nil
}

// invoiceAmount returns the flat amount to store: the lines sum wins when
// lines are present.
func invoiceAmount(input InvoiceInput) decimal.Decimal {
	if len(input.Lines) == 0 {
		return input.Amount.Round(2)
	}
	sum := decimal.Zero
	for _, l := range input.Lines {
		sum = sum.Add(l.Quantity.Mul(l.UnitPrice).Round(2))
	}
	return sum
}

func (s *invoiceService) CreateInvoice(ctx context.Context, input InvoiceInput) (*Invoice, error) {
	if err := validateInvoiceInput(input); err != nil {
		return nil, err
	}
	status := input.Status
	if status == "" {
		status = InvoiceDraft
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var invoiceID int
	err = tx.QueryRow(ctx, `
		INSERT INTO invoices (project_id, lead_id, invoice_number, invoice_date, due_date,
			amount, tax_percent, discount_percent, status, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, input.ProjectID, input.LeadID, input.InvoiceNumber, input.InvoiceDate, input.DueDate,
		invoiceAmount(input), input.TaxPercent, input.DiscountPercent, status, input.Description,
	).Scan(&invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	for _, l := range input.Lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO invoice_lines (invoice_id, description, quantity, unit_price)
			VALUES ($1, $2, $3, $4)
		`, invoiceID, l.Description, l.Quantity, l.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("failed to add invoice line: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice: %w", err)
	}

	inv, _, err := s.GetInvoice(ctx, invoiceID)
	return inv, err
}

func (s *invoiceService) UpdateInvoice(ctx context.Context, invoiceID int, input InvoiceInput) (*Invoice, error) {
	if err := validateInvoiceInput(input); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE invoices
		SET project_id = $1, lead_id = $2, invoice_number = $3, invoice_date = $4,
		    due_date = $5, amount = $6, tax_percent = $7, discount_percent = $8,
		    description = $9, updated_at = NOW()
		WHERE id = $10
	`, input.ProjectID, input.LeadID, input.InvoiceNumber, input.InvoiceDate, input.DueDate,
		invoiceAmount(input), input.TaxPercent, input.DiscountPercent, input.Description, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to update invoice %d: %w", invoiceID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("invoice %d not found", invoiceID)
	}

	// Lines are replaced wholesale.
	if _, err := tx.Exec(ctx, "DELETE FROM invoice_lines WHERE invoice_id = $1", invoiceID); err != nil {
		return nil, fmt.Errorf("failed to clear invoice lines: %w", err)
	}
	for _, l := range input.Lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO invoice_lines (invoice_id, description, quantity, unit_price)
			VALUES ($1, $2, $3, $4)
		`, invoiceID, l.Description, l.Quantity, l.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("failed to add invoice line: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice update: %w", err)
	}

	inv, _, err := s.GetInvoice(ctx, invoiceID)
	return inv, err
}

func (s *invoiceService) DeleteInvoice(ctx context.Context, invoiceID int) error {
	var paymentCount int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM payments WHERE invoice_id = $1", invoiceID,
	).Scan(&paymentCount)
	if err != nil {
		return fmt.Errorf("failed to check payments for invoice %d: %w", invoiceID, err)
	}
	if paymentCount > 0 {
		return fmt.Errorf("invoice %d has %d recorded payment(s) and cannot be deleted", invoiceID, paymentCount)
	}

	tag, err := s.pool.Exec(ctx, "DELETE FROM invoices WHERE id = $1", invoiceID)
	if err != nil {
		return fmt.Errorf("failed to delete invoice %d: %w", invoiceID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoice %d not found", invoiceID)
	}
	return nil
}

const invoiceColumns = `id, project_id, lead_id, invoice_number, invoice_date, due_date,
	amount, tax_percent, discount_percent, status, description, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.ProjectID, &inv.LeadID, &inv.InvoiceNumber, &inv.InvoiceDate, &inv.DueDate,
		&inv.Amount, &inv.TaxPercent, &inv.DiscountPercent, &inv.Status, &inv.Description,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// loadInvoice fetches an invoice with its lines, payments and advance
// allocations, through either the pool or an open transaction.
func loadInvoice(ctx context.Context, q querier, invoiceID int, forUpdate bool) (*Invoice, error) {
	query := "SELECT " + invoiceColumns + " FROM invoices WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	inv, err := scanInvoice(q.QueryRow(ctx, query, invoiceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invoice %d not found", invoiceID)
		}
		return nil, fmt.Errorf("failed to fetch invoice %d: %w", invoiceID, err)
	}

	lineRows, err := q.Query(ctx, `
		SELECT id, invoice_id, description, quantity, unit_price
		FROM invoice_lines WHERE invoice_id = $1 ORDER BY id
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch invoice lines: %w", err)
	}
	defer lineRows.Close()
	for lineRows.Next() {
		var l InvoiceLine
		if err := lineRows.Scan(&l.ID, &l.InvoiceID, &l.Description, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan invoice line: %w", err)
		}
		inv.Lines = append(inv.Lines, l)
	}
	if err := lineRows.Err(); err != nil {
		return nil, err
	}

	payRows, err := q.Query(ctx, `
		SELECT id, invoice_id, payment_date, amount, account_id, method, reference, notes, recorded_by, created_at
		FROM payments WHERE invoice_id = $1 ORDER BY payment_date, id
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payments: %w", err)
	}
	defer payRows.Close()
	for payRows.Next() {
		var p Payment
		if err := payRows.Scan(&p.ID, &p.InvoiceID, &p.PaymentDate, &p.Amount, &p.AccountID,
			&p.Method, &p.Reference, &p.Notes, &p.RecordedBy, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		inv.Payments = append(inv.Payments, p)
	}
	if err := payRows.Err(); err != nil {
		return nil, err
	}

	allocRows, err := q.Query(ctx, `
		SELECT id, advance_id, invoice_id, amount, allocated_by, notes, created_at
		FROM client_advance_allocations WHERE invoice_id = $1 ORDER BY id
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch advance allocations: %w", err)
	}
	defer allocRows.Close()
	for allocRows.Next() {
		var a ClientAdvanceAllocation
		if err := allocRows.Scan(&a.ID, &a.AdvanceID, &a.InvoiceID, &a.Amount, &a.AllocatedBy, &a.Notes, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan advance allocation: %w", err)
		}
		inv.Allocations = append(inv.Allocations, a)
	}
	return inv, allocRows.Err()
}

func (s *invoiceService) GetInvoice(ctx context.Context, invoiceID int) (*Invoice, *InvoiceTotals, error) {
	inv, err := loadInvoice(ctx, s.pool, invoiceID, false)
	if err != nil {
		return nil, nil, err
	}
	totals := ComputeInvoiceTotals(inv)
	return inv, &totals, nil
}

func (s *invoiceService) GetInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	query := "SELECT " + invoiceColumns + " FROM invoices WHERE 1=1"
	var args []any
	if filter.ProjectID != nil {
		args = append(args, *filter.ProjectID)
		query += fmt.Sprintf(" AND project_id = $%d", len(args))
	}
	if filter.LeadID != nil {
		args = append(args, *filter.LeadID)
		query += fmt.Sprintf(" AND lead_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY invoice_date DESC, id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(
			&inv.ID, &inv.ProjectID, &inv.LeadID, &inv.InvoiceNumber, &inv.InvoiceDate, &inv.DueDate,
			&inv.Amount, &inv.TaxPercent, &inv.DiscountPercent, &inv.Status, &inv.Description,
			&inv.CreatedAt, &inv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// ── Payments and receipts ────────────────────────────────────────────────────

func (s *invoiceService) RecordPayment(ctx context.Context, invoiceID int, input PaymentInput, actor *int) (*Payment, *Receipt, error) {
	if !input.Amount.IsPositive() {
		return nil, nil, fmt.Errorf("payment amount must be positive, got %s", input.Amount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the invoice row for the duration of the payment so concurrent
	// payments serialize and the status refresh sees all of them.
	inv, err := loadInvoice(ctx, tx, invoiceID, true)
	if err != nil {
		return nil, nil, err
	}

	var p Payment
	err = tx.QueryRow(ctx, `
		INSERT INTO payments (invoice_id, payment_date, amount, account_id, method, reference, notes, recorded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, invoice_id, payment_date, amount, account_id, method, reference, notes, recorded_by, created_at
	`, invoiceID, input.PaymentDate, input.Amount, input.AccountID,
		input.Method, input.Reference, input.Notes, actor,
	).Scan(&p.ID, &p.InvoiceID, &p.PaymentDate, &p.Amount, &p.AccountID,
		&p.Method, &p.Reference, &p.Notes, &p.RecordedBy, &p.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to record payment: %w", err)
	}

	if err := s.cashbook.SyncPaymentTx(ctx, tx, &p, inv); err != nil {
		return nil, nil, err
	}

	// Refresh the status with the new payment included, as of the current
	// date: a backdated payment does not move the overdue evaluation point.
	inv.Payments = append(inv.Payments, p)
	totals := ComputeInvoiceTotals(inv)
	newStatus := ComputeInvoiceStatus(inv.Status, totals.Outstanding, inv.DueDate, time.Now())
	if newStatus != inv.Status {
		_, err = tx.Exec(ctx,
			"UPDATE invoices SET status = $1, updated_at = NOW() WHERE id = $2",
			newStatus, invoiceID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to update invoice status: %w", err)
		}
	}

	receipt, err := s.generateReceiptTx(ctx, tx, inv, &p, actor)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit payment: %w", err)
	}
	return &p, receipt, nil
}

// receiptScope returns the numbering scope for a payment receipt: the project
// code when the invoice is billed to a project, otherwise a lead marker.
func receiptScope(ctx context.Context, q querier, inv *Invoice) (code string, projectID, clientID *int, err error) {
	if inv.ProjectID != nil {
		err = q.QueryRow(ctx,
			"SELECT code, client_id FROM projects WHERE id = $1", *inv.ProjectID,
		).Scan(&code, &clientID)
		if err != nil {
			return "", nil, nil, fmt.Errorf("failed to resolve project for receipt: %w", err)
		}
		return code, inv.ProjectID, clientID, nil
	}
	if inv.LeadID != nil {
		err = q.QueryRow(ctx,
			"SELECT client_id FROM leads WHERE id = $1", *inv.LeadID,
		).Scan(&clientID)
		if err != nil {
			return "", nil, nil, fmt.Errorf("failed to resolve lead for receipt: %w", err)
		}
		return fmt.Sprintf("LEAD%d", *inv.LeadID), nil, clientID, nil
	}
	return "GEN", nil, nil, nil
}

// generateReceiptTx issues a receipt for a payment. Numbers are gapless per
// scope and date: RCP-<scope>-<yyyymmdd>-<n>. The counter row is upserted
// under the payment's transaction so concurrent receipts serialize on it.
func (s *invoiceService) generateReceiptTx(ctx context.Context, tx pgx.Tx, inv *Invoice, p *Payment, actor *int) (*Receipt, error) {
	scopeCode, projectID, clientID, err := receiptScope(ctx, tx, inv)
	if err != nil {
		return nil, err
	}

	dateKey := p.PaymentDate.Format("20060102")
	scope := scopeCode + "-" + dateKey

	var n int
	err = tx.QueryRow(ctx, `
		INSERT INTO receipt_sequences (scope, last_number) VALUES ($1, 1)
		ON CONFLICT (scope) DO UPDATE SET last_number = receipt_sequences.last_number + 1
		RETURNING last_number
	`, scope).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("failed to advance receipt sequence %s: %w", scope, err)
	}

	var r Receipt
	err = tx.QueryRow(ctx, `
		INSERT INTO receipts (receipt_number, receipt_date, payment_id, invoice_id, project_id, client_id, generated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, receipt_number, receipt_date, payment_id, invoice_id, project_id, client_id, notes, generated_by, created_at
	`, fmt.Sprintf("RCP-%s-%s-%d", scopeCode, dateKey, n), p.PaymentDate, p.ID, inv.ID, projectID, clientID, actor,
	).Scan(&r.ID, &r.ReceiptNumber, &r.ReceiptDate, &r.PaymentID, &r.InvoiceID,
		&r.ProjectID, &r.ClientID, &r.Notes, &r.GeneratedBy, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate receipt: %w", err)
	}
	return &r, nil
}

func (s *invoiceService) RefreshStatus(ctx context.Context, invoiceID int, today time.Time, save bool) (InvoiceStatus, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := loadInvoice(ctx, tx, invoiceID, save)
	if err != nil {
		return "", err
	}

	totals := ComputeInvoiceTotals(inv)
	newStatus := ComputeInvoiceStatus(inv.Status, totals.Outstanding, inv.DueDate, today)
	if save && newStatus != inv.Status {
		_, err = tx.Exec(ctx,
			"UPDATE invoices SET status = $1, updated_at = NOW() WHERE id = $2",
			newStatus, invoiceID)
		if err != nil {
			return "", fmt.Errorf("failed to update invoice status: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit status refresh: %w", err)
	}
	return newStatus, nil
}

func (s *invoiceService) GetReceipt(ctx context.Context, receiptID int) (*Receipt, error) {
	var r Receipt
	err := s.pool.QueryRow(ctx, `
		SELECT id, receipt_number, receipt_date, payment_id, invoice_id, project_id, client_id, notes, generated_by, created_at
		FROM receipts WHERE id = $1
	`, receiptID).Scan(&r.ID, &r.ReceiptNumber, &r.ReceiptDate, &r.PaymentID, &r.InvoiceID,
		&r.ProjectID, &r.ClientID, &r.Notes, &r.GeneratedBy, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("receipt %d not found", receiptID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch receipt %d: %w", receiptID, err)
	}
	return &r, nil
}

func (s *invoiceService) GetReceipts(ctx context.Context, invoiceID *int) ([]Receipt, error) {
	query := `
		SELECT id, receipt_number, receipt_date, payment_id, invoice_id, project_id, client_id, notes, generated_by, created_at
		FROM receipts`
	var args []any
	if invoiceID != nil {
		query += " WHERE invoice_id = $1"
		args = append(args, *invoiceID)
	}
	query += " ORDER BY receipt_date DESC, id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []Receipt
	for rows.Next() {
		var r Receipt
		if err := rows.Scan(&r.ID, &r.ReceiptNumber, &r.ReceiptDate, &r.PaymentID, &r.InvoiceID,
			&r.ProjectID, &r.ClientID, &r.Notes, &r.GeneratedBy, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}
