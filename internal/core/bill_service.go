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

// BillService manages vendor bills and their payments.
type BillService interface {
	CreateBill(ctx context.Context, input BillInput) (*Bill, error)
	UpdateBill(ctx context.Context, billID int, input BillInput) (*Bill, error)
	// DeleteBill refuses to delete a bill that has recorded payments.
	DeleteBill(ctx context.Context, billID int) error

	GetBill(ctx context.Context, billID int) (*Bill, error)
	GetBills(ctx context.Context, filter BillFilter) ([]Bill, error)

	// RecordBillPayment atomically records a payment, mirrors it into the
	// cashbook as a debit and refreshes the bill status.
	RecordBillPayment(ctx context.Context, billID int, input PaymentInput, actor *int) (*BillPayment, error)

	// RefreshStatus recomputes the bill status as of today and persists it
	// when it changed.
	RefreshStatus(ctx context.Context, billID int, today time.Time) (BillStatus, error)
}

type BillInput struct {
	VendorID    int             `json:"vendor_id"`
	ProjectID   *int            `json:"project_id"`
	BillNumber  string          `json:"bill_number"`
	BillDate    time.Time       `json:"bill_date"`
	DueDate     time.Time       `json:"due_date"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
}

type BillFilter struct {
	VendorID  *int
	ProjectID *int
	Status    BillStatus
}

type billService struct {
	pool     *pgxpool.Pool
	cashbook *Cashbook
}

func NewBillService(pool *pgxpool.Pool, cashbook *Cashbook) BillService {
	return &billService{pool: pool, cashbook: cashbook}
}

func validateBillInput(input BillInput) error {
	if input.VendorID == 0 {
		return fmt.Errorf("bill must reference a vendor")
	}
	if input.DueDate.Before(input.BillDate) {
		return fmt.Errorf("due date %s is before bill date %s",
			input.DueDate.Format("2006-01-02"), input.BillDate.Format("2006-01-02"))
	}
	if !input.Amount.IsPositive() {
		return fmt.Errorf("bill amount must be positive, got %s", input.Amount)
	}
	return nil
}

func (s *billService) CreateBill(ctx context.Context, input BillInput) (*Bill, error) {
	if err := validateBillInput(input); err != nil {
		return nil, err
	}

	var billID int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO bills (vendor_id, project_id, bill_number, bill_date, due_date, amount, category, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, input.VendorID, input.ProjectID, input.BillNumber, input.BillDate, input.DueDate,
		input.Amount.Round(2), input.Category, input.Description,
	).Scan(&billID)
	if err != nil {
		return nil, fmt.Errorf("failed to create bill: %w", err)
	}
	return s.GetBill(ctx, billID)
}

func (s *billService) UpdateBill(ctx context.Context, billID int, input BillInput) (*Bill, error) {
	if err := validateBillInput(input); err != nil {
		return nil, err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE bills
		SET vendor_id = $1, project_id = $2, bill_number = $3, bill_date = $4, due_date = $5,
		    amount = $6, category = $7, description = $8, updated_at = NOW()
		WHERE id = $9
	`, input.VendorID, input.ProjectID, input.BillNumber, input.BillDate, input.DueDate,
		input.Amount.Round(2), input.Category, input.Description, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to update bill %d: %w", billID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("bill %d not found", billID)
	}
	return s.GetBill(ctx, billID)
}

func (s *billService) DeleteBill(ctx context.Context, billID int) error {
	var paymentCount int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM bill_payments WHERE bill_id = $1", billID,
	).Scan(&paymentCount)
	if err != nil {
		return fmt.Errorf("failed to check payments for bill %d: %w", billID, err)
	}
	if paymentCount > 0 {
		return fmt.Errorf("bill %d has %d recorded payment(s) and cannot be deleted", billID, paymentCount)
	}

	tag, err := s.pool.Exec(ctx, "DELETE FROM bills WHERE id = $1", billID)
	if err != nil {
		return fmt.Errorf("failed to delete bill %d: %w", billID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bill %d not found", billID)
	}
	return nil
}

// billColumns joins vendors for the display name and aggregates payments so a
// single scan yields amount_paid.
const billColumns = `b.id, b.vendor_id, v.name, b.project_id, b.bill_number, b.bill_date, b.due_date,
	b.amount, b.status, b.category, b.description, b.created_by, b.created_at,
	COALESCE((SELECT SUM(bp.amount) FROM bill_payments bp WHERE bp.bill_id = b.id), 0)`

func scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(
		&b.ID, &b.VendorID, &b.VendorName, &b.ProjectID, &b.BillNumber, &b.BillDate, &b.DueDate,
		&b.Amount, &b.Status, &b.Category, &b.Description, &b.CreatedBy, &b.CreatedAt,
		&b.AmountPaid,
	)
	if err != nil {
		return nil, err
	}
	b.Outstanding = BillOutstanding(b.Amount, b.AmountPaid)
	return &b, nil
}

func loadBill(ctx context.Context, q querier, billID int, forUpdate bool) (*Bill, error) {
	query := "SELECT " + billColumns + " FROM bills b JOIN vendors v ON v.id = b.vendor_id WHERE b.id = $1"
	if forUpdate {
		query += " FOR UPDATE OF b"
	}
	b, err := scanBill(q.QueryRow(ctx, query, billID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("bill %d not found", billID)
		}
		return nil, fmt.Errorf("failed to fetch bill %d: %w", billID, err)
	}
	return b, nil
}

func (s *billService) GetBill(ctx context.Context, billID int) (*Bill, error) {
	return loadBill(ctx, s.pool, billID, false)
}

func (s *billService) GetBills(ctx context.Context, filter BillFilter) ([]Bill, error) {
	query := "SELECT " + billColumns + " FROM bills b JOIN vendors v ON v.id = b.vendor_id WHERE 1=1"
	var args []any
	if filter.VendorID != nil {
		args = append(args, *filter.VendorID)
		query += fmt.Sprintf(" AND b.vendor_id = $%d", len(args))
	}
	if filter.ProjectID != nil {
		args = append(args, *filter.ProjectID)
		query += fmt.Sprintf(" AND b.project_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND b.status = $%d", len(args))
	}
	query += " ORDER BY b.bill_date DESC, b.id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}
	defer rows.Close()

	var bills []Bill
	for rows.Next() {
		var b Bill
		if err := rows.Scan(
			&b.ID, &b.VendorID, &b.VendorName, &b.ProjectID, &b.BillNumber, &b.BillDate, &b.DueDate,
			&b.Amount, &b.Status, &b.Category, &b.Description, &b.CreatedBy, &b.CreatedAt,
			&b.AmountPaid,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		b.Outstanding = BillOutstanding(b.Amount, b.AmountPaid)
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

func (s *billService) RecordBillPayment(ctx context.Context, billID int, input PaymentInput, actor *int) (*BillPayment, error) {
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive, got %s", input.Amount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	bill, err := loadBill(ctx, tx, billID, true)
	if err != nil {
		return nil, err
	}
	if input.Amount.GreaterThan(bill.Outstanding) {
		return nil, fmt.Errorf("payment %s exceeds outstanding %s on bill %d",
			input.Amount, bill.Outstanding, billID)
	}

	var bp BillPayment
	err = tx.QueryRow(ctx, `
		INSERT INTO bill_payments (bill_id, payment_date, amount, account_id, method, reference, notes, recorded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, bill_id, payment_date, amount, account_id, method, reference, notes, recorded_by, created_at
	`, billID, input.PaymentDate, input.Amount, input.AccountID,
		input.Method, input.Reference, input.Notes, actor,
	).Scan(&bp.ID, &bp.BillID, &bp.PaymentDate, &bp.Amount, &bp.AccountID,
		&bp.Method, &bp.Reference, &bp.Notes, &bp.RecordedBy, &bp.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record bill payment: %w", err)
	}

	if err := s.cashbook.SyncBillPaymentTx(ctx, tx, &bp, bill); err != nil {
		return nil, err
	}

	// Evaluate as of the current date so a backdated payment does not move
	// the overdue evaluation point.
	paid := bill.AmountPaid.Add(bp.Amount)
	newStatus := ComputeBillStatus(bill.Amount, BillOutstanding(bill.Amount, paid), bill.DueDate, time.Now())
	if newStatus != bill.Status {
		_, err = tx.Exec(ctx,
			"UPDATE bills SET status = $1, updated_at = NOW() WHERE id = $2",
			newStatus, billID)
		if err != nil {
			return nil, fmt.Errorf("failed to update bill status: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit bill payment: %w", err)
	}
	return &bp, nil
}

func (s *billService) RefreshStatus(ctx context.Context, billID int, today time.Time) (BillStatus, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	bill, err := loadBill(ctx, tx, billID, true)
	if err != nil {
		return "", err
	}

	newStatus := ComputeBillStatus(bill.Amount, bill.Outstanding, bill.DueDate, today)
	if newStatus != bill.Status {
		_, err = tx.Exec(ctx,
			"UPDATE bills SET status = $1, updated_at = NOW() WHERE id = $2",
			newStatus, billID)
		if err != nil {
			return "", fmt.Errorf("failed to update bill status: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit status refresh: %w", err)
	}
	return newStatus, nil
}
