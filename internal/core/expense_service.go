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

// ExpenseClaimService manages the staff expense claim lifecycle:
// submitted → approved → paid, or submitted → rejected.
type ExpenseClaimService interface {
	SubmitClaim(ctx context.Context, input ExpenseClaimInput) (*ExpenseClaim, error)
	ApproveClaim(ctx context.Context, claimID int, approver int) (*ExpenseClaim, error)
	RejectClaim(ctx context.Context, claimID int, approver int) (*ExpenseClaim, error)

	// PayClaim records the reimbursement for an approved claim, mirrors it
	// into the cashbook and marks the claim paid.
	PayClaim(ctx context.Context, claimID int, input PaymentInput, actor *int) (*ExpenseClaimPayment, error)

	GetClaim(ctx context.Context, claimID int) (*ExpenseClaim, error)
	GetClaims(ctx context.Context, employeeID *int, status ClaimStatus) ([]ExpenseClaim, error)
}

type ExpenseClaimInput struct {
	EmployeeID  int             `json:"employee_id"`
	ProjectID   *int            `json:"project_id"`
	ExpenseDate time.Time       `json:"expense_date"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
}

type expenseClaimService struct {
	pool     *pgxpool.Pool
	cashbook *Cashbook
}

func NewExpenseClaimService(pool *pgxpool.Pool, cashbook *Cashbook) ExpenseClaimService {
	return &expenseClaimService{pool: pool, cashbook: cashbook}
}

const claimColumns = `id, employee_id, project_id, expense_date, amount, category, description,
	status, approved_by, approved_at, created_at`

func scanClaim(row pgx.Row) (*ExpenseClaim, error) {
	var c ExpenseClaim
	err := row.Scan(&c.ID, &c.EmployeeID, &c.ProjectID, &c.ExpenseDate, &c.Amount, &c.Category,
		&c.Description, &c.Status, &c.ApprovedBy, &c.ApprovedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *expenseClaimService) SubmitClaim(ctx context.Context, input ExpenseClaimInput) (*ExpenseClaim, error) {
	if input.EmployeeID == 0 {
		return nil, fmt.Errorf("claim must reference an employee")
	}
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("claim amount must be positive, got %s", input.Amount)
	}

	claim, err := scanClaim(s.pool.QueryRow(ctx, `
		INSERT INTO expense_claims (employee_id, project_id, expense_date, amount, category, description, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+claimColumns,
		input.EmployeeID, input.ProjectID, input.ExpenseDate, input.Amount.Round(2),
		input.Category, input.Description, ClaimSubmitted))
	if err != nil {
		return nil, fmt.Errorf("failed to submit claim: %w", err)
	}
	return claim, nil
}

// transitionClaim moves a claim from one status to another, failing when the
// claim is not in the expected state.
func (s *expenseClaimService) transitionClaim(ctx context.Context, claimID int, from, to ClaimStatus, approver *int) (*ExpenseClaim, error) {
	claim, err := scanClaim(s.pool.QueryRow(ctx, `
		UPDATE expense_claims
		SET status = $1, approved_by = COALESCE($2, approved_by), approved_at = NOW()
		WHERE id = $3 AND status = $4
		RETURNING `+claimColumns,
		to, approver, claimID, from))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("claim %d is not %s", claimID, from)
		}
		return nil, fmt.Errorf("failed to move claim %d to %s: %w", claimID, to, err)
	}
	return claim, nil
}

func (s *expenseClaimService) ApproveClaim(ctx context.Context, claimID int, approver int) (*ExpenseClaim, error) {
	return s.transitionClaim(ctx, claimID, ClaimSubmitted, ClaimApproved, &approver)
}

func (s *expenseClaimService) RejectClaim(ctx context.Context, claimID int, approver int) (*ExpenseClaim, error) {
	return s.transitionClaim(ctx, claimID, ClaimSubmitted, ClaimRejected, &approver)
}

func (s *expenseClaimService) PayClaim(ctx context.Context, claimID int, input PaymentInput, actor *int) (*ExpenseClaimPayment, error) {
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive, got %s", input.Amount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	claim, err := scanClaim(tx.QueryRow(ctx,
		"SELECT "+claimColumns+" FROM expense_claims WHERE id = $1 FOR UPDATE", claimID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("claim %d not found", claimID)
		}
		return nil, fmt.Errorf("failed to fetch claim %d: %w", claimID, err)
	}
	if claim.Status != ClaimApproved {
		return nil, fmt.Errorf("claim %d is %s, only approved claims can be paid", claimID, claim.Status)
	}

	var cp ExpenseClaimPayment
	err = tx.QueryRow(ctx, `
		INSERT INTO expense_claim_payments (claim_id, payment_date, amount, account_id, method, reference, recorded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, claim_id, payment_date, amount, account_id, method, reference, recorded_by, created_at
	`, claimID, input.PaymentDate, input.Amount, input.AccountID, input.Method, input.Reference, actor,
	).Scan(&cp.ID, &cp.ClaimID, &cp.PaymentDate, &cp.Amount, &cp.AccountID,
		&cp.Method, &cp.Reference, &cp.RecordedBy, &cp.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record claim payment: %w", err)
	}

	if err := s.cashbook.SyncClaimPaymentTx(ctx, tx, &cp, claim); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		"UPDATE expense_claims SET status = $1 WHERE id = $2", ClaimPaid, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark claim paid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim payment: %w", err)
	}
	return &cp, nil
}

func (s *expenseClaimService) GetClaim(ctx context.Context, claimID int) (*ExpenseClaim, error) {
	claim, err := scanClaim(s.pool.QueryRow(ctx,
		"SELECT "+claimColumns+" FROM expense_claims WHERE id = $1", claimID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("claim %d not found", claimID)
		}
		return nil, fmt.Errorf("failed to fetch claim %d: %w", claimID, err)
	}
	return claim, nil
}

func (s *expenseClaimService) GetClaims(ctx context.Context, employeeID *int, status ClaimStatus) ([]ExpenseClaim, error) {
	query := "SELECT " + claimColumns + " FROM expense_claims WHERE 1=1"
	var args []any
	if employeeID != nil {
		args = append(args, *employeeID)
		query += fmt.Sprintf(" AND employee_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY expense_date DESC, id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer rows.Close()

	var claims []ExpenseClaim
	for rows.Next() {
		var c ExpenseClaim
		if err := rows.Scan(&c.ID, &c.EmployeeID, &c.ProjectID, &c.ExpenseDate, &c.Amount, &c.Category,
			&c.Description, &c.Status, &c.ApprovedBy, &c.ApprovedAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}
