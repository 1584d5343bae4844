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

// AdvanceService manages client advances (retainers) and their allocation
// against invoices.
type AdvanceService interface {
	RecordAdvance(ctx context.Context, input AdvanceInput, actor *int) (*ClientAdvance, error)
	// DeleteAdvance refuses to delete an advance that has allocations.
	DeleteAdvance(ctx context.Context, advanceID int) error

	GetAdvance(ctx context.Context, advanceID int) (*ClientAdvance, error)
	GetAdvances(ctx context.Context, clientID *int) ([]ClientAdvance, error)

	// Allocate applies part of an advance against an invoice. The amount is
	// capped by both the advance's unallocated balance and the invoice's
	// outstanding. The invoice status is refreshed afterwards.
	Allocate(ctx context.Context, advanceID, invoiceID int, amount decimal.Decimal, notes string, actor *int) (*ClientAdvanceAllocation, error)
}

type AdvanceInput struct {
	ClientID     int             `json:"client_id"`
	ProjectID    *int            `json:"project_id"`
	ReceivedDate time.Time       `json:"received_date"`
	Amount       decimal.Decimal `json:"amount"`
	AccountID    *int            `json:"account_id"`
	Method       string          `json:"method"`
	Reference    string          `json:"reference"`
	Notes        string          `json:"notes"`
}

type advanceService struct {
	pool     *pgxpool.Pool
	cashbook *Cashbook
}

func NewAdvanceService(pool *pgxpool.Pool, cashbook *Cashbook) AdvanceService {
	return &advanceService{pool: pool, cashbook: cashbook}
}

func (s *advanceService) RecordAdvance(ctx context.Context, input AdvanceInput, actor *int) (*ClientAdvance, error) {
	if input.ClientID == 0 {
		return nil, fmt.Errorf("advance must reference a client")
	}
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("advance amount must be positive, got %s", input.Amount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var adv ClientAdvance
	err = tx.QueryRow(ctx, `
		INSERT INTO client_advances (client_id, project_id, received_date, amount, account_id, method, reference, notes, recorded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, client_id, project_id, received_date, amount, account_id, method, reference, notes, recorded_by, created_at
	`, input.ClientID, input.ProjectID, input.ReceivedDate, input.Amount.Round(2), input.AccountID,
		input.Method, input.Reference, input.Notes, actor,
	).Scan(&adv.ID, &adv.ClientID, &adv.ProjectID, &adv.ReceivedDate, &adv.Amount, &adv.AccountID,
		&adv.Method, &adv.Reference, &adv.Notes, &adv.RecordedBy, &adv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record advance: %w", err)
	}

	if err := tx.QueryRow(ctx,
		"SELECT name FROM clients WHERE id = $1", adv.ClientID,
	).Scan(&adv.ClientName); err != nil {
		return nil, fmt.Errorf("client %d not found: %w", adv.ClientID, err)
	}

	if err := s.cashbook.SyncAdvanceTx(ctx, tx, &adv); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit advance: %w", err)
	}

	adv.AvailableAmount = adv.Amount
	return &adv, nil
}

func (s *advanceService) DeleteAdvance(ctx context.Context, advanceID int) error {
	var allocCount int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM client_advance_allocations WHERE advance_id = $1", advanceID,
	).Scan(&allocCount)
	if err != nil {
		return fmt.Errorf("failed to check allocations for advance %d: %w", advanceID, err)
	}
	if allocCount > 0 {
		return fmt.Errorf("advance %d has %d allocation(s) and cannot be deleted", advanceID, allocCount)
	}

	tag, err := s.pool.Exec(ctx, "DELETE FROM client_advances WHERE id = $1", advanceID)
	if err != nil {
		return fmt.Errorf("failed to delete advance %d: %w", advanceID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("advance %d not found", advanceID)
	}
	return nil
}

const advanceColumns = `a.id, a.client_id, c.name, a.project_id, a.received_date, a.amount,
	a.account_id, a.method, a.reference, a.notes, a.recorded_by, a.created_at,
	COALESCE((SELECT SUM(al.amount) FROM client_advance_allocations al WHERE al.advance_id = a.id), 0)`

func scanAdvance(row pgx.Row) (*ClientAdvance, error) {
	var adv ClientAdvance
	err := row.Scan(&adv.ID, &adv.ClientID, &adv.ClientName, &adv.ProjectID, &adv.ReceivedDate, &adv.Amount,
		&adv.AccountID, &adv.Method, &adv.Reference, &adv.Notes, &adv.RecordedBy, &adv.CreatedAt,
		&adv.AllocatedAmount)
	if err != nil {
		return nil, err
	}
	adv.AvailableAmount = adv.Amount.Sub(adv.AllocatedAmount)
	return &adv, nil
}

func loadAdvance(ctx context.Context, q querier, advanceID int) (*ClientAdvance, error) {
	adv, err := scanAdvance(q.QueryRow(ctx,
		"SELECT "+advanceColumns+" FROM client_advances a JOIN clients c ON c.id = a.client_id WHERE a.id = $1",
		advanceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("advance %d not found", advanceID)
		}
		return nil, fmt.Errorf("failed to fetch advance %d: %w", advanceID, err)
	}
	return adv, nil
}

func (s *advanceService) GetAdvance(ctx context.Context, advanceID int) (*ClientAdvance, error) {
	return loadAdvance(ctx, s.pool, advanceID)
}

func (s *advanceService) GetAdvances(ctx context.Context, clientID *int) ([]ClientAdvance, error) {
	query := "SELECT " + advanceColumns + " FROM client_advances a JOIN clients c ON c.id = a.client_id"
	var args []any
	if clientID != nil {
		query += " WHERE a.client_id = $1"
		args = append(args, *clientID)
	}
	query += " ORDER BY a.received_date DESC, a.id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query advances: %w", err)
	}
	defer rows.Close()

	var advances []ClientAdvance
	for rows.Next() {
		var adv ClientAdvance
		if err := rows.Scan(&adv.ID, &adv.ClientID, &adv.ClientName, &adv.ProjectID, &adv.ReceivedDate, &adv.Amount,
			&adv.AccountID, &adv.Method, &adv.Reference, &adv.Notes, &adv.RecordedBy, &adv.CreatedAt,
			&adv.AllocatedAmount); err != nil {
			return nil, fmt.Errorf("failed to scan advance: %w", err)
		}
		adv.AvailableAmount = adv.Amount.Sub(adv.AllocatedAmount)
		advances = append(advances, adv)
	}
	return advances, rows.Err()
}

func (s *advanceService) Allocate(ctx context.Context, advanceID, invoiceID int, amount decimal.Decimal, notes string, actor *int) (*ClientAdvanceAllocation, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("allocation amount must be positive, got %s", amount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the advance row so concurrent allocations serialize: the allocated
	// sum must not move between the availability check and the insert.
	if _, err := tx.Exec(ctx, "SELECT id FROM client_advances WHERE id = $1 FOR UPDATE", advanceID); err != nil {
		return nil, fmt.Errorf("failed to lock advance %d: %w", advanceID, err)
	}
	adv, err := loadAdvance(ctx, tx, advanceID)
	if err != nil {
		return nil, err
	}
	inv, err := loadInvoice(ctx, tx, invoiceID, true)
	if err != nil {
		return nil, err
	}

	totals := ComputeInvoiceTotals(inv)
	if amount.GreaterThan(adv.AvailableAmount) {
		return nil, fmt.Errorf("allocation %s exceeds available advance balance %s", amount, adv.AvailableAmount)
	}
	if amount.GreaterThan(totals.Outstanding) {
		return nil, fmt.Errorf("allocation %s exceeds invoice outstanding %s", amount, totals.Outstanding)
	}

	var alloc ClientAdvanceAllocation
	err = tx.QueryRow(ctx, `
		INSERT INTO client_advance_allocations (advance_id, invoice_id, amount, allocated_by, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, advance_id, invoice_id, amount, allocated_by, notes, created_at
	`, advanceID, invoiceID, amount.Round(2), actor, notes,
	).Scan(&alloc.ID, &alloc.AdvanceID, &alloc.InvoiceID, &alloc.Amount, &alloc.AllocatedBy, &alloc.Notes, &alloc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record allocation: %w", err)
	}

	// Allocations count toward settlement, so the invoice may flip to paid.
	inv.Allocations = append(inv.Allocations, alloc)
	totals = ComputeInvoiceTotals(inv)
	newStatus := ComputeInvoiceStatus(inv.Status, totals.Outstanding, inv.DueDate, time.Now())
	if newStatus != inv.Status {
		_, err = tx.Exec(ctx,
			"UPDATE invoices SET status = $1, updated_at = NOW() WHERE id = $2",
			newStatus, invoiceID)
		if err != nil {
			return nil, fmt.Errorf("failed to update invoice status: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit allocation: %w", err)
	}
	return &alloc, nil
}
