package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// AccountService manages cash and bank accounts. Balances are never stored:
// an account's current balance is its opening balance plus ledger credits
// minus ledger debits.
type AccountService interface {
	CreateAccount(ctx context.Context, input AccountInput) (*Account, error)
	UpdateAccount(ctx context.Context, accountID int, input AccountInput) (*Account, error)
	SetAccountActive(ctx context.Context, accountID int, active bool) error

	GetAccount(ctx context.Context, accountID int) (*Account, error)
	GetAccounts(ctx context.Context, activeOnly bool) ([]Account, error)
}

type AccountInput struct {
	Name           string          `json:"name"`
	AccountType    string          `json:"account_type"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Notes          string          `json:"notes"`
}

type accountService struct {
	pool *pgxpool.Pool
}

func NewAccountService(pool *pgxpool.Pool) AccountService {
	return &accountService{pool: pool}
}

// accountColumns folds the ledger sum into the select so one scan yields the
// current balance.
const accountColumns = `a.id, a.name, a.account_type, a.opening_balance, a.is_active, a.notes, a.created_at,
	a.opening_balance + COALESCE((SELECT SUM(t.credit - t.debit) FROM transactions t WHERE t.account_id = a.id), 0)`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Name, &a.AccountType, &a.OpeningBalance, &a.IsActive, &a.Notes,
		&a.CreatedAt, &a.CurrentBalance)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *accountService) CreateAccount(ctx context.Context, input AccountInput) (*Account, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("account name is required")
	}
	accountType := input.AccountType
	if accountType == "" {
		accountType = "bank"
	}

	var accountID int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (name, account_type, opening_balance, notes)
		VALUES ($1, $2, $3, $4) RETURNING id
	`, input.Name, accountType, input.OpeningBalance.Round(2), input.Notes).Scan(&accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return s.GetAccount(ctx, accountID)
}

func (s *accountService) UpdateAccount(ctx context.Context, accountID int, input AccountInput) (*Account, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("account name is required")
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET name = $1, account_type = $2, opening_balance = $3, notes = $4
		WHERE id = $5
	`, input.Name, input.AccountType, input.OpeningBalance.Round(2), input.Notes, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to update account %d: %w", accountID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("account %d not found", accountID)
	}
	return s.GetAccount(ctx, accountID)
}

func (s *accountService) SetAccountActive(ctx context.Context, accountID int, active bool) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE accounts SET is_active = $1 WHERE id = $2", active, accountID)
	if err != nil {
		return fmt.Errorf("failed to toggle account %d: %w", accountID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %d not found", accountID)
	}
	return nil
}

func (s *accountService) GetAccount(ctx context.Context, accountID int) (*Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts a WHERE a.id = $1", accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account %d not found", accountID)
		}
		return nil, fmt.Errorf("failed to fetch account %d: %w", accountID, err)
	}
	return a, nil
}

func (s *accountService) GetAccounts(ctx context.Context, activeOnly bool) ([]Account, error) {
	query := "SELECT " + accountColumns + " FROM accounts a"
	if activeOnly {
		query += " WHERE a.is_active"
	}
	query += " ORDER BY a.name"

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Name, &a.AccountType, &a.OpeningBalance, &a.IsActive, &a.Notes,
			&a.CreatedAt, &a.CurrentBalance); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
