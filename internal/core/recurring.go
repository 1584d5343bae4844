package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// maxRecurringDay caps day_of_month so every month of the year has a valid
// run day; February sets the bound.
const maxRecurringDay = 28

// RecurringService expands active recurring rules into cashbook transactions,
// one per elapsed monthly period.
type RecurringService interface {
	CreateRule(ctx context.Context, input RecurringRuleInput) (*RecurringRule, error)
	UpdateRule(ctx context.Context, ruleID int, input RecurringRuleInput) (*RecurringRule, error)
	SetRuleActive(ctx context.Context, ruleID int, active bool) error
	GetRule(ctx context.Context, ruleID int) (*RecurringRule, error)
	GetRules(ctx context.Context, activeOnly bool) ([]RecurringRule, error)

	// GenerateTransactions processes every active rule whose cursor is on or
	// before today, writing one cashbook entry per elapsed period and
	// advancing the cursor. Safe to run repeatedly. Returns the number of
	// entries created.
	GenerateTransactions(ctx context.Context, today time.Time, actor *int) (int, error)
}

type RecurringRuleInput struct {
	Name        string              `json:"name"`
	Direction   Direction           `json:"direction"`
	Category    TransactionCategory `json:"category"`
	Description string              `json:"description"`
	Amount      decimal.Decimal     `json:"amount"`
	AccountID   *int                `json:"account_id"`
	ProjectID   *int                `json:"project_id"`
	VendorID    *int                `json:"vendor_id"`
	DayOfMonth  int                 `json:"day_of_month"`
	StartDate   time.Time           `json:"start_date"`
}

type recurringService struct {
	pool     *pgxpool.Pool
	cashbook *Cashbook
}

func NewRecurringService(pool *pgxpool.Pool, cashbook *Cashbook) RecurringService {
	return &recurringService{pool: pool, cashbook: cashbook}
}

// nextMonthRun returns the first run date after d: the rule's day in the next
// month. time.Date normalization never overflows because day is capped at 28.
func nextMonthRun(d time.Time, dayOfMonth int) time.Time {
	day := dayOfMonth
	if day > maxRecurringDay {
		day = maxRecurringDay
	}
	if day < 1 {
		day = 1
	}
	return time.Date(d.Year(), d.Month()+1, day, 0, 0, 0, 0, d.Location())
}

func validateRuleInput(input RecurringRuleInput) error {
	if input.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if input.Direction != DirectionDebit && input.Direction != DirectionCredit {
		return fmt.Errorf("direction must be debit or credit, got %q", input.Direction)
	}
	if !input.Amount.IsPositive() {
		return fmt.Errorf("rule amount must be positive, got %s", input.Amount)
	}
	if input.DayOfMonth < 1 || input.DayOfMonth > maxRecurringDay {
		return fmt.Errorf("day_of_month must be between 1 and %d, got %d", maxRecurringDay, input.DayOfMonth)
	}
	return nil
}

const ruleColumns = `id, name, is_active, direction, category, description, amount,
	account_id, project_id, vendor_id, day_of_month, next_run_date, created_at`

func scanRule(row pgx.Row) (*RecurringRule, error) {
	var r RecurringRule
	err := row.Scan(&r.ID, &r.Name, &r.IsActive, &r.Direction, &r.Category, &r.Description, &r.Amount,
		&r.AccountID, &r.ProjectID, &r.VendorID, &r.DayOfMonth, &r.NextRunDate, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *recurringService) CreateRule(ctx context.Context, input RecurringRuleInput) (*RecurringRule, error) {
	if err := validateRuleInput(input); err != nil {
		return nil, err
	}
	category := input.Category
	if category == "" {
		category = CategoryRecurring
	}

	// The cursor starts at the rule's day in the start month, or the month
	// after when that day is already past.
	start := input.StartDate
	if start.IsZero() {
		start = time.Now()
	}
	firstRun := time.Date(start.Year(), start.Month(), input.DayOfMonth, 0, 0, 0, 0, time.UTC)
	if firstRun.Before(dateOnly(start)) {
		firstRun = nextMonthRun(firstRun, input.DayOfMonth)
	}

	rule, err := scanRule(s.pool.QueryRow(ctx, `
		INSERT INTO recurring_rules (name, direction, category, description, amount,
			account_id, project_id, vendor_id, day_of_month, next_run_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+ruleColumns,
		input.Name, input.Direction, category, input.Description, input.Amount.Round(2),
		input.AccountID, input.ProjectID, input.VendorID, input.DayOfMonth, firstRun))
	if err != nil {
		return nil, fmt.Errorf("failed to create recurring rule: %w", err)
	}
	return rule, nil
}

func (s *recurringService) UpdateRule(ctx context.Context, ruleID int, input RecurringRuleInput) (*RecurringRule, error) {
	if err := validateRuleInput(input); err != nil {
		return nil, err
	}

	rule, err := scanRule(s.pool.QueryRow(ctx, `
		UPDATE recurring_rules
		SET name = $1, direction = $2, category = $3, description = $4, amount = $5,
		    account_id = $6, project_id = $7, vendor_id = $8, day_of_month = $9, updated_at = NOW()
		WHERE id = $10
		RETURNING `+ruleColumns,
		input.Name, input.Direction, input.Category, input.Description, input.Amount.Round(2),
		input.AccountID, input.ProjectID, input.VendorID, input.DayOfMonth, ruleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("recurring rule %d not found", ruleID)
		}
		return nil, fmt.Errorf("failed to update recurring rule %d: %w", ruleID, err)
	}
	return rule, nil
}

func (s *recurringService) SetRuleActive(ctx context.Context, ruleID int, active bool) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE recurring_rules SET is_active = $1, updated_at = NOW() WHERE id = $2",
		active, ruleID)
	if err != nil {
		return fmt.Errorf("failed to toggle recurring rule %d: %w", ruleID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recurring rule %d not found", ruleID)
	}
	return nil
}

func (s *recurringService) GetRule(ctx context.Context, ruleID int) (*RecurringRule, error) {
	rule, err := scanRule(s.pool.QueryRow(ctx,
		"SELECT "+ruleColumns+" FROM recurring_rules WHERE id = $1", ruleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("recurring rule %d not found", ruleID)
		}
		return nil, fmt.Errorf("failed to fetch recurring rule %d: %w", ruleID, err)
	}
	return rule, nil
}

func (s *recurringService) GetRules(ctx context.Context, activeOnly bool) ([]RecurringRule, error) {
	query := "SELECT " + ruleColumns + " FROM recurring_rules"
	if activeOnly {
		query += " WHERE is_active"
	}
	query += " ORDER BY name, id"

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query recurring rules: %w", err)
	}
	defer rows.Close()

	var rules []RecurringRule
	for rows.Next() {
		var r RecurringRule
		if err := rows.Scan(&r.ID, &r.Name, &r.IsActive, &r.Direction, &r.Category, &r.Description, &r.Amount,
			&r.AccountID, &r.ProjectID, &r.VendorID, &r.DayOfMonth, &r.NextRunDate, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recurring rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *recurringService) GenerateTransactions(ctx context.Context, today time.Time, actor *int) (int, error) {
	logger := log.With().Str("component", "recurring").Logger()
	today = dateOnly(today)

	rules, err := s.GetRules(ctx, true)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, rule := range rules {
		n, err := s.processRule(ctx, &rule, today, actor)
		if err != nil {
			// One broken rule must not block the rest of the run.
			logger.Error().Err(err).Int("rule_id", rule.ID).Str("rule", rule.Name).
				Msg("failed to process recurring rule")
			continue
		}
		created += n
	}

	logger.Info().Int("rules", len(rules)).Int("created", created).
		Str("as_of", today.Format("2006-01-02")).Msg("recurring run complete")
	return created, nil
}

// processRule walks one rule's cursor forward to today, one monthly period at
// a time. Each period runs in its own transaction; the cursor only advances
// with its period's entry, so a failure resumes cleanly next run.
func (s *recurringService) processRule(ctx context.Context, rule *RecurringRule, today time.Time, actor *int) (int, error) {
	created := 0
	cursor := dateOnly(rule.NextRunDate)

	for !cursor.After(today) {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return created, fmt.Errorf("failed to begin transaction: %w", err)
		}

		// Re-read the cursor under lock so concurrent runs do not double
		// process a period.
		var lockedCursor time.Time
		err = tx.QueryRow(ctx,
			"SELECT next_run_date FROM recurring_rules WHERE id = $1 AND is_active FOR UPDATE",
			rule.ID,
		).Scan(&lockedCursor)
		if err != nil {
			tx.Rollback(ctx)
			if errors.Is(err, pgx.ErrNoRows) {
				return created, nil // deactivated or deleted mid-run
			}
			return created, fmt.Errorf("failed to lock rule %d: %w", rule.ID, err)
		}
		lockedCursor = dateOnly(lockedCursor)
		if lockedCursor.After(today) {
			tx.Rollback(ctx)
			return created, nil
		}

		wasCreated, err := s.cashbook.SyncRecurringTx(ctx, tx, rule, lockedCursor, actor)
		if err != nil {
			tx.Rollback(ctx)
			return created, err
		}

		next := nextMonthRun(lockedCursor, rule.DayOfMonth)
		if _, err := tx.Exec(ctx,
			"UPDATE recurring_rules SET next_run_date = $1, updated_at = NOW() WHERE id = $2",
			next, rule.ID); err != nil {
			tx.Rollback(ctx)
			return created, fmt.Errorf("failed to advance rule %d cursor: %w", rule.ID, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return created, fmt.Errorf("failed to commit recurring period: %w", err)
		}
		if wasCreated {
			created++
		}
		cursor = next
	}
	return created, nil
}
