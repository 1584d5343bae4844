package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// UserService manages staff records. Salaries here feed the payroll report.
type UserService interface {
	CreateUser(ctx context.Context, input UserInput) (*User, error)
	UpdateUser(ctx context.Context, userID int, input UserInput) (*User, error)
	SetUserActive(ctx context.Context, userID int, active bool) error

	GetByID(ctx context.Context, userID int) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetUsers(ctx context.Context, activeOnly bool) ([]User, error)
}

type UserInput struct {
	Username      string          `json:"username"`
	FullName      string          `json:"full_name"`
	Email         string          `json:"email"`
	Phone         string          `json:"phone"`
	Role          Role            `json:"role"`
	MonthlySalary decimal.Decimal `json:"monthly_salary"`
}

type userService struct {
	pool *pgxpool.Pool
}

// NewUserService constructs a UserService backed by PostgreSQL.
func NewUserService(pool *pgxpool.Pool) UserService {
	return &userService{pool: pool}
}

const userColumns = `id, username, full_name, email, phone, role, monthly_salary, is_active, created_at`

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.Phone, &u.Role,
		&u.MonthlySalary, &u.IsActive, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *userService) CreateUser(ctx context.Context, input UserInput) (*User, error) {
	if input.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	role := input.Role
	if role == "" {
		role = RoleArchitect
	}
	if input.MonthlySalary.IsNegative() {
		return nil, fmt.Errorf("monthly salary cannot be negative, got %s", input.MonthlySalary)
	}

	u, err := scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (username, full_name, email, phone, role, monthly_salary)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		input.Username, input.FullName, input.Email, input.Phone, role, input.MonthlySalary.Round(2)))
	if err != nil {
		return nil, fmt.Errorf("failed to create user %q: %w", input.Username, err)
	}
	return u, nil
}

func (s *userService) UpdateUser(ctx context.Context, userID int, input UserInput) (*User, error) {
	if input.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if input.MonthlySalary.IsNegative() {
		return nil, fmt.Errorf("monthly salary cannot be negative, got %s", input.MonthlySalary)
	}

	u, err := scanUser(s.pool.QueryRow(ctx, `
		UPDATE users
		SET username = $1, full_name = $2, email = $3, phone = $4, role = $5,
		    monthly_salary = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING `+userColumns,
		input.Username, input.FullName, input.Email, input.Phone, input.Role,
		input.MonthlySalary.Round(2), userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user id=%d not found", userID)
		}
		return nil, fmt.Errorf("failed to update user %d: %w", userID, err)
	}
	return u, nil
}

func (s *userService) SetUserActive(ctx context.Context, userID int, active bool) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE users SET is_active = $1, updated_at = NOW() WHERE id = $2", active, userID)
	if err != nil {
		return fmt.Errorf("failed to toggle user %d: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user id=%d not found", userID)
	}
	return nil
}

func (s *userService) GetByID(ctx context.Context, userID int) (*User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", userID))
	if err != nil {
		return nil, fmt.Errorf("user id=%d not found: %w", userID, err)
	}
	return u, nil
}

func (s *userService) GetByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = $1 AND is_active = true LIMIT 1", username))
	if err != nil {
		return nil, fmt.Errorf("user %q not found: %w", username, err)
	}
	return u, nil
}

func (s *userService) GetUsers(ctx context.Context, activeOnly bool) ([]User, error) {
	query := "SELECT " + userColumns + " FROM users"
	if activeOnly {
		query += " WHERE is_active"
	}
	query += " ORDER BY full_name, username"

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.Phone, &u.Role,
			&u.MonthlySalary, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
