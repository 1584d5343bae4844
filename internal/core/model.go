package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleAdmin            Role = "admin"
	RoleArchitect        Role = "architect"
	RoleSeniorArchitect  Role = "senior_architect"
	RoleJuniorArchitect  Role = "junior_architect"
	RoleManagingDirector Role = "managing_director"
	RoleSiteEngineer     Role = "site_engineer"
	RoleFinance          Role = "finance"
	RoleAccountant       Role = "accountant"
	RoleProjectManager   Role = "project_manager"
	RoleDesigner         Role = "designer"
	RoleViewer           Role = "viewer"
)

type User struct {
	ID            int             `json:"id"`
	Username      string          `json:"username"`
	FullName      string          `json:"full_name"`
	Email         string          `json:"email"`
	Phone         string          `json:"phone"`
	Role          Role            `json:"role"`
	MonthlySalary decimal.Decimal `json:"monthly_salary"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Client struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	City      string    `json:"city"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

type LeadStatus string

const (
	LeadNew        LeadStatus = "new"
	LeadDiscussion LeadStatus = "discussion"
	LeadWon        LeadStatus = "won"
	LeadLost       LeadStatus = "lost"
)

type Lead struct {
	ID             int             `json:"id"`
	ClientID       int             `json:"client_id"`
	ClientName     string          `json:"client_name"`
	Title          string          `json:"title"`
	LeadSource     string          `json:"lead_source"`
	Status         LeadStatus      `json:"status"`
	EstimatedValue decimal.Decimal `json:"estimated_value"`
	Notes          string          `json:"notes"`
	ConvertedAt    *time.Time      `json:"converted_at,omitempty"`
	ConvertedBy    *int            `json:"converted_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Project struct {
	ID               int        `json:"id"`
	ClientID         int        `json:"client_id"`
	ClientName       string     `json:"client_name"`
	LeadID           *int       `json:"lead_id,omitempty"`
	Name             string     `json:"name"`
	Code             string     `json:"code"`
	ProjectType      string     `json:"project_type"`
	Location         string     `json:"location"`
	StartDate        *time.Time `json:"start_date,omitempty"`
	ExpectedHandover *time.Time `json:"expected_handover,omitempty"`
	CurrentStage     string     `json:"current_stage"`
	HealthStatus     string     `json:"health_status"`
	ProjectManager   *int       `json:"project_manager,omitempty"`
	SiteEngineer     *int       `json:"site_engineer,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// ProjectFinancials is the derived money position of a project: everything
// billed against it, everything received, and everything spent on it.
type ProjectFinancials struct {
	ProjectID     int             `json:"project_id"`
	TotalInvoiced decimal.Decimal `json:"total_invoiced"`
	TotalReceived decimal.Decimal `json:"total_received"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	NetPosition   decimal.Decimal `json:"net_position"`
}

type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

type Task struct {
	ID          int        `json:"id"`
	ProjectID   int        `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	AssignedTo  *int       `json:"assigned_to,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Account struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	AccountType    string          `json:"account_type"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	IsActive       bool            `json:"is_active"`
	Notes          string          `json:"notes"`
	CreatedAt      time.Time       `json:"created_at"`
	// CurrentBalance = opening + credits - debits, derived at query time.
	CurrentBalance decimal.Decimal `json:"current_balance"`
}

type Vendor struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	TaxID     string    `json:"tax_id"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}
