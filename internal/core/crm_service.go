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

// CRMService covers the client-facing side of the studio: clients, leads and
// their conversion into projects, plus project tasks.
type CRMService interface {
	// Clients
	CreateClient(ctx context.Context, input ClientInput) (*Client, error)
	UpdateClient(ctx context.Context, clientID int, input ClientInput) (*Client, error)
	GetClient(ctx context.Context, clientID int) (*Client, error)
	GetClients(ctx context.Context, search string) ([]Client, error)

	// Leads
	CreateLead(ctx context.Context, input LeadInput) (*Lead, error)
	UpdateLeadStatus(ctx context.Context, leadID int, status LeadStatus) (*Lead, error)
	GetLead(ctx context.Context, leadID int) (*Lead, error)
	GetLeads(ctx context.Context, status LeadStatus) ([]Lead, error)
	// ConvertLead marks a lead won and opens a project for it, atomically.
	ConvertLead(ctx context.Context, leadID int, input ProjectInput, actor *int) (*Project, error)

	// Projects
	CreateProject(ctx context.Context, input ProjectInput) (*Project, error)
	UpdateProject(ctx context.Context, projectID int, input ProjectInput) (*Project, error)
	UpdateProjectStage(ctx context.Context, projectID int, stage, healthStatus string) (*Project, error)
	GetProject(ctx context.Context, projectID int) (*Project, error)
	GetProjects(ctx context.Context, clientID *int) ([]Project, error)

	// Tasks
	CreateTask(ctx context.Context, input TaskInput) (*Task, error)
	UpdateTaskStatus(ctx context.Context, taskID int, status TaskStatus) (*Task, error)
	GetTasks(ctx context.Context, projectID *int, assignedTo *int) ([]Task, error)
}

type ClientInput struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
	City    string `json:"city"`
	Notes   string `json:"notes"`
}

type LeadInput struct {
	ClientID       int             `json:"client_id"`
	Title          string          `json:"title"`
	LeadSource     string          `json:"lead_source"`
	EstimatedValue decimal.Decimal `json:"estimated_value"`
	Notes          string          `json:"notes"`
}

type ProjectInput struct {
	ClientID         int        `json:"client_id"`
	Name             string     `json:"name"`
	Code             string     `json:"code"`
	ProjectType      string     `json:"project_type"`
	Location         string     `json:"location"`
	StartDate        *time.Time `json:"start_date"`
	ExpectedHandover *time.Time `json:"expected_handover"`
	ProjectManager   *int       `json:"project_manager"`
	SiteEngineer     *int       `json:"site_engineer"`
}

type TaskInput struct {
	ProjectID   int        `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	AssignedTo  *int       `json:"assigned_to"`
}

type crmService struct {
	pool *pgxpool.Pool
}

func NewCRMService(pool *pgxpool.Pool) CRMService {
	return &crmService{pool: pool}
}

// ── Clients ──────────────────────────────────────────────────────────────────

const clientColumns = `id, name, phone, email, address, city, notes, created_at`

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.City, &c.Notes, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *crmService) CreateClient(ctx context.Context, input ClientInput) (*Client, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("client name is required")
	}
	c, err := scanClient(s.pool.QueryRow(ctx, `
		INSERT INTO clients (name, phone, email, address, city, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+clientColumns,
		input.Name, input.Phone, input.Email, input.Address, input.City, input.Notes))
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return c, nil
}

func (s *crmService) UpdateClient(ctx context.Context, clientID int, input ClientInput) (*Client, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("client name is required")
	}
	c, err := scanClient(s.pool.QueryRow(ctx, `
		UPDATE clients
		SET name = $1, phone = $2, email = $3, address = $4, city = $5, notes = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING `+clientColumns,
		input.Name, input.Phone, input.Email, input.Address, input.City, input.Notes, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("client %d not found", clientID)
		}
		return nil, fmt.Errorf("failed to update client %d: %w", clientID, err)
	}
	return c, nil
}

func (s *crmService) GetClient(ctx context.Context, clientID int) (*Client, error) {
	c, err := scanClient(s.pool.QueryRow(ctx,
		"SELECT "+clientColumns+" FROM clients WHERE id = $1", clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("client %d not found", clientID)
		}
		return nil, fmt.Errorf("failed to fetch client %d: %w", clientID, err)
	}
	return c, nil
}

func (s *crmService) GetClients(ctx context.Context, search string) ([]Client, error) {
	query := "SELECT " + clientColumns + " FROM clients"
	var args []any
	if search != "" {
		query += " WHERE name ILIKE $1 OR phone ILIKE $1 OR email ILIKE $1"
		args = append(args, "%"+search+"%")
	}
	query += " ORDER BY name"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.City, &c.Notes, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// ── Leads ────────────────────────────────────────────────────────────────────

const leadColumns = `l.id, l.client_id, c.name, l.title, l.lead_source, l.status,
	l.estimated_value, l.notes, l.converted_at, l.converted_by, l.created_at`

func scanLead(row pgx.Row) (*Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.ClientID, &l.ClientName, &l.Title, &l.LeadSource, &l.Status,
		&l.EstimatedValue, &l.Notes, &l.ConvertedAt, &l.ConvertedBy, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *crmService) CreateLead(ctx context.Context, input LeadInput) (*Lead, error) {
	if input.ClientID == 0 {
		return nil, fmt.Errorf("lead must reference a client")
	}
	if input.Title == "" {
		return nil, fmt.Errorf("lead title is required")
	}

	var leadID int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO leads (client_id, title, lead_source, estimated_value, notes)
		VALUES ($1, $2, $3, $4, $5) RETURNING id
	`, input.ClientID, input.Title, input.LeadSource, input.EstimatedValue.Round(2), input.Notes).Scan(&leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to create lead: %w", err)
	}
	return s.GetLead(ctx, leadID)
}

func (s *crmService) UpdateLeadStatus(ctx context.Context, leadID int, status LeadStatus) (*Lead, error) {
	tag, err := s.pool.Exec(ctx,
		"UPDATE leads SET status = $1, updated_at = NOW() WHERE id = $2", status, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to update lead %d: %w", leadID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("lead %d not found", leadID)
	}
	return s.GetLead(ctx, leadID)
}

func (s *crmService) GetLead(ctx context.Context, leadID int) (*Lead, error) {
	l, err := scanLead(s.pool.QueryRow(ctx,
		"SELECT "+leadColumns+" FROM leads l JOIN clients c ON c.id = l.client_id WHERE l.id = $1", leadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lead %d not found", leadID)
		}
		return nil, fmt.Errorf("failed to fetch lead %d: %w", leadID, err)
	}
	return l, nil
}

func (s *crmService) GetLeads(ctx context.Context, status LeadStatus) ([]Lead, error) {
	query := "SELECT " + leadColumns + " FROM leads l JOIN clients c ON c.id = l.client_id"
	var args []any
	if status != "" {
		query += " WHERE l.status = $1"
		args = append(args, status)
	}
	query += " ORDER BY l.created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var leads []Lead
	for rows.Next() {
		var l Lead
		if err := rows.Scan(&l.ID, &l.ClientID, &l.ClientName, &l.Title, &l.LeadSource, &l.Status,
			&l.EstimatedValue, &l.Notes, &l.ConvertedAt, &l.ConvertedBy, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func (s *crmService) ConvertLead(ctx context.Context, leadID int, input ProjectInput, actor *int) (*Project, error) {
	if input.Name == "" || input.Code == "" {
		return nil, fmt.Errorf("project name and code are required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var clientID int
	var status LeadStatus
	err = tx.QueryRow(ctx,
		"SELECT client_id, status FROM leads WHERE id = $1 FOR UPDATE", leadID,
	).Scan(&clientID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lead %d not found", leadID)
		}
		return nil, fmt.Errorf("failed to fetch lead %d: %w", leadID, err)
	}
	if status == LeadWon {
		return nil, fmt.Errorf("lead %d is already converted", leadID)
	}
	if input.ClientID != 0 && input.ClientID != clientID {
		return nil, fmt.Errorf("project client %d does not match lead client %d", input.ClientID, clientID)
	}

	var projectID int
	err = tx.QueryRow(ctx, `
		INSERT INTO projects (client_id, lead_id, name, code, project_type, location,
			start_date, expected_handover, project_manager, site_engineer)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, clientID, leadID, input.Name, input.Code, defaultStr(input.ProjectType, "residential"),
		input.Location, input.StartDate, input.ExpectedHandover, input.ProjectManager, input.SiteEngineer,
	).Scan(&projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create project from lead %d: %w", leadID, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE leads SET status = $1, converted_at = NOW(), converted_by = $2, updated_at = NOW()
		WHERE id = $3
	`, LeadWon, actor, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark lead %d converted: %w", leadID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit lead conversion: %w", err)
	}
	return s.GetProject(ctx, projectID)
}

func defaultStr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// ── Projects ─────────────────────────────────────────────────────────────────

const projectColumns = `p.id, p.client_id, c.name, p.lead_id, p.name, p.code, p.project_type,
	p.location, p.start_date, p.expected_handover, p.current_stage, p.health_status,
	p.project_manager, p.site_engineer, p.created_at`

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.ClientID, &p.ClientName, &p.LeadID, &p.Name, &p.Code, &p.ProjectType,
		&p.Location, &p.StartDate, &p.ExpectedHandover, &p.CurrentStage, &p.HealthStatus,
		&p.ProjectManager, &p.SiteEngineer, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *crmService) CreateProject(ctx context.Context, input ProjectInput) (*Project, error) {
	if input.ClientID == 0 {
		return nil, fmt.Errorf("project must reference a client")
	}
	if input.Name == "" || input.Code == "" {
		return nil, fmt.Errorf("project name and code are required")
	}

	var projectID int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO projects (client_id, name, code, project_type, location,
			start_date, expected_handover, project_manager, site_engineer)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, input.ClientID, input.Name, input.Code, defaultStr(input.ProjectType, "residential"),
		input.Location, input.StartDate, input.ExpectedHandover, input.ProjectManager, input.SiteEngineer,
	).Scan(&projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return s.GetProject(ctx, projectID)
}

func (s *crmService) UpdateProject(ctx context.Context, projectID int, input ProjectInput) (*Project, error) {
	if input.Name == "" || input.Code == "" {
		return nil, fmt.Errorf("project name and code are required")
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE projects
		SET name = $1, code = $2, project_type = $3, location = $4, start_date = $5,
		    expected_handover = $6, project_manager = $7, site_engineer = $8, updated_at = NOW()
		WHERE id = $9
	`, input.Name, input.Code, defaultStr(input.ProjectType, "residential"), input.Location,
		input.StartDate, input.ExpectedHandover, input.ProjectManager, input.SiteEngineer, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to update project %d: %w", projectID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("project %d not found", projectID)
	}
	return s.GetProject(ctx, projectID)
}

func (s *crmService) UpdateProjectStage(ctx context.Context, projectID int, stage, healthStatus string) (*Project, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE projects SET current_stage = $1, health_status = COALESCE(NULLIF($2, ''), health_status), updated_at = NOW()
		WHERE id = $3
	`, stage, healthStatus, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to update project %d stage: %w", projectID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("project %d not found", projectID)
	}
	return s.GetProject(ctx, projectID)
}

func (s *crmService) GetProject(ctx context.Context, projectID int) (*Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx,
		"SELECT "+projectColumns+" FROM projects p JOIN clients c ON c.id = p.client_id WHERE p.id = $1", projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("project %d not found", projectID)
		}
		return nil, fmt.Errorf("failed to fetch project %d: %w", projectID, err)
	}
	return p, nil
}

func (s *crmService) GetProjects(ctx context.Context, clientID *int) ([]Project, error) {
	query := "SELECT " + projectColumns + " FROM projects p JOIN clients c ON c.id = p.client_id"
	var args []any
	if clientID != nil {
		query += " WHERE p.client_id = $1"
		args = append(args, *clientID)
	}
	query += " ORDER BY p.created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.ClientID, &p.ClientName, &p.LeadID, &p.Name, &p.Code, &p.ProjectType,
			&p.Location, &p.StartDate, &p.ExpectedHandover, &p.CurrentStage, &p.HealthStatus,
			&p.ProjectManager, &p.SiteEngineer, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ── Tasks ────────────────────────────────────────────────────────────────────

const taskColumns = `id, project_id, title, description, status, priority, due_date, assigned_to, created_at`

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.DueDate, &t.AssignedTo, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *crmService) CreateTask(ctx context.Context, input TaskInput) (*Task, error) {
	if input.ProjectID == 0 {
		return nil, fmt.Errorf("task must reference a project")
	}
	if input.Title == "" {
		return nil, fmt.Errorf("task title is required")
	}

	t, err := scanTask(s.pool.QueryRow(ctx, `
		INSERT INTO tasks (project_id, title, description, priority, due_date, assigned_to)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+taskColumns,
		input.ProjectID, input.Title, input.Description, defaultStr(input.Priority, "medium"),
		input.DueDate, input.AssignedTo))
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return t, nil
}

func (s *crmService) UpdateTaskStatus(ctx context.Context, taskID int, status TaskStatus) (*Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `
		UPDATE tasks SET status = $1, updated_at = NOW() WHERE id = $2
		RETURNING `+taskColumns,
		status, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task %d not found", taskID)
		}
		return nil, fmt.Errorf("failed to update task %d: %w", taskID, err)
	}
	return t, nil
}

func (s *crmService) GetTasks(ctx context.Context, projectID *int, assignedTo *int) ([]Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE 1=1"
	var args []any
	if projectID != nil {
		args = append(args, *projectID)
		query += fmt.Sprintf(" AND project_id = $%d", len(args))
	}
	if assignedTo != nil {
		args = append(args, *assignedTo)
		query += fmt.Sprintf(" AND assigned_to = $%d", len(args))
	}
	query += " ORDER BY due_date NULLS LAST, id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.Priority,
			&t.DueDate, &t.AssignedTo, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
