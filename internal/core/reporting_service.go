package core

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ── Report types ──────────────────────────────────────────────────────────────

// AgingBucket is one column of the receivables aging report.
type AgingBucket struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

// AgingReport buckets unpaid invoice balances by how far past due they are,
// as of a reference date.
type AgingReport struct {
	AsOf     time.Time       `json:"as_of"`
	Current  AgingBucket     `json:"current"`
	Days30   AgingBucket     `json:"days_30"`
	Days60   AgingBucket     `json:"days_60"`
	Days90   AgingBucket     `json:"days_90"`
	Days90up AgingBucket     `json:"days_90_plus"`
	Total    decimal.Decimal `json:"total"`
}

// PayrollLine compares one staff member's contracted salary against the
// salary debits actually posted for them in a month.
type PayrollLine struct {
	UserID        int             `json:"user_id"`
	Name          string          `json:"name"`
	Role          Role            `json:"role"`
	MonthlySalary decimal.Decimal `json:"monthly_salary"`
	PaidThisMonth decimal.Decimal `json:"paid_this_month"`
	Balance       decimal.Decimal `json:"balance"`
}

// DashboardSummary is the landing-page money snapshot.
type DashboardSummary struct {
	TotalReceivable decimal.Decimal `json:"total_receivable"`
	TotalPayable    decimal.Decimal `json:"total_payable"`
	CashInHand      decimal.Decimal `json:"cash_in_hand"`
	MonthInflow     decimal.Decimal `json:"month_inflow"`
	MonthOutflow    decimal.Decimal `json:"month_outflow"`
	ActiveProjects  int             `json:"active_projects"`
	OpenLeads       int             `json:"open_leads"`
	OverdueInvoices int             `json:"overdue_invoices"`
	PendingClaims   int             `json:"pending_claims"`
}

// ReportingService derives read-only views over the cashbook and the billing
// tables.
type ReportingService interface {
	GetReceivablesAging(ctx context.Context, asOf time.Time) (*AgingReport, error)
	GetProjectFinancials(ctx context.Context, projectID int) (*ProjectFinancials, error)
	// GetPayrollMonth reports salary paid vs contracted for every active
	// staff member in the month containing the given date.
	GetPayrollMonth(ctx context.Context, month time.Time) ([]PayrollLine, error)
	GetDashboardSummary(ctx context.Context, today time.Time) (*DashboardSummary, error)
	// ExportTransactionsCSV streams the filtered cashbook as CSV.
	ExportTransactionsCSV(ctx context.Context, w io.Writer, filter TransactionFilter) error
}

type reportingService struct {
	pool     *pgxpool.Pool
	cashbook *Cashbook
}

func NewReportingService(pool *pgxpool.Pool, cashbook *Cashbook) ReportingService {
	return &reportingService{pool: pool, cashbook: cashbook}
}

func (s *reportingService) GetReceivablesAging(ctx context.Context, asOf time.Time) (*AgingReport, error) {
	asOf = dateOnly(asOf)

	rows, err := s.pool.Query(ctx, `
		SELECT i.id, i.due_date, i.amount, i.tax_percent, i.discount_percent,
		       COALESCE((SELECT SUM(p.amount) FROM payments p WHERE p.invoice_id = i.id), 0),
		       COALESCE((SELECT SUM(al.amount) FROM client_advance_allocations al WHERE al.invoice_id = i.id), 0)
		FROM invoices i
		WHERE i.status <> 'paid'
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open invoices: %w", err)
	}
	defer rows.Close()

	report := &AgingReport{
		AsOf:     asOf,
		Current:  AgingBucket{Label: "current"},
		Days30:   AgingBucket{Label: "1-30"},
		Days60:   AgingBucket{Label: "31-60"},
		Days90:   AgingBucket{Label: "61-90"},
		Days90up: AgingBucket{Label: "90+"},
		Total:    decimal.Zero,
	}

	for rows.Next() {
		var inv Invoice
		var received, applied decimal.Decimal
		if err := rows.Scan(&inv.ID, &inv.DueDate, &inv.Amount, &inv.TaxPercent, &inv.DiscountPercent,
			&received, &applied); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}

		// Reconstruct outstanding from the flat figures without loading rows.
		inv.Payments = []Payment{{Amount: received}}
		inv.Allocations = []ClientAdvanceAllocation{{Amount: applied}}
		outstanding := ComputeInvoiceTotals(&inv).Outstanding
		if !outstanding.IsPositive() {
			continue
		}

		bucket := &report.Current
		if asOf.After(dateOnly(inv.DueDate)) {
			switch days := int(asOf.Sub(dateOnly(inv.DueDate)).Hours() / 24); {
			case days <= 30:
				bucket = &report.Days30
			case days <= 60:
				bucket = &report.Days60
			case days <= 90:
				bucket = &report.Days90
			default:
				bucket = &report.Days90up
			}
		}
		bucket.Amount = bucket.Amount.Add(outstanding)
		bucket.Count++
		report.Total = report.Total.Add(outstanding)
	}
	return report, rows.Err()
}

func (s *reportingService) GetProjectFinancials(ctx context.Context, projectID int) (*ProjectFinancials, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)", projectID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check project %d: %w", projectID, err)
	}
	if !exists {
		return nil, fmt.Errorf("project %d not found", projectID)
	}

	fin := &ProjectFinancials{ProjectID: projectID}
	err := s.pool.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT SUM(i.amount) FROM invoices i WHERE i.project_id = $1), 0),
			COALESCE((SELECT SUM(t.credit) FROM transactions t WHERE t.project_id = $1), 0),
			COALESCE((SELECT SUM(t.debit) FROM transactions t WHERE t.project_id = $1), 0)
	`, projectID).Scan(&fin.TotalInvoiced, &fin.TotalReceived, &fin.TotalExpenses)
	if err != nil {
		return nil, fmt.Errorf("failed to compute project %d financials: %w", projectID, err)
	}
	fin.NetPosition = fin.TotalReceived.Sub(fin.TotalExpenses)
	return fin, nil
}

func (s *reportingService) GetPayrollMonth(ctx context.Context, month time.Time) ([]PayrollLine, error) {
	monthStart := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	nextMonth := monthStart.AddDate(0, 1, 0)

	rows, err := s.pool.Query(ctx, `
		SELECT u.id, COALESCE(NULLIF(u.full_name, ''), u.username), u.role, u.monthly_salary,
		       COALESCE((SELECT SUM(t.debit) FROM transactions t
		                 WHERE t.person_id = u.id AND t.category = 'salary'
		                   AND t.date >= $1 AND t.date < $2), 0)
		FROM users u
		WHERE u.is_active
		ORDER BY u.full_name, u.username
	`, monthStart, nextMonth)
	if err != nil {
		return nil, fmt.Errorf("failed to query payroll: %w", err)
	}
	defer rows.Close()

	var lines []PayrollLine
	for rows.Next() {
		var l PayrollLine
		if err := rows.Scan(&l.UserID, &l.Name, &l.Role, &l.MonthlySalary, &l.PaidThisMonth); err != nil {
			return nil, fmt.Errorf("failed to scan payroll line: %w", err)
		}
		l.Balance = l.MonthlySalary.Sub(l.PaidThisMonth)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *reportingService) GetDashboardSummary(ctx context.Context, today time.Time) (*DashboardSummary, error) {
	today = dateOnly(today)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	nextMonth := monthStart.AddDate(0, 1, 0)

	sum := &DashboardSummary{}

	// Receivables reuse the aging computation so the two screens agree.
	aging, err := s.GetReceivablesAging(ctx, today)
	if err != nil {
		return nil, err
	}
	sum.TotalReceivable = aging.Total

	err = s.pool.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT SUM(b.amount - COALESCE(bp.paid, 0))
			          FROM bills b
			          LEFT JOIN (SELECT bill_id, SUM(amount) AS paid FROM bill_payments GROUP BY bill_id) bp
			            ON bp.bill_id = b.id
			          WHERE b.status <> 'paid'), 0),
			COALESCE((SELECT SUM(a.opening_balance) FROM accounts a WHERE a.is_active), 0)
			+ COALESCE((SELECT SUM(t.credit - t.debit) FROM transactions t
			            JOIN accounts a ON a.id = t.account_id WHERE a.is_active), 0),
			COALESCE((SELECT SUM(t.credit) FROM transactions t WHERE t.date >= $1 AND t.date < $2), 0),
			COALESCE((SELECT SUM(t.debit) FROM transactions t WHERE t.date >= $1 AND t.date < $2), 0),
			(SELECT COUNT(*) FROM projects p WHERE p.current_stage NOT IN ('Handover', 'Closed')),
			(SELECT COUNT(*) FROM leads l WHERE l.status IN ('new', 'discussion')),
			(SELECT COUNT(*) FROM invoices i WHERE i.status = 'overdue'),
			(SELECT COUNT(*) FROM expense_claims ec WHERE ec.status = 'submitted')
	`, monthStart, nextMonth).Scan(
		&sum.TotalPayable, &sum.CashInHand, &sum.MonthInflow, &sum.MonthOutflow,
		&sum.ActiveProjects, &sum.OpenLeads, &sum.OverdueInvoices, &sum.PendingClaims)
	if err != nil {
		return nil, fmt.Errorf("failed to compute dashboard summary: %w", err)
	}
	return sum, nil
}

func (s *reportingService) ExportTransactionsCSV(ctx context.Context, w io.Writer, filter TransactionFilter) error {
	txns, err := s.cashbook.GetTransactions(ctx, filter)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "description", "category", "debit", "credit", "account_id", "remarks"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, t := range txns {
		accountID := ""
		if t.AccountID != nil {
			accountID = fmt.Sprintf("%d", *t.AccountID)
		}
		record := []string{
			t.Date.Format("2006-01-02"),
			t.Description,
			string(t.Category),
			t.Debit.StringFixed(2),
			t.Credit.StringFixed(2),
			accountID,
			t.Remarks,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
