package app

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"studioflow/internal/core"
)

// New wires the full service graph onto one connection pool. The permissions
// matrix is injected so tests and future deployments can swap it.
func New(pool *pgxpool.Pool, perms *core.Permissions) *Services {
	if perms == nil {
		perms = core.DefaultPermissions()
	}
	cashbook := core.NewCashbook(pool)

	return &Services{
		Users:      core.NewUserService(pool),
		CRM:        core.NewCRMService(pool),
		Vendors:    core.NewVendorService(pool),
		Accounts:   core.NewAccountService(pool),
		Invoices:   core.NewInvoiceService(pool, cashbook),
		Bills:      core.NewBillService(pool, cashbook),
		Advances:   core.NewAdvanceService(pool, cashbook),
		Claims:     core.NewExpenseClaimService(pool, cashbook),
		Recurring:  core.NewRecurringService(pool, cashbook),
		Statements: core.NewStatementService(pool),
		Reports:    core.NewReportingService(pool, cashbook),
		Cashbook:   cashbook,
		perms:      perms,
	}
}
