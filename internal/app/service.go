package app

import (
	"errors"
	"fmt"

	"studioflow/internal/core"
)

// ErrForbidden is returned when an actor's role lacks the capability an
// operation requires. Adapters map it to 403.
var ErrForbidden = errors.New("forbidden")

// Services is the single wiring point all adapters (web, CLI) receive. It
// bundles the domain services with the access matrix; adapters hold no
// business logic and no SQL of their own.
type Services struct {
	Users      core.UserService
	CRM        core.CRMService
	Vendors    core.VendorService
	Accounts   core.AccountService
	Invoices   core.InvoiceService
	Bills      core.BillService
	Advances   core.AdvanceService
	Claims     core.ExpenseClaimService
	Recurring  core.RecurringService
	Statements core.StatementService
	Reports    core.ReportingService
	Cashbook   *core.Cashbook

	perms *core.Permissions
}

// Authorize checks that the role holds the capability.
func (s *Services) Authorize(role core.Role, cap core.Capability) error {
	if !s.perms.Allows(role, cap) {
		return fmt.Errorf("%w: role %s lacks %s", ErrForbidden, role, cap)
	}
	return nil
}

// CapabilitiesFor exposes the role's capability list for adapters that render
// navigation.
func (s *Services) CapabilitiesFor(role core.Role) []core.Capability {
	return s.perms.CapabilitiesFor(role)
}
