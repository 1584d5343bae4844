package core

import "sort"

// Capability names a functional area a role can access.
type Capability string

const (
	CapDashboard Capability = "dashboard"
	CapCRM       Capability = "crm"
	CapProjects  Capability = "projects"
	CapTasks     Capability = "tasks"
	CapFinance   Capability = "finance"
	CapReports   Capability = "reports"
	CapPayroll   Capability = "payroll"
	CapUsers     Capability = "users"
)

// Permissions maps roles to the capabilities they hold. It is built once at
// startup and handed to the layers that enforce access; the internal map is
// copied on construction so no caller can mutate it afterwards.
type Permissions struct {
	byRole map[Role]map[Capability]bool
}

// baseRoleCapabilities is the firm's access matrix. Management and finance
// roles see money; studio roles see projects and tasks.
var baseRoleCapabilities = map[Role][]Capability{
	RoleAdmin:            {CapDashboard, CapCRM, CapProjects, CapTasks, CapFinance, CapReports, CapPayroll, CapUsers},
	RoleManagingDirector: {CapDashboard, CapCRM, CapProjects, CapTasks, CapFinance, CapReports, CapPayroll, CapUsers},
	RoleFinance:          {CapDashboard, CapFinance, CapReports, CapPayroll},
	RoleAccountant:       {CapDashboard, CapFinance, CapReports, CapPayroll},
	RoleProjectManager:   {CapDashboard, CapCRM, CapProjects, CapTasks, CapReports},
	RoleSeniorArchitect:  {CapDashboard, CapCRM, CapProjects, CapTasks, CapReports},
	RoleArchitect:        {CapDashboard, CapProjects, CapTasks},
	RoleJuniorArchitect:  {CapDashboard, CapProjects, CapTasks},
	RoleDesigner:         {CapDashboard, CapProjects, CapTasks},
	RoleSiteEngineer:     {CapDashboard, CapTasks},
	RoleViewer:           {CapDashboard, CapReports},
}

// DefaultPermissions builds the standard access matrix.
func DefaultPermissions() *Permissions {
	return NewPermissions(baseRoleCapabilities)
}

// NewPermissions builds a Permissions from a role → capabilities table,
// deep-copying it.
func NewPermissions(table map[Role][]Capability) *Permissions {
	byRole := make(map[Role]map[Capability]bool, len(table))
	for role, caps := range table {
		set := make(map[Capability]bool, len(caps))
		for _, c := range caps {
			set[c] = true
		}
		byRole[role] = set
	}
	return &Permissions{byRole: byRole}
}

// Allows reports whether the role holds the capability. Unknown roles hold
// nothing.
func (p *Permissions) Allows(role Role, cap Capability) bool {
	return p.byRole[role][cap]
}

// CapabilitiesFor returns the role's capabilities, sorted for stable output.
func (p *Permissions) CapabilitiesFor(role Role) []Capability {
	set := p.byRole[role]
	caps := make([]Capability, 0, len(set))
	for c := range set {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}
