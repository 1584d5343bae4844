package core_test

import (
	"testing"

	"studioflow/internal/core"
)

func TestPermissions_Defaults(t *testing.T) {
	perms := core.DefaultPermissions()

	tests := []struct {
		role core.Role
		cap  core.Capability
		want bool
	}{
		{core.RoleAdmin, core.CapFinance, true},
		{core.RoleAdmin, core.CapUsers, true},
		{core.RoleManagingDirector, core.CapPayroll, true},
		{core.RoleAccountant, core.CapFinance, true},
		{core.RoleAccountant, core.CapProjects, false},
		{core.RoleArchitect, core.CapProjects, true},
		{core.RoleArchitect, core.CapFinance, false},
		{core.RoleSiteEngineer, core.CapTasks, true},
		{core.RoleSiteEngineer, core.CapCRM, false},
		{core.RoleViewer, core.CapReports, true},
		{core.RoleViewer, core.CapTasks, false},
		{core.Role("intern"), core.CapDashboard, false},
	}
	for _, tt := range tests {
		if got := perms.Allows(tt.role, tt.cap); got != tt.want {
			t.Errorf("Allows(%s, %s) = %v, want %v", tt.role, tt.cap, got, tt.want)
		}
	}
}

func TestPermissions_CopiesInput(t *testing.T) {
	table := map[core.Role][]core.Capability{
		core.RoleViewer: {core.CapDashboard},
	}
	perms := core.NewPermissions(table)

	// Mutating the source table must not change the built matrix.
	table[core.RoleViewer] = append(table[core.RoleViewer], core.CapFinance)
	if perms.Allows(core.RoleViewer, core.CapFinance) {
		t.Error("Expected permissions to be detached from the source table")
	}

	caps := perms.CapabilitiesFor(core.RoleViewer)
	if len(caps) != 1 || caps[0] != core.CapDashboard {
		t.Errorf("Expected exactly [dashboard], got %v", caps)
	}
}
