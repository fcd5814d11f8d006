package shared

// Console permissions guarding the admin API itself.
const (
	PermUsersView = "users-view"
	PermUsersEdit = "users-edit"

	PermRolesView = "roles-view"
	PermRolesEdit = "roles-edit"

	PermGroupsView = "groups-view"
	PermGroupsEdit = "groups-edit"

	PermPermissionsView = "permissions-view"
	PermPermissionsEdit = "permissions-edit"

	PermFlagsView = "flags-view"
	PermFlagsEdit = "flags-edit"

	PermAuditView = "audit-view"
)

// ConsoleScopes lists every permission the console seeds for itself.
func ConsoleScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermGroupsView,
		PermGroupsEdit,
		PermPermissionsView,
		PermPermissionsEdit,
		PermFlagsView,
		PermFlagsEdit,
		PermAuditView,
	}
}
