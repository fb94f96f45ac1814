package shared

// Core platform permissions.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"

	PermAuditView = "audit.view"
)

// Shop-floor permissions.
const (
	PermProgramView    = "program.view"
	PermProgramEdit    = "program.edit"
	PermProgramRelease = "program.release"
	PermProgramDelete  = "program.delete"

	PermOperationView = "operation.view"
	PermOperationEdit = "operation.edit"

	PermSetupSheetView = "setup_sheet.view"
	PermSetupSheetEdit = "setup_sheet.edit"

	PermWorkOrderView = "work_order.view"
	PermWorkOrderEdit = "work_order.edit"

	PermPartView = "part.view"
	PermPartEdit = "part.edit"

	PermToolView = "tool.view"
	PermToolEdit = "tool.edit"

	PermMachineView = "machine.view"
	PermMachineEdit = "machine.edit"

	PermMaintenanceView = "maintenance.view"
	PermMaintenanceEdit = "maintenance.edit"

	PermStockView = "stock.view"
	PermStockEdit = "stock.edit"

	PermReportView = "report.view"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
		PermAuditView,
	}
}

// ShopScopes lists all shop-floor permissions.
func ShopScopes() []string {
	return []string{
		PermProgramView,
		PermProgramEdit,
		PermProgramRelease,
		PermProgramDelete,
		PermOperationView,
		PermOperationEdit,
		PermSetupSheetView,
		PermSetupSheetEdit,
		PermWorkOrderView,
		PermWorkOrderEdit,
		PermPartView,
		PermPartEdit,
		PermToolView,
		PermToolEdit,
		PermMachineView,
		PermMachineEdit,
		PermMaintenanceView,
		PermMaintenanceEdit,
		PermStockView,
		PermStockEdit,
		PermReportView,
	}
}
