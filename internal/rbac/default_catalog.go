package rbac

// Resource path constants for the Tempora catalog. Handlers build
// their required permissions from these with Build/BuildAll so a typo
// cannot silently become an authorization hole.
const (
	// ResourceUsers covers user account administration.
	ResourceUsers = "administration.users"
	// ResourceRoles covers role administration.
	ResourceRoles = "administration.roles"
	// ResourceGroupMappings covers directory group-to-role mappings.
	ResourceGroupMappings = "administration.group_mappings"

	// ResourceProjects covers project records.
	ResourceProjects = "projects.projects"
	// ResourceTasks covers project tasks.
	ResourceTasks = "projects.tasks"

	// ResourceTracker covers a user's own time entries.
	ResourceTracker = "timesheets.tracker"
	// ResourceTrackerAll widens tracker visibility to all users' entries.
	ResourceTrackerAll = "timesheets.tracker_all"
	// ResourceReports covers a user's own timesheet reports.
	ResourceReports = "timesheets.reports"
	// ResourceReportsAll widens report visibility to all users.
	ResourceReportsAll = "timesheets.reports_all"

	// ResourceInvoices covers invoices.
	ResourceInvoices = "finances.invoices"
	// ResourceQuotes covers quotes.
	ResourceQuotes = "finances.quotes"
	// ResourcePayments covers payments.
	ResourcePayments = "finances.payments"

	// ResourceClients covers client records.
	ResourceClients = "clients.clients"

	// ResourceSuppliers covers supplier records.
	ResourceSuppliers = "suppliers.suppliers"

	// ResourceEmployees covers employee records.
	ResourceEmployees = "hr.employees"
	// ResourceAbsences covers a user's own absence requests.
	ResourceAbsences = "hr.absences"
	// ResourceAbsencesAll widens absence visibility to all employees.
	ResourceAbsencesAll = "hr.absences_all"

	// ResourceSettings covers personal settings.
	ResourceSettings = "settings.settings"
	// ResourceDocs covers the built-in documentation pages.
	ResourceDocs = "docs.docs"
	// ResourceNotifications covers the notification inbox.
	ResourceNotifications = "notifications.inbox"
)

// DefaultCatalog returns the full Tempora permission catalog. It is
// built once by the daemon at startup and injected wherever a catalog
// is needed; tests substitute smaller catalogs.
func DefaultCatalog() *Catalog {
	return NewCatalog([]Definition{
		{Resource: ResourceUsers, Actions: CRUDActions},
		{Resource: ResourceRoles, Actions: CRUDActions},
		{Resource: ResourceGroupMappings, Actions: CRUDActions},

		{Resource: ResourceProjects, Actions: CRUDActions},
		{Resource: ResourceTasks, Actions: CRUDActions},

		{Resource: ResourceTracker, Actions: CRUDActions},
		{Resource: ResourceTrackerAll, Actions: ViewOnly, IsScope: true},
		{Resource: ResourceReports, Actions: ViewOnly},
		{Resource: ResourceReportsAll, Actions: ViewOnly, IsScope: true},

		{Resource: ResourceInvoices, Actions: CRUDActions},
		{Resource: ResourceQuotes, Actions: CRUDActions},
		{Resource: ResourcePayments, Actions: CRUDActions},

		{Resource: ResourceClients, Actions: CRUDActions},

		{Resource: ResourceSuppliers, Actions: CRUDActions},

		{Resource: ResourceEmployees, Actions: CRUDActions},
		{Resource: ResourceAbsences, Actions: CRUDActions},
		{Resource: ResourceAbsencesAll, Actions: ViewOnly, IsScope: true},

		{Resource: ResourceSettings, Actions: []Action{ActionView, ActionUpdate}},
		{Resource: ResourceDocs, Actions: ViewOnly},
		{Resource: ResourceNotifications, Actions: ViewOnly},
	})
}
