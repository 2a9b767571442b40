package domain

// BootstrapData describes the first tenant and its administrator.
type BootstrapData struct {
	TenantName     string
	AdminEmail     string
	AdminPassword  string
	AdminFirstName string
	AdminLastName  string
}

// BootstrapResult identifies what bootstrap created.
type BootstrapResult struct {
	TenantID    string
	AdminUserID string
}
