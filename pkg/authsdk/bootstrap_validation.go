package authsdk

import (
	"net/mail"
	"strings"
)

const bootstrapRequiredReason = "required"

// Validate checks the bootstrap request fields. Returns a map of field names
// to error messages, or nil if all fields are valid.
func (b BootstrapRequest) Validate() map[string]string {
	errs := make(map[string]string)

	b.validateTenantName(errs)
	b.validateEmail(errs)
	b.validatePassword(errs)
	b.validateNames(errs)

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (b BootstrapRequest) validateTenantName(errs map[string]string) {
	name := strings.TrimSpace(b.TenantName)
	switch {
	case name == "":
		errs["tenant_name"] = bootstrapRequiredReason
	case len(name) > 128:
		errs["tenant_name"] = "too long (max 128)"
	}
}

func (b BootstrapRequest) validateEmail(errs map[string]string) {
	email := strings.TrimSpace(b.AdminEmail)
	if email == "" {
		errs["admin_email"] = bootstrapRequiredReason
		return
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		errs["admin_email"] = "must be a valid email address"
	}
}

func (b BootstrapRequest) validatePassword(errs map[string]string) {
	pw := b.AdminPassword
	switch {
	case pw == "":
		errs["admin_password"] = bootstrapRequiredReason
	case len(pw) < 8:
		errs["admin_password"] = "too short (min 8)"
	case len(pw) > 128:
		errs["admin_password"] = "too long (max 128)"
	}
}

func (b BootstrapRequest) validateNames(errs map[string]string) {
	if len(strings.TrimSpace(b.AdminFirstName)) > 64 {
		errs["admin_first_name"] = "too long (max 64)"
	}
	if len(strings.TrimSpace(b.AdminLastName)) > 64 {
		errs["admin_last_name"] = "too long (max 64)"
	}
}
