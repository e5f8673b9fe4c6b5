package bridge

// RegistrationDraft is the writable shape of a vault registration: what a
// capture or an edit sends. Password travels only on create; updates to it
// go through UpdateRegistrationPassword.
type RegistrationDraft struct {
	PlatformName  string `json:"platform_name"`
	EmailAddress  string `json:"email_address,omitempty"`
	LoginUsername string `json:"login_username,omitempty"`
	Password      string `json:"password,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// Registration is the vault's view of a stored credential. The password is
// never part of it; HasPassword says whether one exists.
type Registration struct {
	ID            string `json:"id"`
	PlatformName  string `json:"platform_name"`
	EmailAddress  string `json:"email_address,omitempty"`
	LoginUsername string `json:"login_username,omitempty"`
	Notes         string `json:"notes,omitempty"`
	HasPassword   bool   `json:"has_password"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// DisplayName is the label overlays show for a registration: the email if
// present, else the username, else the platform name.
func (r Registration) DisplayName() string {
	if r.EmailAddress != "" {
		return r.EmailAddress
	}
	if r.LoginUsername != "" {
		return r.LoginUsername
	}
	return r.PlatformName
}

// Settings is the broker configuration the page side may read and write.
type Settings struct {
	AutoSave      bool     `json:"auto_save"`
	ExcludedSites []string `json:"excluded_sites"`
}
