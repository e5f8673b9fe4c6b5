// Package bridge carries requests from page-side logic to the credential
// broker and responses back. It is the only road between the two worlds:
// page code never talks to the vault or the settings store directly.
//
// The request vocabulary is a closed union. Every operation the broker can
// perform has a concrete type here, the broker dispatches with a type
// switch, and an unhandled type is a compile-visible gap rather than a
// misspelled string constant.
package bridge

import "encoding/json"

// Request is one broker operation. Implementations are the only types the
// broker accepts; see Broker-side Handle for the dispatch.
type Request interface {
	isRequest()
	Kind() string
}

// Login authenticates against the vault and stores the session token.
type Login struct {
	ServerURL string `json:"server_url"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// SaveRegistration stores a captured credential in the vault.
type SaveRegistration struct {
	Draft RegistrationDraft `json:"draft"`
}

// GetRegistrations lists every registration in the vault.
type GetRegistrations struct{}

// GetRegistrationsByDomain lists registrations whose platform name matches
// the given host.
type GetRegistrationsByDomain struct {
	Host string `json:"host"`
}

// GetRegistrationByID fetches a single registration, password excluded.
type GetRegistrationByID struct {
	ID string `json:"id"`
}

// GetRegistrationPassword fetches the cleartext password of a registration.
// Issued only at fill or compare time, never cached page-side.
type GetRegistrationPassword struct {
	ID string `json:"id"`
}

// UpdateRegistration rewrites the non-password fields of a registration.
type UpdateRegistration struct {
	ID    string            `json:"id"`
	Draft RegistrationDraft `json:"draft"`
}

// UpdateRegistrationPassword replaces only the password.
type UpdateRegistrationPassword struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

// DeleteRegistration removes a registration from the vault.
type DeleteRegistration struct {
	ID string `json:"id"`
}

// GetAutoSaveSetting reads the auto-save flag.
type GetAutoSaveSetting struct{}

// GetConfig reads the full broker settings.
type GetConfig struct{}

// SaveConfig replaces the broker settings.
type SaveConfig struct {
	Settings Settings `json:"settings"`
}

// StartFormDetection asks the page side to begin (or re-run) form detection
// on a page. Unlike every other request it travels toward the page: the
// broker routes it to the handler registered for the page.
type StartFormDetection struct {
	PageID string `json:"page_id"`
}

func (Login) isRequest()                      {}
func (SaveRegistration) isRequest()           {}
func (GetRegistrations) isRequest()           {}
func (GetRegistrationsByDomain) isRequest()   {}
func (GetRegistrationByID) isRequest()        {}
func (GetRegistrationPassword) isRequest()    {}
func (UpdateRegistration) isRequest()         {}
func (UpdateRegistrationPassword) isRequest() {}
func (DeleteRegistration) isRequest()         {}
func (GetAutoSaveSetting) isRequest()         {}
func (GetConfig) isRequest()                  {}
func (SaveConfig) isRequest()                 {}
func (StartFormDetection) isRequest()         {}

func (Login) Kind() string                      { return "login" }
func (SaveRegistration) Kind() string           { return "save_registration" }
func (GetRegistrations) Kind() string           { return "get_registrations" }
func (GetRegistrationsByDomain) Kind() string   { return "get_registrations_by_domain" }
func (GetRegistrationByID) Kind() string        { return "get_registration_by_id" }
func (GetRegistrationPassword) Kind() string    { return "get_registration_password" }
func (UpdateRegistration) Kind() string         { return "update_registration" }
func (UpdateRegistrationPassword) Kind() string { return "update_registration_password" }
func (DeleteRegistration) Kind() string         { return "delete_registration" }
func (GetAutoSaveSetting) Kind() string         { return "get_auto_save_setting" }
func (GetConfig) Kind() string                  { return "get_config" }
func (SaveConfig) Kind() string                 { return "save_config" }
func (StartFormDetection) Kind() string         { return "start_form_detection" }

// Response is the broker's answer. Data holds the operation-specific
// payload, already JSON-encoded, so the envelope stays uniform.
type Response struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
	Conflict bool            `json:"conflict,omitempty"`

	// ConflictData is set when the vault refused a save because a
	// registration for the platform already exists.
	ConflictData *ConflictData `json:"conflict_data,omitempty"`
}

// ConflictData identifies the registration a save collided with.
type ConflictData struct {
	ExistingID   string `json:"existing_id"`
	Message      string `json:"message"`
	ConflictType string `json:"conflict_type"`
}

// OK builds a success response carrying v as the payload. A nil v yields
// an empty-data success.
func OK(v any) *Response {
	if v == nil {
		return &Response{Success: true}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Fail("bridge: encode response payload: " + err.Error())
	}
	return &Response{Success: true, Data: data}
}

// Fail builds an error response.
func Fail(msg string) *Response {
	return &Response{Error: msg}
}

// Decode unpacks a response payload into dst.
func (r *Response) Decode(dst any) error {
	return json.Unmarshal(r.Data, dst)
}
