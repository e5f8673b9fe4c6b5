package vault

import (
	"encoding/json"
	"fmt"
)

// APIError is a non-2xx vault response that is not a save conflict.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vault: HTTP %d: %s", e.Status, e.Message)
}

// Unauthorized reports whether the error means the session token is missing
// or stale and a fresh login is needed.
func (e *APIError) Unauthorized() bool { return e.Status == 401 }

// ConflictError is the vault's answer to saving a registration that already
// exists for the platform and identity. ExistingID points at the record the
// save collided with, so the caller can offer a password update instead.
type ConflictError struct {
	ExistingID   string
	ConflictType string
	Message      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("vault: conflict with registration %s: %s", e.ExistingID, e.Message)
}

func newConflictError(env envelope) *ConflictError {
	var data struct {
		Message      string `json:"message"`
		ExistingID   uint64 `json:"existing_id"`
		ConflictType string `json:"conflict_type"`
	}
	// Older vaults send a bare message with no data block; keep what we got.
	_ = json.Unmarshal(env.Data, &data)

	ce := &ConflictError{
		ExistingID:   fmt.Sprintf("%d", data.ExistingID),
		ConflictType: data.ConflictType,
		Message:      data.Message,
	}
	if ce.Message == "" {
		ce.Message = env.Message
	}
	if data.ExistingID == 0 {
		ce.ExistingID = ""
	}
	return ce
}
