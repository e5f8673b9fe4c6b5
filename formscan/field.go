// Package formscan classifies input controls and forms found in page HTML.
//
// It interprets, it does not observe: raw HTML (full snapshots or inserted
// subtrees reported by pagewatch) goes in, classified descriptors come out.
// Everything here is a pure function of the markup, with no live DOM access
// and no side effects, which keeps the detection logic testable without a
// browser.
package formscan

import "strings"

// Role is the detected purpose of a single input control.
type Role string

const (
	RoleEmail           Role = "email"
	RoleUsername        Role = "username"
	RolePassword        Role = "password"
	RolePasswordConfirm Role = "password_confirm"
	RoleUnknown         Role = ""
)

// Control is the attribute metadata of one input element, lowercased at
// construction. XPath addresses the element in the live document.
type Control struct {
	Type        string
	Name        string
	ID          string
	Placeholder string
	XPath       string
}

// NewControl builds a Control, normalising attribute values to lower case.
func NewControl(typ, name, id, placeholder, xpath string) Control {
	return Control{
		Type:        strings.ToLower(strings.TrimSpace(typ)),
		Name:        strings.ToLower(name),
		ID:          strings.ToLower(id),
		Placeholder: strings.ToLower(placeholder),
		XPath:       xpath,
	}
}

// FieldDescriptor is a classified input control. Immutable once computed;
// a fresh analysis pass recomputes it from current attributes.
type FieldDescriptor struct {
	Role           Role   `json:"role"`
	RawType        string `json:"raw_type"`
	RawName        string `json:"raw_name"`
	RawID          string `json:"raw_id"`
	RawPlaceholder string `json:"raw_placeholder"`
	XPath          string `json:"xpath"`
}

// ClassifyControl assigns a role from the control's attributes alone.
// Deterministic: identical attributes always yield the identical role.
// Rules, in priority order:
//  1. type="email" or an email keyword in name/id/placeholder → Email.
//  2. a username keyword in name/id/placeholder → Username.
//  3. type="password" → PasswordConfirm when a confirm keyword is present,
//     Password otherwise. Document-order disambiguation between multiple
//     password fields is the form scan's job, not this function's.
func ClassifyControl(c Control) Role {
	if c.Type == "email" || anyAttrContains(c, emailKeywords) {
		return RoleEmail
	}
	if anyAttrContains(c, usernameKeywords) {
		return RoleUsername
	}
	if c.Type == "password" {
		if anyAttrContains(c, confirmKeywords) {
			return RolePasswordConfirm
		}
		return RolePassword
	}
	return RoleUnknown
}

func descriptor(c Control, role Role) FieldDescriptor {
	return FieldDescriptor{
		Role:           role,
		RawType:        c.Type,
		RawName:        c.Name,
		RawID:          c.ID,
		RawPlaceholder: c.Placeholder,
		XPath:          c.XPath,
	}
}
