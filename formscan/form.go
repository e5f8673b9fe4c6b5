package formscan

import "strings"

// FormKind is the detected purpose of a whole form.
type FormKind string

const (
	KindLogin        FormKind = "login"
	KindRegister     FormKind = "register"
	KindUnrecognized FormKind = ""
)

// FormDescriptor is a classified form. One instance per distinct form
// element; the slot pointers reference entries in Fields.
type FormDescriptor struct {
	Kind    FormKind          `json:"kind"`
	XPath   string            `json:"xpath"`
	Fields  []FieldDescriptor `json:"fields"`
	PageURL string            `json:"page_url,omitempty"`

	Email           *FieldDescriptor `json:"email_field,omitempty"`
	Username        *FieldDescriptor `json:"username_field,omitempty"`
	Password        *FieldDescriptor `json:"password_field,omitempty"`
	PasswordConfirm *FieldDescriptor `json:"password_confirm_field,omitempty"`
}

// IdentityField returns the field autofill anchors on: Email when present,
// else Username, else nil.
func (f *FormDescriptor) IdentityField() *FieldDescriptor {
	if f.Email != nil {
		return f.Email
	}
	return f.Username
}

// Instrumentable reports whether the form warrants submit instrumentation.
func (f *FormDescriptor) Instrumentable() bool {
	return f.Kind == KindLogin || f.Kind == KindRegister
}

// ClassifyForm scans controls in document order and decides the form kind
// from the populated roles plus the form's visible text (already lowercased
// by the caller).
//
// Slot assignment is first-match-wins per role. Password fields follow the
// conservative policy: the first password-type control is the Password slot;
// a later one becomes PasswordConfirm only when it carries a confirm
// keyword, otherwise it is deliberately left unassigned: two password
// fields named pass1/pass2 are ambiguous, not a registration signal.
//
// Kind decision:
//   - PasswordConfirm present, or register wording in the visible text → Register.
//   - else Password present and (login wording, or an identity field) → Login.
//   - else Unrecognized.
//
// A confirmation field outweighs wording because many sites omit explicit
// "register" text but never omit the second password field.
func ClassifyForm(xpath string, controls []Control, visibleText string) FormDescriptor {
	form := FormDescriptor{XPath: xpath}
	// Full capacity up front: the slot pointers reference Fields entries,
	// so the slice must never reallocate while they are being taken.
	form.Fields = make([]FieldDescriptor, 0, len(controls))

	for _, c := range controls {
		var resolved Role

		switch role := ClassifyControl(c); {
		case c.Type == "password":
			if form.Password == nil {
				resolved = RolePassword
			} else if role == RolePasswordConfirm {
				resolved = RolePasswordConfirm
			} else {
				resolved = RoleUnknown
			}
		default:
			resolved = role
		}

		fd := descriptor(c, resolved)
		form.Fields = append(form.Fields, fd)
		ref := &form.Fields[len(form.Fields)-1]

		switch resolved {
		case RoleEmail:
			if form.Email == nil {
				form.Email = ref
			}
		case RoleUsername:
			if form.Username == nil {
				form.Username = ref
			}
		case RolePassword:
			if form.Password == nil {
				form.Password = ref
			}
		case RolePasswordConfirm:
			if form.PasswordConfirm == nil {
				form.PasswordConfirm = ref
			}
		}

		// An email-looking control often doubles as the username input.
		// The original behaviour: the same control may fill both slots.
		if resolved == RoleEmail && form.Username == nil && anyAttrContains(c, usernameKeywords) {
			form.Username = ref
		}
	}

	text := strings.ToLower(visibleText)
	hasRegisterText := containsAny(text, registerTextKeywords)
	hasLoginText := containsAny(text, loginTextKeywords)

	switch {
	case form.PasswordConfirm != nil || hasRegisterText:
		form.Kind = KindRegister
	case form.Password != nil && (hasLoginText || form.Username != nil || form.Email != nil):
		form.Kind = KindLogin
	default:
		form.Kind = KindUnrecognized
	}

	return form
}
