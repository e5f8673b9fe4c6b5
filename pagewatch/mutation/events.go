package mutation

import (
	"encoding/json"
	"fmt"
)

// Event is a user-interaction report from the instrumented page. The set is
// closed: every event the injected script can emit has a concrete type here,
// and decoding rejects anything else. Consumers dispatch with a type switch,
// never on raw strings.
type Event interface {
	isEvent()
	Kind() string
}

// FieldFocused fires when a wired credential field gains focus.
type FieldFocused struct {
	PageID     string `json:"page_id"`
	PageURL    string `json:"page_url"`
	FormXPath  string `json:"form_xpath"`
	FieldXPath string `json:"field_xpath"`
	Value      string `json:"value"` // current field content
	X          int    `json:"x"`     // viewport position, for overlay anchoring
	Y          int    `json:"y"`
}

// FormSubmitted fires when a wired form submits or its submit control is
// clicked. Values maps field XPath to the value at submit time.
type FormSubmitted struct {
	PageID    string            `json:"page_id"`
	PageURL   string            `json:"page_url"`
	FormXPath string            `json:"form_xpath"`
	Values    map[string]string `json:"values"`
}

// ChoiceAction is what the user did inside an overlay.
type ChoiceAction string

const (
	ChoicePick    ChoiceAction = "pick"    // selected an entry in the credential list
	ChoiceConfirm ChoiceAction = "confirm" // accepted a save or update prompt
	ChoiceDecline ChoiceAction = "decline" // rejected a save or update prompt
)

// OverlayChoice fires when the user interacts with an injected overlay:
// picking a credential from the selector list, confirming or declining a
// save or update prompt.
type OverlayChoice struct {
	PageID    string       `json:"page_id"`
	OverlayID string       `json:"overlay_id"`
	Action    ChoiceAction `json:"action"`
	CredID    string       `json:"cred_id,omitempty"` // set for ChoicePick
}

// OverlayDismissed fires when an overlay closes without a choice: outside
// click or Escape.
type OverlayDismissed struct {
	PageID    string `json:"page_id"`
	OverlayID string `json:"overlay_id"`
}

func (FieldFocused) isEvent()     {}
func (FormSubmitted) isEvent()    {}
func (OverlayChoice) isEvent()    {}
func (OverlayDismissed) isEvent() {}

func (FieldFocused) Kind() string     { return "field_focused" }
func (FormSubmitted) Kind() string    { return "form_submitted" }
func (OverlayChoice) Kind() string    { return "overlay_choice" }
func (OverlayDismissed) Kind() string { return "overlay_dismissed" }

type eventEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalEvent wraps an event in its tagged envelope.
func MarshalEvent(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventEnvelope{Kind: e.Kind(), Payload: payload})
}

// UnmarshalEvent decodes a tagged envelope into its concrete event type.
// Unknown kinds are an error, not a silently dropped message.
func UnmarshalEvent(data []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("mutation: decode event envelope: %w", err)
	}

	switch env.Kind {
	case "field_focused":
		var e FieldFocused
		return e, decodePayload(env, &e)
	case "form_submitted":
		var e FormSubmitted
		return e, decodePayload(env, &e)
	case "overlay_choice":
		var e OverlayChoice
		return e, decodePayload(env, &e)
	case "overlay_dismissed":
		var e OverlayDismissed
		return e, decodePayload(env, &e)
	}
	return nil, fmt.Errorf("mutation: unknown event kind %q", env.Kind)
}

func decodePayload(env eventEnvelope, dst any) error {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("mutation: decode %s event: %w", env.Kind, err)
	}
	return nil
}
