package bridge

import "fmt"

// ErrNoBroker is returned when Send is called before a broker handler is
// attached, or by a nil Bridge.
type ErrNoBroker struct {
	Kind string
}

func (e *ErrNoBroker) Error() string {
	return fmt.Sprintf("bridge: no broker attached for %s request", e.Kind)
}

// ErrNoPageHandler is returned when a page-directed request targets a page
// with no registered handler.
type ErrNoPageHandler struct {
	PageID string
}

func (e *ErrNoPageHandler) Error() string {
	return fmt.Sprintf("bridge: no page handler registered for page %s", e.PageID)
}

// ErrUnhandledRequest is returned by the broker when a request type reaches
// it that its dispatch does not cover. Seeing this error means a request
// type was added without extending Handle.
type ErrUnhandledRequest struct {
	Kind string
}

func (e *ErrUnhandledRequest) Error() string {
	return fmt.Sprintf("bridge: unhandled request kind %s", e.Kind)
}
