// Package mutation defines the structured types emitted by pagewatch.
// These are the observation contract: the form reactor and the extractors
// consume these types and nothing rawer.
package mutation

// Op is the type of DOM mutation observed.
type Op string

const (
	OpInsert   Op = "insert"    // childNodeInserted (includes serialised subtree HTML)
	OpRemove   Op = "remove"    // childNodeRemoved
	OpAttr     Op = "attr"      // attributeModified
	OpDocReset Op = "doc_reset" // documentUpdated, entire DOM replaced
)

// Record is a single DOM mutation.
type Record struct {
	Op       Op     `json:"op"`
	XPath    string `json:"xpath"`
	Tag      string `json:"tag,omitempty"`
	Name     string `json:"name,omitempty"`      // attribute name for attr
	Value    string `json:"value,omitempty"`     // new value
	OldValue string `json:"old_value,omitempty"` // previous value
	HTML     string `json:"html,omitempty"`      // serialised subtree for insert
}

// Batch is the atomic unit handed to the reactor. One batch = all mutations
// collected during a single debounce window.
type Batch struct {
	ID        string   `json:"id"` // UUIDv7
	PageURL   string   `json:"page_url"`
	PageID    string   `json:"page_id"`
	Seq       uint64   `json:"seq"` // monotonically increasing per page
	Records   []Record `json:"records"`
	Timestamp int64    `json:"timestamp"` // epoch milliseconds at flush
}

// Snapshot is a complete DOM photo, emitted when observation starts on a
// page and after every doc_reset. The reactor scans it for forms that were
// already present before instrumentation.
type Snapshot struct {
	ID        string `json:"id"` // UUIDv7
	PageURL   string `json:"page_url"`
	PageID    string `json:"page_id"`
	HTML      []byte `json:"html"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}
