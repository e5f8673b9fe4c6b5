package pagewatch

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/credkeeper/formscan"
	"github.com/hazyhaar/credkeeper/pagewatch/mutation"
)

// Effect is one instruction the reactor hands back to the watcher. The
// reactor computes what should happen to the page; it never touches the
// page itself, which keeps the reaction logic a pure function of observed
// input plus current state.
type Effect interface {
	isEffect()
}

// WireForm: instrument a newly discovered credential form (focus and submit
// listeners plus the marker attribute).
type WireForm struct {
	Form formscan.FormDescriptor
}

// UnwireForm: a previously wired form left the document; forget it.
type UnwireForm struct {
	FormXPath string
}

// RequestSnapshot: the document was replaced wholesale; a fresh full scan
// is needed.
type RequestSnapshot struct{}

func (WireForm) isEffect()        {}
func (UnwireForm) isEffect()      {}
func (RequestSnapshot) isEffect() {}

// reactor tracks which forms are wired on one page, keyed by form XPath.
// A form stays wired until it leaves the document or the document resets;
// re-seeing a known XPath produces no duplicate wiring.
type reactor struct {
	pageURL string
	known   map[string]formscan.FormDescriptor
}

func newReactor(pageURL string) *reactor {
	return &reactor{
		pageURL: pageURL,
		known:   make(map[string]formscan.FormDescriptor),
	}
}

// Form returns a wired form by its XPath.
func (r *reactor) Form(xpath string) (formscan.FormDescriptor, bool) {
	f, ok := r.known[xpath]
	return f, ok
}

// OnSnapshot reconciles the wired set against a full DOM scan: forms no
// longer present unwire, new instrumentable forms wire.
func (r *reactor) OnSnapshot(html []byte) ([]Effect, error) {
	forms, err := formscan.ScanDocument(html)
	if err != nil {
		return nil, fmt.Errorf("pagewatch: scan snapshot: %w", err)
	}

	present := make(map[string]bool, len(forms))
	var effects []Effect

	for _, f := range forms {
		if !f.Instrumentable() {
			continue
		}
		present[f.XPath] = true
		if _, wired := r.known[f.XPath]; wired {
			continue
		}
		f.PageURL = r.pageURL
		r.known[f.XPath] = f
		effects = append(effects, WireForm{Form: f})
	}

	for xpath := range r.known {
		if !present[xpath] {
			delete(r.known, xpath)
			effects = append(effects, UnwireForm{FormXPath: xpath})
		}
	}
	return effects, nil
}

// OnMutations folds a mutation batch into effects: inserted subtrees are
// scanned for new forms, removals unwire affected forms, and a document
// reset clears everything and asks for a fresh snapshot.
func (r *reactor) OnMutations(batch *mutation.Batch) ([]Effect, error) {
	var effects []Effect

	for _, rec := range batch.Records {
		switch rec.Op {
		case mutation.OpDocReset:
			for xpath := range r.known {
				delete(r.known, xpath)
				effects = append(effects, UnwireForm{FormXPath: xpath})
			}
			effects = append(effects, RequestSnapshot{})
			// Everything before the reset is moot and everything after it
			// belongs to the new document; the snapshot will cover it.
			return effects, nil

		case mutation.OpInsert:
			if rec.HTML == "" {
				continue
			}
			forms, err := formscan.ScanFragment(rec.HTML, rec.XPath)
			if err != nil {
				return effects, fmt.Errorf("pagewatch: scan inserted subtree at %s: %w", rec.XPath, err)
			}
			for _, f := range forms {
				if !f.Instrumentable() {
					continue
				}
				if _, wired := r.known[f.XPath]; wired {
					continue
				}
				f.PageURL = r.pageURL
				r.known[f.XPath] = f
				effects = append(effects, WireForm{Form: f})
			}

		case mutation.OpRemove:
			for xpath := range r.known {
				if xpath == rec.XPath || strings.HasPrefix(xpath, rec.XPath+"/") {
					delete(r.known, xpath)
					effects = append(effects, UnwireForm{FormXPath: xpath})
				}
			}
		}
	}
	return effects, nil
}
