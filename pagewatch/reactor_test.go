package pagewatch

import (
	"testing"

	"github.com/hazyhaar/credkeeper/pagewatch/mutation"
)

const loginPage = `<!DOCTYPE html>
<html><body>
  <div>
    <form>
      <label>Username</label><input type="text" name="username">
      <label>Password</label><input type="password" name="password">
      <button>Sign in</button>
    </form>
  </div>
</body></html>`

func TestSnapshotWiresLoginForm(t *testing.T) {
	r := newReactor("https://example.com/login")

	effects, err := r.OnSnapshot([]byte(loginPage))
	if err != nil {
		t.Fatal(err)
	}
	if len(effects) != 1 {
		t.Fatalf("effects = %d, want 1", len(effects))
	}
	wire, ok := effects[0].(WireForm)
	if !ok {
		t.Fatalf("effect = %T, want WireForm", effects[0])
	}
	if wire.Form.XPath != "/html[1]/body[1]/div[1]/form[1]" {
		t.Errorf("form xpath = %q", wire.Form.XPath)
	}
	if wire.Form.PageURL != "https://example.com/login" {
		t.Errorf("page url = %q", wire.Form.PageURL)
	}

	// Re-scanning the same document must not wire the form twice.
	effects, err = r.OnSnapshot([]byte(loginPage))
	if err != nil {
		t.Fatal(err)
	}
	if len(effects) != 0 {
		t.Fatalf("second snapshot effects = %d, want 0", len(effects))
	}
}

func TestSnapshotUnwiresVanishedForm(t *testing.T) {
	r := newReactor("https://example.com/")
	if _, err := r.OnSnapshot([]byte(loginPage)); err != nil {
		t.Fatal(err)
	}

	effects, err := r.OnSnapshot([]byte(`<html><body><p>logged in</p></body></html>`))
	if err != nil {
		t.Fatal(err)
	}
	if len(effects) != 1 {
		t.Fatalf("effects = %d, want 1", len(effects))
	}
	unwire, ok := effects[0].(UnwireForm)
	if !ok {
		t.Fatalf("effect = %T, want UnwireForm", effects[0])
	}
	if unwire.FormXPath != "/html[1]/body[1]/div[1]/form[1]" {
		t.Errorf("unwired xpath = %q", unwire.FormXPath)
	}
	if _, still := r.Form(unwire.FormXPath); still {
		t.Error("form still tracked after unwire")
	}
}

func TestInsertedModalWires(t *testing.T) {
	r := newReactor("https://example.com/")
	if _, err := r.OnSnapshot([]byte(`<html><body><div>welcome</div></body></html>`)); err != nil {
		t.Fatal(err)
	}

	batch := &mutation.Batch{Records: []mutation.Record{{
		Op:    mutation.OpInsert,
		XPath: "/html[1]/body[1]/div[2]",
		HTML: `<div class="modal"><form>
			<input type="email" name="email" placeholder="Email">
			<input type="password" name="password">
			<button>Log in</button>
		</form></div>`,
	}}}

	effects, err := r.OnMutations(batch)
	if err != nil {
		t.Fatal(err)
	}
	if len(effects) != 1 {
		t.Fatalf("effects = %d, want 1", len(effects))
	}
	wire, ok := effects[0].(WireForm)
	if !ok {
		t.Fatalf("effect = %T, want WireForm", effects[0])
	}
	if wire.Form.XPath != "/html[1]/body[1]/div[2]/form[1]" {
		t.Errorf("form xpath = %q", wire.Form.XPath)
	}

	// Same insert replayed: already known, no duplicate wiring.
	effects, err = r.OnMutations(batch)
	if err != nil {
		t.Fatal(err)
	}
	if len(effects) != 0 {
		t.Fatalf("replay effects = %d, want 0", len(effects))
	}
}

func TestRemoveAncestorUnwires(t *testing.T) {
	r := newReactor("https://example.com/")
	if _, err := r.OnSnapshot([]byte(loginPage)); err != nil {
		t.Fatal(err)
	}

	effects, err := r.OnMutations(&mutation.Batch{Records: []mutation.Record{{
		Op:    mutation.OpRemove,
		XPath: "/html[1]/body[1]/div[1]",
	}}})
	if err != nil {
		t.Fatal(err)
	}
	if len(effects) != 1 {
		t.Fatalf("effects = %d, want 1", len(effects))
	}
	if _, ok := effects[0].(UnwireForm); !ok {
		t.Fatalf("effect = %T, want UnwireForm", effects[0])
	}
}

func TestRemoveSiblingKeepsForm(t *testing.T) {
	r := newReactor("https://example.com/")
	_, err := r.OnMutations(&mutation.Batch{Records: []mutation.Record{{
		Op:    mutation.OpInsert,
		XPath: "/html[1]/body[1]/div[10]",
		HTML: `<div><form>
			<input type="text" name="login">
			<input type="password" name="password">
			<button>Sign in</button>
		</form></div>`,
	}}})
	if err != nil {
		t.Fatal(err)
	}

	// div[1] is not an ancestor of div[10]; prefix matching must respect
	// path segment boundaries.
	effects, err := r.OnMutations(&mutation.Batch{Records: []mutation.Record{{
		Op:    mutation.OpRemove,
		XPath: "/html[1]/body[1]/div[1]",
	}}})
	if err != nil {
		t.Fatal(err)
	}
	if len(effects) != 0 {
		t.Fatalf("effects = %d, want 0", len(effects))
	}
	if _, ok := r.Form("/html[1]/body[1]/div[10]/form[1]"); !ok {
		t.Error("sibling removal unwired the form")
	}
}

func TestDocResetClearsAndRequestsSnapshot(t *testing.T) {
	r := newReactor("https://example.com/")
	if _, err := r.OnSnapshot([]byte(loginPage)); err != nil {
		t.Fatal(err)
	}

	effects, err := r.OnMutations(&mutation.Batch{Records: []mutation.Record{
		{Op: mutation.OpDocReset},
		{Op: mutation.OpInsert, XPath: "/html[1]/body[1]/div[1]", HTML: "<div></div>"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(effects) != 2 {
		t.Fatalf("effects = %d, want 2", len(effects))
	}
	if _, ok := effects[0].(UnwireForm); !ok {
		t.Fatalf("effects[0] = %T, want UnwireForm", effects[0])
	}
	if _, ok := effects[1].(RequestSnapshot); !ok {
		t.Fatalf("effects[1] = %T, want RequestSnapshot", effects[1])
	}
	if _, still := r.Form("/html[1]/body[1]/div[1]/form[1]"); still {
		t.Error("form survived document reset")
	}
}
