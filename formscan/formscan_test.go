package formscan

import "testing"

func ctl(t *testing.T, typ, name, id, placeholder string) Control {
	t.Helper()
	return NewControl(typ, name, id, placeholder, "/html[1]/body[1]/form[1]/input[1]")
}

func TestClassifyControl(t *testing.T) {
	tests := []struct {
		desc string
		c    Control
		want Role
	}{
		{"email type", ctl(t, "email", "", "", ""), RoleEmail},
		{"email keyword in name", ctl(t, "text", "user_email", "", ""), RoleEmail},
		{"localized email placeholder", ctl(t, "text", "", "", "请输入邮箱"), RoleEmail},
		{"username keyword", ctl(t, "text", "username", "", ""), RoleUsername},
		{"localized username", ctl(t, "text", "", "", "用户名"), RoleUsername},
		{"user substring", ctl(t, "text", "", "user-input", ""), RoleUsername},
		{"plain password", ctl(t, "password", "password", "", ""), RolePassword},
		{"confirm password", ctl(t, "password", "confirm_password", "", ""), RolePasswordConfirm},
		{"repeat password", ctl(t, "password", "", "", "repeat your password"), RolePasswordConfirm},
		{"localized confirm", ctl(t, "password", "", "", "确认密码"), RolePasswordConfirm},
		{"uppercase attributes", ctl(t, "TEXT", "UserName", "", ""), RoleUsername},
		{"plain text field", ctl(t, "text", "search", "", "search the site"), RoleUnknown},
		{"checkbox", ctl(t, "checkbox", "remember", "", ""), RoleUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyControl(tt.c); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.desc, got, tt.want)
		}
	}
}

func TestClassifyControlDeterministic(t *testing.T) {
	c := ctl(t, "password", "confirm_pwd", "", "")
	first := ClassifyControl(c)
	for i := 0; i < 5; i++ {
		if got := ClassifyControl(c); got != first {
			t.Fatalf("run %d: got %q, first run gave %q", i, got, first)
		}
	}
}

func TestClassifyFormLogin(t *testing.T) {
	controls := []Control{
		NewControl("text", "username", "", "", "/f/input[1]"),
		NewControl("password", "password", "", "", "/f/input[2]"),
	}
	form := ClassifyForm("/f", controls, "Sign in to your account")

	if form.Kind != KindLogin {
		t.Fatalf("kind = %q, want %q", form.Kind, KindLogin)
	}
	if form.Username == nil || form.Username.XPath != "/f/input[1]" {
		t.Errorf("username slot = %+v", form.Username)
	}
	if form.Password == nil || form.Password.XPath != "/f/input[2]" {
		t.Errorf("password slot = %+v", form.Password)
	}
	if form.PasswordConfirm != nil {
		t.Errorf("unexpected confirm slot: %+v", form.PasswordConfirm)
	}
	if !form.Instrumentable() {
		t.Error("login form should be instrumentable")
	}
	if id := form.IdentityField(); id != form.Username {
		t.Errorf("identity field = %+v, want username", id)
	}
}

func TestClassifyFormRegister(t *testing.T) {
	controls := []Control{
		NewControl("email", "email", "", "", "/f/input[1]"),
		NewControl("password", "password", "", "", "/f/input[2]"),
		NewControl("password", "confirm_password", "", "", "/f/input[3]"),
	}
	form := ClassifyForm("/f", controls, "")

	if form.Kind != KindRegister {
		t.Fatalf("kind = %q, want %q", form.Kind, KindRegister)
	}
	if form.PasswordConfirm == nil || form.PasswordConfirm.XPath != "/f/input[3]" {
		t.Errorf("confirm slot = %+v", form.PasswordConfirm)
	}
	if id := form.IdentityField(); id == nil || id.Role != RoleEmail {
		t.Errorf("identity field = %+v, want email", id)
	}
}

// Two password fields with no confirm wording are ambiguous and must not
// flip the form to register on their own.
func TestClassifyFormAmbiguousSecondPassword(t *testing.T) {
	controls := []Control{
		NewControl("text", "username", "", "", "/f/input[1]"),
		NewControl("password", "pass1", "", "", "/f/input[2]"),
		NewControl("password", "pass2", "", "", "/f/input[3]"),
	}
	form := ClassifyForm("/f", controls, "sign in")

	if form.Kind != KindLogin {
		t.Fatalf("kind = %q, want %q", form.Kind, KindLogin)
	}
	if form.PasswordConfirm != nil {
		t.Errorf("confirm slot = %+v, want nil", form.PasswordConfirm)
	}
	if got := form.Fields[2].Role; got != RoleUnknown {
		t.Errorf("second password role = %q, want unknown", got)
	}
}

func TestClassifyFormRegisterText(t *testing.T) {
	controls := []Control{
		NewControl("text", "username", "", "", "/f/input[1]"),
		NewControl("password", "password", "", "", "/f/input[2]"),
	}
	for _, text := range []string{"Create Account", "注册新用户"} {
		form := ClassifyForm("/f", controls, text)
		if form.Kind != KindRegister {
			t.Errorf("text %q: kind = %q, want %q", text, form.Kind, KindRegister)
		}
	}
}

func TestClassifyFormEmailDoublesAsUsername(t *testing.T) {
	controls := []Control{
		NewControl("email", "user_email", "", "", "/f/input[1]"),
		NewControl("password", "password", "", "", "/f/input[2]"),
	}
	form := ClassifyForm("/f", controls, "log in")

	if form.Email == nil {
		t.Fatal("email slot not set")
	}
	if form.Username != form.Email {
		t.Errorf("username slot = %+v, want same field as email", form.Username)
	}
}

func TestClassifyFormUnrecognized(t *testing.T) {
	controls := []Control{
		NewControl("text", "q", "", "Search the site", "/f/input[1]"),
	}
	form := ClassifyForm("/f", controls, "search")

	if form.Kind != KindUnrecognized {
		t.Fatalf("kind = %q, want unrecognized", form.Kind)
	}
	if form.Instrumentable() {
		t.Error("search form should not be instrumentable")
	}
}

func TestScanDocument(t *testing.T) {
	doc := `<html><body>
		<div>
			<h1>Welcome back</h1>
			<form>
				<input type="text" name="username" placeholder="Username">
				<input type="password" name="password">
				<button>登录</button>
			</form>
		</div>
	</body></html>`

	forms, err := ScanDocument([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(forms) != 1 {
		t.Fatalf("got %d forms, want 1", len(forms))
	}

	form := forms[0]
	if form.Kind != KindLogin {
		t.Errorf("kind = %q, want %q", form.Kind, KindLogin)
	}
	if want := "/html[1]/body[1]/div[1]/form[1]"; form.XPath != want {
		t.Errorf("form xpath = %q, want %q", form.XPath, want)
	}
	if form.Password == nil {
		t.Fatal("password slot not set")
	}
	if want := "/html[1]/body[1]/div[1]/form[1]/input[2]"; form.Password.XPath != want {
		t.Errorf("password xpath = %q, want %q", form.Password.XPath, want)
	}
}

// Script bodies are not visible text and must not influence the kind.
func TestScanDocumentIgnoresScriptText(t *testing.T) {
	doc := `<html><body>
		<form>
			<input type="text" name="q">
			<script>trackEvent("register_banner");</script>
		</form>
	</body></html>`

	forms, err := ScanDocument([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(forms) != 1 {
		t.Fatalf("got %d forms, want 1", len(forms))
	}
	if forms[0].Kind != KindUnrecognized {
		t.Errorf("kind = %q, want unrecognized", forms[0].Kind)
	}
}

func TestScanFragment(t *testing.T) {
	fragment := `<div><form>
		<input type="email" name="email">
		<input type="password" name="password">
		<span>Sign in</span>
	</form></div>`

	forms, err := ScanFragment(fragment, "/html[1]/body[1]/div[3]")
	if err != nil {
		t.Fatal(err)
	}
	if len(forms) != 1 {
		t.Fatalf("got %d forms, want 1", len(forms))
	}

	form := forms[0]
	if want := "/html[1]/body[1]/div[3]/form[1]"; form.XPath != want {
		t.Errorf("form xpath = %q, want %q", form.XPath, want)
	}
	if form.Kind != KindLogin {
		t.Errorf("kind = %q, want %q", form.Kind, KindLogin)
	}
}

func TestScanFragmentRootIsForm(t *testing.T) {
	fragment := `<form>
		<input type="text" name="username">
		<input type="password" name="password">
	</form>`

	forms, err := ScanFragment(fragment, "/html[1]/body[1]/form[2]")
	if err != nil {
		t.Fatal(err)
	}
	if len(forms) != 1 {
		t.Fatalf("got %d forms, want 1", len(forms))
	}
	if want := "/html[1]/body[1]/form[2]"; forms[0].XPath != want {
		t.Errorf("form xpath = %q, want %q", forms[0].XPath, want)
	}
	if want := "/html[1]/body[1]/form[2]/input[1]"; forms[0].Username.XPath != want {
		t.Errorf("username xpath = %q, want %q", forms[0].Username.XPath, want)
	}
}
