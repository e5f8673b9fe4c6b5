package formscan

import "strings"

// Role-specific keyword sets. Matching is case-insensitive substring
// matching against an input's name, id, and placeholder. The sets include
// the localized terms the original deployments encounter.
var (
	emailKeywords    = []string{"email", "e-mail", "邮箱"}
	usernameKeywords = []string{"username", "user", "用户名"}
	confirmKeywords  = []string{"confirm", "repeat", "确认"}

	loginTextKeywords    = []string{"login", "log in", "sign in", "signin", "登录"}
	registerTextKeywords = []string{"register", "sign up", "signup", "create account", "注册"}
)

// containsAny reports whether s contains any of the keywords.
// s must already be lowercased.
func containsAny(s string, keywords []string) bool {
	if s == "" {
		return false
	}
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// anyAttrContains checks name, id, and placeholder against a keyword set.
func anyAttrContains(c Control, keywords []string) bool {
	return containsAny(c.Name, keywords) ||
		containsAny(c.ID, keywords) ||
		containsAny(c.Placeholder, keywords)
}
