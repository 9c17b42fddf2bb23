// internal/service/template_service.go
package service

import (
	"regexp"

	"github.com/modfin/henry/compare"

	"github.com/unclebandit/realestate-campaigns/internal/model"
)

var placeholder = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// RenderTemplate replaces every {{key}} with data[key] in one pass. Keys are matched verbatim, so
// custom variables like {{agent-name}} work. Unknown keys are left as-is, and substituted values are
// never expanded again.
func RenderTemplate(template string, data map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		key := m[2 : len(m)-2]
		if v, ok := data[key]; ok {
			return v
		}
		return m
	})
}

// ContactVariables is the fixed variable set every template can use.
func ContactVariables(c model.Contact) map[string]string {
	return map[string]string{
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"full_name":  c.FullName(),
		"email":      c.Email,
		"phone":      c.Phone,
	}
}

// RenderForContact renders a stored template. Campaign variables override the contact defaults.
func RenderForContact(t model.EmailTemplate, c model.Contact, custom model.Variables) (subject, body string) {
	vars := ContactVariables(c)
	for k, v := range custom {
		vars[k] = v
	}
	return RenderTemplate(t.Subject, vars), RenderTemplate(t.Body, vars)
}

// RenderLiteral handles campaigns without a template: only {{contact_name}} is substituted,
// with the email address standing in for a blank name.
func RenderLiteral(subject, body string, c model.Contact) (string, string) {
	vars := map[string]string{"contact_name": compare.Ternary(c.FullName() != "", c.FullName(), c.Email)}
	return RenderTemplate(subject, vars), RenderTemplate(body, vars)
}
