// internal/filter/filter.go
package filter

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/modfin/henry/slicez"

	"github.com/unclebandit/realestate-campaigns/internal/model"
)

// Predicate is a compiled audience filter. Every present constraint must hold (logical AND);
// absent constraints match everything.
type Predicate struct {
	f model.AudienceFilter
	// none is set when a set filter holds only blank entries; such a filter matches no contact.
	none bool
}

// Compile normalizes the filter document into a Predicate.
// Blank entries in set filters are dropped, but a set made only of blanks stays a constraint
// that nobody satisfies. An open budget range counts as absent.
func Compile(f model.AudienceFilter) Predicate {
	var none bool
	set := func(in []string) []string {
		out := slicez.Uniq(slicez.Filter(in, func(s string) bool { return strings.TrimSpace(s) != "" }))
		if len(in) > 0 && len(out) == 0 {
			none = true
		}
		return out
	}
	out := model.AudienceFilter{
		ContactType:       strings.TrimSpace(f.ContactType),
		PropertyLocations: set(f.PropertyLocations),
		PropertyTypes:     set(f.PropertyTypes),
		Timelines:         set(f.Timelines),
	}
	if f.MinBudgetRange != nil && !f.MinBudgetRange.Open() {
		r := *f.MinBudgetRange
		out.MinBudgetRange = &r
	}
	if f.MaxBudgetRange != nil && !f.MaxBudgetRange.Open() {
		r := *f.MaxBudgetRange
		out.MaxBudgetRange = &r
	}
	return Predicate{f: out, none: none}
}

// Empty reports whether the predicate imposes no constraint, i.e. it matches the whole organization.
func (p Predicate) Empty() bool {
	return !p.none &&
		p.f.ContactType == "" &&
		p.f.MinBudgetRange == nil &&
		p.f.MaxBudgetRange == nil &&
		len(p.f.PropertyLocations) == 0 &&
		len(p.f.PropertyTypes) == 0 &&
		len(p.f.Timelines) == 0
}

func (p Predicate) Filter() model.AudienceFilter {
	return p.f
}

// Match evaluates the predicate against a single contact's preferences.
// Tenant and soft-delete scoping are the caller's job.
func (p Predicate) Match(c model.Contact) bool {
	if p.none {
		return false
	}
	prefs := c.Preferences
	if p.f.ContactType != "" && prefs.ContactType != p.f.ContactType {
		return false
	}
	if !matchRange(p.f.MinBudgetRange, prefs.MinBudget) {
		return false
	}
	if !matchRange(p.f.MaxBudgetRange, prefs.MaxBudget) {
		return false
	}
	if len(p.f.PropertyLocations) > 0 && !overlaps(p.f.PropertyLocations, prefs.PropertyLocations) {
		return false
	}
	if len(p.f.PropertyTypes) > 0 && !overlaps(p.f.PropertyTypes, prefs.PropertyTypes) {
		return false
	}
	if len(p.f.Timelines) > 0 && !slicez.Contains(p.f.Timelines, prefs.Timeline) {
		return false
	}
	return true
}

// A contact without the preference never satisfies a present range, like a NULL comparison in SQL.
func matchRange(r *model.BudgetRange, v *int64) bool {
	if r == nil {
		return true
	}
	if v == nil {
		return false
	}
	return r.Contains(*v)
}

func overlaps(want, have []string) bool {
	for _, h := range have {
		if slicez.Contains(want, h) {
			return true
		}
	}
	return false
}

// SQL renders the predicate as a Postgres boolean expression over the contacts.preferences jsonb
// column. Placeholders start at $argPos.
func (p Predicate) SQL(argPos int) (string, []any) {
	if p.none {
		return "FALSE", nil
	}
	var clauses []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		s := fmt.Sprintf("$%d", argPos)
		argPos++
		return s
	}

	if p.f.ContactType != "" {
		clauses = append(clauses, fmt.Sprintf("preferences->>'contact_type' = %s", next(p.f.ContactType)))
	}
	clauses = appendRange(clauses, "min_budget", p.f.MinBudgetRange, next)
	clauses = appendRange(clauses, "max_budget", p.f.MaxBudgetRange, next)
	if len(p.f.PropertyLocations) > 0 {
		clauses = append(clauses, fmt.Sprintf("preferences->'property_locations' ?| %s::text[]", next(pq.Array(p.f.PropertyLocations))))
	}
	if len(p.f.PropertyTypes) > 0 {
		clauses = append(clauses, fmt.Sprintf("preferences->'property_types' ?| %s::text[]", next(pq.Array(p.f.PropertyTypes))))
	}
	if len(p.f.Timelines) > 0 {
		clauses = append(clauses, fmt.Sprintf("preferences->>'timeline' = ANY(%s::text[])", next(pq.Array(p.f.Timelines))))
	}

	if len(clauses) == 0 {
		return "TRUE", nil
	}
	return "(" + strings.Join(clauses, " AND ") + ")", args
}

func appendRange(clauses []string, key string, r *model.BudgetRange, next func(any) string) []string {
	if r == nil {
		return clauses
	}
	col := fmt.Sprintf("(preferences->>'%s')::bigint", key)
	switch {
	case r.Min != nil && r.Max != nil:
		lo := next(*r.Min)
		hi := next(*r.Max)
		return append(clauses, fmt.Sprintf("%s BETWEEN %s AND %s", col, lo, hi))
	case r.Min != nil:
		return append(clauses, fmt.Sprintf("%s >= %s", col, next(*r.Min)))
	case r.Max != nil:
		return append(clauses, fmt.Sprintf("%s <= %s", col, next(*r.Max)))
	}
	return clauses
}
