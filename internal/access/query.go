// Package access builds the visibility-scoped queries every file read goes through.
//
// A Query always carries a visibility clause: the caller owns the file, or the
// caller's email is in the file's share list. Additional filters narrow the
// result. Queries are values; every builder method returns a modified copy.
package access

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stowbox/stowbox/internal/model"
)

// Filter is one clause of a Query. The set of implementations is closed.
type Filter interface {
	isFilter()
}

// Owner matches files created by UserID.
type Owner struct{ UserID string }

// Shared matches files whose share list contains Email.
type Shared struct{ Email string }

// TypeIn matches files whose category is one of Types.
type TypeIn struct{ Types []model.FileType }

// NameContains matches files whose name contains Text, case-insensitively.
type NameContains struct{ Text string }

// IDIs matches a single file.
type IDIs struct{ FileID string }

// Limit caps the number of results.
type Limit struct{ N int }

// SortBy orders results.
type SortBy struct {
	Field     SortField
	Direction Direction
}

func (Owner) isFilter()        {}
func (Shared) isFilter()       {}
func (TypeIn) isFilter()       {}
func (NameContains) isFilter() {}
func (IDIs) isFilter()         {}
func (Limit) isFilter()        {}
func (SortBy) isFilter()       {}

// Query is an immutable, visibility-scoped file query.
// Visibility clauses are OR-ed; Where clauses are AND-ed with them.
type Query struct {
	visibility []Filter
	where      []Filter
	limit      int
	sort       SortBy
}

// Identity is the caller a query is scoped to.
type Identity struct {
	UserID string
	Email  string
}

// IdentityOf returns the query identity of a user.
func IdentityOf(u *model.User) Identity {
	if u == nil {
		return Identity{}
	}
	return Identity{UserID: u.ID, Email: strings.ToLower(u.Email)}
}

// ForCaller returns a query matching files owned by or shared with id.
func ForCaller(id Identity) Query {
	var vis []Filter
	if id.UserID != "" {
		vis = append(vis, Owner{UserID: id.UserID})
	}
	if id.Email != "" {
		vis = append(vis, Shared{Email: strings.ToLower(id.Email)})
	}
	return Query{visibility: vis, sort: DefaultSort}
}

// OwnedBy returns a query matching only files owned by id.
func OwnedBy(id Identity) Query {
	var vis []Filter
	if id.UserID != "" {
		vis = []Filter{Owner{UserID: id.UserID}}
	}
	return Query{visibility: vis, sort: DefaultSort}
}

// Where returns a copy of q with the given filters added.
// Limit and SortBy values replace the current limit and order.
func (q Query) Where(filters ...Filter) Query {
	out := q.clone()
	for _, f := range filters {
		switch v := f.(type) {
		case Limit:
			out.limit = v.N
		case SortBy:
			out.sort = v
		case TypeIn:
			if len(v.Types) > 0 {
				types := make([]model.FileType, len(v.Types))
				copy(types, v.Types)
				out.where = append(out.where, TypeIn{Types: types})
			}
		case NameContains:
			if v.Text != "" {
				out.where = append(out.where, v)
			}
		case IDIs:
			out.where = append(out.where, v)
		case Owner, Shared:
			// Visibility is fixed at construction.
		}
	}
	return out
}

// WithLimit returns a copy of q capped at n results. n <= 0 removes the cap.
func (q Query) WithLimit(n int) Query {
	return q.Where(Limit{N: n})
}

// SortedBy returns a copy of q with the given order.
func (q Query) SortedBy(s SortBy) Query {
	return q.Where(s)
}

// Scoped reports whether the query has a visibility clause.
// Unscoped queries match nothing.
func (q Query) Scoped() bool {
	return len(q.visibility) > 0
}

// Visibility returns the OR-ed visibility clauses.
func (q Query) Visibility() []Filter {
	out := make([]Filter, len(q.visibility))
	copy(out, q.visibility)
	return out
}

// Conditions returns the AND-ed narrowing clauses.
func (q Query) Conditions() []Filter {
	out := make([]Filter, len(q.where))
	copy(out, q.where)
	return out
}

// Limit returns the result cap, 0 when uncapped.
func (q Query) Limit() int {
	if q.limit < 0 {
		return 0
	}
	return q.limit
}

// Sort returns the result order.
func (q Query) Sort() SortBy {
	return q.sort
}

// Matches evaluates the query against a single file.
func (q Query) Matches(f *model.File) bool {
	if f == nil || !q.Scoped() {
		return false
	}

	visible := false
	for _, v := range q.visibility {
		switch c := v.(type) {
		case Owner:
			visible = visible || f.IsOwnedBy(c.UserID)
		case Shared:
			visible = visible || f.IsSharedWith(c.Email)
		}
	}
	if !visible {
		return false
	}

	for _, w := range q.where {
		switch c := w.(type) {
		case TypeIn:
			if !containsType(c.Types, f.Type) {
				return false
			}
		case NameContains:
			if !strings.Contains(strings.ToLower(f.Name), strings.ToLower(c.Text)) {
				return false
			}
		case IDIs:
			if f.ID != c.FileID {
				return false
			}
		}
	}
	return true
}

// Key returns a canonical string for the narrowing clauses, order and limit.
// Two queries with the same visibility and the same Key return the same rows.
func (q Query) Key() string {
	parts := make([]string, 0, len(q.where)+2)
	for _, w := range q.where {
		switch c := w.(type) {
		case TypeIn:
			types := make([]string, len(c.Types))
			for i, t := range c.Types {
				types[i] = string(t)
			}
			sort.Strings(types)
			parts = append(parts, "type="+strings.Join(types, ","))
		case NameContains:
			parts = append(parts, "name="+strings.ToLower(c.Text))
		case IDIs:
			parts = append(parts, "id="+c.FileID)
		}
	}
	sort.Strings(parts)
	parts = append(parts, "sort="+q.sort.String(), fmt.Sprintf("limit=%d", q.Limit()))
	return strings.Join(parts, "&")
}

func (q Query) clone() Query {
	out := Query{limit: q.limit, sort: q.sort}
	out.visibility = append([]Filter(nil), q.visibility...)
	out.where = append([]Filter(nil), q.where...)
	return out
}

func containsType(types []model.FileType, t model.FileType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
