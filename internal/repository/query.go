package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/stowbox/stowbox/internal/access"
)

// ErrUnscopedQuery is returned for a query without a visibility clause.
var ErrUnscopedQuery = errors.New("query has no visibility clause")

const fileColumns = `id, name, type, extension, size_bytes, url, owner_id, account_id, shared_with, bucket_object_id, created_at, updated_at`

var sortColumns = map[access.SortField]string{
	access.SortCreatedAt: "created_at",
	access.SortUpdatedAt: "updated_at",
	access.SortName:      "LOWER(name)",
	access.SortSize:      "size_bytes",
}

// sqlBuilder accumulates positional arguments.
type sqlBuilder struct {
	args []any
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// compileWhere renders the visibility and narrowing clauses of q.
func compileWhere(b *sqlBuilder, q access.Query) (string, error) {
	if !q.Scoped() {
		return "", ErrUnscopedQuery
	}

	var vis []string
	for _, f := range q.Visibility() {
		switch c := f.(type) {
		case access.Owner:
			vis = append(vis, "owner_id = "+b.arg(c.UserID))
		case access.Shared:
			vis = append(vis, b.arg(strings.ToLower(c.Email))+" = ANY(shared_with)")
		}
	}

	clauses := []string{"(" + strings.Join(vis, " OR ") + ")"}
	for _, f := range q.Conditions() {
		switch c := f.(type) {
		case access.TypeIn:
			types := make([]string, len(c.Types))
			for i, t := range c.Types {
				types[i] = string(t)
			}
			clauses = append(clauses, "type = ANY("+b.arg(pq.Array(types))+")")
		case access.NameContains:
			clauses = append(clauses, "name ILIKE "+b.arg("%"+escapeLike(c.Text)+"%"))
		case access.IDIs:
			clauses = append(clauses, "id = "+b.arg(c.FileID))
		}
	}

	return strings.Join(clauses, " AND "), nil
}

// compileSelect renders the listing statement for q. The total column counts
// matches before the limit is applied.
func compileSelect(q access.Query) (string, []any, error) {
	var b sqlBuilder
	where, err := compileWhere(&b, q)
	if err != nil {
		return "", nil, err
	}

	order := q.Sort()
	col, ok := sortColumns[order.Field]
	if !ok {
		col = sortColumns[access.SortCreatedAt]
	}
	dir := "DESC"
	if order.Direction == access.Asc {
		dir = "ASC"
	}

	query := fmt.Sprintf(
		"SELECT %s, COUNT(*) OVER() AS total FROM files WHERE %s ORDER BY %s %s, id %s",
		fileColumns, where, col, dir, dir,
	)
	if n := q.Limit(); n > 0 {
		query += " LIMIT " + b.arg(n)
	}

	return query, b.args, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
