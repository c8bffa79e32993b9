package access

import (
	"sort"
	"strings"

	"github.com/stowbox/stowbox/internal/model"
)

// SortField is a sortable file attribute.
type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortUpdatedAt SortField = "updatedAt"
	SortName      SortField = "name"
	SortSize      SortField = "size"
)

// Direction is an ordering direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// DefaultSort is createdAt-desc.
var DefaultSort = SortBy{Field: SortCreatedAt, Direction: Desc}

var sortFields = map[string]SortField{
	"createdat":  SortCreatedAt,
	"$createdat": SortCreatedAt,
	"updatedat":  SortUpdatedAt,
	"$updatedat": SortUpdatedAt,
	"name":       SortName,
	"size":       SortSize,
}

// ParseSort parses a "<field>-<asc|desc>" key.
// An empty key yields DefaultSort, an unknown field sorts by createdAt and an
// unknown or missing direction sorts descending.
func ParseSort(key string) SortBy {
	key = strings.TrimSpace(key)
	if key == "" {
		return DefaultSort
	}

	field, dir := key, ""
	if i := strings.LastIndex(key, "-"); i >= 0 {
		field, dir = key[:i], key[i+1:]
	}

	out := SortBy{Field: SortCreatedAt, Direction: Desc}
	if f, ok := sortFields[strings.ToLower(field)]; ok {
		out.Field = f
	}
	if strings.EqualFold(dir, string(Asc)) {
		out.Direction = Asc
	}
	return out
}

// String formats the sort key.
func (s SortBy) String() string {
	return string(s.Field) + "-" + string(s.Direction)
}

// Less orders two files by s, breaking ties by ID in the same direction.
func (s SortBy) Less(a, b *model.File) bool {
	var cmp int
	switch s.Field {
	case SortName:
		cmp = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	case SortSize:
		cmp = compareInt(a.SizeBytes, b.SizeBytes)
	case SortUpdatedAt:
		cmp = a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		cmp = a.CreatedAt.Compare(b.CreatedAt)
	}
	if cmp == 0 {
		cmp = strings.Compare(a.ID, b.ID)
	}
	if s.Direction == Asc {
		return cmp < 0
	}
	return cmp > 0
}

// Apply filters, orders and caps files in memory according to q.
func Apply(q Query, files []*model.File) []*model.File {
	out := make([]*model.File, 0, len(files))
	for _, f := range files {
		if q.Matches(f) {
			out = append(out, f)
		}
	}
	order := q.Sort()
	sort.SliceStable(out, func(i, j int) bool { return order.Less(out[i], out[j]) })
	if n := q.Limit(); n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
