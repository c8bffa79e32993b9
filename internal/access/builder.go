package access

import (
	"strings"

	"github.com/stowbox/stowbox/internal/model"
)

// Options are the caller-supplied listing parameters.
type Options struct {
	Types      []model.FileType
	SearchText string
	Sort       string
	Limit      int
}

// Build returns the listing query for a caller:
// (owner = caller) OR (caller email in sharedWith), narrowed by opts.
func Build(id Identity, opts Options) Query {
	q := ForCaller(id)

	var filters []Filter
	if types := validTypes(opts.Types); len(types) > 0 {
		filters = append(filters, TypeIn{Types: types})
	}
	if text := strings.TrimSpace(opts.SearchText); text != "" {
		filters = append(filters, NameContains{Text: text})
	}
	if opts.Limit > 0 {
		filters = append(filters, Limit{N: opts.Limit})
	}
	filters = append(filters, ParseSort(opts.Sort))

	return q.Where(filters...)
}

// ParseTypes splits a comma separated list of categories, dropping unknown ones.
func ParseTypes(raw string) []model.FileType {
	if raw == "" {
		return nil
	}
	var out []model.FileType
	for _, part := range strings.Split(raw, ",") {
		t := model.FileType(strings.ToLower(strings.TrimSpace(part)))
		if t.IsValid() {
			out = append(out, t)
		}
	}
	return out
}

func validTypes(types []model.FileType) []model.FileType {
	out := make([]model.FileType, 0, len(types))
	for _, t := range types {
		if t.IsValid() {
			out = append(out, t)
		}
	}
	return out
}
