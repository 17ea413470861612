package census

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// Filter keeps or drops records by the value of one column.
type Filter struct {
	Column  string
	Values  []string
	Exclude bool
}

// ParseFilter reads a "column=value1,value2" expression.
func ParseFilter(expr string, exclude bool) (Filter, error) {
	col, vals, ok := strings.Cut(expr, "=")
	col = strings.TrimSpace(col)
	if !ok || col == "" {
		return Filter{}, eris.Errorf("census: bad filter %q, want column=value[,value]", expr)
	}
	f := Filter{Column: col, Exclude: exclude}
	for v := range strings.SplitSeq(vals, ",") {
		f.Values = append(f.Values, strings.TrimSpace(v))
	}
	return f, nil
}

// ParseFilters parses include and exclude expressions together.
func ParseFilters(include, exclude []string) ([]Filter, error) {
	out := make([]Filter, 0, len(include)+len(exclude))
	for _, e := range include {
		f, err := ParseFilter(e, false)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	for _, e := range exclude {
		f, err := ParseFilter(e, true)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (f Filter) match(r Record) bool {
	v, ok := r.Fields[f.Column]
	if !ok {
		return false
	}
	for _, want := range f.Values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

// Keep reports whether a record passes the filter.
func (f Filter) Keep(r Record) bool {
	return f.match(r) != f.Exclude
}

// Apply returns a table holding only records that pass every filter.
func (t *Table) Apply(filters []Filter) (*Table, error) {
	if len(filters) == 0 {
		return t, nil
	}
	for _, f := range filters {
		if !slices.Contains(t.Header, f.Column) {
			return nil, eris.Wrapf(ErrMissingColumn, "census: filter column %s", f.Column)
		}
	}

	out := &Table{Header: t.Header}
	for _, r := range t.Records {
		keep := true
		for _, f := range filters {
			if !f.Keep(r) {
				keep = false
				break
			}
		}
		if !keep {
			continue
		}
		out.Records = append(out.Records, r)
		out.Stats.count(r)
	}
	return out, nil
}
