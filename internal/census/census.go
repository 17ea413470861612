// Package census loads geocoded Scout census records and prepares them for
// boundary estimation.
package census

import (
	"cmp"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/the-scouts/incognita-sub000/internal/boundary"
)

// ErrMissingColumn is returned when the input lacks a required column.
var ErrMissingColumn = eris.New("census: missing required column")

// Columns names the input columns the loader needs.
type Columns struct {
	ObjectID     string `yaml:"object_id" mapstructure:"object_id"`
	DistrictID   string `yaml:"district_id" mapstructure:"district_id"`
	DistrictName string `yaml:"district_name" mapstructure:"district_name"`
	Latitude     string `yaml:"latitude" mapstructure:"latitude"`
	Longitude    string `yaml:"longitude" mapstructure:"longitude"`
	Valid        string `yaml:"valid" mapstructure:"valid"`
}

// DefaultColumns matches the census extract headers.
func DefaultColumns() Columns {
	return Columns{
		ObjectID:     "Object_ID",
		DistrictID:   "D_ID",
		DistrictName: "D_name",
		Latitude:     "lat",
		Longitude:    "long",
		Valid:        "postcode_is_valid",
	}
}

func (c Columns) required() []string {
	return []string{c.ObjectID, c.DistrictID, c.DistrictName, c.Latitude, c.Longitude, c.Valid}
}

// Record is one census row.
type Record struct {
	ObjectID     string
	DistrictID   string
	DistrictName string
	Lat, Lon     float64
	// HasLocation is false when either coordinate is blank or unparseable.
	HasLocation bool
	Valid       bool
	// Fields keeps every column by header name, for filtering.
	Fields map[string]string
}

// Usable reports whether the record takes part in boundary estimation.
func (r Record) Usable() bool {
	return r.Valid && r.HasLocation && r.DistrictID != ""
}

// Stats counts what the loader saw.
type Stats struct {
	Rows            int `json:"rows" yaml:"rows"`
	Usable          int `json:"usable" yaml:"usable"`
	InvalidLocation int `json:"invalid_location" yaml:"invalid_location"`
	MissingLocation int `json:"missing_location" yaml:"missing_location"`
	MissingDistrict int `json:"missing_district" yaml:"missing_district"`
	ShortRows       int `json:"short_rows" yaml:"short_rows"`
}

func (s *Stats) count(r Record) {
	s.Rows++
	switch {
	case r.DistrictID == "":
		s.MissingDistrict++
	case !r.Valid:
		s.InvalidLocation++
	case !r.HasLocation:
		s.MissingLocation++
	default:
		s.Usable++
	}
}

// Table is a loaded census extract.
type Table struct {
	Header  []string
	Records []Record
	Stats   Stats
}

// BoundaryRecords returns the usable records as estimation input.
func (t *Table) BoundaryRecords() []boundary.Record {
	out := make([]boundary.Record, 0, len(t.Records))
	for _, r := range t.Records {
		if !r.Usable() {
			continue
		}
		out = append(out, boundary.Record{ObjectID: r.ObjectID, DistrictID: r.DistrictID, Lon: r.Lon, Lat: r.Lat})
	}
	return out
}

// Districts lists every district named in the table, usable or not, ordered
// by id. The first non-empty name seen for an id is kept.
func (t *Table) Districts() []boundary.DistrictInfo {
	names := make(map[string]string)
	for _, r := range t.Records {
		if r.DistrictID == "" {
			continue
		}
		if name, ok := names[r.DistrictID]; !ok || name == "" {
			names[r.DistrictID] = r.DistrictName
		}
	}
	out := make([]boundary.DistrictInfo, 0, len(names))
	for id, name := range names {
		out = append(out, boundary.DistrictInfo{ID: id, Name: name})
	}
	slices.SortFunc(out, func(a, b boundary.DistrictInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// normalizeName folds Unicode to NFC and collapses internal whitespace.
func normalizeName(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// normalizeID strips whitespace and the ".0" suffix spreadsheets add to
// integer ids.
func normalizeID(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "nan") {
		return ""
	}
	return strings.TrimSuffix(s, ".0")
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "1.0", "true", "t", "yes", "y":
		return true
	}
	return false
}
