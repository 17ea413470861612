package census

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

// LoadFile reads a census extract, choosing the parser by extension.
func LoadFile(ctx context.Context, path string, cols Columns) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return LoadXLSX(ctx, path, cols)
	case ".csv", ".txt", "":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "census: open %s", path)
		}
		defer func() { _ = f.Close() }()
		return LoadCSV(ctx, f, cols)
	default:
		return nil, eris.Errorf("census: unsupported file type %q", filepath.Ext(path))
	}
}

// LoadCSV parses a census CSV with a header row.
func LoadCSV(ctx context.Context, r io.Reader, cols Columns) (*Table, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rowCh, errCh := streamCSV(ctx, r)
	header, ok := <-rowCh
	if !ok {
		if err := <-errCh; err != nil {
			return nil, err
		}
		return nil, eris.New("census: empty input")
	}

	b, err := newBuilder(header, cols)
	if err != nil {
		return nil, err
	}
	for row := range rowCh {
		b.add(row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return b.finish(), nil
}

// LoadXLSX parses the first sheet of a census workbook.
func LoadXLSX(ctx context.Context, path string, cols Columns) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "census: open workbook %s", path)
	}
	if len(f.Sheets) == 0 || len(f.Sheets[0].Rows) == 0 {
		return nil, eris.New("census: empty input")
	}

	rows := f.Sheets[0].Rows
	b, err := newBuilder(rowToStrings(rows[0]), cols)
	if err != nil {
		return nil, err
	}
	for _, row := range rows[1:] {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "census: context cancelled")
		}
		b.add(rowToStrings(row))
	}
	return b.finish(), nil
}

// streamCSV sends every record, header first, on the row channel. Both
// channels are closed when reading stops.
func streamCSV(ctx context.Context, r io.Reader) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1 // short rows are counted, not fatal
		reader.ReuseRecord = false

		for {
			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "census: read row")
				return
			}
			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "census: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

// builder maps raw rows onto Records using a header.
type builder struct {
	header []string
	idx    map[string]int
	cols   Columns
	table  Table
}

func newBuilder(header []string, cols Columns) (*builder, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		header[i] = h
		idx[h] = i
	}
	var missing []string
	for _, c := range cols.required() {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Wrapf(ErrMissingColumn, "census: columns %s", strings.Join(missing, ", "))
	}
	return &builder{header: header, idx: idx, cols: cols}, nil
}

func (b *builder) get(row []string, col string) string {
	i := b.idx[col]
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (b *builder) add(row []string) {
	if len(row) < len(b.header) {
		b.table.Stats.ShortRows++
	}

	fields := make(map[string]string, len(b.header))
	for i, h := range b.header {
		if i < len(row) {
			fields[h] = strings.TrimSpace(row[i])
		}
	}

	rec := Record{
		ObjectID:     b.get(row, b.cols.ObjectID),
		DistrictID:   normalizeID(b.get(row, b.cols.DistrictID)),
		DistrictName: normalizeName(b.get(row, b.cols.DistrictName)),
		Valid:        parseBool(b.get(row, b.cols.Valid)),
		Fields:       fields,
	}
	lat, latOK := parseCoord(b.get(row, b.cols.Latitude))
	lon, lonOK := parseCoord(b.get(row, b.cols.Longitude))
	rec.Lat, rec.Lon, rec.HasLocation = lat, lon, latOK && lonOK

	b.table.Stats.count(rec)
	b.table.Records = append(b.table.Records, rec)
}

func (b *builder) finish() *Table {
	b.table.Header = b.header
	st := b.table.Stats
	zap.L().Info("census: records loaded",
		zap.Int("rows", st.Rows),
		zap.Int("usable", st.Usable),
		zap.Int("invalid_location", st.InvalidLocation),
		zap.Int("missing_location", st.MissingLocation),
		zap.Int("missing_district", st.MissingDistrict),
	)
	if st.ShortRows > 0 {
		zap.L().Warn("census: rows shorter than header", zap.Int("short_rows", st.ShortRows))
	}
	return &b.table
}

func parseCoord(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
