package damlevels

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/dam-data-etl/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readCSV(t *testing.T, csv string) *Snapshot {
	t.Helper()
	snap, err := ReadSnapshot(strings.NewReader(csv))
	require.NoError(t, err)
	return snap
}

func TestNormalizeColumnName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Woodhead   Height (m) ", "woodhead height (m)"},
		{"WEMMERSHOEK\tStorage\n(Ml)", "wemmershoek storage (ml)"},
		{"date", "date"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeColumnName(tt.in))
		})
	}
}

func TestResolveColumn(t *testing.T) {
	columns := []string{
		"date",
		"steenbras lower height (m)",
		"steenbras upper height (m)",
		"steenbras upper storage (ml)",
		"upper steenbras current (%)",
		"steenbras upper current (%)",
		"steenbras upper current (%) revised",
	}

	tests := []struct {
		name    string
		prefix  string
		keyword string
		want    int
		found   bool
	}{
		{"exact prefix", "steenbras upper", "height", 2, true},
		{"distinct overlapping prefix", "steenbras lower", "height", 1, true},
		{"prefix must be leading", "steenbras upper", "current", 5, true},
		{"first in column order wins", "steenbras upper", "current", 5, true},
		{"keyword case-insensitive", "steenbras upper", "STORAGE", 3, true},
		{"prefix normalized", "  Steenbras   Upper ", "storage", 3, true},
		{"no keyword match", "steenbras lower", "storage", 0, false},
		{"keyword ignores spaces", "steenbras upper", "upper current", 5, true},
		{"unknown prefix", "woodhead", "height", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, ok := ResolveColumn(columns, tt.prefix, tt.keyword)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, idx)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"01-Sept-24", time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), true},
		{"15-Sep-23", time.Date(2023, 9, 15, 0, 0, 0, 0, time.UTC), true},
		{"03-Jan-12", time.Date(2012, 1, 3, 0, 0, 0, 0, time.UTC), true},
		{"2024-02-29", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), true},
		{"2024/02/01", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), true},
		{" 07-Mar-20 ", time.Date(2020, 3, 7, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"not a date", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}

func TestParseNumber(t *testing.T) {
	v, ok := ParseNumber(" 98.2 ")
	assert.True(t, ok)
	assert.InDelta(t, 98.2, v, 1e-9)

	for _, s := range []string{"", "  ", "n/a", "12.3*", "#", "NaN", "Inf"} {
		_, ok := ParseNumber(s)
		assert.False(t, ok, "%q", s)
	}
}

func TestReadSnapshot_Latin1(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("DATE,Vo")
	buf.WriteByte(0xEB) // ë in ISO-8859-1
	buf.WriteString("lvlei Height (m)\n01-Jan-24,12.5\n")

	snap, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"date", "voëlvlei height (m)"}, snap.Columns)

	idx, ok := ResolveColumn(snap.Columns, "voëlvlei", "height")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestReadSnapshot_SkipsBlankRowsAndToleratesRagged(t *testing.T) {
	snap := readCSV(t, "Date,A Height,A Storage\n01-Jan-24,1,2\n,,\n02-Jan-24,3\n")
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, "", snap.Cell(1, 2))
	assert.Equal(t, "3", snap.Cell(1, 1))
}

func TestReadSnapshot_DuplicateColumns(t *testing.T) {
	_, err := ReadSnapshot(strings.NewReader("Date,Woodhead Height,  woodhead  height \n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate column")
}

func TestReadSnapshot_Empty(t *testing.T) {
	_, err := ReadSnapshot(strings.NewReader(""))
	require.ErrorIs(t, err, ErrEmptySnapshot)
}

func TestSnapshotDateColumn(t *testing.T) {
	assert.Equal(t, 1, (&Snapshot{Columns: []string{"x", "date", "reading date"}}).DateColumn())
	assert.Equal(t, 2, (&Snapshot{Columns: []string{"x", "y", "reading date"}}).DateColumn())
	assert.Equal(t, 0, (&Snapshot{Columns: []string{"x", "y"}}).DateColumn())
}

func TestEntityKey(t *testing.T) {
	assert.Equal(t, "steenbras_lower", Entity{Name: "Steenbras Lower"}.Key())
	assert.Equal(t, "hely_hutchinson", Entity{Name: "Hely-Hutchinson"}.Key())
	assert.Equal(t, "woodhead", Entity{Name: "Woodhead"}.Key())
}

func TestNormalize_WoodheadMonthly(t *testing.T) {
	snap := readCSV(t, "Date,Woodhead Height (m),Woodhead % Full\n"+
		"01-Jan-24,100.5,98.2\n"+
		"01-Feb-24,99.0,96.0\n")

	res, ok := Normalize(snap, Entity{Name: "Woodhead", Prefix: "woodhead"})
	require.True(t, ok)

	require.Len(t, res.Monthly.Points, 2)
	assert.Equal(t, "2024-01", res.Monthly.Points[0].Key(series.Monthly))
	assert.Equal(t, "2024-02", res.Monthly.Points[1].Key(series.Monthly))
	assert.Equal(t, []series.Field{
		{Name: "height_m", Agg: series.Mean},
		{Name: "percent_full", Agg: series.Mean},
	}, res.Monthly.Fields)
	assert.Equal(t, series.Some(100.5), res.Monthly.Points[0].Values[0])
	assert.Equal(t, series.Some(99.0), res.Monthly.Points[1].Values[0])

	data, err := res.Monthly.JSON().MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"date":"2024-01","height_m":100.5,"percent_full":98.2},{"date":"2024-02","height_m":99,"percent_full":96}]`, string(data))
	assert.NotContains(t, string(data), "storage_ml")
	assert.NotContains(t, string(data), "last_year_percent_full")
}

func TestNormalize_PublishedHeaders(t *testing.T) {
	snap := readCSV(t, "Date,Woodhead Height (m),Woodhead Last Year % Full,Woodhead % Full,Woodhead Last Year (%)\n"+
		"01-Jan-24,100.5,80,98.2,81\n")

	res, ok := Normalize(snap, Entity{Name: "Woodhead", Prefix: "woodhead"})
	require.True(t, ok)

	data, err := res.Daily.JSON().MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"date":"2024-01-01","height_m":100.5,"percent_full":98.2,"last_year_percent_full":80}]`, string(data))
}

func TestNormalize_AllFieldsAndCoercion(t *testing.T) {
	snap := readCSV(t, "Date,Berg River Height (m),Berg River Storage (Ml),Berg River Current (%),Berg River LastYear (%)\n"+
		"02-Sept-24,60.123,126000,97.5,90\n"+
		"01-Sept-24,60.0,*,97.0,89\n")

	res, ok := Normalize(snap, Entity{Name: "Berg River", Prefix: "berg river"})
	require.True(t, ok)

	names := make([]string, len(res.Daily.Fields))
	for i, f := range res.Daily.Fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"height_m", "storage_ml", "percent_full", "last_year_percent_full"}, names)

	require.Len(t, res.Daily.Points, 2)
	assert.Equal(t, "2024-09-01", res.Daily.Points[0].Key(series.Daily))
	assert.Equal(t, series.None, res.Daily.Points[0].Values[1], "footnote marker becomes null")
	assert.Equal(t, series.Some(60.12), res.Daily.Points[1].Values[0])

	require.Len(t, res.Yearly.Points, 1)
	assert.Equal(t, series.Some(126000.0), res.Yearly.Points[0].Values[1], "mean ignores nulls")
}

func TestNormalize_NoColumns(t *testing.T) {
	snap := readCSV(t, "Date,Woodhead Height (m)\n01-Jan-24,1\n")
	_, ok := Normalize(snap, Entity{Name: "Alexandra", Prefix: "alexandra"})
	assert.False(t, ok)
}

func TestNormalizeAll(t *testing.T) {
	snap := readCSV(t, "Date,Woodhead Height (m),Victoria Storage (Ml)\n"+
		"01-Jan-24,100,5\n"+
		"garbage,101,6\n"+
		"02-Jan-24,102,7\n")

	entities := []Entity{
		{Name: "Woodhead", Prefix: "woodhead"},
		{Name: "Alexandra", Prefix: "alexandra"},
		{Name: "Victoria", Prefix: "victoria"},
	}
	out := NormalizeAll(snap, entities, discardLogger())

	require.Len(t, out.Results, 2)
	assert.Equal(t, "woodhead", out.Results[0].Entity.Key())
	assert.Equal(t, "victoria", out.Results[1].Entity.Key())
	assert.Equal(t, []Entity{{Name: "Alexandra", Prefix: "alexandra"}}, out.Missing)
	assert.Equal(t, 1, out.BadDates, "one bad snapshot row is counted once")
	assert.Len(t, out.Results[0].Daily.Points, 2)

	doc, err := Document(out.Results, series.Yearly).MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"woodhead":[{"date":"2024","height_m":101}],"victoria":[{"date":"2024","storage_ml":6}]}`, string(doc))
}
