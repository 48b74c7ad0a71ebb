package damlevels

import (
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/couchcryptid/dam-data-etl/internal/jsonvalue"
	"github.com/couchcryptid/dam-data-etl/internal/series"
)

// Entity is a tracked dam and the normalized column prefix its readings use.
type Entity struct {
	Name   string
	Prefix string
}

// Key is the identifier used in output artifacts, e.g. "steenbras_lower".
func (e Entity) Key() string {
	var b strings.Builder
	for _, r := range strings.ToLower(e.Name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// DefaultEntities are the dams reported by the City of Cape Town.
var DefaultEntities = []Entity{
	{Name: "Berg River", Prefix: "berg river"},
	{Name: "Steenbras Lower", Prefix: "steenbras lower"},
	{Name: "Steenbras Upper", Prefix: "steenbras upper"},
	{Name: "Theewaterskloof", Prefix: "theewaterskloof"},
	{Name: "Voelvlei", Prefix: "voëlvlei"},
	{Name: "Wemmershoek", Prefix: "wemmershoek"},
	{Name: "Woodhead", Prefix: "woodhead"},
	{Name: "Hely-Hutchinson", Prefix: "hely-hutchinson"},
	{Name: "Victoria", Prefix: "victoria"},
	{Name: "Alexandra", Prefix: "alexandra"},
	{Name: "De Villiers", Prefix: "de villiers"},
	{Name: "Kleinplaats", Prefix: "kleinplaats"},
	{Name: "Lewis Gay", Prefix: "lewis gay"},
	{Name: "Land-en-Zeezicht", Prefix: "land-en-zeezicht"},
}

// keywordFields maps column keywords to their canonical field, in output
// order. Keywords are tried in turn; a column containing exclude is skipped.
// The city publishes the current level as either "Current (%)" or "% Full".
var keywordFields = []struct {
	keywords []string
	exclude  string
	field    series.Field
}{
	{[]string{"height"}, "", series.Field{Name: "height_m", Agg: series.Mean}},
	{[]string{"storage"}, "", series.Field{Name: "storage_ml", Agg: series.Mean}},
	{[]string{"current", "%full"}, "lastyear", series.Field{Name: "percent_full", Agg: series.Mean}},
	{[]string{"lastyear"}, "", series.Field{Name: "last_year_percent_full", Agg: series.Mean}},
}

// ResolveColumn returns the index of the first column that starts with prefix
// and contains keyword, ignoring case and whitespace, so "last year" matches
// "lastyear". Columns are expected to be normalized.
func ResolveColumn(columns []string, prefix, keyword string) (int, bool) {
	return resolveColumn(columns, prefix, keyword, "")
}

func resolveColumn(columns []string, prefix, keyword, exclude string) (int, bool) {
	prefix = NormalizeColumnName(prefix)
	keyword = compact(keyword)
	for i, c := range columns {
		if !strings.HasPrefix(strings.ToLower(c), prefix) {
			continue
		}
		c = compact(c)
		if exclude != "" && strings.Contains(c, exclude) {
			continue
		}
		if strings.Contains(c, keyword) {
			return i, true
		}
	}
	return 0, false
}

func compact(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// Result holds the three projections for one entity.
type Result struct {
	Entity  Entity
	Daily   series.Projection
	Monthly series.Projection
	Yearly  series.Projection
}

// Projection returns the projection for granularity g.
func (r Result) Projection(g series.Granularity) series.Projection {
	switch g {
	case series.Monthly:
		return r.Monthly
	case series.Yearly:
		return r.Yearly
	default:
		return r.Daily
	}
}

// Table extracts the entity's columns as a date-indexed table. It reports
// false when no keyword column matched. The int is the number of rows
// dropped for an unparseable date.
func Table(snap *Snapshot, e Entity) (series.Table, int, bool) {
	var (
		fields []series.Field
		cols   []int
	)
	for _, kf := range keywordFields {
		for _, kw := range kf.keywords {
			if idx, ok := resolveColumn(snap.Columns, e.Prefix, kw, kf.exclude); ok {
				fields = append(fields, kf.field)
				cols = append(cols, idx)
				break
			}
		}
	}
	if len(fields) == 0 {
		return series.Table{}, 0, false
	}

	dateCol := snap.DateColumn()
	table := series.Table{Fields: fields, Rows: make([]series.Row, 0, len(snap.Rows))}
	dropped := 0
	for i := range snap.Rows {
		date, ok := ParseDate(snap.Cell(i, dateCol))
		if !ok {
			dropped++
			continue
		}
		values := make([]series.Sample, len(cols))
		for j, c := range cols {
			if v, ok := ParseNumber(snap.Cell(i, c)); ok {
				values[j] = series.Some(v)
			}
		}
		table.Rows = append(table.Rows, series.Row{Date: date, Values: values})
	}
	return table, dropped, true
}

// Normalize produces the daily, monthly and yearly projections for e.
// It reports false when the snapshot carries no columns for the entity.
func Normalize(snap *Snapshot, e Entity) (Result, bool) {
	table, _, ok := Table(snap, e)
	if !ok {
		return Result{}, false
	}
	return project(e, table), true
}

func project(e Entity, table series.Table) Result {
	return Result{
		Entity:  e,
		Daily:   series.Project(table, series.Daily),
		Monthly: series.Project(table, series.Monthly),
		Yearly:  series.Project(table, series.Yearly),
	}
}

// Outcome summarizes a NormalizeAll pass. BadDates counts snapshot rows,
// not entity rows.
type Outcome struct {
	Results    []Result
	Missing    []Entity
	BadDates   int
	ParsedRows int
}

// NormalizeAll normalizes every entity in order. Entities without columns
// are logged and listed in Missing; they produce no result.
func NormalizeAll(snap *Snapshot, entities []Entity, logger *slog.Logger) Outcome {
	var out Outcome
	for _, e := range entities {
		table, dropped, ok := Table(snap, e)
		if !ok {
			logger.Warn("no columns for entity", "entity", e.Name, "prefix", e.Prefix)
			out.Missing = append(out.Missing, e)
			continue
		}
		// Every entity shares the date column, so the count is the same for all.
		if dropped > 0 && out.BadDates == 0 {
			logger.Warn("dropped rows with unparseable date", "count", dropped)
			out.BadDates = dropped
		}
		out.ParsedRows += len(table.Rows)
		out.Results = append(out.Results, project(e, table))
		logger.Debug("entity normalized", "entity", e.Name, "fields", len(table.Fields), "rows", len(table.Rows), "span", span(table))
	}
	return out
}

func span(t series.Table) string {
	if len(t.Rows) == 0 {
		return ""
	}
	first, last := t.Rows[0].Date, t.Rows[0].Date
	for _, r := range t.Rows {
		if r.Date.Before(first) {
			first = r.Date
		}
		if r.Date.After(last) {
			last = r.Date
		}
	}
	return first.Format(time.DateOnly) + ".." + last.Format(time.DateOnly)
}

// Document renders the results at granularity g as an object keyed by entity.
func Document(results []Result, g series.Granularity) jsonvalue.Value {
	members := make([]jsonvalue.Member, len(results))
	for i, r := range results {
		members[i] = jsonvalue.M(r.Entity.Key(), r.Projection(g).JSON())
	}
	return jsonvalue.Object(members...)
}
