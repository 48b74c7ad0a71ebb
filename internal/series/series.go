// Package series resamples date-indexed numeric tables into daily, monthly
// and yearly projections.
//
// Each field declares how it aggregates within a bucket: levels and
// temperatures take the mean, rainfall takes the sum. Bucketing, key
// formatting and rounding are shared by every field regardless of kind.
package series

import (
	"math"
	"sort"
	"time"

	"github.com/couchcryptid/dam-data-etl/internal/jsonvalue"
)

// Aggregation selects how a field's observations combine within a bucket.
type Aggregation int

const (
	Mean Aggregation = iota
	Sum
)

func (a Aggregation) String() string {
	if a == Sum {
		return "sum"
	}
	return "mean"
}

// Granularity is the resolution of a projection.
type Granularity int

const (
	Daily Granularity = iota
	Monthly
	Yearly
)

// Granularities lists every projection in output order.
var Granularities = []Granularity{Daily, Monthly, Yearly}

func (g Granularity) String() string {
	switch g {
	case Monthly:
		return "monthly"
	case Yearly:
		return "yearly"
	default:
		return "daily"
	}
}

// Layout is the time layout used for bucket keys.
func (g Granularity) Layout() string {
	switch g {
	case Monthly:
		return "2006-01"
	case Yearly:
		return "2006"
	default:
		return "2006-01-02"
	}
}

// truncate returns the first instant of the bucket containing t.
func (g Granularity) truncate(t time.Time) time.Time {
	switch g {
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Yearly:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

func (g Granularity) next(t time.Time) time.Time {
	switch g {
	case Monthly:
		return t.AddDate(0, 1, 0)
	case Yearly:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Sample is a nullable observation.
type Sample struct {
	Value float64
	Valid bool
}

// Some returns a valid sample. NaN is treated as missing.
func Some(v float64) Sample {
	if math.IsNaN(v) {
		return Sample{}
	}
	return Sample{Value: v, Valid: true}
}

// None is the missing sample.
var None = Sample{}

// Field names a numeric column and how it aggregates.
type Field struct {
	Name string
	Agg  Aggregation
}

// Row is one dated observation; Values align with Table.Fields.
type Row struct {
	Date   time.Time
	Values []Sample
}

// Table is a date-indexed set of numeric fields.
type Table struct {
	Fields []Field
	Rows   []Row
}

// Point is one bucket of a projection.
type Point struct {
	Date   time.Time
	Values []Sample
}

// Key formats the bucket date for the given granularity.
func (p Point) Key(g Granularity) string { return p.Date.Format(g.Layout()) }

// Projection is a table viewed at one granularity, ascending by date.
type Projection struct {
	Granularity Granularity
	Fields      []Field
	Points      []Point
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Project returns the projection of t at granularity g.
func Project(t Table, g Granularity) Projection {
	if g == Daily {
		return DailyProjection(t)
	}
	return Resample(t, g)
}

// DailyProjection sorts t ascending by date and rounds every value; nulls are kept.
func DailyProjection(t Table) Projection {
	rows := make([]Row, len(t.Rows))
	copy(rows, t.Rows)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	points := make([]Point, len(rows))
	for i, r := range rows {
		values := make([]Sample, len(t.Fields))
		for j := range t.Fields {
			if j < len(r.Values) && r.Values[j].Valid {
				values[j] = Some(Round2(r.Values[j].Value))
			}
		}
		points[i] = Point{Date: Daily.truncate(r.Date), Values: values}
	}
	return Projection{Granularity: Daily, Fields: cloneFields(t.Fields), Points: points}
}

type accumulator struct {
	sum   float64
	count int
}

// Resample buckets t by calendar month or year and aggregates each field by
// its declared Aggregation over the non-null observations. A bucket with no
// non-null observations yields null for that field. Buckets are contiguous
// from the earliest to the latest observed period, so gaps appear as nulls.
func Resample(t Table, g Granularity) Projection {
	out := Projection{Granularity: g, Fields: cloneFields(t.Fields)}
	if len(t.Rows) == 0 {
		return out
	}

	buckets := make(map[time.Time][]accumulator)
	first, last := g.truncate(t.Rows[0].Date), g.truncate(t.Rows[0].Date)
	for _, r := range t.Rows {
		key := g.truncate(r.Date)
		if key.Before(first) {
			first = key
		}
		if key.After(last) {
			last = key
		}
		acc, ok := buckets[key]
		if !ok {
			acc = make([]accumulator, len(t.Fields))
			buckets[key] = acc
		}
		for j := range t.Fields {
			if j < len(r.Values) && r.Values[j].Valid {
				acc[j].sum += r.Values[j].Value
				acc[j].count++
			}
		}
	}

	for key := first; !key.After(last); key = g.next(key) {
		values := make([]Sample, len(t.Fields))
		for j, f := range t.Fields {
			acc := buckets[key]
			if acc == nil || acc[j].count == 0 {
				continue
			}
			v := acc[j].sum
			if f.Agg == Mean {
				v /= float64(acc[j].count)
			}
			values[j] = Some(Round2(v))
		}
		out.Points = append(out.Points, Point{Date: key, Values: values})
	}
	return out
}

// Table converts the projection back into a table keyed by bucket start.
func (p Projection) Table() Table {
	rows := make([]Row, len(p.Points))
	for i, pt := range p.Points {
		values := make([]Sample, len(pt.Values))
		copy(values, pt.Values)
		rows[i] = Row{Date: pt.Date, Values: values}
	}
	return Table{Fields: cloneFields(p.Fields), Rows: rows}
}

// JSON renders the projection as an array of {date, field...} records.
// Every field of the projection is emitted; missing samples become null.
func (p Projection) JSON() jsonvalue.Value {
	records := make([]jsonvalue.Value, len(p.Points))
	for i, pt := range p.Points {
		members := make([]jsonvalue.Member, 0, len(p.Fields)+1)
		members = append(members, jsonvalue.M("date", jsonvalue.String(pt.Key(p.Granularity))))
		for j, f := range p.Fields {
			var s Sample
			if j < len(pt.Values) {
				s = pt.Values[j]
			}
			members = append(members, jsonvalue.M(f.Name, jsonvalue.OptionalNumber(s.Value, s.Valid)))
		}
		records[i] = jsonvalue.Object(members...)
	}
	return jsonvalue.Array(records...)
}

func cloneFields(fields []Field) []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}
