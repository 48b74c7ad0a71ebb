package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/dam-data-etl/internal/jsonvalue"
)

// Category is an alert feed.
type Category string

const (
	CategoryUnplanned Category = "unplanned"
	CategoryPlanned   Category = "planned"
)

// Categories lists every alert feed in processing order.
var Categories = []Category{CategoryUnplanned, CategoryPlanned}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryUnplanned, CategoryPlanned:
		return c, nil
	default:
		return "", fmt.Errorf("unknown alert category %q", s)
	}
}

// Member names interpreted on an alert.
const (
	FieldID          = "Id"
	FieldLocation    = "location"
	FieldArea        = "area"
	FieldCoordinates = "coordinates"
)

// ErrNotObject is returned when an alert is not a JSON object.
var ErrNotObject = errors.New("alert is not a JSON object")

// ErrMissingID is returned when an alert has no integer Id.
var ErrMissingID = errors.New("alert has no integer Id")

// Alert is one service alert record. The underlying object keeps every
// upstream member in order.
type Alert struct {
	id  int64
	obj jsonvalue.Value
}

// NewAlert validates v as an alert record.
func NewAlert(v jsonvalue.Value) (Alert, error) {
	if v.Kind() != jsonvalue.KindObject {
		return Alert{}, ErrNotObject
	}
	raw, ok := v.Get(FieldID)
	if !ok {
		return Alert{}, ErrMissingID
	}
	id, ok := raw.Int64()
	if !ok {
		return Alert{}, ErrMissingID
	}
	return Alert{id: id, obj: v}, nil
}

// ID returns the upstream identifier.
func (a Alert) ID() int64 { return a.id }

// Location returns the trimmed "location" member, or "" if absent or not a string.
func (a Alert) Location() string { return a.str(FieldLocation) }

// Area returns the trimmed "area" member, or "" if absent or not a string.
func (a Alert) Area() string { return a.str(FieldArea) }

func (a Alert) str(key string) string {
	v, ok := a.obj.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.Str()
	return strings.TrimSpace(s)
}

// HasCoordinates reports whether the alert carries a "coordinates" member,
// whatever its value.
func (a Alert) HasCoordinates() bool { return a.obj.Has(FieldCoordinates) }

// Coordinates returns the parsed coordinates and whether the member exists.
func (a Alert) Coordinates() (Coordinates, bool) {
	v, ok := a.obj.Get(FieldCoordinates)
	if !ok {
		return Coordinates{}, false
	}
	return parseCoordinates(v), true
}

// WithCoordinates returns a copy of a with its "coordinates" member set.
func (a Alert) WithCoordinates(c Coordinates) Alert {
	return Alert{id: a.id, obj: a.obj.With(FieldCoordinates, c.JSON())}
}

// Value returns the alert as a JSON object.
func (a Alert) Value() jsonvalue.Value { return a.obj }

// Coordinates is a nullable latitude/longitude pair.
type Coordinates struct {
	Lat *float64
	Lng *float64
}

// NewCoordinates returns a populated pair.
func NewCoordinates(lat, lng float64) Coordinates {
	return Coordinates{Lat: &lat, Lng: &lng}
}

// Valid reports whether both components are set.
func (c Coordinates) Valid() bool { return c.Lat != nil && c.Lng != nil }

// JSON renders {"lat": ..., "lng": ...} with nulls for missing components.
func (c Coordinates) JSON() jsonvalue.Value {
	return jsonvalue.Object(
		jsonvalue.M("lat", optional(c.Lat)),
		jsonvalue.M("lng", optional(c.Lng)),
	)
}

func optional(f *float64) jsonvalue.Value {
	if f == nil {
		return jsonvalue.Null()
	}
	return jsonvalue.Number(*f)
}

func parseCoordinates(v jsonvalue.Value) Coordinates {
	var c Coordinates
	if lat, ok := v.Get("lat"); ok {
		if f, ok := lat.Float(); ok {
			c.Lat = &f
		}
	}
	if lng, ok := v.Get("lng"); ok {
		if f, ok := lng.Float(); ok {
			c.Lng = &f
		}
	}
	return c
}

// Batch is an ordered collection of alerts for one category.
type Batch []Alert

// DecodeBatch converts a JSON array into a batch. Elements that are not
// objects or lack an integer Id are skipped and reported in the returned
// error slice; a non-array document is an error.
func DecodeBatch(v jsonvalue.Value) (Batch, []error, error) {
	if v.Kind() != jsonvalue.KindArray {
		return nil, nil, fmt.Errorf("alert batch is %s, want array", v.Kind())
	}
	batch := make(Batch, 0, len(v.Items()))
	var skipped []error
	for i, item := range v.Items() {
		a, err := NewAlert(item)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("element %d: %w", i, err))
			continue
		}
		batch = append(batch, a)
	}
	return batch, skipped, nil
}

// JSON renders the batch as an array of alert objects.
func (b Batch) JSON() jsonvalue.Value {
	items := make([]jsonvalue.Value, len(b))
	for i, a := range b {
		items[i] = a.obj
	}
	return jsonvalue.Array(items...)
}

// IDs returns the Id of every alert in batch order.
func (b Batch) IDs() []int64 {
	ids := make([]int64, len(b))
	for i, a := range b {
		ids[i] = a.id
	}
	return ids
}
