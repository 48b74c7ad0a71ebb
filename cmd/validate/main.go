// Command validate checks the integrity of a finished ETL run: every
// timeseries artifact parses, has well-formed and ordered date keys, carries
// only known fields with finite two-decimal values, and exactly one alert
// snapshot exists per category with unique, descending Ids and a
// coordinates member on every alert.
//
// Usage:
//
//	go run ./cmd/validate -output-dir data/output -alerts-dir data/service_alerts
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/dam-data-etl/internal/artifact"
	"github.com/couchcryptid/dam-data-etl/internal/domain"
	"github.com/couchcryptid/dam-data-etl/internal/jsonvalue"
	"github.com/couchcryptid/dam-data-etl/internal/series"
	"github.com/couchcryptid/dam-data-etl/internal/store"
	"github.com/jonboulle/clockwork"
)

var (
	damFields     = map[string]bool{"height_m": true, "storage_ml": true, "percent_full": true, "last_year_percent_full": true}
	weatherFields = map[string]bool{"tavg": true, "prcp": true}
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	outputDir := flag.String("output-dir", "data/output", "directory containing the timeseries artifacts")
	alertsDir := flag.String("alerts-dir", "data/service_alerts", "directory containing the alert snapshots")
	flag.Parse()

	os.Exit(run(os.Stdout, *outputDir, *alertsDir))
}

func run(w io.Writer, outputDir, alertsDir string) int {
	fmt.Fprintln(w, "=== Dam Data Artifact Validation ===")
	fmt.Fprintln(w)

	phases := []*phase{
		validateDamLevels(outputDir),
		validateRainfall(outputDir),
		validateAlerts(alertsDir),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

// ── Loading ──

func loadValue(path string) (jsonvalue.Value, error) {
	f, err := os.Open(path)
	if err != nil {
		return jsonvalue.Value{}, err
	}
	defer f.Close()
	return jsonvalue.Decode(f)
}

// ── Timeseries ──

func validateDamLevels(dir string) *phase {
	p := &phase{name: "Dam levels (daily/monthly/yearly)"}
	keys := make(map[series.Granularity][]string)
	for _, g := range series.Granularities {
		name := artifact.DamLevelsName(g)
		doc, err := loadValue(filepath.Join(dir, name))
		if err != nil {
			p.errorf("%s: %v", name, err)
			continue
		}
		if doc.Kind() != jsonvalue.KindObject {
			p.errorf("%s: top level is %s, want object", name, doc.Kind())
			continue
		}
		for _, m := range doc.Members() {
			keys[g] = append(keys[g], m.Key)
			checkRecords(p, name+"/"+m.Key, m.Value, g, damFields)
		}
	}
	// Every granularity must cover the same dams.
	for _, g := range series.Granularities[1:] {
		if fmt.Sprint(keys[g]) != fmt.Sprint(keys[series.Daily]) {
			p.errorf("%s dams %v differ from daily %v", g, keys[g], keys[series.Daily])
		}
	}
	return p
}

func validateRainfall(dir string) *phase {
	p := &phase{name: "Cape Town rainfall (daily/monthly/yearly)"}
	for _, g := range series.Granularities {
		name := artifact.RainfallName(g)
		doc, err := loadValue(filepath.Join(dir, name))
		if err != nil {
			p.errorf("%s: %v", name, err)
			continue
		}
		checkRecords(p, name, doc, g, weatherFields)
	}
	return p
}

// checkRecords validates an ordered array of {date, field...} records.
func checkRecords(p *phase, label string, v jsonvalue.Value, g series.Granularity, allowed map[string]bool) {
	if v.Kind() != jsonvalue.KindArray {
		p.errorf("%s: %s, want array", label, v.Kind())
		return
	}
	var prev time.Time
	for i, rec := range v.Items() {
		if rec.Kind() != jsonvalue.KindObject {
			p.errorf("%s[%d]: %s, want object", label, i, rec.Kind())
			continue
		}
		date := checkDate(p, label, i, rec, g)
		if !date.IsZero() && !prev.IsZero() && !date.After(prev) {
			p.errorf("%s[%d]: date %s not after %s", label, i, date.Format(g.Layout()), prev.Format(g.Layout()))
		}
		if !date.IsZero() {
			prev = date
		}
		for _, m := range rec.Members() {
			if m.Key == "date" {
				continue
			}
			if !allowed[m.Key] {
				p.errorf("%s[%d]: unexpected field %q", label, i, m.Key)
				continue
			}
			checkNumber(p, label, i, m)
		}
	}
}

func checkDate(p *phase, label string, i int, rec jsonvalue.Value, g series.Granularity) time.Time {
	raw, ok := rec.Get("date")
	if !ok {
		p.errorf("%s[%d]: missing date", label, i)
		return time.Time{}
	}
	s, ok := raw.Str()
	if !ok {
		p.errorf("%s[%d]: date is %s, want string", label, i, raw.Kind())
		return time.Time{}
	}
	t, err := time.Parse(g.Layout(), s)
	if err != nil || t.Format(g.Layout()) != s {
		p.errorf("%s[%d]: date %q does not match %s", label, i, s, g.Layout())
		return time.Time{}
	}
	return t
}

func checkNumber(p *phase, label string, i int, m jsonvalue.Member) {
	if m.Value.IsNull() {
		return
	}
	f, ok := m.Value.Float()
	if !ok {
		p.errorf("%s[%d].%s: %s, want number or null", label, i, m.Key, m.Value.Kind())
		return
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		p.errorf("%s[%d].%s: non-finite value", label, i, m.Key)
		return
	}
	if math.Abs(series.Round2(f)-f) > 1e-9 {
		p.errorf("%s[%d].%s: %v has more than two decimals", label, i, m.Key, f)
	}
}

// ── Alerts ──

func validateAlerts(dir string) *phase {
	p := &phase{name: "Service alert snapshots"}
	if info, err := os.Stat(dir); err != nil {
		p.errorf("open %s: %v", dir, err)
		return p
	} else if !info.IsDir() {
		p.errorf("open %s: not a directory", dir)
		return p
	}
	fs, err := store.NewFileStore(dir, clockwork.NewRealClock(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		p.errorf("open %s: %v", dir, err)
		return p
	}
	for _, c := range domain.Categories {
		files, err := fs.Files(c)
		if err != nil {
			p.errorf("%s: %v", c, err)
			continue
		}
		if len(files) != 1 {
			p.errorf("%s: %d snapshots, want exactly 1", c, len(files))
			if len(files) == 0 {
				continue
			}
		}
		checkSnapshot(p, files[len(files)-1])
	}
	return p
}

func checkSnapshot(p *phase, path string) {
	name := filepath.Base(path)
	doc, err := loadValue(path)
	if err != nil {
		p.errorf("%s: %v", name, err)
		return
	}
	batch, skipped, err := domain.DecodeBatch(doc)
	if err != nil {
		p.errorf("%s: %v", name, err)
		return
	}
	for _, e := range skipped {
		p.errorf("%s: %v", name, e)
	}

	seen := make(map[int64]bool, len(batch))
	for i, a := range batch {
		if seen[a.ID()] {
			p.errorf("%s: duplicate Id %d", name, a.ID())
		}
		seen[a.ID()] = true
		if i > 0 && a.ID() >= batch[i-1].ID() {
			p.errorf("%s: Id %d at position %d breaks descending order", name, a.ID(), i)
		}
		coords, ok := a.Coordinates()
		if !ok {
			p.errorf("%s: alert %d has no coordinates member", name, a.ID())
			continue
		}
		if (coords.Lat == nil) != (coords.Lng == nil) {
			p.errorf("%s: alert %d has half-populated coordinates", name, a.ID())
		}
	}
}
