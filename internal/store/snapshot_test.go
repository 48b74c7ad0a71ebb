package store

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/dam-data-etl/internal/domain"
	"github.com/couchcryptid/dam-data-etl/internal/jsonvalue"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func batch(t *testing.T, ids ...int64) domain.Batch {
	t.Helper()
	b := make(domain.Batch, 0, len(ids))
	for _, id := range ids {
		a, err := domain.NewAlert(jsonvalue.Object(
			jsonvalue.M("Id", jsonvalue.Int(id)),
			jsonvalue.M("coordinates", domain.Coordinates{}.JSON()),
		))
		require.NoError(t, err)
		b = append(b, a)
	}
	return b
}

func newStore(t *testing.T) (*FileStore, *clockwork.FakeClock, string) {
	t.Helper()
	dir := t.TempDir()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 9, 1, 6, 0, 0, 0, time.UTC))
	s, err := NewFileStore(dir, clock, discardLogger())
	require.NoError(t, err)
	return s, clock, dir
}

func TestSnapshotName(t *testing.T) {
	at := time.Date(2024, 9, 1, 14, 5, 9, 0, time.UTC)
	assert.Equal(t, "service_alerts_planned_2024-09-01_14-05-09.json", SnapshotName(domain.CategoryPlanned, at))
}

func TestLatest_NoSnapshot(t *testing.T) {
	s, _, _ := newStore(t)

	b, path, err := s.Latest(domain.CategoryUnplanned)
	require.NoError(t, err)
	assert.Empty(t, b)
	assert.Empty(t, path)
}

func TestSave_RetainsExactlyOnePerCategory(t *testing.T) {
	s, clock, dir := newStore(t)

	_, err := s.Save(domain.CategoryPlanned, batch(t, 1))
	require.NoError(t, err)
	_, err = s.Save(domain.CategoryUnplanned, batch(t, 10))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	last, err := s.Save(domain.CategoryPlanned, batch(t, 2, 1))
	require.NoError(t, err)

	for _, c := range domain.Categories {
		files, err := s.Files(c)
		require.NoError(t, err)
		assert.Len(t, files, 1, "category %s", c)
	}
	assert.Equal(t, filepath.Join(dir, "service_alerts_planned_2024-09-01_07-00-00.json"), last)

	got, path, err := s.Latest(domain.CategoryPlanned)
	require.NoError(t, err)
	assert.Equal(t, last, path)
	assert.Equal(t, []int64{2, 1}, got.IDs())

	unplanned, _, err := s.Latest(domain.CategoryUnplanned)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, unplanned.IDs())
}

func TestSave_SameSecondOverwrites(t *testing.T) {
	s, _, _ := newStore(t)

	_, err := s.Save(domain.CategoryPlanned, batch(t, 1))
	require.NoError(t, err)
	_, err = s.Save(domain.CategoryPlanned, batch(t, 1, 2))
	require.NoError(t, err)

	files, err := s.Files(domain.CategoryPlanned)
	require.NoError(t, err)
	require.Len(t, files, 1)

	got, _, err := s.Latest(domain.CategoryPlanned)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, got.IDs())
}

func TestLatest_PicksNewestAndIgnoresForeignFiles(t *testing.T) {
	s, _, dir := newStore(t)

	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("service_alerts_planned_2023-01-01_00-00-00.json", `[{"Id":1}]`)
	write("service_alerts_planned_2024-01-01_00-00-00.json", `[{"Id":2},{"no":"id"}]`)
	write("service_alerts_planned_latest.json", `[{"Id":99}]`)
	write("service_alerts_unplanned_2025-01-01_00-00-00.json", `[{"Id":3}]`)

	got, path, err := s.Latest(domain.CategoryPlanned)
	require.NoError(t, err)
	assert.Equal(t, "service_alerts_planned_2024-01-01_00-00-00.json", filepath.Base(path))
	assert.Equal(t, []int64{2}, got.IDs())
}

func TestLatest_CorruptSnapshotIsErrorAndKept(t *testing.T) {
	s, _, dir := newStore(t)
	name := filepath.Join(dir, "service_alerts_unplanned_2024-01-01_00-00-00.json")
	require.NoError(t, os.WriteFile(name, []byte(`[{"Id":1},`), 0o644))

	_, _, err := s.Latest(domain.CategoryUnplanned)
	require.Error(t, err)

	_, statErr := os.Stat(name)
	assert.NoError(t, statErr)
}

func TestSave_FailureKeepsPreviousSnapshot(t *testing.T) {
	s, clock, dir := newStore(t)
	prev, err := s.Save(domain.CategoryPlanned, batch(t, 1))
	require.NoError(t, err)

	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })
	if f, err := os.CreateTemp(dir, "writable"); err == nil {
		f.Close()
		os.Remove(f.Name())
		t.Skip("directory permissions not enforced (running as root)")
	}

	clock.Advance(time.Minute)
	_, err = s.Save(domain.CategoryPlanned, batch(t, 1, 2))
	require.Error(t, err)

	_, statErr := os.Stat(prev)
	assert.NoError(t, statErr)
}
