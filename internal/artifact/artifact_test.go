package artifact

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/dam-data-etl/internal/domain"
	"github.com/couchcryptid/dam-data-etl/internal/jsonvalue"
	"github.com/couchcryptid/dam-data-etl/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	assert.Equal(t, "dam_levels_daily.json", DamLevelsName(series.Daily))
	assert.Equal(t, "dam_levels_yearly.json", DamLevelsName(series.Yearly))
	assert.Equal(t, "cape_town_rainfall_monthly.json", RainfallName(series.Monthly))
	assert.Equal(t, "service_alerts_planned.json", AlertsKey(domain.CategoryPlanned))
	assert.Equal(t, "shapefiles/Bulk_Water_Dams_Enriched.geojson", OutlinesKey("Bulk_Water_Dams_Enriched.geojson"))
}

func TestWriter_WritesSanitizedIndentedJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	w, err := NewWriter(dir)
	require.NoError(t, err)

	v := jsonvalue.Array(jsonvalue.Object(
		jsonvalue.M("date", jsonvalue.String("2024")),
		jsonvalue.M("tavg", jsonvalue.Number(math.NaN())),
		jsonvalue.M("prcp", jsonvalue.Number(512.3)),
	))
	path, err := w.Write(RainfallName(series.Yearly), v)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cape_town_rainfall_yearly.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[\n  {\n    \"date\": \"2024\",\n    \"tavg\": null,\n    \"prcp\": 512.3\n  }\n]", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteFile_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.json")
	require.NoError(t, WriteFile(path, jsonvalue.Int(1)))
	require.NoError(t, WriteFile(path, jsonvalue.Int(2)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))
}

func TestWriteFile_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "a.json")
	err := WriteFile(path, jsonvalue.Int(1))
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
