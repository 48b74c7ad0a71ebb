package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/dam-data-etl/internal/damlevels"
	"github.com/couchcryptid/dam-data-etl/internal/domain"
	"github.com/couchcryptid/dam-data-etl/internal/jsonvalue"
	"github.com/couchcryptid/dam-data-etl/internal/series"
)

// archiveLag is how far behind real time the reanalysis archive runs.
const archiveLag = 5 * 24 * time.Hour

// WeatherFields are the daily fields fetched for Cape Town.
var WeatherFields = []series.Field{
	{Name: "tavg", Agg: series.Mean},
	{Name: "prcp", Agg: series.Sum},
}

// DamLevels fetches and parses the dam levels snapshot.
func (c *Client) DamLevels(ctx context.Context) (*damlevels.Snapshot, error) {
	body, err := c.get(ctx, "dam_levels", c.cfg.DamLevelsURL)
	if err != nil {
		return nil, err
	}
	snap, err := damlevels.ReadSnapshot(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse dam levels: %w", err)
	}
	return snap, nil
}

// Alerts fetches the current alerts for a category. Elements without an
// integer Id are skipped and returned as the int count.
func (c *Client) Alerts(ctx context.Context, category domain.Category) (domain.Batch, int, error) {
	u := c.cfg.UnplannedAlertURL
	if category == domain.CategoryPlanned {
		u = c.cfg.PlannedAlertURL
	}
	body, err := c.get(ctx, "alerts_"+string(category), u)
	if err != nil {
		return nil, 0, err
	}

	var doc jsonvalue.Value
	if err := doc.UnmarshalJSON(body); err != nil {
		return nil, 0, fmt.Errorf("parse %s alerts: %w", category, err)
	}
	batch, skipped, err := domain.DecodeBatch(doc)
	if err != nil {
		return nil, 0, fmt.Errorf("parse %s alerts: %w", category, err)
	}
	for _, e := range skipped {
		c.logger.Warn("skipping upstream alert", "category", category, "error", e)
	}
	return batch, len(skipped), nil
}

type archiveResponse struct {
	Daily struct {
		Time []string   `json:"time"`
		Tavg []*float64 `json:"temperature_2m_mean"`
		Prcp []*float64 `json:"precipitation_sum"`
	} `json:"daily"`
}

// Weather fetches daily mean temperature and precipitation for the
// configured point, from WeatherStart to the latest archived day.
func (c *Client) Weather(ctx context.Context) (series.Table, error) {
	end := c.clock.Now().UTC().Add(-archiveLag)
	params := url.Values{
		"latitude":   {strconv.FormatFloat(c.cfg.Latitude, 'f', 4, 64)},
		"longitude":  {strconv.FormatFloat(c.cfg.Longitude, 'f', 4, 64)},
		"start_date": {c.cfg.WeatherStart.Format(time.DateOnly)},
		"end_date":   {end.Format(time.DateOnly)},
		"daily":      {"temperature_2m_mean,precipitation_sum"},
		"timezone":   {"Africa/Johannesburg"},
	}
	body, err := c.get(ctx, "weather", c.cfg.WeatherURL+"?"+params.Encode())
	if err != nil {
		return series.Table{}, err
	}

	var ar archiveResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return series.Table{}, fmt.Errorf("parse weather: %w", err)
	}
	d := ar.Daily
	if len(d.Tavg) != len(d.Time) || len(d.Prcp) != len(d.Time) {
		return series.Table{}, fmt.Errorf("parse weather: mismatched series lengths (time=%d tavg=%d prcp=%d)", len(d.Time), len(d.Tavg), len(d.Prcp))
	}

	table := series.Table{Fields: WeatherFields, Rows: make([]series.Row, 0, len(d.Time))}
	for i, day := range d.Time {
		date, err := time.Parse(time.DateOnly, day)
		if err != nil {
			c.logger.Warn("skipping weather row with bad date", "date", day)
			continue
		}
		table.Rows = append(table.Rows, series.Row{
			Date:   date,
			Values: []series.Sample{sample(d.Tavg[i]), sample(d.Prcp[i])},
		})
	}
	return table, nil
}

func sample(v *float64) series.Sample {
	if v == nil {
		return series.None
	}
	return series.Some(*v)
}
