package domain

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// CSVHeader is the fixed column order of the analysis export.
var CSVHeader = []string{
	"timestamp",
	"location",
	"temperature",
	"wind_speed",
	"wind_direction",
	"wind_gust",
	"precipitation",
	"humidity",
	"uv_index",
	"explanation",
	"filename",
}

// WriteCSV writes the header followed by one row per analysis. Fields that
// contain commas, quotes or newlines are quoted with inner quotes doubled.
func WriteCSV(w io.Writer, analyses ...WeatherAnalysis) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range analyses {
		if err := cw.Write(csvRow(analyses[i])); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(a WeatherAnalysis) []string {
	ts := ""
	if !a.CreatedAt.IsZero() {
		ts = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		ts,
		a.LocationName,
		formatMetric(a.Temperature),
		formatMetric(a.WindSpeed),
		a.WindDirection,
		formatMetric(a.WindGust),
		formatMetric(a.PrecipitationChance),
		formatMetric(a.Humidity),
		formatMetric(a.UVIndex),
		a.Explanation,
		a.FileName,
	}
}

func formatMetric(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
