package domain

import (
	"context"
	"log/slog"
)

// EnrichWithGeocoding fills in whichever half of the location the AI service
// left out. A name without a center is forward geocoded; a center without a
// name is reverse geocoded. If geocoder is nil or geocoding fails, the analysis
// is returned with GeoSource set accordingly.
func EnrichWithGeocoding(ctx context.Context, a WeatherAnalysis, geocoder Geocoder, logger *slog.Logger) WeatherAnalysis {
	if geocoder == nil {
		return a
	}

	hasCenter := a.Center != nil && (a.Center.Lat != 0 || a.Center.Lon != 0)
	hasName := a.LocationName != ""

	switch {
	case !hasCenter && hasName:
		result, err := geocoder.ForwardGeocode(ctx, a.LocationName)
		if err != nil {
			logger.Warn("forward geocoding failed",
				"analysis_id", a.ID,
				"location", a.LocationName,
				"error", err,
			)
			a.GeoSource = "failed"
			return a
		}
		if result.Lat != 0 || result.Lon != 0 {
			a.Center = &Geo{Lat: result.Lat, Lon: result.Lon}
			a.GeoSource = "forward"
			return a
		}

	case hasCenter && !hasName:
		result, err := geocoder.ReverseGeocode(ctx, a.Center.Lat, a.Center.Lon)
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"analysis_id", a.ID,
				"lat", a.Center.Lat,
				"lon", a.Center.Lon,
				"error", err,
			)
			a.GeoSource = "failed"
			return a
		}
		if result.FormattedAddress != "" {
			a.LocationName = result.FormattedAddress
			a.GeoSource = "reverse"
			return a
		}
	}

	a.GeoSource = "original"
	return a
}
