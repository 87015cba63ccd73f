// Package domain models the weather analysis returned by the generative-AI
// service for a single satellite image.
//
// # Coordinate Convention
//
// Every geometric coordinate in an analysis is a normalized percentage of the
// source image's bounding box:
//
//	x = 0   left edge     x = 100 right edge
//	y = 0   top edge      y = 100 bottom edge
//
// There is no shared absolute coordinate system. Each render target (SVG,
// canvas, static map) rescales normalized points to its own pixel box at draw
// time. Values outside 0–100 are kept as supplied and simply land off-canvas.
//
// # AI Contract
//
// The AI service answers with one JSON object (see [WeatherAnalysis]). Models
// frequently wrap JSON in Markdown fences ("```json ... ```"), which
// [ParseAnalysis] strips before decoding. Scalar metrics are optional; a metric
// the model could not estimate is omitted or null and stays nil.
//
// Storm-track points must have strictly increasing forecast hours. The track
// interpolator depends on that ordering, so [ParseAnalysis] rejects violations
// with [ErrTrackOrder] instead of silently sorting.
//
// # Persistence
//
// The latest analysis and its source image are persisted as two JSON blobs
// under the fixed keys [AnalysisKey] and [ImageKey] and reloaded verbatim.
package domain
