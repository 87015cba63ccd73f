// Package overlay holds the render-target independent geometry: normalized to
// pixel transforms, storm-track interpolation, isobar path rescaling, wind
// arrow construction, color ramps and the summary-card grid.
//
// Everything here is a pure function of its arguments. Render targets in
// package render call into overlay with their own pixel dimensions.
package overlay
