package render

import (
	"errors"
	"fmt"
	"strings"
)

// Layer names one overlay layer.
type Layer string

// Overlay layers in draw order, bottom to top.
const (
	LayerSurge     Layer = "surge"
	LayerAnomalies Layer = "anomalies"
	LayerIsobars   Layer = "isobars"
	LayerWind      Layer = "wind"
	LayerTrack     Layer = "track"
)

// AllLayers lists every layer in draw order.
var AllLayers = []Layer{LayerSurge, LayerAnomalies, LayerIsobars, LayerWind, LayerTrack}

// ErrUnknownLayer is returned for a layer name that is not in AllLayers.
var ErrUnknownLayer = errors.New("unknown layer")

// LayerSet is a selection of layers.
type LayerSet map[Layer]bool

// Has reports whether l is selected.
func (s LayerSet) Has(l Layer) bool { return s[l] }

// ParseLayers parses a comma-separated layer list. An empty string selects
// every layer.
func ParseLayers(s string) (LayerSet, error) {
	set := LayerSet{}
	s = strings.TrimSpace(s)
	if s == "" {
		for _, l := range AllLayers {
			set[l] = true
		}
		return set, nil
	}
	for _, name := range strings.Split(s, ",") {
		l := Layer(strings.ToLower(strings.TrimSpace(name)))
		if l == "" {
			continue
		}
		if !known(l) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLayer, name)
		}
		set[l] = true
	}
	return set, nil
}

func known(l Layer) bool {
	for _, k := range AllLayers {
		if k == l {
			return true
		}
	}
	return false
}

// Options controls an overlay render.
type Options struct {
	Width  int
	Height int
	// Hour is the storm-track scrubber position.
	Hour   float64
	Layers LayerSet
}

func (o Options) layers() LayerSet {
	if o.Layers == nil {
		all, _ := ParseLayers("")
		return all
	}
	return o.Layers
}
