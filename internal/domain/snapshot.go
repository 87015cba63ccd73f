package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// imageBlob is the JSON stored under ImageKey.
type imageBlob struct {
	SourceImage
	Enhanced *SourceImage `json:"enhanced,omitempty"`
}

// SaveSnapshot writes the analysis and its images under the fixed keys.
func SaveSnapshot(ctx context.Context, store Store, snap Snapshot) error {
	analysis, err := json.Marshal(snap.Analysis)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	image, err := json.Marshal(imageBlob{SourceImage: snap.Image, Enhanced: snap.Enhanced})
	if err != nil {
		return fmt.Errorf("encode image: %w", err)
	}

	if err := store.Put(ctx, AnalysisKey, analysis); err != nil {
		return fmt.Errorf("store %s: %w", AnalysisKey, err)
	}
	if err := store.Put(ctx, ImageKey, image); err != nil {
		return fmt.Errorf("store %s: %w", ImageKey, err)
	}
	return nil
}

// LoadSnapshot reads the persisted snapshot. It returns ErrNoAnalysis when
// nothing has been saved yet.
func LoadSnapshot(ctx context.Context, store Store) (Snapshot, error) {
	rawAnalysis, err := store.Get(ctx, AnalysisKey)
	if errors.Is(err, ErrNotFound) {
		return Snapshot{}, ErrNoAnalysis
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load %s: %w", AnalysisKey, err)
	}
	rawImage, err := store.Get(ctx, ImageKey)
	if errors.Is(err, ErrNotFound) {
		return Snapshot{}, ErrNoAnalysis
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load %s: %w", ImageKey, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(rawAnalysis, &snap.Analysis); err != nil {
		return Snapshot{}, fmt.Errorf("decode analysis: %w", err)
	}
	if err := validateTrack(snap.Analysis.StormTrack); err != nil {
		return Snapshot{}, fmt.Errorf("decode analysis: %w", err)
	}
	var img imageBlob
	if err := json.Unmarshal(rawImage, &img); err != nil {
		return Snapshot{}, fmt.Errorf("decode image: %w", err)
	}
	snap.Image = img.SourceImage
	snap.Enhanced = img.Enhanced
	return snap, nil
}
