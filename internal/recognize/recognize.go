// Package recognize is the external recognizer chain (C5): AcoustID, then
// MusicBrainz, then AudD, grounded on
// original_source/backend/detection/audio_processor/track_manager/external_detection.py's
// find_acoustid_match → find_musicbrainz_match → find_audd_match fallback
// order and its confidence-floor acceptance rule.
package recognize

import (
	"context"
	"fmt"

	"github.com/sodav/detection-core/internal/logger"
)

// ConfidenceFloor is the minimum confidence an external recognizer result
// must carry to be accepted, matching the original's 0.7 threshold.
const ConfidenceFloor = 0.7

// Candidate is one external recognizer's best guess at a track's identity,
// carrying the full track_info envelope the spec's recognizer contract
// requires: {title, artist, album, isrc, label, release_date, duration,
// musicbrainz_id}.
type Candidate struct {
	Title         string
	Artist        string
	Album         string
	ISRC          string
	Label         string
	ReleaseDate   string
	DurationMs    int
	MusicBrainzID string
	Source        string
	Confidence    float64
}

// Recognizer identifies a captured audio sample against an external
// catalog. A nil, nil return means "no match", not an error.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, samplePath string, durationSec float64) (*Candidate, error)
}

// Chain tries each Recognizer in order and returns the first candidate that
// clears ConfidenceFloor, following the original's "fall through to the
// next provider" policy instead of querying every provider and voting.
type Chain struct {
	recognizers []Recognizer
	log         *logger.Logger
}

func NewChain(log *logger.Logger, recognizers ...Recognizer) *Chain {
	return &Chain{recognizers: recognizers, log: log.With(logger.CategoryExternalDetection)}
}

func (c *Chain) Recognize(ctx context.Context, samplePath string, durationSec float64) (*Candidate, error) {
	for _, r := range c.recognizers {
		candidate, err := r.Recognize(ctx, samplePath, durationSec)
		if err != nil {
			c.log.Warnf("%s recognition failed: %v", r.Name(), err)
			continue
		}
		if candidate == nil {
			c.log.Debugf("%s found no match", r.Name())
			continue
		}
		if candidate.Confidence < ConfidenceFloor {
			c.log.Debugf("%s match below confidence floor (%.2f < %.2f), skipping", r.Name(), candidate.Confidence, ConfidenceFloor)
			continue
		}
		candidate.Source = r.Name()
		return candidate, nil
	}
	return nil, nil
}

// errNotConfigured is returned by a recognizer whose API key is unset, so
// the chain logs a clear reason instead of silently falling through.
func errNotConfigured(provider string) error {
	return fmt.Errorf("%s: not configured", provider)
}
