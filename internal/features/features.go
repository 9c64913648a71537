package features

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoAudio is returned (wrapped) by Extract when it is given no samples.
var ErrNoAudio = errors.New("no audio samples")

// Features is everything the matcher, recognizer chain and tracker need
// from one captured audio window.
type Features struct {
	Peaks       []Peak
	Fingerprint map[uint32][]Couple
	ContentHash uint64
	Segment     Segment
	DurationSec float64
	RMS         float64
}

// Extract runs the full spectrogram -> peaks -> fingerprint/content-hash ->
// classification pipeline over one window of mono PCM samples.
func Extract(samples []float64, sampleRate int) (*Features, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("extracting features: %w", ErrNoAudio)
	}

	spectrogram, err := ComputeSpectrogram(samples, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("extracting features: %w", err)
	}

	peaks := ExtractPeaks(spectrogram, sampleRate)
	duration := float64(len(samples)) / float64(sampleRate)
	rms := rootMeanSquare(samples)

	return &Features{
		Peaks:       peaks,
		Fingerprint: Fingerprint(peaks),
		ContentHash: ContentHash(peaks),
		Segment:     Classify(peaks, rms, duration),
		DurationSec: duration,
		RMS:         rms,
	}, nil
}

func rootMeanSquare(samples []float64) float64 {
	var sumSq float64
	for _, s := range samples {
		sumSq += s * s
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}
