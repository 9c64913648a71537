package features

import "math"

// Segment is a coarse classification of a captured audio window, used to
// skip fingerprinting and external recognition on stretches that are
// clearly talk rather than music.
type Segment string

const (
	SegmentMusic   Segment = "music"
	SegmentSpeech  Segment = "speech"
	SegmentSilence Segment = "silence"
)

// silenceRMSThreshold below which a window counts as silence regardless of
// its spectral shape.
const silenceRMSThreshold = 0.01

// Classify distinguishes music from speech from silence using peak density
// and frequency spread: speech concentrates energy in a narrow formant band
// with a lower, steadier peak rate, while music spreads peaks across a wider
// frequency range and produces more of them per second. This is a heuristic,
// not a learned classifier — stations with heavily processed talk segments
// may be misclassified, which is acceptable given the local/external
// matchers double-check music-ness implicitly by failing to match.
func Classify(peaks []Peak, rms float64, durationSec float64) Segment {
	if rms < silenceRMSThreshold {
		return SegmentSilence
	}
	if durationSec <= 0 || len(peaks) == 0 {
		return SegmentSpeech
	}

	peaksPerSec := float64(len(peaks)) / durationSec

	var sumFreq, sumFreqSq float64
	for _, p := range peaks {
		sumFreq += p.Freq
		sumFreqSq += p.Freq * p.Freq
	}
	mean := sumFreq / float64(len(peaks))
	variance := sumFreqSq/float64(len(peaks)) - mean*mean
	if variance < 0 {
		variance = 0
	}
	stdDev := math.Sqrt(variance)

	const (
		minMusicPeaksPerSec = 8.0
		minMusicFreqSpread  = 400.0
	)

	if peaksPerSec >= minMusicPeaksPerSec && stdDev >= minMusicFreqSpread {
		return SegmentMusic
	}
	return SegmentSpeech
}
