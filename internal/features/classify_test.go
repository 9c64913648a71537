package features

import "testing"

func TestClassifySilence(t *testing.T) {
	if got := Classify(nil, 0.0001, 5); got != SegmentSilence {
		t.Errorf("Classify() = %q, want silence", got)
	}
}

func TestClassifyMusicFromDenseWideSpreadPeaks(t *testing.T) {
	peaks := make([]Peak, 0, 64)
	for i := 0; i < 64; i++ {
		peaks = append(peaks, Peak{
			TimeIdx: i,
			Time:    float64(i) * 0.01,
			Freq:    float64(200 + i*80),
		})
	}
	if got := Classify(peaks, 0.2, 1.0); got != SegmentMusic {
		t.Errorf("Classify() = %q, want music", got)
	}
}

func TestClassifySpeechFromSparseNarrowPeaks(t *testing.T) {
	peaks := []Peak{
		{Freq: 200}, {Freq: 210}, {Freq: 205},
	}
	if got := Classify(peaks, 0.2, 2.0); got != SegmentSpeech {
		t.Errorf("Classify() = %q, want speech", got)
	}
}
